package schedule

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Handled  *prometheus.CounterVec
	Lateness *prometheus.HistogramVec
}

const (
	ns        = "timekeep"
	subsystem = "callbacks"

	LabelKind   = "kind"
	LabelResult = "result"

	ResultSuccess  = "success"
	ResultTempFail = "temp_fail"
	ResultPermFail = "perm_fail"
)

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Handled: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "handled_total", Namespace: ns, Subsystem: subsystem,
			Help: fmt.Sprintf("The number of callback attempts, aggregated by kind and result (%s)",
				strings.Join([]string{ResultSuccess, ResultTempFail, ResultPermFail}, ", ")),
		}, []string{LabelKind, LabelResult}),
		Lateness: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "lateness_seconds", Namespace: ns, Subsystem: subsystem,
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 900, 3600},
			Help:    "The time between a callback's scheduled run time and the moment it was picked up.",
		}, []string{LabelKind}),
	}
}
