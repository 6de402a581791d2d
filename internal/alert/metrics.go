package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DispatchAttempts *prometheus.CounterVec
	DispatchSeconds  prometheus.Histogram
}

const (
	ns        = "timekeep"
	subsystem = "alerts"

	LabelType   = "alert_type"
	LabelResult = "result"

	ResultSuccess = "success"
	ResultFailure = "failure"
)

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DispatchAttempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_attempts_total", Namespace: ns, Subsystem: subsystem,
			Help: "The number of alert dispatch attempts, aggregated by alert type and result.",
		}, []string{LabelType, LabelResult}),
		DispatchSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "dispatch_seconds", Namespace: ns, Subsystem: subsystem,
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			Help:    "The time taken to hand an alert to its sender.",
		}),
	}
}
