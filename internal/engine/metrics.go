package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TimersStarted *prometheus.CounterVec
	TimersEnded   *prometheus.CounterVec

	Interrupts       prometheus.Counter
	CallbackOutcomes *prometheus.CounterVec

	SweepActions *prometheus.CounterVec
	SweepSeconds prometheus.Histogram
	Nudges       prometheus.Counter
}

const (
	ns        = "timekeep"
	subsystem = "engine"

	LabelMode    = "mode"
	LabelReason  = "reason"
	LabelSource  = "source"
	LabelKind    = "kind"
	LabelOutcome = "outcome"
	LabelAction  = "action"

	ModeStandard = "standard"
	ModePomodoro = "pomodoro"

	OutcomeApplied = "applied"
)

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		TimersStarted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "timers_started_total", Namespace: ns, Subsystem: subsystem,
			Help: "The number of timers started, by mode.",
		}, []string{LabelMode}),
		TimersEnded: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "timers_ended_total", Namespace: ns, Subsystem: subsystem,
			Help: "The number of timers ended, by end reason and entry source.",
		}, []string{LabelReason, LabelSource}),

		Interrupts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "interrupts_shown_total", Namespace: ns, Subsystem: subsystem,
			Help: "The number of still-working prompts shown.",
		}),
		// Outcome is "applied" or the no-op reason.
		CallbackOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "callback_outcomes_total", Namespace: ns, Subsystem: subsystem,
			Help: "The result of scheduled callbacks after staleness checks.",
		}, []string{LabelKind, LabelOutcome}),

		SweepActions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_actions_total", Namespace: ns, Subsystem: subsystem,
			Help: "Repairs made by the liveness sweep.",
		}, []string{LabelAction}),
		SweepSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "sweep_seconds", Namespace: ns, Subsystem: subsystem,
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			Help:    "The time taken by one liveness sweep pass.",
		}),
		Nudges: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "nudges_total", Namespace: ns, Subsystem: subsystem,
			Help: "The number of still-running nudges sent.",
		}),
	}
}

func (e *Engine) recordCallback(kind string, o Outcome) {
	if e.metrics == nil {
		return
	}
	outcome := OutcomeApplied
	if !o.Success {
		outcome = o.Reason
	}
	e.metrics.CallbackOutcomes.WithLabelValues(kind, outcome).Inc()
}
