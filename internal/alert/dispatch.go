package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/timekeep/internal/model"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 5 * time.Second

// Dispatcher wraps a Sender with a timeout, logging and metrics. Dispatch
// never fails from the caller's point of view.
type Dispatcher struct {
	sender  Sender
	log     *slog.Logger
	metrics *Metrics
	timeout time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.timeout = d
	}
}

// WithMetrics records dispatch attempts.
func WithMetrics(m *Metrics) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.metrics = m
	}
}

func NewDispatcher(sender Sender, log *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		log:     log.With("component", "alert.dispatch"),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers alerts one by one. Failures are logged and counted; they
// are never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts ...model.Alert) {
	for _, a := range alerts {
		d.dispatchOne(ctx, a)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, a model.Alert) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var timer *prometheus.Timer
	if d.metrics != nil {
		timer = prometheus.NewTimer(d.metrics.DispatchSeconds)
	}
	err := d.sender.Send(ctx, a)
	if timer != nil {
		timer.ObserveDuration()
	}

	result := ResultSuccess
	if err != nil {
		result = ResultFailure
		d.log.WarnContext(ctx, "alert delivery failed",
			"user", a.UserID,
			"type", a.Type,
			"error", err,
		)
	} else {
		d.log.DebugContext(ctx, "alert delivered", "user", a.UserID, "type", a.Type)
	}
	if d.metrics != nil {
		d.metrics.DispatchAttempts.WithLabelValues(string(a.Type), result).Inc()
	}
}
