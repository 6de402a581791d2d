// Package alert delivers user notifications produced by the timer engine.
//
// Delivery is best-effort. The engine hands finished alerts to a Dispatcher
// after its transaction commits; the Dispatcher never returns an error to the
// engine and only logs and counts failures.
package alert

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/timekeep/internal/model"
	"github.com/roach88/timekeep/internal/store"
)

// Sender delivers one alert.
type Sender interface {
	Send(ctx context.Context, a model.Alert) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, a model.Alert) error

func (f SenderFunc) Send(ctx context.Context, a model.Alert) error {
	return f(ctx, a)
}

// LogSender writes alerts to a structured logger.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log.With("component", "alert.log")}
}

func (s *LogSender) Send(ctx context.Context, a model.Alert) error {
	s.log.InfoContext(ctx, "alert",
		"user", a.UserID,
		"type", a.Type,
		"title", a.Title,
		"body", a.Body,
	)
	return nil
}

// OutboxSender persists alerts to the store's alerts table, where a
// push/email relay picks them up.
type OutboxSender struct {
	store *store.Store
}

func NewOutboxSender(s *store.Store) *OutboxSender {
	return &OutboxSender{store: s}
}

func (s *OutboxSender) Send(ctx context.Context, a model.Alert) error {
	return s.store.InsertAlert(ctx, a)
}

// Recorder keeps alerts in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	alerts []model.Alert
}

func (r *Recorder) Send(_ context.Context, a model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

// Alerts returns a copy of everything recorded so far.
func (r *Recorder) Alerts() []model.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// Count returns how many alerts of the given type were recorded.
func (r *Recorder) Count(t model.AlertType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.alerts {
		if a.Type == t {
			n++
		}
	}
	return n
}

// Reset drops all recorded alerts.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = nil
}

// MultiSender fans an alert out to every sender. All senders are tried even
// if one fails; failures are combined.
type MultiSender []Sender

func (m MultiSender) Send(ctx context.Context, a model.Alert) error {
	var result *multierror.Error
	for _, s := range m {
		if err := s.Send(ctx, a); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
