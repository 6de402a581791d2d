// Package schedule runs durable scheduled callbacks.
//
// Callbacks are written by the engine in the same transaction as the state
// change they follow. The Dispatcher polls for due callbacks, leases a batch,
// routes each to the handler registered for its kind and records the result.
// Delivery is at-least-once and may be late: a lease that expires before
// completion hands the callback out again, and a stopped dispatcher simply
// catches up when it restarts. Handlers must therefore be idempotent and
// compare the captured stamp in their arguments with current state.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/roach88/timekeep/internal/model"
)

// Handler processes one callback.
type Handler func(ctx context.Context, args model.CallbackArgs) error

// Store is the callback queue the dispatcher drains.
type Store interface {
	AcquireDueCallbacks(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]model.Callback, error)
	CompleteCallback(ctx context.Context, id string, now time.Time) error
	FailCallback(ctx context.Context, id string, now time.Time, retryAt *time.Time, cause string) error
}

// Config tunes polling and retries.
type Config struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Lease        time.Duration `yaml:"lease"`
	BatchSize    int           `yaml:"batch_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
	// RetryBackoff is the delay after the first failure. It doubles with
	// every further attempt up to MaxBackoff.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
}

// DefaultConfig returns the production polling configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		Lease:        30 * time.Second,
		BatchSize:    50,
		MaxAttempts:  5,
		RetryBackoff: 5 * time.Second,
		MaxBackoff:   5 * time.Minute,
	}
}

// ErrUnknownKind is recorded for callbacks with no registered handler.
var ErrUnknownKind = errors.New("no handler registered for callback kind")

// Dispatcher routes due callbacks to handlers.
type Dispatcher struct {
	store   Store
	clock   quartz.Clock
	log     *slog.Logger
	metrics *Metrics
	cfg     Config

	mu       sync.RWMutex
	handlers map[model.CallbackKind]Handler
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the clock. Tests pass a quartz mock.
func WithClock(c quartz.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

// WithMetrics records callback outcomes.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithConfig overrides DefaultConfig. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) {
		def := DefaultConfig()
		if cfg.PollInterval <= 0 {
			cfg.PollInterval = def.PollInterval
		}
		if cfg.Lease <= 0 {
			cfg.Lease = def.Lease
		}
		if cfg.BatchSize <= 0 {
			cfg.BatchSize = def.BatchSize
		}
		if cfg.MaxAttempts <= 0 {
			cfg.MaxAttempts = def.MaxAttempts
		}
		if cfg.RetryBackoff <= 0 {
			cfg.RetryBackoff = def.RetryBackoff
		}
		if cfg.MaxBackoff <= 0 {
			cfg.MaxBackoff = def.MaxBackoff
		}
		d.cfg = cfg
	}
}

// NewDispatcher creates a dispatcher. Handlers must be registered before
// Run is called.
func NewDispatcher(store Store, log *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		clock:    quartz.NewReal(),
		log:      log.With("component", "schedule"),
		cfg:      DefaultConfig(),
		handlers: make(map[model.CallbackKind]Handler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register routes callbacks of kind to h, replacing any previous handler.
func (d *Dispatcher) Register(kind model.CallbackKind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

func (d *Dispatcher) handler(kind model.CallbackKind) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[kind]
	return h, ok
}

// Run polls until ctx is cancelled. It returns nil on cancellation.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("dispatcher started", "poll_interval", d.cfg.PollInterval)
	w := d.clock.TickerFunc(ctx, d.cfg.PollInterval, func() error {
		if _, err := d.RunDue(ctx); err != nil && ctx.Err() == nil {
			d.log.Error("dispatch due callbacks", "error", err)
		}
		return nil
	}, "dispatcher")
	err := w.Wait()
	d.log.Info("dispatcher stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// RunDue processes one batch of due callbacks and returns how many were
// handled successfully. Handler failures are recorded on the callback and do
// not fail the batch; only store errors are returned.
func (d *Dispatcher) RunDue(ctx context.Context) (int, error) {
	now := d.clock.Now()
	due, err := d.store.AcquireDueCallbacks(ctx, now, d.cfg.Lease, d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("acquire callbacks: %w", err)
	}

	handled := 0
	for _, cb := range due {
		ok, err := d.runOne(ctx, cb)
		if err != nil {
			return handled, err
		}
		if ok {
			handled++
		}
	}
	return handled, nil
}

func (d *Dispatcher) runOne(ctx context.Context, cb model.Callback) (bool, error) {
	log := d.log.With("callback", cb.ID, "kind", cb.Kind, "attempt", cb.Attempts)
	start := d.clock.Now()
	if d.metrics != nil {
		d.metrics.Lateness.WithLabelValues(string(cb.Kind)).Observe(start.Sub(cb.RunAt).Seconds())
	}

	h, ok := d.handler(cb.Kind)
	var handleErr error
	if !ok {
		handleErr = fmt.Errorf("%w: %s", ErrUnknownKind, cb.Kind)
	} else {
		handleErr = h(ctx, cb.Args)
	}

	now := d.clock.Now()
	if handleErr == nil {
		if err := d.store.CompleteCallback(ctx, cb.ID, now); err != nil {
			return false, fmt.Errorf("complete callback %s: %w", cb.ID, err)
		}
		d.record(cb.Kind, ResultSuccess)
		log.Debug("callback handled")
		return true, nil
	}

	if !ok || cb.Attempts >= d.cfg.MaxAttempts {
		if err := d.store.FailCallback(ctx, cb.ID, now, nil, handleErr.Error()); err != nil {
			return false, fmt.Errorf("fail callback %s: %w", cb.ID, err)
		}
		d.record(cb.Kind, ResultPermFail)
		log.Error("callback failed permanently", "error", handleErr)
		return false, nil
	}

	retryAt := now.Add(d.backoff(cb.Attempts))
	if err := d.store.FailCallback(ctx, cb.ID, now, &retryAt, handleErr.Error()); err != nil {
		return false, fmt.Errorf("fail callback %s: %w", cb.ID, err)
	}
	d.record(cb.Kind, ResultTempFail)
	log.Warn("callback failed, will retry", "error", handleErr, "retry_at", retryAt)
	return false, nil
}

// backoff returns the delay before retrying after the given attempt.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.RetryBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.cfg.MaxBackoff {
			return d.cfg.MaxBackoff
		}
	}
	return delay
}

func (d *Dispatcher) record(kind model.CallbackKind, result string) {
	if d.metrics == nil {
		return
	}
	d.metrics.Handled.WithLabelValues(string(kind), result).Inc()
}
