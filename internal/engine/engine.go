package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/quartz"

	"github.com/roach88/timekeep/internal/model"
	"github.com/roach88/timekeep/internal/store"
)

// Directory resolves the collaborator data the engine consumes: the user's
// active context, project records and user settings.
// Implemented by store.Directory.
type Directory interface {
	ResolveContext(ctx context.Context, userID string) (model.Context, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	GetUserSettings(ctx context.Context, userID string) (model.UserSettings, error)
}

// Notifier delivers alerts after the transaction that produced them has
// committed. Implementations must not block for long and must swallow
// delivery failures. Implemented by alert.Dispatcher.
type Notifier interface {
	Dispatch(ctx context.Context, alerts ...model.Alert)
}

// Thresholds are the engine's fixed timing rules.
type Thresholds struct {
	// StaleAfter is how long without a heartbeat before a timer is treated
	// as abandoned.
	StaleAfter time.Duration `yaml:"stale_after"`
	// OverrunResend throttles repeated budget overrun alerts.
	OverrunResend time.Duration `yaml:"overrun_resend"`
	// WarningResend throttles repeated budget warnings of the same type.
	WarningResend time.Duration `yaml:"warning_resend"`
	// NudgeAfter is the session length before still-running nudges start.
	NudgeAfter time.Duration `yaml:"nudge_after"`
	// NudgeEvery is the minimum gap between nudges for one timer.
	NudgeEvery time.Duration `yaml:"nudge_every"`
	// SweepInterval is the liveness sweep period. A Pomodoro transition
	// overdue by more than one interval is repaired by the sweep.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// NudgeInterval is the nudge job period.
	NudgeInterval time.Duration `yaml:"nudge_interval"`
	// PomodoroResumeWindow is how soon after a completed break a new
	// Pomodoro session continues the previous cycle count.
	PomodoroResumeWindow time.Duration `yaml:"pomodoro_resume_window"`
}

// DefaultThresholds returns the production timing rules.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StaleAfter:           5 * time.Minute,
		OverrunResend:        60 * time.Minute,
		WarningResend:        30 * time.Minute,
		NudgeAfter:           90 * time.Minute,
		NudgeEvery:           30 * time.Minute,
		SweepInterval:        time.Minute,
		NudgeInterval:        5 * time.Minute,
		PomodoroResumeWindow: 15 * time.Minute,
	}
}

// Engine owns the timer state machine.
//
// Thread-safety: all methods are safe for concurrent use. Consistency comes
// from store transactions, not from locks in the engine.
type Engine struct {
	store   *store.Store
	dir     Directory
	alerts  Notifier
	clock   quartz.Clock
	ids     model.IDGenerator
	log     *slog.Logger
	metrics *Metrics
	th      Thresholds
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithClock sets the clock. Tests pass a quartz mock.
func WithClock(c quartz.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the generator for timer, entry and callback ids.
//
// Default: model.UUIDv7Generator
func WithIDGenerator(g model.IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// WithMetrics records engine activity.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithThresholds overrides DefaultThresholds. Zero fields keep their
// defaults.
func WithThresholds(th Thresholds) EngineOption {
	return func(e *Engine) {
		def := DefaultThresholds()
		fill := func(v *time.Duration, d time.Duration) {
			if *v <= 0 {
				*v = d
			}
		}
		fill(&th.StaleAfter, def.StaleAfter)
		fill(&th.OverrunResend, def.OverrunResend)
		fill(&th.WarningResend, def.WarningResend)
		fill(&th.NudgeAfter, def.NudgeAfter)
		fill(&th.NudgeEvery, def.NudgeEvery)
		fill(&th.SweepInterval, def.SweepInterval)
		fill(&th.NudgeInterval, def.NudgeInterval)
		fill(&th.PomodoroResumeWindow, def.PomodoroResumeWindow)
		e.th = th
	}
}

// New creates an Engine.
func New(s *store.Store, dir Directory, alerts Notifier, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  s,
		dir:    dir,
		alerts: alerts,
		clock:  quartz.NewReal(),
		ids:    model.UUIDv7Generator{},
		log:    slog.Default(),
		th:     DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "engine")
	return e
}

// Thresholds returns the engine's timing rules.
func (e *Engine) Thresholds() Thresholds {
	return e.th
}

// now returns the current time at millisecond precision, the precision
// timestamps are stored with.
func (e *Engine) now() time.Time {
	return model.Truncate(e.clock.Now())
}

// notify hands alerts to the Notifier. Called only after commit.
func (e *Engine) notify(ctx context.Context, alerts []model.Alert) {
	if len(alerts) == 0 || e.alerts == nil {
		return
	}
	e.alerts.Dispatch(ctx, alerts...)
}

// findTimer returns the user's timer in the first context of the probe
// order that has one.
func findTimer(ctx context.Context, tx *store.Tx, userID string, resolved model.Context) (*model.RunningTimer, error) {
	for _, c := range model.ProbeOrder(resolved) {
		t, err := tx.GetTimer(ctx, userID, c)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, store.ErrNotFound
}

// endTimer closes (or, for a reset, deletes) the timer's open entry, writes
// the audit row and deletes the timer. Break timers have no entry.
// Returns the billed seconds.
func (e *Engine) endTimer(
	ctx context.Context,
	tx *store.Tx,
	t *model.RunningTimer,
	now time.Time,
	source model.Source,
	reason model.EndReason,
) (int64, error) {
	var seconds int64
	if !t.IsBreak() && !t.Legacy() {
		entry, err := tx.GetOpenEntry(ctx, t.UserID, t.ProjectID, t.Context)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Entry already closed by an earlier, racing stop.
		case err != nil:
			return 0, err
		case reason == model.EndReset:
			if err := tx.DeleteOpenEntry(ctx, entry.ID); err != nil {
				return 0, err
			}
		default:
			seconds = model.ElapsedSeconds(entry.StartedAt, now)
			if err := tx.CloseEntry(ctx, entry.ID, now, seconds, source); err != nil {
				return 0, err
			}
		}
	}

	t.EndedAt = &now
	h := model.TimerHistory{
		TimerID:   t.ID,
		Context:   t.Context,
		UserID:    t.UserID,
		ProjectID: t.ProjectID,
		StartedAt: t.StartedAt,
		EndedAt:   now,
		Reason:    reason,
	}
	if p, ok := t.Pomodoro(); ok {
		h.Pomodoro = true
		h.CompletedCycles = p.CompletedCycles
	}
	if err := tx.InsertHistory(ctx, h); err != nil {
		return 0, err
	}
	if err := tx.DeleteTimer(ctx, t.ID); err != nil {
		return 0, err
	}

	if e.metrics != nil {
		e.metrics.TimersEnded.WithLabelValues(string(reason), string(source)).Inc()
	}
	e.log.Debug("timer ended",
		"timer", t.ID,
		"user", t.UserID,
		"context", t.Context.String(),
		"reason", reason,
		"seconds", seconds,
	)
	return seconds, nil
}

// schedule enqueues a callback in the current transaction. captured is the
// timer stamp the handler compares against when it runs.
func (e *Engine) schedule(ctx context.Context, tx *store.Tx, kind model.CallbackKind, at, captured time.Time, t *model.RunningTimer) error {
	cb := model.Callback{
		ID:    e.ids.Generate(),
		Kind:  kind,
		RunAt: at,
		Args: model.CallbackArgs{
			UserID:      t.UserID,
			WorkspaceID: t.Context.WorkspaceID,
			TimerID:     t.ID,
			Captured:    captured.UnixMilli(),
		},
	}
	if err := tx.ScheduleAt(ctx, cb); err != nil {
		return fmt.Errorf("schedule %s: %w", kind, err)
	}
	return nil
}
