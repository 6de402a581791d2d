package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/hashicorp/go-multierror"

	"github.com/roach88/timekeep/internal/alert"
	"github.com/roach88/timekeep/internal/model"
	"github.com/roach88/timekeep/internal/store"
)

// Sweep actions, used as metric labels.
const (
	SweepStale      = "stale"
	SweepGrace      = "grace_expired"
	SweepInterrupt  = "interrupt"
	SweepTransition = "pomodoro_transition"
)

// SweepReport summarizes one liveness sweep pass.
type SweepReport struct {
	Examined    int `json:"examined"`
	Stale       int `json:"stale"`
	GraceExpire int `json:"grace_expired"`
	Interrupts  int `json:"interrupts"`
	Transitions int `json:"transitions"`
}

// NudgeReport summarizes one nudge pass.
type NudgeReport struct {
	Examined int `json:"examined"`
	Nudged   int `json:"nudged"`
}

// Sweep repairs timers whose scheduled callbacks were lost or delayed. Each
// timer is handled in its own transaction and failures are collected so one
// bad record never blocks the rest of the pass.
func (e *Engine) Sweep(ctx context.Context) (*SweepReport, error) {
	start := e.clock.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.SweepSeconds.Observe(e.clock.Since(start).Seconds())
		}
	}()

	timers, err := e.listTimers(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	now := e.now()
	report := &SweepReport{Examined: len(timers)}
	var result *multierror.Error
	for _, t := range timers {
		action, err := e.sweepOne(ctx, t, now)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("timer %s: %w", t.ID, err))
			continue
		}
		switch action {
		case SweepStale:
			report.Stale++
		case SweepGrace:
			report.GraceExpire++
		case SweepInterrupt:
			report.Interrupts++
		case SweepTransition:
			report.Transitions++
		default:
			continue
		}
		if e.metrics != nil {
			e.metrics.SweepActions.WithLabelValues(action).Inc()
		}
	}

	if report.Stale+report.GraceExpire+report.Interrupts+report.Transitions > 0 {
		e.log.Info("sweep repaired timers",
			"examined", report.Examined,
			"stale", report.Stale,
			"grace_expired", report.GraceExpire,
			"interrupts", report.Interrupts,
			"transitions", report.Transitions,
		)
	}
	return report, result.ErrorOrNil()
}

// sweepOne applies the first repair that matches t and returns its action,
// or "" if the timer is healthy.
func (e *Engine) sweepOne(ctx context.Context, t *model.RunningTimer, now time.Time) (string, error) {
	switch {
	case now.Sub(t.LastHeartbeatAt) > e.th.StaleAfter:
		ok, err := e.sweepStop(ctx, t.ID, now, "no heartbeat", func(cur *model.RunningTimer) bool {
			return now.Sub(cur.LastHeartbeatAt) > e.th.StaleAfter
		})
		return actionIf(ok, SweepStale), err

	case t.Legacy():
		return "", nil

	case t.AwaitingInterruptAck:
		settings, err := e.dir.GetUserSettings(ctx, t.UserID)
		if err != nil {
			return "", err
		}
		expired := func(cur *model.RunningTimer) bool {
			return cur.AwaitingInterruptAck && cur.InterruptShownAt != nil &&
				!now.Before(cur.InterruptShownAt.Add(settings.Grace()))
		}
		if !expired(t) {
			return "", nil
		}
		ok, err := e.sweepStop(ctx, t.ID, now, "no response", expired)
		return actionIf(ok, SweepGrace), err
	}

	if p, ok := t.Pomodoro(); ok {
		if now.Sub(p.TransitionAt) <= e.th.SweepInterval {
			return "", nil
		}
		res, err := e.ProcessTransition(ctx, callbackArgs(t, p.TransitionAt))
		if err != nil {
			return "", err
		}
		return actionIf(res.Success, SweepTransition), nil
	}

	next := t.NextInterruptAt()
	if next == nil || now.Before(*next) {
		return "", nil
	}
	res, err := e.Check(ctx, callbackArgs(t, *next))
	if err != nil {
		return "", err
	}
	return actionIf(res.Success, SweepInterrupt), nil
}

// sweepStop re-reads the timer in a fresh transaction and auto-stops it if
// cond still holds.
func (e *Engine) sweepStop(ctx context.Context, timerID string, now time.Time, why string, cond func(*model.RunningTimer) bool) (bool, error) {
	var (
		stopped bool
		pending []model.Alert
	)
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		t, err := tx.GetTimerByID(ctx, timerID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !cond(t) {
			return nil
		}
		seconds, err := e.endTimer(ctx, tx, t, now, model.SourceAutoStop, model.EndAutoStopped)
		if err != nil {
			return err
		}
		stopped = true
		if !t.Legacy() {
			pending = append(pending, alert.AutoStopped(now, t.UserID, t.ID, why, seconds))
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	e.notify(ctx, pending)
	return stopped, nil
}

// Nudge sends a still-running reminder for long sessions. It changes no
// timer state besides the dedup stamp.
func (e *Engine) Nudge(ctx context.Context) (*NudgeReport, error) {
	timers, err := e.listTimers(ctx)
	if err != nil {
		return nil, fmt.Errorf("nudge: %w", err)
	}

	now := e.now()
	report := &NudgeReport{Examined: len(timers)}
	var result *multierror.Error
	for _, t := range timers {
		if !e.wantsNudge(t, now) {
			continue
		}
		var pending []model.Alert
		err := e.store.InTx(ctx, func(tx *store.Tx) error {
			cur, err := tx.GetTimerByID(ctx, t.ID)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if !e.wantsNudge(cur, now) {
				return nil
			}
			cur.LastNudgeSentAt = &now
			if err := tx.UpdateTimer(ctx, cur); err != nil {
				return err
			}
			pending = append(pending, alert.StillRunning(now, cur.UserID, cur.ID, now.Sub(cur.StartedAt)))
			return nil
		})
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("timer %s: %w", t.ID, err))
			continue
		}
		if len(pending) > 0 {
			report.Nudged++
			if e.metrics != nil {
				e.metrics.Nudges.Inc()
			}
		}
		e.notify(ctx, pending)
	}
	return report, result.ErrorOrNil()
}

func (e *Engine) wantsNudge(t *model.RunningTimer, now time.Time) bool {
	if t.Legacy() || t.IsBreak() || t.AwaitingInterruptAck {
		return false
	}
	if now.Sub(t.StartedAt) <= e.th.NudgeAfter {
		return false
	}
	return t.LastNudgeSentAt == nil || now.Sub(*t.LastNudgeSentAt) >= e.th.NudgeEvery
}

// RunJobs runs the sweep and nudge jobs on their tickers until ctx is
// cancelled. It returns nil on cancellation.
func (e *Engine) RunJobs(ctx context.Context) error {
	e.log.Info("jobs started", "sweep_interval", e.th.SweepInterval, "nudge_interval", e.th.NudgeInterval)
	sweep := e.clock.TickerFunc(ctx, e.th.SweepInterval, func() error {
		if _, err := e.Sweep(ctx); err != nil && ctx.Err() == nil {
			e.log.Error("sweep", "error", err)
		}
		return nil
	}, "sweep")
	nudge := e.clock.TickerFunc(ctx, e.th.NudgeInterval, func() error {
		if _, err := e.Nudge(ctx); err != nil && ctx.Err() == nil {
			e.log.Error("nudge", "error", err)
		}
		return nil
	}, "nudge")

	var result *multierror.Error
	for _, w := range []quartz.Waiter{sweep, nudge} {
		err := w.Wait()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			result = multierror.Append(result, err)
		}
	}
	e.log.Info("jobs stopped")
	return result.ErrorOrNil()
}

func (e *Engine) listTimers(ctx context.Context) ([]*model.RunningTimer, error) {
	var timers []*model.RunningTimer
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		timers, err = tx.ListTimers(ctx)
		return err
	})
	return timers, err
}

func callbackArgs(t *model.RunningTimer, captured time.Time) model.CallbackArgs {
	return model.CallbackArgs{
		UserID:      t.UserID,
		WorkspaceID: t.Context.WorkspaceID,
		TimerID:     t.ID,
		Captured:    captured.UnixMilli(),
	}
}

func actionIf(ok bool, action string) string {
	if ok {
		return action
	}
	return ""
}
