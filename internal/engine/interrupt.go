package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/timekeep/internal/alert"
	"github.com/roach88/timekeep/internal/model"
	"github.com/roach88/timekeep/internal/store"
)

// Actions reported by interrupt operations.
const (
	ActionPrompted    = "prompted"
	ActionAutoStopped = "auto_stopped"
	ActionContinued   = "continued"
	ActionStopped     = "stopped"
)

// InterruptResult reports what an interrupt check or auto-stop did.
type InterruptResult struct {
	Outcome
	Action     string     `json:"action,omitempty"`
	TimerID    string     `json:"timer_id,omitempty"`
	AutoStopAt *time.Time `json:"auto_stop_at,omitempty"`
	Seconds    int64      `json:"seconds,omitempty"`
}

// AckResult reports the user's answer to an interrupt.
type AckResult struct {
	Outcome
	Action          string     `json:"action,omitempty"`
	TimerID         string     `json:"timer_id,omitempty"`
	NextInterruptAt *time.Time `json:"next_interrupt_at,omitempty"`
	Seconds         int64      `json:"seconds,omitempty"`
}

// Check runs a scheduled interrupt check. The callback's captured time must
// still equal the timer's nextInterruptAt; otherwise a newer check has been
// scheduled and this one is superseded.
func (e *Engine) Check(ctx context.Context, args model.CallbackArgs) (*InterruptResult, error) {
	settings, err := e.dir.GetUserSettings(ctx, args.UserID)
	if err != nil {
		return nil, fmt.Errorf("interrupt check: %w", err)
	}

	now := e.now()
	result := &InterruptResult{}
	var pending []model.Alert
	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		t, err := tx.GetTimer(ctx, args.UserID, args.Context())
		if errors.Is(err, store.ErrNotFound) {
			result.Outcome = noop(ReasonNoRunningTimer)
			return nil
		}
		if err != nil {
			return err
		}
		if args.TimerID != "" && t.ID != args.TimerID {
			result.Outcome = noop(ReasonSuperseded)
			return nil
		}
		captured := args.CapturedTime()
		pending, err = e.interrupt(ctx, tx, t, settings, now, &captured, result)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("interrupt check: %w", err)
	}

	e.recordCallback(string(model.CallbackInterruptCheck), result.Outcome)
	e.notify(ctx, pending)
	return result, nil
}

// RequestInterrupt prompts the user immediately, regardless of schedule.
func (e *Engine) RequestInterrupt(ctx context.Context, userID string) (*InterruptResult, error) {
	if userID == "" {
		return nil, unauthorizedError("not signed in")
	}
	resolved, err := e.dir.ResolveContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("request interrupt: %w", err)
	}
	settings, err := e.dir.GetUserSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("request interrupt: %w", err)
	}

	now := e.now()
	result := &InterruptResult{}
	var pending []model.Alert
	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		t, err := findTimer(ctx, tx, userID, resolved)
		if errors.Is(err, store.ErrNotFound) {
			result.Outcome = noop(ReasonNoRunningTimer)
			return nil
		}
		if err != nil {
			return err
		}
		pending, err = e.interrupt(ctx, tx, t, settings, now, nil, result)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("request interrupt: %w", err)
	}

	e.notify(ctx, pending)
	return result, nil
}

// interrupt prompts the user or, if the client has gone silent, auto-stops
// the timer. A nil captured skips the staleness comparison.
func (e *Engine) interrupt(
	ctx context.Context,
	tx *store.Tx,
	t *model.RunningTimer,
	settings model.UserSettings,
	now time.Time,
	captured *time.Time,
	result *InterruptResult,
) ([]model.Alert, error) {
	result.TimerID = t.ID
	switch {
	case t.Legacy():
		result.Outcome = noop(ReasonLegacyRecord)
		return nil, nil
	case t.AwaitingInterruptAck:
		result.Outcome = noop(ReasonAwaitingAck)
		return nil, nil
	case isPomodoro(t):
		result.Outcome = noop(ReasonPomodoroTimer)
		return nil, nil
	case captured != nil && !model.SameInstant(t.NextInterruptAt(), *captured):
		result.Outcome = noop(ReasonSuperseded)
		return nil, nil
	}

	// A dead client can never answer the prompt.
	if now.Sub(t.LastHeartbeatAt) > e.th.StaleAfter {
		seconds, err := e.endTimer(ctx, tx, t, now, model.SourceAutoStop, model.EndAutoStopped)
		if err != nil {
			return nil, err
		}
		result.Outcome = applied()
		result.Action = ActionAutoStopped
		result.Seconds = seconds
		return []model.Alert{alert.AutoStopped(now, t.UserID, t.ID, "no heartbeat", seconds)}, nil
	}

	shown := now
	t.AwaitingInterruptAck = true
	t.InterruptShownAt = &shown
	if err := tx.UpdateTimer(ctx, t); err != nil {
		return nil, err
	}
	stopAt := shown.Add(settings.Grace())
	if err := e.schedule(ctx, tx, model.CallbackInterruptAutoStop, stopAt, shown, t); err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.Interrupts.Inc()
	}
	result.Outcome = applied()
	result.Action = ActionPrompted
	result.AutoStopAt = &stopAt
	return []model.Alert{alert.Interrupt(now, t.UserID, t.ID, now.Sub(t.StartedAt), settings.Grace())}, nil
}

// AutoStopIfNoAck runs the grace-period callback. It stops the timer only if
// the prompt it was scheduled for is still unanswered.
func (e *Engine) AutoStopIfNoAck(ctx context.Context, args model.CallbackArgs) (*InterruptResult, error) {
	now := e.now()
	result := &InterruptResult{}
	var pending []model.Alert
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		t, err := tx.GetTimer(ctx, args.UserID, args.Context())
		if errors.Is(err, store.ErrNotFound) {
			result.Outcome = noop(ReasonNoRunningTimer)
			return nil
		}
		if err != nil {
			return err
		}
		result.TimerID = t.ID
		switch {
		case args.TimerID != "" && t.ID != args.TimerID:
			result.Outcome = noop(ReasonSuperseded)
			return nil
		case t.Legacy():
			result.Outcome = noop(ReasonLegacyRecord)
			return nil
		case !t.AwaitingInterruptAck:
			result.Outcome = noop(ReasonNotAwaiting)
			return nil
		case !model.SameInstant(t.InterruptShownAt, args.CapturedTime()):
			result.Outcome = noop(ReasonSuperseded)
			return nil
		}

		seconds, err := e.endTimer(ctx, tx, t, now, model.SourceAutoStop, model.EndAutoStopped)
		if err != nil {
			return err
		}
		result.Outcome = applied()
		result.Action = ActionAutoStopped
		result.Seconds = seconds
		pending = append(pending, alert.AutoStopped(now, t.UserID, t.ID, "no response", seconds))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("auto-stop: %w", err)
	}

	e.recordCallback(string(model.CallbackInterruptAutoStop), result.Outcome)
	e.notify(ctx, pending)
	return result, nil
}

// AckInterrupt answers a pending prompt. Continuing clears the prompt and
// schedules the next check; stopping ends the timer and suggests a break.
func (e *Engine) AckInterrupt(ctx context.Context, userID string, cont bool) (*AckResult, error) {
	if userID == "" {
		return nil, unauthorizedError("not signed in")
	}
	resolved, err := e.dir.ResolveContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ack interrupt: %w", err)
	}
	settings, err := e.dir.GetUserSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ack interrupt: %w", err)
	}

	now := e.now()
	result := &AckResult{}
	var pending []model.Alert
	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		var (
			t     *model.RunningTimer
			found bool
		)
		for _, c := range model.ProbeOrder(resolved) {
			candidate, err := tx.GetTimer(ctx, userID, c)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			found = true
			if candidate.AwaitingInterruptAck {
				t = candidate
				break
			}
		}
		switch {
		case t == nil && found:
			result.Outcome = noop(ReasonAlreadyAcknowledged)
			return nil
		case t == nil:
			result.Outcome = noop(ReasonNoRunningTimer)
			return nil
		}
		result.TimerID = t.ID

		if !cont {
			seconds, err := e.endTimer(ctx, tx, t, now, model.SourceTimer, model.EndStopped)
			if err != nil {
				return err
			}
			result.Outcome = applied()
			result.Action = ActionStopped
			result.Seconds = seconds
			pending = append(pending, alert.Break(now, t.UserID, t.ID, seconds))
			return nil
		}

		t.AwaitingInterruptAck = false
		t.InterruptShownAt = nil
		var next *time.Time
		if !isPomodoro(t) && settings.InterruptEnabled && settings.InterruptEvery() > 0 {
			at := now.Add(settings.InterruptEvery())
			next = &at
		}
		if !isPomodoro(t) {
			t.Mode = &model.StandardMode{NextInterruptAt: next}
		}
		if err := tx.UpdateTimer(ctx, t); err != nil {
			return err
		}
		if next != nil {
			if err := e.schedule(ctx, tx, model.CallbackInterruptCheck, *next, *next, t); err != nil {
				return err
			}
		}
		result.Outcome = applied()
		result.Action = ActionContinued
		result.NextInterruptAt = next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ack interrupt: %w", err)
	}

	e.notify(ctx, pending)
	return result, nil
}

func isPomodoro(t *model.RunningTimer) bool {
	_, ok := t.Pomodoro()
	return ok
}
