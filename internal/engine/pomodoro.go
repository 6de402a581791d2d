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

const (
	defaultWorkMinutes  = 25
	defaultBreakMinutes = 5
)

// Pomodoro phase changes reported in TransitionResult.
const (
	TransitionBreakStarted = "break_started"
	TransitionCompleted    = "completed"
)

// TransitionResult reports a processed Pomodoro transition.
type TransitionResult struct {
	Outcome
	TimerID    string `json:"timer_id,omitempty"`
	Transition string `json:"transition,omitempty"`
	// NextTransitionAt is set when a break was started.
	NextTransitionAt *time.Time `json:"next_transition_at,omitempty"`
	// Seconds is the billed work time closed by a work-to-break transition.
	Seconds         int64 `json:"seconds,omitempty"`
	CompletedCycles int   `json:"completed_cycles"`
}

// newPomodoro builds the state for a fresh work session. If the user's last
// session was a Pomodoro that finished its break within the resume window,
// the cycle count carries over so the long break stays reachable.
func (e *Engine) newPomodoro(ctx context.Context, tx *store.Tx, userID string, settings model.UserSettings, now time.Time) (*model.PomodoroMode, error) {
	work := settings.PomodoroWorkMinutes
	if work <= 0 {
		work = defaultWorkMinutes
	}
	brk := settings.PomodoroBreakMinutes
	if brk <= 0 {
		brk = defaultBreakMinutes
	}
	mode := &model.PomodoroMode{
		Phase:        model.PhaseWork,
		TransitionAt: now.Add(time.Duration(work) * time.Minute),
		WorkMinutes:  work,
		BreakMinutes: brk,
		CurrentCycle: 1,
	}

	last, err := tx.LastHistory(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return mode, nil
	}
	if err != nil {
		return nil, err
	}
	if last.Pomodoro && last.Reason == model.EndPomodoroComplete && now.Sub(last.EndedAt) <= e.th.PomodoroResumeWindow {
		mode.CompletedCycles = last.CompletedCycles
		mode.CurrentCycle = last.CompletedCycles + 1
	}
	return mode, nil
}

// ProcessTransition moves a Pomodoro timer from work to break, or ends it
// after its break. The callback's captured time must equal the timer's
// transitionAt.
func (e *Engine) ProcessTransition(ctx context.Context, args model.CallbackArgs) (*TransitionResult, error) {
	now := e.now()
	result := &TransitionResult{}
	var pending []model.Alert
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		var (
			t   *model.RunningTimer
			err error
		)
		if args.TimerID != "" {
			t, err = tx.GetTimerByID(ctx, args.TimerID)
		} else {
			t, err = tx.GetTimer(ctx, args.UserID, args.Context())
		}
		if errors.Is(err, store.ErrNotFound) {
			result.Outcome = noop(ReasonNoRunningTimer)
			return nil
		}
		if err != nil {
			return err
		}
		result.TimerID = t.ID

		p, ok := t.Pomodoro()
		switch {
		case t.Legacy():
			result.Outcome = noop(ReasonLegacyRecord)
			return nil
		case !ok:
			result.Outcome = noop(ReasonNotPomodoro)
			return nil
		case !model.SameInstant(&p.TransitionAt, args.CapturedTime()):
			result.Outcome = noop(ReasonSuperseded)
			return nil
		}

		if p.Phase == model.PhaseWork {
			pending, err = e.startBreak(ctx, tx, t, p, now, result)
		} else {
			pending, err = e.completeBreak(ctx, tx, t, p, now, result)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pomodoro transition: %w", err)
	}

	e.recordCallback(string(model.CallbackPomodoroTransition), result.Outcome)
	e.notify(ctx, pending)
	return result, nil
}

// startBreak closes the work entry and turns the timer into an unbilled
// break timer in place.
func (e *Engine) startBreak(ctx context.Context, tx *store.Tx, t *model.RunningTimer, p *model.PomodoroMode, now time.Time, result *TransitionResult) ([]model.Alert, error) {
	entry, err := tx.GetOpenEntry(ctx, t.UserID, t.ProjectID, t.Context)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		result.Seconds = model.ElapsedSeconds(entry.StartedAt, now)
		if err := tx.CloseEntry(ctx, entry.ID, now, result.Seconds, model.SourcePomodoroBreak); err != nil {
			return nil, err
		}
	}

	length := p.BreakLength()
	ends := now.Add(length)
	started := now
	p.Phase = model.PhaseBreak
	p.IsBreakTimer = true
	p.BreakStartedAt = &started
	p.BreakEndsAt = &ends
	p.TransitionAt = ends
	if err := tx.UpdateTimer(ctx, t); err != nil {
		return nil, err
	}
	if err := e.schedule(ctx, tx, model.CallbackPomodoroTransition, ends, ends, t); err != nil {
		return nil, err
	}

	result.Outcome = applied()
	result.Transition = TransitionBreakStarted
	result.NextTransitionAt = &ends
	result.CompletedCycles = p.CompletedCycles
	long := p.CurrentCycle%model.LongBreakEvery == 0
	return []model.Alert{alert.PomodoroBreakStart(now, t.UserID, t.ID, p.CurrentCycle, length, long)}, nil
}

// completeBreak counts the finished cycle and deletes the break timer. The
// user starts the next work session explicitly.
func (e *Engine) completeBreak(ctx context.Context, tx *store.Tx, t *model.RunningTimer, p *model.PomodoroMode, now time.Time, result *TransitionResult) ([]model.Alert, error) {
	p.CompletedCycles++
	if _, err := e.endTimer(ctx, tx, t, now, model.SourcePomodoroBreak, model.EndPomodoroComplete); err != nil {
		return nil, err
	}

	result.Outcome = applied()
	result.Transition = TransitionCompleted
	result.CompletedCycles = p.CompletedCycles
	if p.CompletedCycles%model.LongBreakEvery == 0 {
		return []model.Alert{alert.PomodoroCycleComplete(now, t.UserID, t.ID, p.CompletedCycles)}, nil
	}
	return []model.Alert{alert.PomodoroBreakComplete(now, t.UserID, t.ID, p.CompletedCycles)}, nil
}
