package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/timekeep/internal/model"
	"github.com/roach88/timekeep/internal/store"
)

// StartInput is the request to start a timer.
type StartInput struct {
	ProjectID string `json:"project_id" validate:"required"`
	Category  string `json:"category,omitempty" validate:"max=200"`
	// Pomodoro selects Pomodoro mode. Nil falls back to the user's
	// PomodoroEnabled setting.
	Pomodoro *bool `json:"pomodoro,omitempty"`
}

// StartResult describes the started timer.
type StartResult struct {
	TimerID              string        `json:"timer_id"`
	EntryID              string        `json:"entry_id"`
	Context              model.Context `json:"context"`
	NextInterruptAt      *time.Time    `json:"next_interrupt_at,omitempty"`
	PomodoroTransitionAt *time.Time    `json:"pomodoro_transition_at,omitempty"`
	// Replaced lists the ids of timers stopped to keep one timer per user.
	Replaced []string `json:"replaced,omitempty"`
}

// StopResult reports a stop or reset.
type StopResult struct {
	Outcome
	TimerID string `json:"timer_id,omitempty"`
	Seconds int64  `json:"seconds"`
}

// HeartbeatResult reports a heartbeat.
type HeartbeatResult struct {
	Outcome
	TimerID string `json:"timer_id,omitempty"`
	// Alerts lists the budget alert types raised by this heartbeat.
	Alerts []model.AlertType `json:"alerts,omitempty"`
}

// ManualEntryInput is the request to record time after the fact.
type ManualEntryInput struct {
	ProjectID string    `json:"project_id" validate:"required"`
	StartedAt time.Time `json:"started_at" validate:"required"`
	StoppedAt time.Time `json:"stopped_at" validate:"required"`
	Note      string    `json:"note,omitempty" validate:"max=2000"`
	Category  string    `json:"category,omitempty" validate:"max=200"`
}

// Status is the read view of a user's running timer.
type Status struct {
	Outcome
	Timer          *model.RunningTimer `json:"timer,omitempty"`
	ProjectName    string              `json:"project_name,omitempty"`
	ElapsedSeconds int64               `json:"elapsed_seconds"`
	Budget         *BudgetSummary      `json:"budget,omitempty"`
}

// Start starts a timer for the user in their resolved context. Every other
// timer of the user, in any context, is stopped first in the same
// transaction.
func (e *Engine) Start(ctx context.Context, userID string, in StartInput) (*StartResult, error) {
	if userID == "" {
		return nil, unauthorizedError("not signed in")
	}
	if in.ProjectID == "" {
		return nil, validationError("project is required")
	}

	resolved, err := e.dir.ResolveContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	project, err := e.checkProject(ctx, userID, in.ProjectID, resolved)
	if err != nil {
		return nil, err
	}
	settings, err := e.dir.GetUserSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	pomodoro := settings.PomodoroEnabled
	if in.Pomodoro != nil {
		pomodoro = *in.Pomodoro
	}

	now := e.now()
	result := &StartResult{Context: resolved}
	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		existing, err := tx.ListUserTimers(ctx, userID)
		if err != nil {
			return err
		}
		for _, t := range existing {
			if _, err := e.endTimer(ctx, tx, t, now, model.SourceTimer, model.EndReplaced); err != nil {
				return fmt.Errorf("stop timer %s: %w", t.ID, err)
			}
			result.Replaced = append(result.Replaced, t.ID)
		}

		timer := &model.RunningTimer{
			ID:              e.ids.Generate(),
			Context:         resolved,
			UserID:          userID,
			ProjectID:       project.ID,
			Category:        model.NormalizeText(in.Category),
			StartedAt:       now,
			LastHeartbeatAt: now,
		}

		if pomodoro {
			mode, err := e.newPomodoro(ctx, tx, userID, settings, now)
			if err != nil {
				return err
			}
			timer.Mode = mode
			transition := mode.TransitionAt
			result.PomodoroTransitionAt = &transition
		} else {
			mode := &model.StandardMode{}
			if settings.InterruptEnabled && settings.InterruptEvery() > 0 {
				next := now.Add(settings.InterruptEvery())
				mode.NextInterruptAt = &next
				result.NextInterruptAt = &next
			}
			timer.Mode = mode
		}

		if err := tx.InsertTimer(ctx, timer); err != nil {
			return err
		}
		entry := &model.TimeEntry{
			ID:        e.ids.Generate(),
			Context:   resolved,
			UserID:    userID,
			ProjectID: project.ID,
			StartedAt: now,
			Source:    model.SourceTimer,
			Category:  timer.Category,
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}

		switch {
		case result.PomodoroTransitionAt != nil:
			at := *result.PomodoroTransitionAt
			if err := e.schedule(ctx, tx, model.CallbackPomodoroTransition, at, at, timer); err != nil {
				return err
			}
		case result.NextInterruptAt != nil:
			at := *result.NextInterruptAt
			if err := e.schedule(ctx, tx, model.CallbackInterruptCheck, at, at, timer); err != nil {
				return err
			}
		}

		result.TimerID = timer.ID
		result.EntryID = entry.ID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	if e.metrics != nil {
		mode := ModeStandard
		if pomodoro {
			mode = ModePomodoro
		}
		e.metrics.TimersStarted.WithLabelValues(mode).Inc()
	}
	e.log.Info("timer started",
		"timer", result.TimerID,
		"user", userID,
		"project", project.ID,
		"context", resolved.String(),
		"pomodoro", pomodoro,
		"replaced", len(result.Replaced),
	)
	return result, nil
}

// Stop stops the user's timer, closing its entry with the given source.
// An empty source means model.SourceTimer.
func (e *Engine) Stop(ctx context.Context, userID string, source model.Source) (*StopResult, error) {
	if source == "" {
		source = model.SourceTimer
	}
	if !source.Valid() {
		return nil, validationError("unknown source %q", source)
	}
	return e.finish(ctx, userID, source, model.EndStopped)
}

// Reset stops the user's timer and discards its entry.
func (e *Engine) Reset(ctx context.Context, userID string) (*StopResult, error) {
	return e.finish(ctx, userID, model.SourceTimer, model.EndReset)
}

func (e *Engine) finish(ctx context.Context, userID string, source model.Source, reason model.EndReason) (*StopResult, error) {
	if userID == "" {
		return nil, unauthorizedError("not signed in")
	}
	resolved, err := e.dir.ResolveContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", reason, err)
	}

	now := e.now()
	result := &StopResult{}
	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		t, err := findTimer(ctx, tx, userID, resolved)
		if errors.Is(err, store.ErrNotFound) {
			result.Outcome = noop(ReasonNoRunningTimer)
			return nil
		}
		if err != nil {
			return err
		}
		seconds, err := e.endTimer(ctx, tx, t, now, source, reason)
		if err != nil {
			return err
		}
		result.Outcome = applied()
		result.TimerID = t.ID
		result.Seconds = seconds
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", reason, err)
	}
	return result, nil
}

// Heartbeat records that the user's client is alive and runs the budget
// monitor. Budget alerts are sent after commit.
func (e *Engine) Heartbeat(ctx context.Context, userID string) (*HeartbeatResult, error) {
	if userID == "" {
		return nil, unauthorizedError("not signed in")
	}
	resolved, err := e.dir.ResolveContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}
	settings, err := e.dir.GetUserSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}

	now := e.now()
	result := &HeartbeatResult{}
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
		t.LastHeartbeatAt = now

		pending, err = e.checkBudget(ctx, tx, t, settings, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateTimer(ctx, t); err != nil {
			return err
		}
		result.Outcome = applied()
		result.TimerID = t.ID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}

	for _, a := range pending {
		result.Alerts = append(result.Alerts, a.Type)
	}
	e.notify(ctx, pending)
	return result, nil
}

// CreateManualEntry records a closed entry for time tracked outside the
// timer.
func (e *Engine) CreateManualEntry(ctx context.Context, userID string, in ManualEntryInput) (*model.TimeEntry, error) {
	if userID == "" {
		return nil, unauthorizedError("not signed in")
	}
	if in.ProjectID == "" {
		return nil, validationError("project is required")
	}
	startedAt := model.Truncate(in.StartedAt)
	stoppedAt := model.Truncate(in.StoppedAt)
	if !stoppedAt.After(startedAt) {
		return nil, validationError("stopped_at must be after started_at")
	}

	resolved, err := e.dir.ResolveContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("manual entry: %w", err)
	}
	project, err := e.checkProject(ctx, userID, in.ProjectID, resolved)
	if err != nil {
		return nil, err
	}

	seconds := model.ElapsedSeconds(startedAt, stoppedAt)
	entry := &model.TimeEntry{
		ID:        e.ids.Generate(),
		Context:   resolved,
		UserID:    userID,
		ProjectID: project.ID,
		StartedAt: startedAt,
		StoppedAt: &stoppedAt,
		Seconds:   &seconds,
		Source:    model.SourceManual,
		Category:  model.NormalizeText(in.Category),
		Note:      model.NormalizeText(in.Note),
	}
	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		return tx.InsertEntry(ctx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("manual entry: %w", err)
	}
	return entry, nil
}

// Current returns the user's running timer with its project name, elapsed
// time and budget position.
func (e *Engine) Current(ctx context.Context, userID string) (*Status, error) {
	if userID == "" {
		return nil, unauthorizedError("not signed in")
	}
	resolved, err := e.dir.ResolveContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("current: %w", err)
	}

	now := e.now()
	status := &Status{}
	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		t, err := findTimer(ctx, tx, userID, resolved)
		if errors.Is(err, store.ErrNotFound) {
			status.Outcome = noop(ReasonNoRunningTimer)
			return nil
		}
		if err != nil {
			return err
		}
		status.Outcome = applied()
		status.Timer = t
		status.ElapsedSeconds = model.ElapsedSeconds(t.StartedAt, now)
		if t.Legacy() {
			return nil
		}

		project, err := e.dir.GetProject(ctx, t.ProjectID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		status.ProjectName = project.Name
		if !t.IsBreak() {
			status.Budget, err = e.budgetSummary(ctx, tx, t, project, now)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("current: %w", err)
	}
	return status, nil
}

// checkProject enforces that the project exists, is active and belongs to
// the resolved context. A personal project must be owned by the user.
func (e *Engine) checkProject(ctx context.Context, userID, projectID string, resolved model.Context) (*model.Project, error) {
	project, err := e.dir.GetProject(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, validationError("project %s not found", projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if project.Archived {
		return nil, validationError("project %s is archived", projectID)
	}
	if project.WorkspaceID != resolved.WorkspaceID {
		return nil, validationError("project %s does not belong to the current %s", projectID, describeContext(resolved))
	}
	if project.Context().IsPersonal() && project.OwnerID != userID {
		return nil, unauthorizedError("project %s is not owned by the user", projectID)
	}
	return project, nil
}

func describeContext(c model.Context) string {
	if c.IsPersonal() {
		return "personal context"
	}
	return "workspace"
}
