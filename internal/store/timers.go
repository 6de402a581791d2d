package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/timekeep/internal/model"
)

// Tx is a single-writer transaction. All engine mutations go through a Tx so
// invariant checks are atomic with the writes that depend on them.
type Tx struct {
	tx *sql.Tx
}

const timerColumns = `
	id, workspace_id, user_id, project_id, category,
	started_at, last_heartbeat_at,
	awaiting_interrupt_ack, interrupt_shown_at, next_interrupt_at,
	pomodoro_enabled, pomodoro_phase, pomodoro_transition_at,
	pomodoro_work_minutes, pomodoro_break_minutes,
	pomodoro_current_cycle, pomodoro_completed_cycles,
	is_break_timer, break_started_at, break_ends_at,
	overrun_alert_sent_at, budget_warning_sent_at, budget_warning_type,
	last_nudge_sent_at, ended_at`

// GetTimer returns the running timer for a user in a context.
// Returns ErrNotFound if there is none.
func (t *Tx) GetTimer(ctx context.Context, userID string, c model.Context) (*model.RunningTimer, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+timerColumns+`
		FROM running_timers WHERE user_id = ? AND workspace_id = ?
	`, userID, c.WorkspaceID)
	timer, err := scanTimer(row)
	if err != nil {
		return nil, fmt.Errorf("get timer: %w", err)
	}
	return timer, nil
}

// GetTimerByID returns a running timer by id.
// Returns ErrNotFound if there is none.
func (t *Tx) GetTimerByID(ctx context.Context, id string) (*model.RunningTimer, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+timerColumns+`
		FROM running_timers WHERE id = ?
	`, id)
	timer, err := scanTimer(row)
	if err != nil {
		return nil, fmt.Errorf("get timer by id: %w", err)
	}
	return timer, nil
}

// ListUserTimers returns every running timer of a user across all contexts.
func (t *Tx) ListUserTimers(ctx context.Context, userID string) ([]*model.RunningTimer, error) {
	return t.listTimers(ctx, `SELECT `+timerColumns+`
		FROM running_timers WHERE user_id = ?
		ORDER BY started_at ASC, id ASC
	`, userID)
}

// ListTimers returns every running timer. Used by the liveness sweep.
func (t *Tx) ListTimers(ctx context.Context) ([]*model.RunningTimer, error) {
	return t.listTimers(ctx, `SELECT `+timerColumns+`
		FROM running_timers
		ORDER BY started_at ASC, id ASC
	`)
}

func (t *Tx) listTimers(ctx context.Context, query string, args ...any) ([]*model.RunningTimer, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query timers: %w", err)
	}
	defer rows.Close()

	timers := []*model.RunningTimer{}
	for rows.Next() {
		timer, err := scanTimer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		timers = append(timers, timer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timers: %w", err)
	}
	return timers, nil
}

// InsertTimer inserts a running timer. Fails if the user already has a
// timer in the same context.
func (t *Tx) InsertTimer(ctx context.Context, timer *model.RunningTimer) error {
	cols := timerValues(timer)
	_, err := t.tx.ExecContext(ctx, `INSERT INTO running_timers (`+timerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cols...)
	if err != nil {
		return fmt.Errorf("insert timer: %w", err)
	}
	return nil
}

// UpdateTimer overwrites every mutable column of a running timer.
// Returns ErrNotFound if the timer was deleted concurrently.
func (t *Tx) UpdateTimer(ctx context.Context, timer *model.RunningTimer) error {
	cols := timerValues(timer)
	result, err := t.tx.ExecContext(ctx, `
		UPDATE running_timers SET
			workspace_id = ?, user_id = ?, project_id = ?, category = ?,
			started_at = ?, last_heartbeat_at = ?,
			awaiting_interrupt_ack = ?, interrupt_shown_at = ?, next_interrupt_at = ?,
			pomodoro_enabled = ?, pomodoro_phase = ?, pomodoro_transition_at = ?,
			pomodoro_work_minutes = ?, pomodoro_break_minutes = ?,
			pomodoro_current_cycle = ?, pomodoro_completed_cycles = ?,
			is_break_timer = ?, break_started_at = ?, break_ends_at = ?,
			overrun_alert_sent_at = ?, budget_warning_sent_at = ?, budget_warning_type = ?,
			last_nudge_sent_at = ?, ended_at = ?
		WHERE id = ?
	`, append(cols[1:], cols[0])...)
	if err != nil {
		return fmt.Errorf("update timer: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update timer: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update timer %s: %w", timer.ID, ErrNotFound)
	}
	return nil
}

// DeleteTimer removes a running timer. Deleting a missing timer is a no-op.
func (t *Tx) DeleteTimer(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM running_timers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete timer: %w", err)
	}
	return nil
}

// InsertHistory writes the audit row for an ended timer.
// Uses ON CONFLICT DO NOTHING so a replayed stop does not fail.
func (t *Tx) InsertHistory(ctx context.Context, h model.TimerHistory) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO timer_history
		(timer_id, workspace_id, user_id, project_id, started_at, ended_at, reason, pomodoro, completed_cycles)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(timer_id) DO NOTHING
	`,
		h.TimerID,
		h.Context.WorkspaceID,
		h.UserID,
		h.ProjectID,
		toMillis(h.StartedAt),
		toMillis(h.EndedAt),
		string(h.Reason),
		boolInt(h.Pomodoro),
		h.CompletedCycles,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// LastHistory returns the most recent audit row for a user.
// Returns ErrNotFound if the user has never ended a timer.
func (t *Tx) LastHistory(ctx context.Context, userID string) (*model.TimerHistory, error) {
	var (
		h                  model.TimerHistory
		ws, reason         string
		started, ended     int64
		pomodoro, complete int
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT timer_id, workspace_id, user_id, project_id, started_at, ended_at, reason, pomodoro, completed_cycles
		FROM timer_history
		WHERE user_id = ?
		ORDER BY ended_at DESC, rowid DESC
		LIMIT 1
	`, userID).Scan(&h.TimerID, &ws, &h.UserID, &h.ProjectID, &started, &ended, &reason, &pomodoro, &complete)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("last history: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("last history: %w", err)
	}
	h.Context = model.Context{WorkspaceID: ws}
	h.StartedAt = fromMillis(started)
	h.EndedAt = fromMillis(ended)
	h.Reason = model.EndReason(reason)
	h.Pomodoro = pomodoro != 0
	h.CompletedCycles = complete
	return &h, nil
}

// timerValues flattens a timer into column order matching timerColumns.
func timerValues(timer *model.RunningTimer) []any {
	var (
		nextInterrupt                sql.NullInt64
		pomodoroEnabled, isBreak     int
		phase                        sql.NullString
		transition, breakStart, ends sql.NullInt64
		work, brk, cycle, completed  sql.NullInt64
	)
	switch m := timer.Mode.(type) {
	case *model.PomodoroMode:
		pomodoroEnabled = 1
		isBreak = boolInt(m.IsBreakTimer)
		phase = sql.NullString{String: string(m.Phase), Valid: true}
		transition = sql.NullInt64{Int64: toMillis(m.TransitionAt), Valid: true}
		work = sql.NullInt64{Int64: int64(m.WorkMinutes), Valid: true}
		brk = sql.NullInt64{Int64: int64(m.BreakMinutes), Valid: true}
		cycle = sql.NullInt64{Int64: int64(m.CurrentCycle), Valid: true}
		completed = sql.NullInt64{Int64: int64(m.CompletedCycles), Valid: true}
		breakStart = nullMillis(m.BreakStartedAt)
		ends = nullMillis(m.BreakEndsAt)
	case *model.StandardMode:
		nextInterrupt = nullMillis(m.NextInterruptAt)
	}

	return []any{
		timer.ID,
		timer.Context.WorkspaceID,
		timer.UserID,
		timer.ProjectID,
		timer.Category,
		toMillis(timer.StartedAt),
		toMillis(timer.LastHeartbeatAt),
		boolInt(timer.AwaitingInterruptAck),
		nullMillis(timer.InterruptShownAt),
		nextInterrupt,
		pomodoroEnabled,
		phase,
		transition,
		work,
		brk,
		cycle,
		completed,
		isBreak,
		breakStart,
		ends,
		nullMillis(timer.OverrunAlertSentAt),
		nullMillis(timer.BudgetWarningSentAt),
		string(timer.BudgetWarningType),
		nullMillis(timer.LastNudgeSentAt),
		nullMillis(timer.EndedAt),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTimer rebuilds a timer and its Mode variant from a row.
func scanTimer(row rowScanner) (*model.RunningTimer, error) {
	var (
		timer                              model.RunningTimer
		ws, warningType                    string
		started, heartbeat                 int64
		awaiting, pomodoroEnabled, isBreak int
		shown, nextInterrupt               sql.NullInt64
		phase                              sql.NullString
		transition, breakStart, breakEnds  sql.NullInt64
		work, brk, cycle, completed        sql.NullInt64
		overrun, warning, nudge, ended     sql.NullInt64
	)
	err := row.Scan(
		&timer.ID, &ws, &timer.UserID, &timer.ProjectID, &timer.Category,
		&started, &heartbeat,
		&awaiting, &shown, &nextInterrupt,
		&pomodoroEnabled, &phase, &transition,
		&work, &brk,
		&cycle, &completed,
		&isBreak, &breakStart, &breakEnds,
		&overrun, &warning, &warningType,
		&nudge, &ended,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	timer.Context = model.Context{WorkspaceID: ws}
	timer.StartedAt = fromMillis(started)
	timer.LastHeartbeatAt = fromMillis(heartbeat)
	timer.AwaitingInterruptAck = awaiting != 0
	timer.InterruptShownAt = timePtr(shown)
	timer.OverrunAlertSentAt = timePtr(overrun)
	timer.BudgetWarningSentAt = timePtr(warning)
	timer.BudgetWarningType = model.BudgetType(warningType)
	timer.LastNudgeSentAt = timePtr(nudge)
	timer.EndedAt = timePtr(ended)

	if pomodoroEnabled != 0 {
		timer.Mode = &model.PomodoroMode{
			Phase:           model.PomodoroPhase(phase.String),
			TransitionAt:    fromMillis(transition.Int64),
			WorkMinutes:     int(work.Int64),
			BreakMinutes:    int(brk.Int64),
			CurrentCycle:    int(cycle.Int64),
			CompletedCycles: int(completed.Int64),
			IsBreakTimer:    isBreak != 0,
			BreakStartedAt:  timePtr(breakStart),
			BreakEndsAt:     timePtr(breakEnds),
		}
	} else {
		timer.Mode = &model.StandardMode{NextInterruptAt: timePtr(nextInterrupt)}
	}

	return &timer, nil
}
