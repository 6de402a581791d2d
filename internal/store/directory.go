package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/timekeep/internal/model"
)

// Directory serves the collaborator lookups (context resolution, projects,
// settings) from the store's directory tables. Reads run outside any writer
// transaction.
type Directory struct {
	s        *Store
	defaults model.UserSettings
}

// NewDirectory returns a Directory backed by s. Users without a settings
// row get defaults.
func NewDirectory(s *Store, defaults model.UserSettings) *Directory {
	return &Directory{s: s, defaults: defaults}
}

// ResolveContext returns the user's active context. A user whose active
// workspace is unset, or who is no longer a member of it, resolves to the
// personal context.
func (d *Directory) ResolveContext(ctx context.Context, userID string) (model.Context, error) {
	var active string
	err := d.s.db.QueryRowContext(ctx, `SELECT active_workspace_id FROM users WHERE id = ?`, userID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && active == "") {
		return model.Personal, nil
	}
	if err != nil {
		return model.Context{}, fmt.Errorf("resolve context: %w", err)
	}

	member, err := d.IsMember(ctx, userID, active)
	if err != nil {
		return model.Context{}, fmt.Errorf("resolve context: %w", err)
	}
	if !member {
		return model.Personal, nil
	}
	return model.WorkspaceContext(active), nil
}

// IsMember reports whether the user belongs to the workspace.
func (d *Directory) IsMember(ctx context.Context, userID, workspaceID string) (bool, error) {
	var n int
	err := d.s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memberships WHERE user_id = ? AND workspace_id = ?
	`, userID, workspaceID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is member: %w", err)
	}
	return n > 0, nil
}

// GetProject returns a project by id. Returns ErrNotFound if it does not
// exist.
func (d *Directory) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var (
		p          model.Project
		budgetType string
		archived   int
	)
	err := d.s.db.QueryRowContext(ctx, `
		SELECT id, name, workspace_id, owner_id, hourly_rate, budget_type, budget_hours, budget_amount, archived
		FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.WorkspaceID, &p.OwnerID, &p.HourlyRate, &budgetType, &p.BudgetHours, &p.BudgetAmount, &archived)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	p.BudgetType = model.BudgetType(budgetType)
	p.Archived = archived != 0
	return &p, nil
}

// GetUserSettings returns the user's settings, or the directory defaults
// when none are stored.
func (d *Directory) GetUserSettings(ctx context.Context, userID string) (model.UserSettings, error) {
	var (
		st                                  model.UserSettings
		interrupt, pomodoro, budgetWarnings int
	)
	err := d.s.db.QueryRowContext(ctx, `
		SELECT interrupt_enabled, interrupt_interval, grace_period,
		       pomodoro_enabled, pomodoro_work_minutes, pomodoro_break_minutes,
		       budget_warning_enabled, budget_warning_threshold_hours, budget_warning_threshold_amount
		FROM user_settings WHERE user_id = ?
	`, userID).Scan(
		&interrupt, &st.InterruptInterval, &st.GracePeriod,
		&pomodoro, &st.PomodoroWorkMinutes, &st.PomodoroBreakMinutes,
		&budgetWarnings, &st.BudgetWarningThresholdHours, &st.BudgetWarningThresholdAmount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return d.defaults, nil
	}
	if err != nil {
		return model.UserSettings{}, fmt.Errorf("get user settings: %w", err)
	}
	st.InterruptEnabled = interrupt != 0
	st.PomodoroEnabled = pomodoro != 0
	st.BudgetWarningEnabled = budgetWarnings != 0
	return st, nil
}

// UpsertWorkspace creates or renames a workspace.
func (s *Store) UpsertWorkspace(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, id, name)
	if err != nil {
		return fmt.Errorf("upsert workspace: %w", err)
	}
	return nil
}

// AddMembership adds a user to a workspace. Adding an existing member is a
// no-op.
func (s *Store) AddMembership(ctx context.Context, userID, workspaceID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (user_id, workspace_id) VALUES (?, ?)
		ON CONFLICT(user_id, workspace_id) DO NOTHING
	`, userID, workspaceID)
	if err != nil {
		return fmt.Errorf("add membership: %w", err)
	}
	return nil
}

// RemoveMembership removes a user from a workspace.
func (s *Store) RemoveMembership(ctx context.Context, userID, workspaceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM memberships WHERE user_id = ? AND workspace_id = ?`, userID, workspaceID)
	if err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}
	return nil
}

// SetActiveContext switches the user's active context. The personal context
// clears the active workspace.
func (s *Store) SetActiveContext(ctx context.Context, userID string, c model.Context) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, active_workspace_id) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET active_workspace_id = excluded.active_workspace_id
	`, userID, c.WorkspaceID)
	if err != nil {
		return fmt.Errorf("set active context: %w", err)
	}
	return nil
}

// UpsertProject creates or replaces a project.
func (s *Store) UpsertProject(ctx context.Context, p model.Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, workspace_id, owner_id, hourly_rate, budget_type, budget_hours, budget_amount, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			workspace_id = excluded.workspace_id,
			owner_id = excluded.owner_id,
			hourly_rate = excluded.hourly_rate,
			budget_type = excluded.budget_type,
			budget_hours = excluded.budget_hours,
			budget_amount = excluded.budget_amount,
			archived = excluded.archived
	`, p.ID, p.Name, p.WorkspaceID, p.OwnerID, p.HourlyRate, string(p.BudgetType), p.BudgetHours, p.BudgetAmount, boolInt(p.Archived))
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

// UpsertSettings creates or replaces a user's settings.
func (s *Store) UpsertSettings(ctx context.Context, userID string, st model.UserSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (
			user_id, interrupt_enabled, interrupt_interval, grace_period,
			pomodoro_enabled, pomodoro_work_minutes, pomodoro_break_minutes,
			budget_warning_enabled, budget_warning_threshold_hours, budget_warning_threshold_amount
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			interrupt_enabled = excluded.interrupt_enabled,
			interrupt_interval = excluded.interrupt_interval,
			grace_period = excluded.grace_period,
			pomodoro_enabled = excluded.pomodoro_enabled,
			pomodoro_work_minutes = excluded.pomodoro_work_minutes,
			pomodoro_break_minutes = excluded.pomodoro_break_minutes,
			budget_warning_enabled = excluded.budget_warning_enabled,
			budget_warning_threshold_hours = excluded.budget_warning_threshold_hours,
			budget_warning_threshold_amount = excluded.budget_warning_threshold_amount
	`,
		userID,
		boolInt(st.InterruptEnabled), st.InterruptInterval, st.GracePeriod,
		boolInt(st.PomodoroEnabled), st.PomodoroWorkMinutes, st.PomodoroBreakMinutes,
		boolInt(st.BudgetWarningEnabled), st.BudgetWarningThresholdHours, st.BudgetWarningThresholdAmount,
	)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}
