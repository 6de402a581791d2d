package model

import (
	"time"

	"golang.org/x/text/unicode/norm"
)

// Context identifies a workspace context. An empty WorkspaceID is the
// user's personal, organization-less context.
type Context struct {
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// Personal is the organization-less context.
var Personal = Context{}

// WorkspaceContext returns the context for a workspace.
func WorkspaceContext(id string) Context {
	return Context{WorkspaceID: id}
}

// IsPersonal reports whether c is the personal context.
func (c Context) IsPersonal() bool {
	return c.WorkspaceID == ""
}

func (c Context) String() string {
	if c.IsPersonal() {
		return "personal"
	}
	return "workspace:" + c.WorkspaceID
}

// ProbeOrder returns the ordered list of contexts to search when looking up
// a user's timer: the resolved context first, then personal.
func ProbeOrder(resolved Context) []Context {
	if resolved.IsPersonal() {
		return []Context{Personal}
	}
	return []Context{resolved, Personal}
}

// Source records how a time entry was produced or closed.
type Source string

const (
	SourceTimer         Source = "timer"
	SourceManual        Source = "manual"
	SourceAutoStop      Source = "autoStop"
	SourcePomodoroBreak Source = "pomodoroBreak"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceTimer, SourceManual, SourceAutoStop, SourcePomodoroBreak:
		return true
	}
	return false
}

// BudgetType selects how a project's budget is measured.
type BudgetType string

const (
	BudgetNone   BudgetType = ""
	BudgetHours  BudgetType = "hours"
	BudgetAmount BudgetType = "amount"
)

// Project is the subset of a project record the engine reads.
type Project struct {
	ID           string     `json:"id" yaml:"id"`
	Name         string     `json:"name" yaml:"name"`
	WorkspaceID  string     `json:"workspace_id,omitempty" yaml:"workspace_id"`
	OwnerID      string     `json:"owner_id,omitempty" yaml:"owner_id"`
	HourlyRate   float64    `json:"hourly_rate" yaml:"hourly_rate"`
	BudgetType   BudgetType `json:"budget_type,omitempty" yaml:"budget_type"`
	BudgetHours  float64    `json:"budget_hours,omitempty" yaml:"budget_hours"`
	BudgetAmount float64    `json:"budget_amount,omitempty" yaml:"budget_amount"`
	Archived     bool       `json:"archived" yaml:"archived"`
}

// Context returns the workspace context the project belongs to.
func (p Project) Context() Context {
	return Context{WorkspaceID: p.WorkspaceID}
}

// UserSettings is the per-user configuration consumed by the engine.
type UserSettings struct {
	InterruptEnabled bool `json:"interrupt_enabled" yaml:"interrupt_enabled"`
	// InterruptInterval is in minutes. Fractional values are allowed.
	InterruptInterval float64 `json:"interrupt_interval" yaml:"interrupt_interval"`
	// GracePeriod is in seconds.
	GracePeriod                  int     `json:"grace_period" yaml:"grace_period"`
	PomodoroEnabled              bool    `json:"pomodoro_enabled" yaml:"pomodoro_enabled"`
	PomodoroWorkMinutes          int     `json:"pomodoro_work_minutes" yaml:"pomodoro_work_minutes"`
	PomodoroBreakMinutes         int     `json:"pomodoro_break_minutes" yaml:"pomodoro_break_minutes"`
	BudgetWarningEnabled         bool    `json:"budget_warning_enabled" yaml:"budget_warning_enabled"`
	BudgetWarningThresholdHours  float64 `json:"budget_warning_threshold_hours" yaml:"budget_warning_threshold_hours"`
	BudgetWarningThresholdAmount float64 `json:"budget_warning_threshold_amount" yaml:"budget_warning_threshold_amount"`
}

// DefaultUserSettings returns the settings used for users without a
// stored settings record.
func DefaultUserSettings() UserSettings {
	return UserSettings{
		InterruptEnabled:             true,
		InterruptInterval:            30,
		GracePeriod:                  60,
		PomodoroEnabled:              false,
		PomodoroWorkMinutes:          25,
		PomodoroBreakMinutes:         5,
		BudgetWarningEnabled:         true,
		BudgetWarningThresholdHours:  1,
		BudgetWarningThresholdAmount: 50,
	}
}

// InterruptEvery returns the interrupt interval as a duration.
func (s UserSettings) InterruptEvery() time.Duration {
	return time.Duration(s.InterruptInterval * float64(time.Minute))
}

// Grace returns the grace period as a duration.
func (s UserSettings) Grace() time.Duration {
	return time.Duration(s.GracePeriod) * time.Second
}

// TimeEntry is a record of billable time.
type TimeEntry struct {
	ID        string     `json:"id"`
	Context   Context    `json:"context"`
	UserID    string     `json:"user_id"`
	ProjectID string     `json:"project_id"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Seconds   *int64     `json:"seconds,omitempty"`
	Source    Source     `json:"source"`
	Category  string     `json:"category,omitempty"`
	Note      string     `json:"note,omitempty"`
	// IsOverrun is a legacy flag. It is never set by this engine.
	IsOverrun bool `json:"is_overrun"`
}

// Open reports whether the entry has not been closed yet.
func (e TimeEntry) Open() bool {
	return e.StoppedAt == nil
}

// ElapsedSeconds returns whole seconds between from and to, truncated toward
// zero at millisecond resolution.
func ElapsedSeconds(from, to time.Time) int64 {
	return (to.UnixMilli() - from.UnixMilli()) / 1000
}

// NormalizeText returns s in Unicode NFC form. Notes and categories are
// normalized before they are stored so equal text compares equal.
func NormalizeText(s string) string {
	return norm.NFC.String(s)
}

// Truncate drops sub-millisecond precision so in-memory values round-trip
// through the store unchanged.
func Truncate(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}
