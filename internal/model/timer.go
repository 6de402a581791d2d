package model

import "time"

// PomodoroPhase is the current phase of a Pomodoro timer.
type PomodoroPhase string

const (
	PhaseWork  PomodoroPhase = "work"
	PhaseBreak PomodoroPhase = "break"
)

// LongBreakEvery is the number of work sessions after which the break is
// long.
const LongBreakEvery = 4

// LongBreakFactor multiplies the configured break length for a long break.
const LongBreakFactor = 3

// Mode is the interrupt or Pomodoro state of a running timer. It is either
// *StandardMode or *PomodoroMode.
type Mode interface {
	isMode()
}

// StandardMode drives periodic "still working?" interrupts.
type StandardMode struct {
	// NextInterruptAt is nil when interrupts are disabled.
	NextInterruptAt *time.Time `json:"next_interrupt_at,omitempty"`
}

func (*StandardMode) isMode() {}

// PomodoroMode drives work and break phases instead of interrupts.
type PomodoroMode struct {
	Phase           PomodoroPhase `json:"phase"`
	TransitionAt    time.Time     `json:"transition_at"`
	WorkMinutes     int           `json:"work_minutes"`
	BreakMinutes    int           `json:"break_minutes"`
	CurrentCycle    int           `json:"current_cycle"`
	CompletedCycles int           `json:"completed_cycles"`
	IsBreakTimer    bool          `json:"is_break_timer"`
	BreakStartedAt  *time.Time    `json:"break_started_at,omitempty"`
	BreakEndsAt     *time.Time    `json:"break_ends_at,omitempty"`
}

func (*PomodoroMode) isMode() {}

// BreakLength returns the break that follows the current work session.
func (p *PomodoroMode) BreakLength() time.Duration {
	minutes := p.BreakMinutes
	if p.CurrentCycle%LongBreakEvery == 0 {
		minutes *= LongBreakFactor
	}
	return time.Duration(minutes) * time.Minute
}

// RunningTimer is the live session pointer for a user within a context.
type RunningTimer struct {
	ID        string  `json:"id"`
	Context   Context `json:"context"`
	UserID    string  `json:"user_id"`
	ProjectID string  `json:"project_id"`
	Category  string  `json:"category,omitempty"`

	StartedAt       time.Time `json:"started_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`

	AwaitingInterruptAck bool       `json:"awaiting_interrupt_ack"`
	InterruptShownAt     *time.Time `json:"interrupt_shown_at,omitempty"`

	Mode Mode `json:"mode"`

	OverrunAlertSentAt  *time.Time `json:"overrun_alert_sent_at,omitempty"`
	BudgetWarningSentAt *time.Time `json:"budget_warning_sent_at,omitempty"`
	BudgetWarningType   BudgetType `json:"budget_warning_type,omitempty"`
	LastNudgeSentAt     *time.Time `json:"last_nudge_sent_at,omitempty"`

	EndedAt *time.Time `json:"ended_at,omitempty"`
}

// Legacy reports whether the timer predates user/project linkage and must
// be skipped by scheduled jobs.
func (t *RunningTimer) Legacy() bool {
	return t.UserID == "" || t.ProjectID == ""
}

// NextInterruptAt returns the scheduled interrupt, or nil for Pomodoro
// timers and timers with interrupts disabled.
func (t *RunningTimer) NextInterruptAt() *time.Time {
	if m, ok := t.Mode.(*StandardMode); ok {
		return m.NextInterruptAt
	}
	return nil
}

// Pomodoro returns the Pomodoro state if the timer runs in Pomodoro mode.
func (t *RunningTimer) Pomodoro() (*PomodoroMode, bool) {
	m, ok := t.Mode.(*PomodoroMode)
	return m, ok
}

// IsBreak reports whether the timer is a Pomodoro break. Break timers have
// no open time entry and are never billable.
func (t *RunningTimer) IsBreak() bool {
	p, ok := t.Pomodoro()
	return ok && p.IsBreakTimer
}

// EndReason records why a timer stopped.
type EndReason string

const (
	EndStopped          EndReason = "stopped"
	EndReset            EndReason = "reset"
	EndAutoStopped      EndReason = "auto_stopped"
	EndReplaced         EndReason = "replaced"
	EndPomodoroComplete EndReason = "pomodoro_complete"
)

// TimerHistory is the audit row written when a timer ends.
type TimerHistory struct {
	TimerID         string    `json:"timer_id"`
	Context         Context   `json:"context"`
	UserID          string    `json:"user_id"`
	ProjectID       string    `json:"project_id"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	Reason          EndReason `json:"reason"`
	Pomodoro        bool      `json:"pomodoro"`
	CompletedCycles int       `json:"completed_cycles"`
}
