package model

import "time"

// AlertType classifies outbound alerts.
type AlertType string

const (
	AlertInterrupt             AlertType = "interrupt"
	AlertBreak                 AlertType = "break"
	AlertAutoStopped           AlertType = "auto_stopped"
	AlertPomodoroBreakStart    AlertType = "pomodoro_break_start"
	AlertPomodoroBreakComplete AlertType = "pomodoro_break_complete"
	AlertPomodoroCycleComplete AlertType = "pomodoro_cycle_complete"
	AlertBudgetWarning         AlertType = "budget_warning"
	AlertBudgetOverrun         AlertType = "budget_overrun"
	AlertStillRunning          AlertType = "still_running"
)

// Metadata is free-form alert context. Values must be strings, integers,
// floats, bools or nested Metadata.
type Metadata map[string]any

// Alert is a notification addressed to one user.
type Alert struct {
	UserID   string    `json:"user_id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Type     AlertType `json:"type"`
	Metadata Metadata  `json:"metadata,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}
