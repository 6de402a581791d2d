package model

import "time"

// CallbackKind names the handler a scheduled callback is routed to.
type CallbackKind string

const (
	CallbackInterruptCheck     CallbackKind = "interrupt.check"
	CallbackInterruptAutoStop  CallbackKind = "interrupt.autostop"
	CallbackPomodoroTransition CallbackKind = "pomodoro.transition"
)

// CallbackArgs is the captured state a callback carries. Captured is the
// timestamp (unix milliseconds) the callback was scheduled against; a
// handler compares it with the timer's current stamp and no-ops on mismatch.
type CallbackArgs struct {
	UserID      string `json:"user_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	TimerID     string `json:"timer_id,omitempty"`
	Captured    int64  `json:"captured,omitempty"`
}

// Context returns the workspace context the callback targets.
func (a CallbackArgs) Context() Context {
	return Context{WorkspaceID: a.WorkspaceID}
}

// CapturedTime returns Captured as a time, or the zero time if unset.
func (a CallbackArgs) CapturedTime() time.Time {
	if a.Captured == 0 {
		return time.Time{}
	}
	return time.UnixMilli(a.Captured).UTC()
}

// Callback is a durable scheduled command.
type Callback struct {
	ID       string       `json:"id"`
	Kind     CallbackKind `json:"kind"`
	RunAt    time.Time    `json:"run_at"`
	Args     CallbackArgs `json:"args"`
	Attempts int          `json:"attempts"`
}

// SameInstant reports whether a and b denote the same millisecond.
func SameInstant(a *time.Time, b time.Time) bool {
	return a != nil && a.UnixMilli() == b.UnixMilli()
}
