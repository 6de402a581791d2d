package alert

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/timekeep/internal/model"
)

var printer = message.NewPrinter(language.English)

// Interrupt asks the user whether they are still working.
func Interrupt(now time.Time, userID, timerID string, elapsed, grace time.Duration) model.Alert {
	return model.Alert{
		UserID: userID,
		Title:  "Still working?",
		Body: fmt.Sprintf("Your timer has been running for %s. It stops automatically in %s unless you confirm.",
			humanDuration(elapsed), humanDuration(grace)),
		Type: model.AlertInterrupt,
		Metadata: model.Metadata{
			"timer_id":      timerID,
			"grace_seconds": int64(grace / time.Second),
		},
		SentAt: now,
	}
}

// Break confirms that the user chose to stop at an interrupt.
func Break(now time.Time, userID, timerID string, seconds int64) model.Alert {
	return model.Alert{
		UserID:   userID,
		Title:    "Time for a break",
		Body:     fmt.Sprintf("Timer stopped after %s.", humanDuration(time.Duration(seconds)*time.Second)),
		Type:     model.AlertBreak,
		Metadata: model.Metadata{"timer_id": timerID, "seconds": seconds},
		SentAt:   now,
	}
}

// AutoStopped reports a timer the engine stopped on the user's behalf.
func AutoStopped(now time.Time, userID, timerID, reason string, seconds int64) model.Alert {
	return model.Alert{
		UserID: userID,
		Title:  "Timer stopped",
		Body: fmt.Sprintf("Your timer was stopped automatically (%s). %s was recorded.",
			reason, humanDuration(time.Duration(seconds)*time.Second)),
		Type: model.AlertAutoStopped,
		Metadata: model.Metadata{
			"timer_id": timerID,
			"reason":   reason,
			"seconds":  seconds,
		},
		SentAt: now,
	}
}

// PomodoroBreakStart announces the break that follows a work session.
func PomodoroBreakStart(now time.Time, userID, timerID string, cycle int, length time.Duration, long bool) model.Alert {
	title := "Take a short break"
	if long {
		title = "Take a long break"
	}
	return model.Alert{
		UserID: userID,
		Title:  title,
		Body:   fmt.Sprintf("Work session %d done. Break for %s.", cycle, humanDuration(length)),
		Type:   model.AlertPomodoroBreakStart,
		Metadata: model.Metadata{
			"timer_id":      timerID,
			"cycle":         cycle,
			"break_seconds": int64(length / time.Second),
			"long_break":    long,
		},
		SentAt: now,
	}
}

// PomodoroBreakComplete tells the user the break is over.
func PomodoroBreakComplete(now time.Time, userID, timerID string, completed int) model.Alert {
	return model.Alert{
		UserID:   userID,
		Title:    "Break is over",
		Body:     "Start your next focus session when you are ready.",
		Type:     model.AlertPomodoroBreakComplete,
		Metadata: model.Metadata{"timer_id": timerID, "completed_cycles": completed},
		SentAt:   now,
	}
}

// PomodoroCycleComplete marks the end of a full set of work sessions.
func PomodoroCycleComplete(now time.Time, userID, timerID string, completed int) model.Alert {
	return model.Alert{
		UserID:   userID,
		Title:    "Pomodoro cycle complete",
		Body:     fmt.Sprintf("You finished %d focus sessions.", completed),
		Type:     model.AlertPomodoroCycleComplete,
		Metadata: model.Metadata{"timer_id": timerID, "completed_cycles": completed},
		SentAt:   now,
	}
}

// BudgetWarning reports a project close to its budget. Remaining is hours or
// currency depending on the project's budget type.
func BudgetWarning(now time.Time, userID string, p *model.Project, remaining float64) model.Alert {
	return model.Alert{
		UserID: userID,
		Title:  "Budget almost used",
		Body:   fmt.Sprintf("%s has %s left.", projectName(p), budgetQuantity(p.BudgetType, remaining)),
		Type:   model.AlertBudgetWarning,
		Metadata: model.Metadata{
			"project_id":  p.ID,
			"budget_type": string(p.BudgetType),
			"remaining":   remaining,
		},
		SentAt: now,
	}
}

// BudgetOverrun reports a project that has used its whole budget. Over is a
// non-negative hours or currency amount.
func BudgetOverrun(now time.Time, userID string, p *model.Project, over float64) model.Alert {
	return model.Alert{
		UserID: userID,
		Title:  "Budget exceeded",
		Body:   fmt.Sprintf("%s is %s over budget.", projectName(p), budgetQuantity(p.BudgetType, over)),
		Type:   model.AlertBudgetOverrun,
		Metadata: model.Metadata{
			"project_id":  p.ID,
			"budget_type": string(p.BudgetType),
			"over":        over,
		},
		SentAt: now,
	}
}

// StillRunning nudges the user about a long session.
func StillRunning(now time.Time, userID, timerID string, elapsed time.Duration) model.Alert {
	return model.Alert{
		UserID:   userID,
		Title:    "Timer still running",
		Body:     fmt.Sprintf("Your timer has been running for %s.", humanDuration(elapsed)),
		Type:     model.AlertStillRunning,
		Metadata: model.Metadata{"timer_id": timerID, "elapsed_seconds": int64(elapsed / time.Second)},
		SentAt:   now,
	}
}

func projectName(p *model.Project) string {
	if p.Name != "" {
		return p.Name
	}
	return "Project " + p.ID
}

func budgetQuantity(t model.BudgetType, v float64) string {
	if t == model.BudgetAmount {
		return printer.Sprintf("%.2f", v)
	}
	return printer.Sprintf("%.1fh", v)
}

// humanDuration renders whole minutes, or seconds below one minute.
func humanDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int64(d/time.Second))
	}
	h := int64(d / time.Hour)
	m := int64(d%time.Hour) / int64(time.Minute)
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}
