package engine

import (
	"errors"
	"fmt"
)

// Error is returned for requests the engine refuses. No state is mutated
// when an Error is returned.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeValidation indicates a missing or archived project, a project
	// from another workspace or an invalid time range.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeUnauthorized indicates a missing user or a project the user
	// does not own.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsValidationError returns true if the error is a validation error.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeValidation
	}
	return false
}

// IsUnauthorizedError returns true if the error is an authorization error.
// Uses errors.As to handle wrapped errors.
func IsUnauthorizedError(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeUnauthorized
	}
	return false
}

func validationError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

func unauthorizedError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Reasons reported in an unsuccessful Outcome.
const (
	ReasonNoRunningTimer      = "no_running_timer"
	ReasonAlreadyAcknowledged = "already_acknowledged"
	ReasonNotAwaiting         = "not_awaiting_ack"
	ReasonAwaitingAck         = "awaiting_ack"
	ReasonSuperseded          = "superseded"
	ReasonLegacyRecord        = "legacy_record"
	ReasonPomodoroTimer       = "pomodoro_timer"
	ReasonNotPomodoro         = "not_pomodoro"
	ReasonInterruptsDisabled  = "interrupts_disabled"
)

// Outcome reports whether an operation changed anything. Success=false with
// a Reason is an expected no-op caused by retries or client races, not a
// failure.
type Outcome struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

func applied() Outcome {
	return Outcome{Success: true}
}

func noop(reason string) Outcome {
	return Outcome{Reason: reason}
}
