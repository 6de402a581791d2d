package harness

import "github.com/roach88/timekeep/internal/model"

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq int64  `json:"seq"`
	At  string `json:"at"`
	Op  string `json:"op"`
	// User is empty for jobs.
	User string `json:"user,omitempty"`
	// Outcome is "ok", an action name, a no-op reason, a job summary or
	// "error:<CODE>".
	Outcome string `json:"outcome"`
	// Alerts lists the types of the alerts sent while the step ran.
	Alerts []string `json:"alerts,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Alerts holds every alert sent during the run.
	Alerts []model.Alert `json:"alerts,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
