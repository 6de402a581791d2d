package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/timekeep/internal/store"
)

// Scenario is a scripted run against a fresh store.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the mock clock's initial wall time. Zero means
	// testutil.Epoch.
	Start time.Time `yaml:"start,omitempty"`

	// Seed is the collaborator data loaded before the first step.
	Seed store.Fixture `yaml:"seed"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace, the alerts and the final store state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpAdvance          = "advance"
	OpStart            = "start"
	OpStop             = "stop"
	OpReset            = "reset"
	OpHeartbeat        = "heartbeat"
	OpAck              = "ack"
	OpRequestInterrupt = "request_interrupt"
	OpSwitch           = "switch"
	OpSweep            = "sweep"
	OpNudge            = "nudge"
	OpDispatch         = "dispatch"
)

var userOps = map[string]bool{
	OpStart: true, OpStop: true, OpReset: true, OpHeartbeat: true,
	OpAck: true, OpRequestInterrupt: true, OpSwitch: true,
}

var jobOps = map[string]bool{OpAdvance: true, OpSweep: true, OpNudge: true, OpDispatch: true}

// Step is one action. Which fields apply depends on Op.
type Step struct {
	Op   string `yaml:"op"`
	User string `yaml:"user,omitempty"`

	// start
	Project  string `yaml:"project,omitempty"`
	Category string `yaml:"category,omitempty"`
	Pomodoro *bool  `yaml:"pomodoro,omitempty"`

	// stop
	Source string `yaml:"source,omitempty"`

	// ack
	Continue *bool `yaml:"continue,omitempty"`

	// switch. Empty means the personal context.
	Workspace string `yaml:"workspace,omitempty"`

	// advance
	Duration time.Duration `yaml:"duration,omitempty"`

	// Expect is checked against the step's trace event.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected result of a step.
type Expect struct {
	// Outcome must equal the trace event's outcome when set.
	Outcome string `yaml:"outcome,omitempty"`

	// Alerts, when present, must equal the alert types the step produced.
	// An empty list asserts that no alert was sent.
	Alerts []string `yaml:"alerts"`
}

// Assertion validates the finished run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check an op appears in the trace
	// - "trace_order": Check ops appear in order
	// - "trace_count": Check an op appears exactly N times
	// - "alert_count": Check N alerts of a type were sent
	// - "timers": Check a user's running timer count
	// - "final_state": Query table and verify expected values
	Type string `yaml:"type"`

	// Op is the step operation (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Outcome narrows trace_contains and trace_count to one outcome.
	Outcome string `yaml:"outcome,omitempty"`

	// Ops is the expected operation order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Alert is the alert type (alert_count).
	Alert string `yaml:"alert,omitempty"`

	// User narrows alert_count, and selects the user for timers.
	User string `yaml:"user,omitempty"`

	// Count is the expected number (trace_count, alert_count, timers).
	Count int `yaml:"count,omitempty"`

	// Table is the state table name (final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertAlertCount    = "alert_count"
	AssertTimers        = "timers"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch {
	case st.Op == "":
		return fmt.Errorf("steps[%d]: op is required", index)
	case userOps[st.Op]:
		if st.User == "" {
			return fmt.Errorf("steps[%d]: user is required for %s", index, st.Op)
		}
	case jobOps[st.Op]:
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}

	switch st.Op {
	case OpStart:
		if st.Project == "" {
			return fmt.Errorf("steps[%d]: project is required for start", index)
		}
	case OpAck:
		if st.Continue == nil {
			return fmt.Errorf("steps[%d]: continue is required for ack", index)
		}
	case OpAdvance:
		if st.Duration <= 0 {
			return fmt.Errorf("steps[%d]: duration must be positive for advance", index)
		}
		if st.Expect != nil {
			return fmt.Errorf("steps[%d]: advance has no outcome to expect", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertAlertCount:
		if a.Alert == "" {
			return fmt.Errorf("assertions[%d]: alert is required for alert_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for alert_count", index)
		}
	case AssertTimers:
		if a.User == "" {
			return fmt.Errorf("assertions[%d]: user is required for timers", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
