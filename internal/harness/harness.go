package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/coder/quartz"

	"github.com/roach88/timekeep/internal/alert"
	"github.com/roach88/timekeep/internal/engine"
	"github.com/roach88/timekeep/internal/model"
	"github.com/roach88/timekeep/internal/schedule"
	"github.com/roach88/timekeep/internal/store"
	"github.com/roach88/timekeep/internal/testutil"
)

// Harness executes one scenario.
type Harness struct {
	store      *store.Store
	engine     *engine.Engine
	dispatcher *schedule.Dispatcher
	clock      *quartz.Mock
	steps      *testutil.StepCounter
	alerts     *alert.Recorder
	logger     *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh store in tb's temporary directory,
// with a mock clock and sequential ids so traces are reproducible.
//
// Execution flow:
// 1. Open a fresh store and load the seed
// 2. Wire engine, alert recorder and scheduler to the mock clock
// 3. Execute steps, checking each expect clause
// 4. Evaluate assertions and return the result
func Run(tb testing.TB, scenario *Scenario) (*Result, error) {
	tb.Helper()
	ctx := context.Background()

	st := testutil.NewStore(tb)
	if err := st.Seed(ctx, &scenario.Seed, model.DefaultUserSettings()); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	clock := testutil.NewClock(tb, scenario.Start)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := &alert.Recorder{}
	eng := engine.New(st,
		store.NewDirectory(st, model.DefaultUserSettings()),
		alert.NewDispatcher(recorder, logger),
		engine.WithClock(clock),
		engine.WithLogger(logger),
		engine.WithIDGenerator(model.NewSequentialGenerator(scenario.Name)),
	)
	dispatcher := schedule.NewDispatcher(st, logger, schedule.WithClock(clock))
	eng.RegisterHandlers(dispatcher)

	h := &Harness{
		store:      st,
		engine:     eng,
		dispatcher: dispatcher,
		clock:      clock,
		steps:      testutil.NewStepCounter(),
		alerts:     recorder,
		logger:     logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("failed to execute step %d (%s): %w", i, step.Op, err)
		}
	}
	result.Alerts = recorder.Alerts()

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// executeStep runs one step and records its trace event. Engine refusals
// are outcomes, not failures; only infrastructure errors are returned.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	if step.Op == OpAdvance {
		h.clock.Advance(step.Duration).MustWait(ctx)
		return nil
	}

	before := len(h.alerts.Alerts())
	at := h.clock.Now()
	outcome, err := h.invoke(ctx, step)
	var ee *engine.Error
	if errors.As(err, &ee) {
		outcome, err = "error:"+string(ee.Code), nil
	}
	if err != nil {
		return err
	}

	event := TraceEvent{
		Seq:     h.steps.Next(),
		At:      at.UTC().Format("15:04:05"),
		Op:      step.Op,
		User:    step.User,
		Outcome: outcome,
	}
	for _, a := range h.alerts.Alerts()[before:] {
		event.Alerts = append(event.Alerts, string(a.Type))
	}
	result.AddTrace(event)

	h.logger.Info("step completed", "step", index, "op", step.Op, "outcome", outcome)

	if step.Expect == nil {
		return nil
	}
	if step.Expect.Outcome != "" && step.Expect.Outcome != outcome {
		result.AddError(fmt.Sprintf("steps[%d] %s: expected outcome %q, got %q", index, step.Op, step.Expect.Outcome, outcome))
	}
	if step.Expect.Alerts != nil && !slices.Equal(step.Expect.Alerts, event.Alerts) {
		result.AddError(fmt.Sprintf("steps[%d] %s: expected alerts %v, got %v", index, step.Op, step.Expect.Alerts, event.Alerts))
	}
	return nil
}

func (h *Harness) invoke(ctx context.Context, step Step) (string, error) {
	switch step.Op {
	case OpStart:
		_, err := h.engine.Start(ctx, step.User, engine.StartInput{
			ProjectID: step.Project,
			Category:  step.Category,
			Pomodoro:  step.Pomodoro,
		})
		return "ok", err
	case OpStop:
		res, err := h.engine.Stop(ctx, step.User, model.Source(step.Source))
		if err != nil {
			return "", err
		}
		return outcomeOf(res.Outcome, "ok"), nil
	case OpReset:
		res, err := h.engine.Reset(ctx, step.User)
		if err != nil {
			return "", err
		}
		return outcomeOf(res.Outcome, "ok"), nil
	case OpHeartbeat:
		res, err := h.engine.Heartbeat(ctx, step.User)
		if err != nil {
			return "", err
		}
		return outcomeOf(res.Outcome, "ok"), nil
	case OpAck:
		res, err := h.engine.AckInterrupt(ctx, step.User, *step.Continue)
		if err != nil {
			return "", err
		}
		return outcomeOf(res.Outcome, res.Action), nil
	case OpRequestInterrupt:
		res, err := h.engine.RequestInterrupt(ctx, step.User)
		if err != nil {
			return "", err
		}
		return outcomeOf(res.Outcome, res.Action), nil
	case OpSwitch:
		err := h.store.SetActiveContext(ctx, step.User, model.WorkspaceContext(step.Workspace))
		return "ok", err
	case OpSweep:
		rep, err := h.engine.Sweep(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("examined=%d stale=%d grace=%d interrupts=%d transitions=%d",
			rep.Examined, rep.Stale, rep.GraceExpire, rep.Interrupts, rep.Transitions), nil
	case OpNudge:
		rep, err := h.engine.Nudge(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("nudged=%d", rep.Nudged), nil
	case OpDispatch:
		n, err := h.dispatcher.RunDue(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("handled=%d", n), nil
	}
	return "", fmt.Errorf("unknown op %q", step.Op)
}

func outcomeOf(o engine.Outcome, applied string) string {
	if !o.Success {
		return o.Reason
	}
	return applied
}
