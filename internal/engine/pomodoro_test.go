package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timekeep/internal/model"
	"github.com/roach88/timekeep/internal/store"
)

func startPomodoro(t *testing.T, f *fixture) *StartResult {
	t.Helper()
	on := true
	res, err := f.eng.Start(context.Background(), "u1", StartInput{ProjectID: "p-personal", Pomodoro: &on})
	require.NoError(t, err)
	require.NotNil(t, res.PomodoroTransitionAt)
	return res
}

func transitionArgs(timerID string, at time.Time) model.CallbackArgs {
	return model.CallbackArgs{UserID: "u1", TimerID: timerID, Captured: at.UnixMilli()}
}

// runSession works one full Pomodoro session and its break, returning the
// break length.
func runSession(t *testing.T, f *fixture) time.Duration {
	t.Helper()
	ctx := context.Background()
	res := startPomodoro(t, f)

	f.advance(t, 25*time.Minute)
	brk, err := f.eng.ProcessTransition(ctx, transitionArgs(res.TimerID, *res.PomodoroTransitionAt))
	require.NoError(t, err)
	require.True(t, brk.Success)
	require.Equal(t, TransitionBreakStarted, brk.Transition)
	length := brk.NextTransitionAt.Sub(f.clock.Now())

	f.advance(t, length)
	done, err := f.eng.ProcessTransition(ctx, transitionArgs(res.TimerID, *brk.NextTransitionAt))
	require.NoError(t, err)
	require.True(t, done.Success)
	require.Equal(t, TransitionCompleted, done.Transition)
	return length
}

func TestPomodoro_WorkToBreakClosesEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := startPomodoro(t, f)

	f.advance(t, 25*time.Minute)
	out, err := f.eng.ProcessTransition(ctx, transitionArgs(res.TimerID, *res.PomodoroTransitionAt))
	require.NoError(t, err)
	assert.Equal(t, int64(1500), out.Seconds)
	require.NotNil(t, out.NextTransitionAt)
	assert.Equal(t, t0.Add(30*time.Minute), *out.NextTransitionAt)

	entry := f.entry(t, res.EntryID)
	require.False(t, entry.Open())
	assert.Equal(t, model.SourcePomodoroBreak, entry.Source)

	timer := f.timer(t, res.TimerID)
	require.True(t, timer.IsBreak())
	p, _ := timer.Pomodoro()
	assert.Equal(t, model.PhaseBreak, p.Phase)
	assert.Equal(t, t0.Add(25*time.Minute), *p.BreakStartedAt)
	assert.Equal(t, t0.Add(30*time.Minute), *p.BreakEndsAt)

	require.Len(t, f.pending(t, model.CallbackPomodoroTransition), 2)
	assert.Equal(t, 1, f.alerts.Count(model.AlertPomodoroBreakStart))

	// Breaks are never billed.
	f.advance(t, 2*time.Minute)
	stop, err := f.eng.Stop(ctx, "u1", "")
	require.NoError(t, err)
	assert.True(t, stop.Success)
	assert.Zero(t, stop.Seconds)
	assert.Equal(t, int64(1500), *f.entry(t, res.EntryID).Seconds)
}

func TestPomodoro_LongBreakEveryFourthSession(t *testing.T) {
	f := newFixture(t)

	var lengths []time.Duration
	for i := 0; i < 4; i++ {
		lengths = append(lengths, runSession(t, f))
	}
	assert.Equal(t, []time.Duration{
		5 * time.Minute, 5 * time.Minute, 5 * time.Minute, 15 * time.Minute,
	}, lengths)

	assert.Equal(t, 4, f.alerts.Count(model.AlertPomodoroBreakStart))
	assert.Equal(t, 3, f.alerts.Count(model.AlertPomodoroBreakComplete))
	assert.Equal(t, 1, f.alerts.Count(model.AlertPomodoroCycleComplete))
	assert.Empty(t, f.timers(t), "no auto-resume after a break")

	ctx := context.Background()
	err := f.store.InTx(ctx, func(tx *store.Tx) error {
		h, err := tx.LastHistory(ctx, "u1")
		if err != nil {
			return err
		}
		assert.Equal(t, model.EndPomodoroComplete, h.Reason)
		assert.Equal(t, 4, h.CompletedCycles)
		return nil
	})
	require.NoError(t, err)
}

func TestPomodoro_CycleResetsAfterResumeWindow(t *testing.T) {
	f := newFixture(t)
	runSession(t, f)

	f.advance(t, 16*time.Minute)
	res := startPomodoro(t, f)
	p, _ := f.timer(t, res.TimerID).Pomodoro()
	assert.Equal(t, 1, p.CurrentCycle)
	assert.Zero(t, p.CompletedCycles)
}

func TestPomodoro_CycleResetsAfterManualStop(t *testing.T) {
	f := newFixture(t)
	runSession(t, f)

	res := startPomodoro(t, f)
	p, _ := f.timer(t, res.TimerID).Pomodoro()
	require.Equal(t, 2, p.CurrentCycle)

	_, err := f.eng.Stop(context.Background(), "u1", "")
	require.NoError(t, err)
	res = startPomodoro(t, f)
	p, _ = f.timer(t, res.TimerID).Pomodoro()
	assert.Equal(t, 1, p.CurrentCycle)
}

func TestPomodoro_StaleTransitionsAreNoOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := startPomodoro(t, f)
	work := transitionArgs(res.TimerID, *res.PomodoroTransitionAt)

	out, err := f.eng.ProcessTransition(ctx, transitionArgs(res.TimerID, t0))
	require.NoError(t, err)
	assert.Equal(t, ReasonSuperseded, out.Reason)

	f.advance(t, 25*time.Minute)
	out, err = f.eng.ProcessTransition(ctx, work)
	require.NoError(t, err)
	require.True(t, out.Success)

	// Redelivery after the break started.
	out, err = f.eng.ProcessTransition(ctx, work)
	require.NoError(t, err)
	assert.Equal(t, ReasonSuperseded, out.Reason)
	assert.Equal(t, 1, f.alerts.Count(model.AlertPomodoroBreakStart))

	_, err = f.eng.Reset(ctx, "u1")
	require.NoError(t, err)
	out, err = f.eng.ProcessTransition(ctx, work)
	require.NoError(t, err)
	assert.Equal(t, ReasonNoRunningTimer, out.Reason)
}

func TestPomodoro_IgnoresStandardTimers(t *testing.T) {
	f := newFixture(t)
	res, args := startWithCheck(t, f)

	out, err := f.eng.ProcessTransition(context.Background(), transitionArgs(res.TimerID, args.CapturedTime()))
	require.NoError(t, err)
	assert.Equal(t, ReasonNotPomodoro, out.Reason)
}
