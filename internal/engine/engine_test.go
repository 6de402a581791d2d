package engine

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timekeep/internal/alert"
	"github.com/roach88/timekeep/internal/model"
	"github.com/roach88/timekeep/internal/store"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	eng     *Engine
	store   *store.Store
	clock   *quartz.Mock
	alerts  *alert.Recorder
	metrics *Metrics
}

// newFixture opens a temp store seeded with workspace ws1, members u1 and
// u2, and projects:
//
//	p-personal  personal, owned by u1
//	p-other     personal, owned by u2
//	p-ws        workspace ws1
//	p-archived  workspace ws1, archived
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.UpsertWorkspace(ctx, "ws1", "Acme"))
	require.NoError(t, s.AddMembership(ctx, "u1", "ws1"))
	require.NoError(t, s.AddMembership(ctx, "u2", "ws1"))
	for _, p := range []model.Project{
		{ID: "p-personal", Name: "Side project", OwnerID: "u1", HourlyRate: 100},
		{ID: "p-other", Name: "Not mine", OwnerID: "u2"},
		{ID: "p-ws", Name: "Website", WorkspaceID: "ws1", HourlyRate: 80},
		{ID: "p-archived", Name: "Old", WorkspaceID: "ws1", Archived: true},
	} {
		require.NoError(t, s.UpsertProject(ctx, p))
	}

	clock := quartz.NewMock(t)
	clock.Set(t0)
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	rec := &alert.Recorder{}
	metrics := NewMetrics(prometheus.NewRegistry())
	eng := New(s,
		store.NewDirectory(s, model.DefaultUserSettings()),
		alert.NewDispatcher(rec, log),
		WithClock(clock),
		WithIDGenerator(model.NewSequentialGenerator("id")),
		WithLogger(log),
		WithMetrics(metrics),
	)
	return &fixture{eng: eng, store: s, clock: clock, alerts: rec, metrics: metrics}
}

func (f *fixture) settings(t *testing.T, user string, mutate func(*model.UserSettings)) {
	t.Helper()
	st := model.DefaultUserSettings()
	mutate(&st)
	require.NoError(t, f.store.UpsertSettings(context.Background(), user, st))
}

func (f *fixture) advance(t *testing.T, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f.clock.Advance(d).MustWait(ctx)
}

func (f *fixture) timers(t *testing.T) []*model.RunningTimer {
	t.Helper()
	ctx := context.Background()
	var out []*model.RunningTimer
	require.NoError(t, f.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListTimers(ctx)
		return err
	}))
	return out
}

func (f *fixture) timer(t *testing.T, id string) *model.RunningTimer {
	t.Helper()
	ctx := context.Background()
	var out *model.RunningTimer
	require.NoError(t, f.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.GetTimerByID(ctx, id)
		return err
	}))
	return out
}

func (f *fixture) entry(t *testing.T, id string) *model.TimeEntry {
	t.Helper()
	ctx := context.Background()
	var out *model.TimeEntry
	require.NoError(t, f.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.GetEntry(ctx, id)
		return err
	}))
	return out
}

func (f *fixture) pending(t *testing.T, kinds ...model.CallbackKind) []model.Callback {
	t.Helper()
	cbs, err := f.store.PendingCallbacks(context.Background(), kinds...)
	require.NoError(t, err)
	return cbs
}

func TestStart_PersonalProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.eng.Start(ctx, "u1", StartInput{ProjectID: "p-personal", Category: "dev"})
	require.NoError(t, err)
	assert.Equal(t, model.Personal, res.Context)
	assert.Empty(t, res.Replaced)
	require.NotNil(t, res.NextInterruptAt)
	assert.Equal(t, t0.Add(30*time.Minute), *res.NextInterruptAt)
	assert.Nil(t, res.PomodoroTransitionAt)

	timer := f.timer(t, res.TimerID)
	assert.Equal(t, "u1", timer.UserID)
	assert.Equal(t, t0, timer.StartedAt)
	assert.Equal(t, t0, timer.LastHeartbeatAt)

	entry := f.entry(t, res.EntryID)
	assert.True(t, entry.Open())
	assert.Equal(t, model.SourceTimer, entry.Source)
	assert.Equal(t, "dev", entry.Category)

	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.TimersStarted.WithLabelValues(ModeStandard)))
}

func TestStart_RejectsBadProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.Start(ctx, "", StartInput{ProjectID: "p-personal"})
	assert.True(t, IsUnauthorizedError(err))

	_, err = f.eng.Start(ctx, "u1", StartInput{})
	assert.True(t, IsValidationError(err))

	_, err = f.eng.Start(ctx, "u1", StartInput{ProjectID: "missing"})
	assert.True(t, IsValidationError(err))

	// Personal context cannot use a workspace project.
	_, err = f.eng.Start(ctx, "u1", StartInput{ProjectID: "p-ws"})
	assert.True(t, IsValidationError(err))

	_, err = f.eng.Start(ctx, "u1", StartInput{ProjectID: "p-other"})
	assert.True(t, IsUnauthorizedError(err))

	require.NoError(t, f.store.SetActiveContext(ctx, "u1", model.WorkspaceContext("ws1")))
	_, err = f.eng.Start(ctx, "u1", StartInput{ProjectID: "p-archived"})
	assert.True(t, IsValidationError(err))

	assert.Empty(t, f.timers(t), "refused starts must not create timers")
}

func TestStart_KeepsOneTimerPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.eng.Start(ctx, "u1", StartInput{ProjectID: "p-personal"})
	require.NoError(t, err)

	f.advance(t, 10*time.Minute)
	require.NoError(t, f.store.SetActiveContext(ctx, "u1", model.WorkspaceContext("ws1")))
	second, err := f.eng.Start(ctx, "u1", StartInput{ProjectID: "p-ws"})
	require.NoError(t, err)
	assert.Equal(t, model.WorkspaceContext("ws1"), second.Context)
	assert.Equal(t, []string{first.TimerID}, second.Replaced)

	timers := f.timers(t)
	require.Len(t, timers, 1)
	assert.Equal(t, second.TimerID, timers[0].ID)

	closed := f.entry(t, first.EntryID)
	require.False(t, closed.Open())
	assert.Equal(t, int64(600), *closed.Seconds)
	assert.Equal(t, model.SourceTimer, closed.Source)

	// Another user's timer is untouched.
	_, err = f.eng.Start(ctx, "u2", StartInput{ProjectID: "p-other"})
	require.NoError(t, err)
	assert.Len(t, f.timers(t), 2)
}

func TestStart_ModesAreExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pomodoro := true
	res, err := f.eng.Start(ctx, "u1", StartInput{ProjectID: "p-personal", Pomodoro: &pomodoro})
	require.NoError(t, err)
	assert.Nil(t, res.NextInterruptAt)
	require.NotNil(t, res.PomodoroTransitionAt)
	assert.Equal(t, t0.Add(25*time.Minute), *res.PomodoroTransitionAt)

	timer := f.timer(t, res.TimerID)
	assert.Nil(t, timer.NextInterruptAt())
	p, ok := timer.Pomodoro()
	require.True(t, ok)
	assert.Equal(t, model.PhaseWork, p.Phase)
	assert.Equal(t, 1, p.CurrentCycle)
	assert.Empty(t, f.pending(t, model.CallbackInterruptCheck))
	require.Len(t, f.pending(t, model.CallbackPomodoroTransition), 1)

	res, err = f.eng.Start(ctx, "u1", StartInput{ProjectID: "p-personal"})
	require.NoError(t, err)
	assert.NotNil(t, res.NextInterruptAt)
	assert.Nil(t, res.PomodoroTransitionAt)
	checks := f.pending(t, model.CallbackInterruptCheck)
	require.Len(t, checks, 1)
	assert.Equal(t, res.TimerID, checks[0].Args.TimerID)
	assert.Equal(t, res.NextInterruptAt.UnixMilli(), checks[0].Args.Captured)
}

func TestStart_NoCallbackWhenInterruptsDisabled(t *testing.T) {
	f := newFixture(t)
	f.settings(t, "u1", func(s *model.UserSettings) { s.InterruptEnabled = false })

	res, err := f.eng.Start(context.Background(), "u1", StartInput{ProjectID: "p-personal"})
	require.NoError(t, err)
	assert.Nil(t, res.NextInterruptAt)
	assert.Empty(t, f.pending(t))
}

func TestStart_PomodoroFromSettings(t *testing.T) {
	f := newFixture(t)
	f.settings(t, "u1", func(s *model.UserSettings) {
		s.PomodoroEnabled = true
		s.PomodoroWorkMinutes = 50
		s.PomodoroBreakMinutes = 10
	})

	res, err := f.eng.Start(context.Background(), "u1", StartInput{ProjectID: "p-personal"})
	require.NoError(t, err)
	require.NotNil(t, res.PomodoroTransitionAt)
	assert.Equal(t, t0.Add(50*time.Minute), *res.PomodoroTransitionAt)

	off := false
	res, err = f.eng.Start(context.Background(), "u1", StartInput{ProjectID: "p-personal", Pomodoro: &off})
	require.NoError(t, err)
	assert.Nil(t, res.PomodoroTransitionAt)
}

func TestStop_ClosesEntryWithFlooredSeconds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.eng.Start(ctx, "u1", StartInput{ProjectID: "p-personal"})
	require.NoError(t, err)

	f.advance(t, 90*time.Second+900*time.Millisecond)
	stop, err := f.eng.Stop(ctx, "u1", "")
	require.NoError(t, err)
	assert.True(t, stop.Success)
	assert.Equal(t, int64(90), stop.Seconds)

	entry := f.entry(t, res.EntryID)
	require.NotNil(t, entry.StoppedAt)
	assert.Equal(t, int64(90), *entry.Seconds)
	assert.Empty(t, f.timers(t))

	again, err := f.eng.Stop(ctx, "u1", "")
	require.NoError(t, err)
	assert.False(t, again.Success)
	assert.Equal(t, ReasonNoRunningTimer, again.Reason)

	_, err = f.eng.Stop(ctx, "u1", "bogus")
	assert.True(t, IsValidationError(err))
}

func TestReset_DiscardsEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.eng.Start(ctx, "u1", StartInput{ProjectID: "p-personal"})
	require.NoError(t, err)
	f.advance(t, time.Minute)

	out, err := f.eng.Reset(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Zero(t, out.Seconds)

	err = f.store.InTx(ctx, func(tx *store.Tx) error {
		_, err := tx.GetEntry(ctx, res.EntryID)
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.TimersEnded.WithLabelValues(string(model.EndReset), string(model.SourceTimer))))
}

func TestStop_FindsPersonalTimerAfterWorkspaceSwitch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.eng.Start(ctx, "u1", StartInput{ProjectID: "p-personal"})
	require.NoError(t, err)

	require.NoError(t, f.store.SetActiveContext(ctx, "u1", model.WorkspaceContext("ws1")))
	f.advance(t, 5*time.Minute)

	hb, err := f.eng.Heartbeat(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, hb.Success)
	assert.Equal(t, res.TimerID, hb.TimerID)

	status, err := f.eng.Current(ctx, "u1")
	require.NoError(t, err)
	require.True(t, status.Success)
	assert.Equal(t, res.TimerID, status.Timer.ID)

	stop, err := f.eng.Stop(ctx, "u1", "")
	require.NoError(t, err)
	assert.True(t, stop.Success)
	assert.Equal(t, res.TimerID, stop.TimerID)
	assert.Equal(t, int64(300), stop.Seconds)
}

func TestStop_WorkspaceTimerHiddenAfterLeaving(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SetActiveContext(ctx, "u1", model.WorkspaceContext("ws1")))
	_, err := f.eng.Start(ctx, "u1", StartInput{ProjectID: "p-ws"})
	require.NoError(t, err)

	require.NoError(t, f.store.RemoveMembership(ctx, "u1", "ws1"))
	stop, err := f.eng.Stop(ctx, "u1", "")
	require.NoError(t, err)
	assert.False(t, stop.Success)
	assert.Equal(t, ReasonNoRunningTimer, stop.Reason)
}

func TestHeartbeat_NoTimer(t *testing.T) {
	f := newFixture(t)

	hb, err := f.eng.Heartbeat(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, hb.Success)
	assert.Equal(t, ReasonNoRunningTimer, hb.Reason)
}

func TestCreateManualEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.eng.CreateManualEntry(ctx, "u1", ManualEntryInput{
		ProjectID: "p-personal",
		StartedAt: t0.Add(-2 * time.Hour),
		StoppedAt: t0.Add(-time.Hour),
		Note:      "café meeting",
	})
	require.NoError(t, err)
	assert.Equal(t, model.SourceManual, entry.Source)
	assert.Equal(t, int64(3600), *entry.Seconds)
	assert.Equal(t, "café meeting", f.entry(t, entry.ID).Note)

	_, err = f.eng.CreateManualEntry(ctx, "u1", ManualEntryInput{
		ProjectID: "p-personal",
		StartedAt: t0,
		StoppedAt: t0,
	})
	assert.True(t, IsValidationError(err))

	_, err = f.eng.CreateManualEntry(ctx, "u1", ManualEntryInput{
		ProjectID: "p-other",
		StartedAt: t0.Add(-time.Hour),
		StoppedAt: t0,
	})
	assert.True(t, IsUnauthorizedError(err))
}

func TestCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.eng.Current(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, status.Success)

	_, err = f.eng.Start(ctx, "u1", StartInput{ProjectID: "p-personal"})
	require.NoError(t, err)
	f.advance(t, 12*time.Minute)

	status, err = f.eng.Current(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, status.Success)
	assert.Equal(t, "Side project", status.ProjectName)
	assert.Equal(t, int64(720), status.ElapsedSeconds)
	assert.Nil(t, status.Budget)
}

func TestWithThresholds_FillsZeroFields(t *testing.T) {
	e := New(nil, nil, nil, WithThresholds(Thresholds{StaleAfter: time.Minute}))
	th := e.Thresholds()
	assert.Equal(t, time.Minute, th.StaleAfter)
	assert.Equal(t, DefaultThresholds().NudgeAfter, th.NudgeAfter)
	assert.Equal(t, DefaultThresholds().PomodoroResumeWindow, th.PomodoroResumeWindow)
}
