package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timekeep/internal/model"
)

func scheduleTestCallback(t *testing.T, s *Store, id string, kind model.CallbackKind, at time.Time) {
	t.Helper()
	require.NoError(t, s.InTx(context.Background(), func(tx *Tx) error {
		return tx.ScheduleAt(context.Background(), model.Callback{
			ID:    id,
			Kind:  kind,
			RunAt: at,
			Args:  model.CallbackArgs{UserID: "u1", TimerID: "t1", Captured: at.UnixMilli()},
		})
	}))
}

func TestCallbacks_AcquireOnlyDue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	scheduleTestCallback(t, s, "c1", model.CallbackInterruptCheck, t0)
	scheduleTestCallback(t, s, "c2", model.CallbackInterruptAutoStop, t0.Add(time.Minute))
	scheduleTestCallback(t, s, "c3", model.CallbackPomodoroTransition, t0.Add(time.Hour))

	due, err := s.AcquireDueCallbacks(ctx, t0.Add(time.Minute), 30*time.Second, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "c1", due[0].ID)
	assert.Equal(t, "c2", due[1].ID)
	assert.Equal(t, 1, due[0].Attempts)
	assert.Equal(t, model.CallbackArgs{UserID: "u1", TimerID: "t1", Captured: t0.UnixMilli()}, due[0].Args)
}

func TestCallbacks_LeaseHidesUntilExpiry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	scheduleTestCallback(t, s, "c1", model.CallbackInterruptCheck, t0)

	due, err := s.AcquireDueCallbacks(ctx, t0, 30*time.Second, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	again, err := s.AcquireDueCallbacks(ctx, t0.Add(10*time.Second), 30*time.Second, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	// Lease expired without completion: handed out again.
	expired, err := s.AcquireDueCallbacks(ctx, t0.Add(30*time.Second), 30*time.Second, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, 2, expired[0].Attempts)
}

func TestCallbacks_CompleteAndFail(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	scheduleTestCallback(t, s, "c1", model.CallbackInterruptCheck, t0)
	scheduleTestCallback(t, s, "c2", model.CallbackInterruptCheck, t0)
	scheduleTestCallback(t, s, "c3", model.CallbackInterruptCheck, t0)

	_, err := s.AcquireDueCallbacks(ctx, t0, time.Minute, 10)
	require.NoError(t, err)

	retryAt := t0.Add(5 * time.Minute)
	require.NoError(t, s.CompleteCallback(ctx, "c1", t0))
	require.NoError(t, s.FailCallback(ctx, "c2", t0, &retryAt, "boom"))
	require.NoError(t, s.FailCallback(ctx, "c3", t0, nil, "gave up"))

	pending, err := s.PendingCallbacks(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c2", pending[0].ID)
	assert.Equal(t, retryAt, pending[0].RunAt)

	due, err := s.AcquireDueCallbacks(ctx, t0.Add(time.Minute), time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "retry must wait for its run time")

	due, err = s.AcquireDueCallbacks(ctx, retryAt, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 2, due[0].Attempts)
}

func TestCallbacks_PendingByKind(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	scheduleTestCallback(t, s, "c1", model.CallbackInterruptCheck, t0)
	scheduleTestCallback(t, s, "c2", model.CallbackPomodoroTransition, t0)
	scheduleTestCallback(t, s, "c3", model.CallbackInterruptAutoStop, t0)

	pending, err := s.PendingCallbacks(ctx, model.CallbackInterruptCheck, model.CallbackInterruptAutoStop)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "c1", pending[0].ID)
	assert.Equal(t, "c3", pending[1].ID)
}

func TestCallbacks_ScheduleIsIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	scheduleTestCallback(t, s, "c1", model.CallbackInterruptCheck, t0)
	scheduleTestCallback(t, s, "c1", model.CallbackInterruptCheck, t0.Add(time.Hour))

	pending, err := s.PendingCallbacks(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, t0, pending[0].RunAt)
}
