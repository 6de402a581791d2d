package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timekeep/internal/model"
)

func openEntry(id, user, project string, c model.Context) *model.TimeEntry {
	return &model.TimeEntry{
		ID:        id,
		Context:   c,
		UserID:    user,
		ProjectID: project,
		StartedAt: t0,
		Source:    model.SourceTimer,
	}
}

func TestEntry_OneOpenPerUserProjectContext(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		return tx.InsertEntry(ctx, openEntry("e1", "u1", "p1", model.Personal))
	}))

	err := s.InTx(ctx, func(tx *Tx) error {
		return tx.InsertEntry(ctx, openEntry("e2", "u1", "p1", model.Personal))
	})
	assert.Error(t, err)

	// Different context or project is fine.
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		if err := tx.InsertEntry(ctx, openEntry("e3", "u1", "p1", model.WorkspaceContext("ws1"))); err != nil {
			return err
		}
		return tx.InsertEntry(ctx, openEntry("e4", "u1", "p2", model.Personal))
	}))
}

func TestEntry_CloseOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		return tx.InsertEntry(ctx, openEntry("e1", "u1", "p1", model.Personal))
	}))

	stopped := t0.Add(90 * time.Second)
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		return tx.CloseEntry(ctx, "e1", stopped, 90, model.SourceAutoStop)
	}))

	err := s.InTx(ctx, func(tx *Tx) error {
		return tx.CloseEntry(ctx, "e1", stopped.Add(time.Hour), 3690, model.SourceTimer)
	})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		e, err := tx.GetEntry(ctx, "e1")
		require.NoError(t, err)
		assert.False(t, e.Open())
		assert.Equal(t, stopped, *e.StoppedAt)
		assert.Equal(t, int64(90), *e.Seconds)
		assert.Equal(t, model.SourceAutoStop, e.Source)

		_, err = tx.GetOpenEntry(ctx, "u1", "p1", model.Personal)
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestEntry_DeleteOpenOnly(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		closed := openEntry("e1", "u1", "p1", model.Personal)
		stopped := t0.Add(time.Minute)
		secs := int64(60)
		closed.StoppedAt = &stopped
		closed.Seconds = &secs
		closed.Source = model.SourceManual
		require.NoError(t, tx.InsertEntry(ctx, closed))
		require.NoError(t, tx.InsertEntry(ctx, openEntry("e2", "u1", "p1", model.Personal)))

		require.NoError(t, tx.DeleteOpenEntry(ctx, "e1"))
		require.NoError(t, tx.DeleteOpenEntry(ctx, "e2"))

		_, err := tx.GetEntry(ctx, "e1")
		assert.NoError(t, err)
		_, err = tx.GetEntry(ctx, "e2")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestEntry_SumClosedSeconds(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	closed := func(id, user, project string, c model.Context, secs int64, overrun bool) *model.TimeEntry {
		e := openEntry(id, user, project, c)
		stopped := t0.Add(time.Duration(secs) * time.Second)
		e.StoppedAt = &stopped
		e.Seconds = &secs
		e.IsOverrun = overrun
		return e
	}

	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		for _, e := range []*model.TimeEntry{
			closed("e1", "u1", "p1", model.Personal, 100, false),
			closed("e2", "u2", "p1", model.Personal, 50, false),
			closed("e3", "u1", "p1", model.Personal, 1000, true),
			closed("e4", "u1", "p1", model.WorkspaceContext("ws1"), 7, false),
			closed("e5", "u1", "p2", model.Personal, 9, false),
			openEntry("e6", "u3", "p1", model.Personal),
		} {
			if err := tx.InsertEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		total, err := tx.SumClosedSeconds(ctx, "p1", model.Personal)
		require.NoError(t, err)
		assert.Equal(t, int64(150), total)

		none, err := tx.SumClosedSeconds(ctx, "p3", model.Personal)
		require.NoError(t, err)
		assert.Zero(t, none)
		return nil
	}))
}

func TestEntry_NotesAreNormalized(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := openEntry("e1", "u1", "p1", model.Personal)
	e.Note = "cafe\u0301"
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		return tx.InsertEntry(ctx, e)
	}))

	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		entries, err := tx.ListEntries(ctx, "u1", 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "caf\u00e9", entries[0].Note)
		return nil
	}))
}
