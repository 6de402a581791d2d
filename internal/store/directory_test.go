package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timekeep/internal/model"
)

func TestDirectory_ResolveContext(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	dir := NewDirectory(s, model.DefaultUserSettings())

	c, err := dir.ResolveContext(ctx, "unknown")
	require.NoError(t, err)
	assert.True(t, c.IsPersonal())

	require.NoError(t, s.UpsertWorkspace(ctx, "ws1", "Acme"))
	require.NoError(t, s.AddMembership(ctx, "u1", "ws1"))
	require.NoError(t, s.SetActiveContext(ctx, "u1", model.WorkspaceContext("ws1")))

	c, err = dir.ResolveContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.WorkspaceContext("ws1"), c)

	// Losing membership falls back to personal.
	require.NoError(t, s.RemoveMembership(ctx, "u1", "ws1"))
	c, err = dir.ResolveContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Personal, c)

	require.NoError(t, s.AddMembership(ctx, "u1", "ws1"))
	require.NoError(t, s.SetActiveContext(ctx, "u1", model.Personal))
	c, err = dir.ResolveContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Personal, c)
}

func TestDirectory_GetProject(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	dir := NewDirectory(s, model.DefaultUserSettings())

	_, err := dir.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	want := model.Project{
		ID:          "p1",
		Name:        "Website",
		WorkspaceID: "ws1",
		OwnerID:     "u1",
		HourlyRate:  120,
		BudgetType:  model.BudgetHours,
		BudgetHours: 40,
	}
	require.NoError(t, s.UpsertProject(ctx, want))

	got, err := dir.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	want.Archived = true
	require.NoError(t, s.UpsertProject(ctx, want))
	got, err = dir.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, got.Archived)
}

func TestDirectory_GetUserSettings(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	defaults := model.DefaultUserSettings()
	dir := NewDirectory(s, defaults)

	got, err := dir.GetUserSettings(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, defaults, got)

	custom := model.UserSettings{
		InterruptEnabled:             false,
		InterruptInterval:            0.5,
		GracePeriod:                  10,
		PomodoroEnabled:              true,
		PomodoroWorkMinutes:          50,
		PomodoroBreakMinutes:         10,
		BudgetWarningEnabled:         true,
		BudgetWarningThresholdHours:  2,
		BudgetWarningThresholdAmount: 100,
	}
	require.NoError(t, s.UpsertSettings(ctx, "u1", custom))

	got, err = dir.GetUserSettings(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, custom, got)
}

func TestAlerts_InsertAndList(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := model.Alert{
		UserID:   "u1",
		Title:    "Still working?",
		Body:     "Your timer has been running for 30 minutes.",
		Type:     model.AlertInterrupt,
		Metadata: model.Metadata{"timer_id": "t1"},
		SentAt:   t0,
	}
	require.NoError(t, s.InsertAlert(ctx, a))
	require.NoError(t, s.InsertAlert(ctx, model.Alert{UserID: "u2", Type: model.AlertBreak, Metadata: model.Metadata{}, SentAt: t0}))

	got, err := s.ListAlerts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a, got[0])
}
