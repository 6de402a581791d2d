package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/timekeep/internal/model"
	"github.com/roach88/timekeep/internal/store"
)

// NewStore opens a store in a per-test temporary directory and closes it
// when the test ends.
func NewStore(tb testing.TB) *store.Store {
	tb.Helper()
	s, err := store.Open(filepath.Join(tb.TempDir(), "timekeep.db"))
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = s.Close() })
	return s
}

// Seed writes f into s using the default user settings.
func Seed(tb testing.TB, s *store.Store, f *store.Fixture) {
	tb.Helper()
	require.NoError(tb, s.Seed(context.Background(), f, model.DefaultUserSettings()))
}
