package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timekeep/internal/engine"
	"github.com/roach88/timekeep/internal/model"
	"github.com/roach88/timekeep/internal/schedule"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, schedule.DefaultConfig(), cfg.Scheduler)
	assert.Equal(t, engine.DefaultThresholds(), cfg.Engine)
	assert.Equal(t, model.DefaultUserSettings(), cfg.Defaults)
}

func TestLoad_OverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timekeep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database: /var/lib/timekeep/data.db
http:
  listen: ":9000"
scheduler:
  poll_interval: 500ms
  max_attempts: 3
engine:
  stale_after: 10m
defaults:
  interrupt_interval: 45
  pomodoro_enabled: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/timekeep/data.db", cfg.Database)
	assert.Equal(t, ":9000", cfg.HTTP.Listen)
	assert.Equal(t, 500*time.Millisecond, cfg.Scheduler.PollInterval)
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, schedule.DefaultConfig().Lease, cfg.Scheduler.Lease)
	assert.Equal(t, 10*time.Minute, cfg.Engine.StaleAfter)
	assert.Equal(t, engine.DefaultThresholds().NudgeAfter, cfg.Engine.NudgeAfter)
	assert.Equal(t, 45.0, cfg.Defaults.InterruptInterval)
	assert.True(t, cfg.Defaults.PomodoroEnabled)
	assert.Equal(t, 60, cfg.Defaults.GracePeriod)
	assert.True(t, cfg.Alerts.Outbox)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown top-level key", "databse: x.db\n"},
		{"unknown nested key", "engine:\n  stale: 5m\n"},
		{"bad duration", "scheduler:\n  lease: soon\n"},
		{"negative batch size", "scheduler:\n  batch_size: -1\n"},
		{"zero work minutes", "defaults:\n  pomodoro_work_minutes: 0\n"},
		{"wrong type", "alerts:\n  outbox: yes please\n"},
		{"empty database", "database: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test.yaml", []byte(tt.doc))
			require.Error(t, err)
		})
	}
}

func TestParse_ErrorHasPosition(t *testing.T) {
	_, err := Parse("test.yaml", []byte("scheduler:\n  batch_size: 0\n"))
	require.Error(t, err)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "batch_size")
}

func TestParse_BackoffOrdering(t *testing.T) {
	_, err := Parse("test.yaml", []byte("scheduler:\n  retry_backoff: 10m\n  max_backoff: 1m\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_backoff")
}

func TestParse_BlankDocument(t *testing.T) {
	cfg, err := Parse("blank.yaml", []byte("\n   \n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
