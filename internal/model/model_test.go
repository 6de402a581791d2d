package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"no html escaping", "<a&b>", `"<a&b>"`},
		{"int", 42, "42"},
		{"int64", int64(-9223372036854775808), "-9223372036854775808"},
		{"float", 1.5, "1.5"},
		{"bool", true, "true"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"sorted keys", map[string]any{"zebra": 1, "alpha": 2}, `{"alpha":2,"zebra":1}`},
		{"nested", map[string]any{"z": map[string]any{"b": 1, "a": 2}, "a": []any{"x", 3}}, `{"a":["x",3],"z":{"a":2,"b":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonical_NormalizesStrings(t *testing.T) {
	// "e" followed by a combining acute accent composes to U+00E9.
	result, err := MarshalCanonical(map[string]any{"note": "cafe\u0301"})
	require.NoError(t, err)
	assert.Equal(t, "{\"note\":\"caf\u00e9\"}", string(result))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	_, err := MarshalCanonical(nil)
	assert.ErrorContains(t, err, "null is forbidden")

	_, err = MarshalCanonical(map[string]any{"a": []any{nil}})
	assert.ErrorContains(t, err, `value for key "a": array[0]`)

	_, err = MarshalCanonical(math.Inf(1))
	assert.ErrorContains(t, err, "non-finite")

	_, err = MarshalCanonical(struct{}{})
	assert.ErrorContains(t, err, "unsupported type")
}

func TestMarshalMetadata(t *testing.T) {
	b, err := MarshalMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))

	b, err = MarshalMetadata(Metadata{"timer_id": "t1", "seconds": int64(90)})
	require.NoError(t, err)
	assert.Equal(t, `{"seconds":90,"timer_id":"t1"}`, string(b))
}

func TestProbeOrder(t *testing.T) {
	assert.Equal(t, []Context{Personal}, ProbeOrder(Personal))
	assert.Equal(t, []Context{WorkspaceContext("ws1"), Personal}, ProbeOrder(WorkspaceContext("ws1")))
}

func TestContextString(t *testing.T) {
	assert.Equal(t, "personal", Personal.String())
	assert.Equal(t, "workspace:ws1", WorkspaceContext("ws1").String())
	assert.True(t, WorkspaceContext("").IsPersonal())
}

func TestSourceValid(t *testing.T) {
	for _, s := range []Source{SourceTimer, SourceManual, SourceAutoStop, SourcePomodoroBreak} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Source("").Valid())
	assert.False(t, Source("import").Valid())
}

func TestElapsedSeconds(t *testing.T) {
	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(45), ElapsedSeconds(from, from.Add(45*time.Second+999*time.Millisecond)))
	assert.Equal(t, int64(0), ElapsedSeconds(from, from.Add(999*time.Millisecond)))
	assert.Equal(t, int64(5400), ElapsedSeconds(from, from.Add(90*time.Minute)))
}

func TestTruncate(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 0, 0, 1_234_567, time.FixedZone("x", 3600))
	got := Truncate(ts)
	assert.Equal(t, 1_000_000, got.Nanosecond())
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(Truncate(got)))
}

func TestSameInstant(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	later := at.Add(500 * time.Microsecond)
	assert.True(t, SameInstant(&at, at))
	assert.True(t, SameInstant(&later, at), "sub-millisecond differences are ignored")
	assert.False(t, SameInstant(nil, at))
	assert.False(t, SameInstant(&at, at.Add(time.Millisecond)))
}

func TestCallbackArgs(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	args := CallbackArgs{WorkspaceID: "ws1", Captured: at.UnixMilli()}
	assert.Equal(t, WorkspaceContext("ws1"), args.Context())
	assert.Equal(t, at, args.CapturedTime())
	assert.True(t, CallbackArgs{}.CapturedTime().IsZero())
}

func TestBreakLength(t *testing.T) {
	p := &PomodoroMode{BreakMinutes: 5, CurrentCycle: 1}
	assert.Equal(t, 5*time.Minute, p.BreakLength())

	p.CurrentCycle = LongBreakEvery
	assert.Equal(t, 15*time.Minute, p.BreakLength())

	p.CurrentCycle = LongBreakEvery + 1
	assert.Equal(t, 5*time.Minute, p.BreakLength())
}

func TestRunningTimerMode(t *testing.T) {
	next := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	standard := &RunningTimer{UserID: "u1", ProjectID: "p1", Mode: &StandardMode{NextInterruptAt: &next}}
	assert.Equal(t, &next, standard.NextInterruptAt())
	_, ok := standard.Pomodoro()
	assert.False(t, ok)
	assert.False(t, standard.IsBreak())
	assert.False(t, standard.Legacy())

	brk := &RunningTimer{UserID: "u1", ProjectID: "p1", Mode: &PomodoroMode{Phase: PhaseBreak, IsBreakTimer: true}}
	assert.Nil(t, brk.NextInterruptAt())
	assert.True(t, brk.IsBreak())

	assert.True(t, (&RunningTimer{UserID: "u1"}).Legacy())
}

func TestUserSettingsDurations(t *testing.T) {
	s := DefaultUserSettings()
	assert.Equal(t, 30*time.Minute, s.InterruptEvery())
	assert.Equal(t, 60*time.Second, s.Grace())

	s.InterruptInterval = 0.5
	assert.Equal(t, 30*time.Second, s.InterruptEvery())
}

func TestSequentialGenerator(t *testing.T) {
	g := NewSequentialGenerator("")
	assert.Equal(t, "id-1", g.Generate())
	assert.Equal(t, "id-2", g.Generate())

	named := NewSequentialGenerator("timer")
	assert.Equal(t, "timer-1", named.Generate())
}

func TestUUIDv7Generator(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
