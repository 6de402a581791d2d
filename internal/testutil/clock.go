package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
)

// Epoch is the wall-clock start of every deterministic run: a Monday
// morning, so elapsed-time arithmetic in traces reads naturally.
var Epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// NewClock returns a quartz mock clock set to start. A zero start means
// Epoch.
func NewClock(tb testing.TB, start time.Time) *quartz.Mock {
	tb.Helper()
	if start.IsZero() {
		start = Epoch
	}
	clock := quartz.NewMock(tb)
	clock.Set(start)
	return clock
}

// StepCounter numbers the steps of a deterministic run.
//
// Unlike the wall clock, StepCounter can be reset for test reuse, so the
// same scenario run twice yields identical sequence numbers.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepCounter struct {
	mu  sync.Mutex
	seq int64
}

// NewStepCounter creates a counter starting at 0.
//
// The first call to Next() returns 1.
func NewStepCounter() *StepCounter {
	return &StepCounter{}
}

// Next increments and returns the next sequence number.
func (c *StepCounter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *StepCounter) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset resets the counter to 0.
func (c *StepCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
