package testutil

import "sync"

// Epoch is the first timestamp a DeterministicClock hands out
// (2024-01-01T00:00:00Z).
const Epoch int64 = 1704067200

// DeterministicClock is a thread-safe clock for tests that advances one
// second per reading.
//
// It implements engine.Clock, and unlike engine.SystemClock it can be reset
// so the same scenario stamps identical timestamps on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	base int64
	seq  int64
}

// NewDeterministicClock creates a clock starting at Epoch.
//
// The first call to Now() returns Epoch+1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{base: Epoch}
}

// NewDeterministicClockAt creates a clock whose first reading is base+1.
func NewDeterministicClockAt(base int64) *DeterministicClock {
	return &DeterministicClock{base: base}
}

// Now advances the clock by one second and returns the new time.
func (c *DeterministicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.base + c.seq
}

// Current returns the last time handed out without advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base + c.seq
}

// Reset rewinds the clock to its base.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
