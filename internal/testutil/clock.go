package testutil

import "sync"

// FakeClock is a settable millisecond clock for tests.
//
// It implements clock.Clock. The time only moves when Set or Advance is
// called, so every scenario is reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu  sync.Mutex
	now int64
}

// NewFakeClock creates a clock frozen at start.
func NewFakeClock(start int64) *FakeClock {
	return &FakeClock{now: start}
}

// NowMillis returns the frozen time.
func (c *FakeClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to an absolute time. Going backwards is allowed.
func (c *FakeClock) Set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by delta milliseconds and returns the new time.
func (c *FakeClock) Advance(delta int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += delta
	return c.now
}
