package testutil

import (
	"sync"
	"time"
)

// WallClock is a settable wall clock for tests.
//
// Unlike time.Now, WallClock only moves when told to, so refreshes that
// depend on "now" (snapshot fallbacks, open sprints) are repeatable.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type WallClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewWallClock creates a clock reading start.
func NewWallClock(start time.Time) *WallClock {
	return &WallClock{now: start.UTC()}
}

// Now returns the current reading. Pass the method value where a
// func() time.Time is expected.
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new reading.
func (c *WallClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set moves the clock to t.
func (c *WallClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
