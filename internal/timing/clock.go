package timing

import (
	"sync"
	"time"
)

// HostClock provides the current host time.
// Implementations must be monotonic.
type HostClock interface {
	Now() Time
}

// SystemClock reads the monotonic system clock, expressed in nanoseconds
// since the clock was created.
type SystemClock struct {
	origin time.Time
}

// NewSystemClock creates a clock whose origin is now
func NewSystemClock() *SystemClock {
	return &SystemClock{origin: time.Now()}
}

// Now implements HostClock
func (c *SystemClock) Now() Time {
	return FromDuration(time.Since(c.origin))
}

// Origin returns the wall-clock instant of host time zero
func (c *SystemClock) Origin() time.Time {
	return c.origin
}

// ManualClock is a HostClock driven by hand, for deterministic scheduling.
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

// NewManualClock creates a manual clock starting at start
func NewManualClock(start time.Duration) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements HostClock
func (c *ManualClock) Now() Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FromDuration(c.now)
}

// Advance moves the clock forward (or backward for negative d)
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// Set moves the clock to an absolute host time
func (c *ManualClock) Set(t time.Duration) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
