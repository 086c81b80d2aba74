// Package clock provides pipeline clocks used by elements to pace buffers.
package clock

import (
	"sync"
	"time"
)

// Clock reports pipeline time as a duration since an arbitrary epoch.
type Clock interface {
	// Now returns current clock time.
	Now() time.Duration
	// Wait blocks until clock reaches the provided time. False is
	// returned if cancel was closed before that.
	Wait(until time.Duration, cancel <-chan struct{}) bool
}

type system struct {
	epoch time.Time
}

// System returns a clock backed by the monotonic system time.
func System() Clock {
	return system{epoch: time.Now()}
}

func (c system) Now() time.Duration {
	return time.Since(c.epoch)
}

func (c system) Wait(until time.Duration, cancel <-chan struct{}) bool {
	d := until - c.Now()
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-cancel:
		return false
	}
}

// Manual is a clock which only moves when told to. Waiting on it
// moves the clock forward to the requested time, so tests run without
// sleeping.
type Manual struct {
	mu  sync.Mutex
	now time.Duration
}

// NewManual returns a manual clock set to zero.
func NewManual() *Manual {
	return &Manual{}
}

// Now returns current clock time.
func (c *Manual) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Wait moves the clock to until if it's ahead of current time.
func (c *Manual) Wait(until time.Duration, cancel <-chan struct{}) bool {
	select {
	case <-cancel:
		return false
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if until > c.now {
		c.now = until
	}
	return true
}

// Advance moves the clock forward by d.
func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// Set sets the clock time.
func (c *Manual) Set(t time.Duration) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
