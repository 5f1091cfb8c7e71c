package app

import (
	"sync"
	"time"
)

// Coalescer runs fn at most once per delay no matter how often Trigger is
// called. A Trigger during a pending run is folded into it.
type Coalescer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	pending bool
	stopped bool
}

// NewCoalescer returns a Coalescer that calls fn delay after the first
// Trigger of each burst.
func NewCoalescer(delay time.Duration, fn func()) *Coalescer {
	return &Coalescer{delay: delay, fn: fn}
}

// Trigger schedules fn unless a run is already pending.
func (c *Coalescer) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending || c.stopped {
		return
	}
	c.pending = true
	time.AfterFunc(c.delay, c.fire)
}

// Stop drops any pending run and ignores later triggers.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

func (c *Coalescer) fire() {
	c.mu.Lock()
	c.pending = false
	stopped := c.stopped
	c.mu.Unlock()
	if !stopped {
		c.fn()
	}
}
