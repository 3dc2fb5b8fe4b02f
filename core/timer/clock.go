// Package timer provides the clock fibers use for deadlines and sleeps, with
// a manually advanced implementation for tests.
package timer

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	// After delivers the current time on the returned channel once d elapsed.
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Real returns the wall clock.
func Real() Clock { return realClock{} }

// FakeClock only moves when Advance is called.
type FakeClock struct {
	mu   sync.Mutex
	now  time.Time
	tmrs []*fakeTimer
}

type fakeTimer struct {
	at time.Time
	ch chan time.Time
}

// NewFakeClock starts at start, or the Unix epoch when start is zero.
func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = time.Unix(0, 0)
	}
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		close(ch)
		return ch
	}
	c.tmrs = append(c.tmrs, &fakeTimer{at: c.now.Add(d), ch: ch})
	return ch
}

// Advance moves time forward by d and fires every timer that became due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var left, fire []*fakeTimer
	for _, t := range c.tmrs {
		if !t.at.After(now) {
			fire = append(fire, t)
		} else {
			left = append(left, t)
		}
	}
	c.tmrs = left
	c.mu.Unlock()

	for _, t := range fire {
		t.ch <- now
		close(t.ch)
	}
}

// Waiters returns the number of timers not yet fired.
func (c *FakeClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tmrs)
}

var (
	_ Clock = realClock{}
	_ Clock = (*FakeClock)(nil)
)
