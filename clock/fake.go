package clock

import (
	"sync"
	"time"

	bclock "github.com/benbjohnson/clock"
)

// FakeClock is a benbjohnson mock clock that also counts the timers waiting
// on it, so a test can wait for the goroutine under test to block before
// advancing time. Safe for concurrent use.
type FakeClock struct {
	mock *bclock.Mock

	mu        sync.Mutex
	deadlines []time.Time
	changed   *sync.Cond
}

func Fake(initial time.Time) *FakeClock {
	m := bclock.NewMock()
	m.Set(initial)
	c := &FakeClock{mock: m}
	c.changed = sync.NewCond(&c.mu)
	return c
}

func (c *FakeClock) Now() time.Time { return c.mock.Now() }

// After fires once Advance has moved the clock d past the current time.
// Non-positive durations fire immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d <= 0 {
		ch := make(chan time.Time, 1)
		ch <- c.mock.Now()
		return ch
	}

	c.deadlines = append(c.deadlines, c.mock.Now().Add(d))
	c.changed.Broadcast()
	return c.mock.After(d)
}

func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward, firing every timer that falls due. Timers
// registered while it runs are counted against the new time.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.mock.Now().Add(d)
	rest := c.deadlines[:0]
	for _, deadline := range c.deadlines {
		if deadline.After(now) {
			rest = append(rest, deadline)
		}
	}
	c.deadlines = rest
	c.changed.Broadcast()

	c.mock.Add(d)
}

// WaitForTimers blocks until at least n timers are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.deadlines) < n {
		c.changed.Wait()
	}
}

func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deadlines)
}
