package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a manually driven Clock.
// Timers fire only from Advance, in deadline order, on the calling goroutine.
// A timer with a non-positive duration fires on the next Advance, including Advance(0).
type FakeClock struct {
	mutex   sync.Mutex
	current time.Time
	seq     uint64
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	seq      uint64
	deadline time.Time
	channel  chan time.Time
	callback func()
	stopped  bool
	fired    bool
}

// Fake creates a FakeClock starting at the given time
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{
		current: initial,
	}
}

// Now returns the fake current time
func (c *FakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.current
}

// After returns a channel receiving the fake time once d has elapsed
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	channel := make(chan time.Time, 1)
	c.addWaiterLocked(&fakeWaiter{
		deadline: c.current.Add(d),
		channel:  channel,
	})
	return channel
}

// AfterFunc schedules f to run from Advance once d has elapsed
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		callback: f,
	}
	c.addWaiterLocked(waiter)

	return &Timer{
		stopFunc: func() bool {
			c.mutex.Lock()
			defer c.mutex.Unlock()

			if waiter.stopped || waiter.fired {
				return false
			}
			waiter.stopped = true
			c.removeWaiterLocked(waiter)
			return true
		},
		resetFunc: func(d time.Duration) bool {
			c.mutex.Lock()
			defer c.mutex.Unlock()

			wasActive := !waiter.stopped && !waiter.fired
			if wasActive {
				c.removeWaiterLocked(waiter)
			}
			waiter.stopped = false
			waiter.fired = false
			waiter.deadline = c.current.Add(d)
			c.addWaiterLocked(waiter)
			return wasActive
		},
	}
}

// Advance moves the fake time forward by d and fires every timer whose deadline has passed.
// Timers scheduled by fired callbacks are honored if their deadline also falls within the advanced time.
func (c *FakeClock) Advance(d time.Duration) {
	c.mutex.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mutex.Unlock()

	for {
		waiter := c.popExpired(target)
		if waiter == nil {
			return
		}

		if waiter.callback != nil {
			waiter.callback()
		} else if waiter.channel != nil {
			select {
			case waiter.channel <- target:
			default:
			}
		}
	}
}

// PendingCount returns the number of timers that have not fired or been stopped
func (c *FakeClock) PendingCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.waiters)
}

func (c *FakeClock) addWaiterLocked(waiter *fakeWaiter) {
	c.seq++
	waiter.seq = c.seq
	c.waiters = append(c.waiters, waiter)
}

func (c *FakeClock) removeWaiterLocked(waiter *fakeWaiter) {
	for i, w := range c.waiters {
		if w == waiter {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// popExpired removes and returns the earliest expired waiter, ties broken by scheduling order
func (c *FakeClock) popExpired(target time.Time) *fakeWaiter {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	sort.SliceStable(c.waiters, func(i, j int) bool {
		if c.waiters[i].deadline.Equal(c.waiters[j].deadline) {
			return c.waiters[i].seq < c.waiters[j].seq
		}
		return c.waiters[i].deadline.Before(c.waiters[j].deadline)
	})

	if len(c.waiters) == 0 || c.waiters[0].deadline.After(target) {
		return nil
	}

	waiter := c.waiters[0]
	c.waiters = c.waiters[1:]
	waiter.fired = true
	return waiter
}
