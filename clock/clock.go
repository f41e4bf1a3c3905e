// Package clock abstracts time so that cache aging and animation playback
// can be driven deterministically in tests.
//
// Production code takes a Clock and receives Real(). Tests pass Fake()
// and move time forward explicitly with Advance.
package clock

import "time"

// Clock provides the current time and one-shot timers
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// After waits for the duration to elapse and then sends the current time on the returned channel
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f in its own goroutine (real clock) or from Advance
	// (fake clock) once the duration has elapsed
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a handle to a pending AfterFunc call
type Timer struct {
	stopFunc  func() bool
	resetFunc func(time.Duration) bool
}

// Stop prevents the timer from firing, returns false if it already fired or was stopped
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

// Reset changes the timer to fire after d, returns true if it was active
func (t *Timer) Reset(d time.Duration) bool {
	if t == nil || t.resetFunc == nil {
		return false
	}
	return t.resetFunc(d)
}
