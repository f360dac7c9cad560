// Package budget caps calls to paid or shared external services.
// Used by the geocoding client to stay inside a provider's request quota.
package budget

import (
	"fmt"
	"sync"
	"time"

	"github.com/teranos/waypoint/errors"
)

// ErrQuotaExceeded is returned by Allow when the window is full
var ErrQuotaExceeded = errors.New("call quota exceeded")

// Limiter enforces max calls per time window using a sliding window.
// A max of zero or less means unlimited.
type Limiter struct {
	maxCalls  int
	window    time.Duration
	mu        sync.Mutex
	callTimes []time.Time
	timeNow   func() time.Time // Injectable for testing
}

// NewLimiter creates a sliding window limiter with real time
func NewLimiter(maxCalls int, window time.Duration) *Limiter {
	return NewLimiterWithClock(maxCalls, window, time.Now)
}

// NewLimiterWithClock creates a limiter with an injectable clock (for testing)
func NewLimiterWithClock(maxCalls int, window time.Duration, timeNow func() time.Time) *Limiter {
	capacity := maxCalls
	if capacity < 0 {
		capacity = 0
	}
	return &Limiter{
		maxCalls:  maxCalls,
		window:    window,
		callTimes: make([]time.Time, 0, min(capacity, 1024)),
		timeNow:   timeNow,
	}
}

// Unlimited reports whether the limiter never rejects
func (r *Limiter) Unlimited() bool {
	return r == nil || r.maxCalls <= 0
}

// Allow records a call if the window has room.
// The returned error wraps ErrQuotaExceeded and carries the time until a slot frees.
func (r *Limiter) Allow() error {
	if r.Unlimited() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timeNow()
	r.removeExpiredCalls(now)

	if len(r.callTimes) >= r.maxCalls {
		retryIn := r.callTimes[0].Add(r.window).Sub(now)
		err := errors.Wrapf(ErrQuotaExceeded, "%d calls per %s", r.maxCalls, r.window)
		err = errors.WithDetail(err, fmt.Sprintf("Current calls in window: %d", len(r.callTimes)))
		err = errors.WithDetail(err, fmt.Sprintf("Next slot in: %s", retryIn.Round(time.Second)))
		return err
	}

	r.callTimes = append(r.callTimes, now)
	return nil
}

// removeExpiredCalls drops timestamps outside the window. Must be called with lock held.
func (r *Limiter) removeExpiredCalls(now time.Time) {
	cutoff := now.Add(-r.window)

	expired := 0
	for _, callTime := range r.callTimes {
		if callTime.After(cutoff) {
			break
		}
		expired++
	}
	r.callTimes = r.callTimes[expired:]
}

// Stats returns calls in the current window and remaining capacity.
// Remaining is -1 for an unlimited limiter.
func (r *Limiter) Stats() (callsInWindow int, remaining int) {
	if r.Unlimited() {
		return 0, -1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeExpiredCalls(r.timeNow())
	callsInWindow = len(r.callTimes)
	remaining = r.maxCalls - callsInWindow
	if remaining < 0 {
		remaining = 0
	}
	return callsInWindow, remaining
}
