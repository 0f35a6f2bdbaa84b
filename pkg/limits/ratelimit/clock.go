package ratelimit

import "time"

// Clock supplies monotonic timestamps and elapsed-time computation.
// Limiters never sleep or tick on the clock; they only ask what time it is
// during an admission attempt. Injecting a Clock lets tests advance time
// manually and assert exact refill arithmetic.
type Clock interface {
	// Now returns the current time. Implementations must be monotonic:
	// successive calls never go backwards.
	Now() time.Time

	// Since returns the elapsed time between t and Now.
	Since(t time.Time) time.Duration
}

type systemClock struct{}

func (systemClock) Now() time.Time                  { return time.Now() }
func (systemClock) Since(t time.Time) time.Duration { return time.Since(t) }

// SystemClock returns the Clock backed by the runtime's monotonic clock.
// This is the default used when a limiter is constructed with a nil Clock.
func SystemClock() Clock { return systemClock{} }
