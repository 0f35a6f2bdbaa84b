package ratelimit

import (
	"sync"
	"time"
)

// Lease is the immutable outcome of one admission attempt.
//
// An acquired lease may own held capacity (ConcurrentLimiter). Capacity is
// returned only by calling Release; a dropped lease permanently withholds
// its permits, so callers must treat Release as a mandatory scoped cleanup
// on every exit path:
//
//	lease, err := limiter.AttemptAcquire(1)
//	if err != nil {
//	    return err
//	}
//	defer lease.Release()
//
// Release is idempotent: the underlying capacity is returned exactly once
// no matter how many times it is called.
type Lease struct {
	acquired  bool
	limit     int64
	remaining int64

	retryAfter    time.Duration
	hasRetryAfter bool
	resetAfter    time.Duration
	hasResetAfter bool

	releaseOnce sync.Once
	release     func()
}

// newAcquiredLease builds a successful lease. resetAfter is optional because
// not every algorithm is time-windowed.
func newAcquiredLease(limit, remaining int64, resetAfter time.Duration, hasReset bool, release func()) *Lease {
	return &Lease{
		acquired:      true,
		limit:         limit,
		remaining:     remaining,
		resetAfter:    resetAfter,
		hasResetAfter: hasReset,
		release:       release,
	}
}

// newRejectedLease builds a failed lease. retryAfter is optional: the
// concurrency limiter has no deterministic time at which capacity frees.
func newRejectedLease(limit, remaining int64, retryAfter time.Duration, hasRetry bool) *Lease {
	return &Lease{
		limit:         limit,
		remaining:     remaining,
		retryAfter:    retryAfter,
		hasRetryAfter: hasRetry,
	}
}

// Acquired reports whether the attempt was granted.
func (l *Lease) Acquired() bool { return l.acquired }

// Limit returns the configured permit limit of the granting limiter.
func (l *Lease) Limit() int64 { return l.limit }

// Remaining returns the permits left after this attempt. It is never
// negative and never exceeds the limiter's capacity.
func (l *Lease) Remaining() int64 { return l.remaining }

// RetryAfter returns the suggested wait before retrying and whether one is
// known. It is populated only on rejected leases.
func (l *Lease) RetryAfter() (time.Duration, bool) {
	return l.retryAfter, l.hasRetryAfter
}

// ResetAfter returns the time until the current window boundary and whether
// one is known. It is populated only on acquired leases.
func (l *Lease) ResetAfter() (time.Duration, bool) {
	return l.resetAfter, l.hasResetAfter
}

// Release returns any capacity held by this lease. Safe to call on rejected
// leases and safe to call repeatedly; the release action runs at most once.
func (l *Lease) Release() {
	l.releaseOnce.Do(func() {
		if l.release != nil {
			l.release()
		}
	})
}
