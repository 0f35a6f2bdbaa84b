package ratelimit

import (
	"context"
	"sync"
)

// ConcurrentLimiter caps the number of simultaneously held permits.
//
// Unlike the time-windowed algorithms, capacity is returned only when an
// acquired lease is released. Leases never carry RetryAfter or ResetAfter:
// there is no deterministic time at which capacity frees, it depends on when
// an in-flight operation completes. Callers must release every acquired
// lease on every exit path or the capacity is starved permanently.
type ConcurrentLimiter struct {
	permitLimit int64

	mu     sync.Mutex
	active int64
	closed bool

	counters leaseCounters
}

// ConcurrentConfig configures a ConcurrentLimiter.
type ConcurrentConfig struct {
	// PermitLimit is the maximum number of permits held at once.
	PermitLimit int64
}

// NewConcurrentLimiter creates a concurrency cap limiter.
func NewConcurrentLimiter(cfg ConcurrentConfig) (*ConcurrentLimiter, error) {
	if cfg.PermitLimit < 1 {
		return nil, &ArgumentError{Argument: "PermitLimit", Message: "must be at least 1"}
	}
	return &ConcurrentLimiter{permitLimit: cfg.PermitLimit}, nil
}

// AttemptAcquire tries to take count permits. The acquired lease's release
// action returns exactly count permits, once, no matter how many times
// Release is called.
func (cl *ConcurrentLimiter) AttemptAcquire(count int64) (*Lease, error) {
	if err := validateCount(count); err != nil {
		return nil, err
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil, ErrClosed
	}

	if count <= cl.permitLimit-cl.active {
		cl.active += count
		cl.counters.record(true)
		n := count
		return newAcquiredLease(cl.permitLimit, cl.permitLimit-cl.active, 0, false, func() {
			cl.releasePermits(n)
		}), nil
	}

	cl.counters.record(false)
	return newRejectedLease(cl.permitLimit, cl.permitLimit-cl.active, 0, false), nil
}

// Acquire is AttemptAcquire with a cancellation pre-check.
func (cl *ConcurrentLimiter) Acquire(ctx context.Context, count int64) (*Lease, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return cl.AttemptAcquire(count)
}

// Stats returns the current counters.
func (cl *ConcurrentLimiter) Stats() (Statistics, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return Statistics{}, ErrClosed
	}
	return cl.counters.snapshot(cl.permitLimit - cl.active), nil
}

// Close disposes the limiter. Idempotent. Outstanding leases may still be
// released afterwards; the releases are accepted and clamped as usual.
func (cl *ConcurrentLimiter) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.closed = true
	return nil
}

// releasePermits returns n permits, clamping at zero to tolerate a release
// that races with Close or a misaccounted caller.
func (cl *ConcurrentLimiter) releasePermits(n int64) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.active -= n
	if cl.active < 0 {
		cl.active = 0
	}
}
