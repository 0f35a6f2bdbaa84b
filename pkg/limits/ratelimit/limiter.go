package ratelimit

import "context"

// Limiter is the admission contract shared by all four algorithms.
//
// Implementations answer immediately: AttemptAcquire never blocks waiting
// for capacity, and Acquire only adds a cancellation pre-check in front of
// the same synchronous attempt.
type Limiter interface {
	// AttemptAcquire tries to take count permits. A nil error means the
	// attempt ran; inspect the Lease for the grant/deny outcome. Errors are
	// *ArgumentError for count < 1 or ErrClosed after Close.
	AttemptAcquire(count int64) (*Lease, error)

	// Acquire is AttemptAcquire with a cancellation pre-check. If ctx is
	// already done it returns ctx.Err() without mutating limiter state.
	Acquire(ctx context.Context, count int64) (*Lease, error)

	// Stats returns a snapshot of the limiter's counters. The snapshot
	// performs the same time-based bookkeeping as an acquisition attempt so
	// AvailablePermits is never stale.
	Stats() (Statistics, error)

	// Close disposes the limiter. Further operations fail with ErrClosed.
	// Close is idempotent.
	Close() error
}

// checkContext is the single suspension point of the engine: a triggered
// context surfaces before any state is touched. There is no waiting for
// capacity anywhere.
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
