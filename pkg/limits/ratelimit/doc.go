// Package ratelimit implements the admission control engine: four
// interchangeable limiter algorithms sharing a single acquire/lease contract.
//
// # Overview
//
// Every limiter answers an admission attempt immediately with a Lease; there
// is no queuing or blocking for capacity anywhere in this package. The four
// algorithms are:
//
//   - TokenBucket: continuous refill with a burst ceiling
//   - FixedWindow: counter that resets at window boundaries
//   - SlidingWindow: segmented rolling window, smoother than FixedWindow
//   - ConcurrentLimiter: cap on simultaneous in-flight operations
//
// # Acquire contract
//
// All limiters implement Limiter:
//
//	limiter, err := ratelimit.NewTokenBucket(ratelimit.TokenBucketConfig{
//	    PermitLimit: 100,
//	    BurstLimit:  100,
//	    Window:      time.Minute,
//	}, nil)
//	lease, err := limiter.AttemptAcquire(1)
//	if lease.Acquired() {
//	    defer lease.Release()
//	    // proceed
//	}
//
// Acquire is the context-aware variant. It only adds a cancellation check
// before the synchronous attempt; a cancelled context returns ctx.Err()
// without touching limiter state.
//
// # Time
//
// Algorithms never run a background ticking goroutine. All replenishment is
// computed from elapsed time on the injected Clock at the moment of each
// call, which makes behavior fully deterministic under a fake clock in tests.
//
// # Thread safety
//
// Each limiter guards its check-and-update sequence with one mutex, so
// concurrent callers can never jointly exceed the configured limit.
// Success/failure tallies are atomic and lock-free.
package ratelimit
