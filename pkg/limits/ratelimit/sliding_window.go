package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow implements segmented sliding window rate limiting.
//
// The window is divided into a fixed circular array of segment counters.
// Admissions count against the current segment; as time passes the index
// rotates forward, zeroing each newly entered segment, so only one segment's
// worth of history expires at a time rather than the whole window at once.
// This smooths out the boundary spike of FixedWindow at the cost of
// per-segment bookkeeping.
type SlidingWindow struct {
	permitLimit     int64
	window          time.Duration
	segmentDuration time.Duration

	clock Clock

	mu           sync.Mutex
	segments     []int64
	current      int
	segmentStart time.Time
	closed       bool

	counters leaseCounters
}

// SlidingWindowConfig configures a SlidingWindow.
type SlidingWindowConfig struct {
	// PermitLimit is the number of permits admitted per rolling window.
	PermitLimit int64

	// Window is the total rolling period.
	Window time.Duration

	// Segments is how many counters the window is divided into. More
	// segments track the rolling count more precisely. Minimum 2.
	Segments int
}

// NewSlidingWindow creates a segmented sliding window limiter. A nil clock
// defaults to SystemClock.
func NewSlidingWindow(cfg SlidingWindowConfig, clock Clock) (*SlidingWindow, error) {
	if cfg.PermitLimit < 1 {
		return nil, &ArgumentError{Argument: "PermitLimit", Message: "must be at least 1"}
	}
	if cfg.Segments < 2 {
		return nil, &ArgumentError{Argument: "Segments", Message: "must be at least 2"}
	}
	if cfg.Window <= 0 {
		return nil, &ArgumentError{Argument: "Window", Message: "must be positive"}
	}
	if clock == nil {
		clock = SystemClock()
	}

	return &SlidingWindow{
		permitLimit:     cfg.PermitLimit,
		window:          cfg.Window,
		segmentDuration: cfg.Window / time.Duration(cfg.Segments),
		clock:           clock,
		segments:        make([]int64, cfg.Segments),
		segmentStart:    clock.Now(),
	}, nil
}

// AttemptAcquire tries to consume count permits from the rolling window.
//
// Both ResetAfter (on success) and RetryAfter (on rejection) report the time
// until the current segment rolls over: the oldest segment is what expires
// next, so that is the earliest instant capacity can free up.
func (sw *SlidingWindow) AttemptAcquire(count int64) (*Lease, error) {
	if err := validateCount(count); err != nil {
		return nil, err
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return nil, ErrClosed
	}

	now := sw.clock.Now()
	sw.advanceLocked(now)

	var total int64
	for _, v := range sw.segments {
		total += v
	}
	untilRollover := sw.segmentDuration - now.Sub(sw.segmentStart)

	if count <= sw.permitLimit-total {
		sw.segments[sw.current] += count
		sw.counters.record(true)
		return newAcquiredLease(sw.permitLimit, sw.permitLimit-total-count, untilRollover, true, nil), nil
	}

	sw.counters.record(false)
	return newRejectedLease(sw.permitLimit, sw.permitLimit-total, untilRollover, true), nil
}

// Acquire is AttemptAcquire with a cancellation pre-check.
func (sw *SlidingWindow) Acquire(ctx context.Context, count int64) (*Lease, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return sw.AttemptAcquire(count)
}

// Stats returns the current counters, rotating expired segments first.
func (sw *SlidingWindow) Stats() (Statistics, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return Statistics{}, ErrClosed
	}

	sw.advanceLocked(sw.clock.Now())
	var total int64
	for _, v := range sw.segments {
		total += v
	}
	return sw.counters.snapshot(sw.permitLimit - total), nil
}

// Close disposes the limiter. Idempotent.
func (sw *SlidingWindow) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.closed = true
	return nil
}

// advanceLocked rotates the index forward one step per whole elapsed segment
// duration, zeroing each segment as it is entered. If more segments elapsed
// than exist the whole array is cleared. Caller must hold the mutex.
func (sw *SlidingWindow) advanceLocked(now time.Time) {
	elapsed := now.Sub(sw.segmentStart)
	if elapsed < sw.segmentDuration {
		return
	}

	steps := int(elapsed / sw.segmentDuration)
	if steps >= len(sw.segments) {
		for i := range sw.segments {
			sw.segments[i] = 0
		}
		sw.current = 0
	} else {
		for i := 0; i < steps; i++ {
			sw.current = (sw.current + 1) % len(sw.segments)
			sw.segments[sw.current] = 0
		}
	}
	sw.segmentStart = now
}
