package ratelimit

import (
	"context"
	"sync"
	"time"
)

// FixedWindow implements fixed window counter rate limiting.
//
// The counter restarts when a full window has elapsed since the window
// start. Only a single reset is performed per call regardless of how many
// whole windows passed while idle; the counter simply restarts from the
// current instant, so no drift accumulates.
//
// Known boundary behavior: up to roughly twice the configured limit can be
// admitted across a window boundary (the tail of one window plus the head of
// the next). This is the classic fixed-window trade-off and is preserved
// deliberately; use SlidingWindow for smoother enforcement.
type FixedWindow struct {
	permitLimit int64
	window      time.Duration

	clock Clock

	mu          sync.Mutex
	windowStart time.Time
	used        int64
	closed      bool

	counters leaseCounters
}

// FixedWindowConfig configures a FixedWindow.
type FixedWindowConfig struct {
	// PermitLimit is the number of permits admitted per window.
	PermitLimit int64

	// Window is the counting period.
	Window time.Duration
}

// NewFixedWindow creates a fixed window limiter. A nil clock defaults to
// SystemClock.
func NewFixedWindow(cfg FixedWindowConfig, clock Clock) (*FixedWindow, error) {
	if cfg.PermitLimit < 1 {
		return nil, &ArgumentError{Argument: "PermitLimit", Message: "must be at least 1"}
	}
	if cfg.Window <= 0 {
		return nil, &ArgumentError{Argument: "Window", Message: "must be positive"}
	}
	if clock == nil {
		clock = SystemClock()
	}

	return &FixedWindow{
		permitLimit: cfg.PermitLimit,
		window:      cfg.Window,
		clock:       clock,
		windowStart: clock.Now(),
	}, nil
}

// AttemptAcquire tries to consume count permits from the current window.
// Both ResetAfter (on success) and RetryAfter (on rejection) report the time
// left until the window restarts.
func (fw *FixedWindow) AttemptAcquire(count int64) (*Lease, error) {
	if err := validateCount(count); err != nil {
		return nil, err
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return nil, ErrClosed
	}

	elapsed := fw.rollLocked()
	untilReset := fw.window - elapsed

	// Comparing count against the headroom instead of adding it to the
	// usage keeps adversarially large counts from wrapping around.
	if count <= fw.permitLimit-fw.used {
		fw.used += count
		fw.counters.record(true)
		return newAcquiredLease(fw.permitLimit, fw.permitLimit-fw.used, untilReset, true, nil), nil
	}

	fw.counters.record(false)
	return newRejectedLease(fw.permitLimit, fw.permitLimit-fw.used, untilReset, true), nil
}

// Acquire is AttemptAcquire with a cancellation pre-check.
func (fw *FixedWindow) Acquire(ctx context.Context, count int64) (*Lease, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return fw.AttemptAcquire(count)
}

// Stats returns the current counters, rolling the window first.
func (fw *FixedWindow) Stats() (Statistics, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return Statistics{}, ErrClosed
	}

	fw.rollLocked()
	return fw.counters.snapshot(fw.permitLimit - fw.used), nil
}

// Close disposes the limiter. Idempotent.
func (fw *FixedWindow) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.closed = true
	return nil
}

// rollLocked restarts the window if a full period has elapsed and returns
// the elapsed time within the (possibly fresh) current window. Caller must
// hold the mutex.
func (fw *FixedWindow) rollLocked() time.Duration {
	now := fw.clock.Now()
	elapsed := now.Sub(fw.windowStart)
	if elapsed >= fw.window {
		fw.windowStart = now
		fw.used = 0
		elapsed = 0
	}
	return elapsed
}
