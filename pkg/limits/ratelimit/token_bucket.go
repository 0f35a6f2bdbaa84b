package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// TokenBucket implements continuous-refill token bucket rate limiting.
//
// Tokens accumulate at PermitLimit per Window and are capped at BurstLimit,
// so a caller that idles can burst up to BurstLimit and no further. Refill is
// computed from elapsed time at each call; fractional tokens are retained
// internally and only truncated when reported.
type TokenBucket struct {
	permitLimit int64
	burstLimit  int64
	window      time.Duration
	ratePerSec  float64 // tokens added per second

	clock Clock

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	closed     bool

	counters leaseCounters
}

// TokenBucketConfig configures a TokenBucket.
type TokenBucketConfig struct {
	// PermitLimit is the number of tokens replenished per Window.
	PermitLimit int64

	// BurstLimit is the maximum number of tokens the bucket can hold.
	BurstLimit int64

	// Window is the replenishment period.
	Window time.Duration
}

// NewTokenBucket creates a token bucket limiter. The bucket starts full (at
// BurstLimit). A nil clock defaults to SystemClock.
func NewTokenBucket(cfg TokenBucketConfig, clock Clock) (*TokenBucket, error) {
	if cfg.PermitLimit < 1 {
		return nil, &ArgumentError{Argument: "PermitLimit", Message: "must be at least 1"}
	}
	if cfg.BurstLimit < 1 {
		return nil, &ArgumentError{Argument: "BurstLimit", Message: "must be at least 1"}
	}
	if cfg.Window <= 0 {
		return nil, &ArgumentError{Argument: "Window", Message: "must be positive"}
	}
	if clock == nil {
		clock = SystemClock()
	}

	return &TokenBucket{
		permitLimit: cfg.PermitLimit,
		burstLimit:  cfg.BurstLimit,
		window:      cfg.Window,
		ratePerSec:  float64(cfg.PermitLimit) / cfg.Window.Seconds(),
		clock:       clock,
		tokens:      float64(cfg.BurstLimit),
		lastRefill:  clock.Now(),
	}, nil
}

// AttemptAcquire tries to consume count tokens.
//
// On success the lease reports ResetAfter as the nominal replenishment
// period, not a precise countdown. On rejection RetryAfter is the time until
// the deficit refills at the configured rate.
func (tb *TokenBucket) AttemptAcquire(count int64) (*Lease, error) {
	if err := validateCount(count); err != nil {
		return nil, err
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.closed {
		return nil, ErrClosed
	}

	tb.refillLocked()

	if float64(count) <= tb.tokens {
		tb.tokens -= float64(count)
		tb.counters.record(true)
		return newAcquiredLease(tb.permitLimit, int64(tb.tokens), tb.window, true, nil), nil
	}

	deficit := float64(count) - tb.tokens
	retryAfter := time.Duration(deficit / tb.ratePerSec * float64(time.Second))
	tb.counters.record(false)
	return newRejectedLease(tb.permitLimit, int64(tb.tokens), retryAfter, true), nil
}

// Acquire is AttemptAcquire with a cancellation pre-check.
func (tb *TokenBucket) Acquire(ctx context.Context, count int64) (*Lease, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return tb.AttemptAcquire(count)
}

// Stats returns the current counters. Available permits reflect a refill as
// of now, truncated to whole tokens.
func (tb *TokenBucket) Stats() (Statistics, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.closed {
		return Statistics{}, ErrClosed
	}

	tb.refillLocked()
	return tb.counters.snapshot(int64(tb.tokens)), nil
}

// Close disposes the limiter. Idempotent.
func (tb *TokenBucket) Close() error {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.closed = true
	return nil
}

// refillLocked adds elapsed*rate tokens, capped at the burst limit. The
// refill timestamp advances only when tokens were actually added, so no-op
// calls cannot drift it. Caller must hold the mutex.
func (tb *TokenBucket) refillLocked() {
	now := tb.clock.Now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}

	added := elapsed.Seconds() * tb.ratePerSec
	if added <= 0 {
		return
	}

	tb.tokens = math.Min(tb.tokens+added, float64(tb.burstLimit))
	tb.lastRefill = now
}
