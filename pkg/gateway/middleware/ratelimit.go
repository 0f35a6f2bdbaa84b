package middleware

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"floodgate/pkg/limits"
	"floodgate/pkg/telemetry/metrics"
)

// RateLimit checks every configured policy before forwarding a request.
//
// This middleware:
//   - Resolves the request's partition for each policy
//   - Acquires one permit per policy through the manager
//   - Sets X-RateLimit-* headers from the tightest lease
//   - Returns 429 with a Retry-After header when a policy rejects
//   - Releases all held permits once the request completes
//
// Example:
//
//	manager := limits.NewManager(policies, limits.ManagerConfig{})
//	handler := RateLimit(manager, collector)(next)
func RateLimit(manager *limits.Manager, collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			decision, err := manager.Check(r)
			if err != nil {
				if collector != nil {
					collector.RecordAdmission("", metrics.OutcomeError, time.Since(start))
				}
				http.Error(w, "Internal error checking limits", http.StatusInternalServerError)
				return
			}

			setLimitHeaders(w, decision)

			if !decision.Allowed {
				if collector != nil {
					collector.RecordAdmission(decision.Policy, metrics.OutcomeRejected, time.Since(start))
				}
				writeRejection(w, decision)
				return
			}

			if collector != nil {
				collector.RecordAdmission(decision.Policy, metrics.OutcomeAllowed, time.Since(start))
			}

			defer decision.Release()
			next.ServeHTTP(w, r)
		})
	}
}

// setLimitHeaders sets rate limit headers from the decision's lease. The
// lease is the rejecting one when denied, the tightest one when allowed.
func setLimitHeaders(w http.ResponseWriter, decision *limits.Decision) {
	lease := decision.Lease
	if lease == nil {
		return
	}

	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", lease.Limit()))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", lease.Remaining()))
	if reset, ok := lease.ResetAfter(); ok {
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", ceilSeconds(reset)))
	}
	if retry, ok := lease.RetryAfter(); ok {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", ceilSeconds(retry)))
	}
}

// writeRejection writes the 429 response for a denied decision.
func writeRejection(w http.ResponseWriter, decision *limits.Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprintf(w, `{"error": {"message": "Rate limit exceeded for policy %q", "type": "rate_limit_exceeded"}}`, decision.Policy)
}

// ceilSeconds converts a duration to whole seconds, rounding up so clients
// never retry early.
func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
