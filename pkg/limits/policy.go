package limits

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"floodgate/pkg/config"
	"floodgate/pkg/limits/ratelimit"
)

// GlobalPartitionKey is the fallback partition used when a policy's
// partition resolver yields an empty key. The store treats it as any other
// opaque key.
const GlobalPartitionKey = "global"

// Policy binds a name, a partition-key resolver, and a limiter factory.
// The resolver must be a pure function of the request; the factory produces
// a fresh limiter for each new partition the store encounters.
type Policy struct {
	// Name identifies the policy in the store's composite keys, metrics,
	// and rate-limit headers.
	Name string

	// Partition maps a request to its partition key. A nil resolver or an
	// empty result falls back to GlobalPartitionKey.
	Partition func(r *http.Request) string

	// NewLimiter constructs the limiter governing one partition.
	NewLimiter func(clock ratelimit.Clock) (ratelimit.Limiter, error)
}

// BuildPolicy constructs a Policy from its configuration. The configuration
// is assumed to have passed config.Validate; errors here surface validation
// gaps rather than duplicating every rule.
func BuildPolicy(cfg config.PolicyConfig) (Policy, error) {
	partition, err := partitionResolver(cfg)
	if err != nil {
		return Policy{}, err
	}

	var factory func(clock ratelimit.Clock) (ratelimit.Limiter, error)
	switch cfg.Algorithm {
	case config.AlgorithmTokenBucket:
		burst := cfg.BurstLimit
		if burst == 0 {
			burst = cfg.PermitLimit
		}
		tbCfg := ratelimit.TokenBucketConfig{PermitLimit: cfg.PermitLimit, BurstLimit: burst, Window: cfg.Window.Std()}
		factory = func(clock ratelimit.Clock) (ratelimit.Limiter, error) {
			return ratelimit.NewTokenBucket(tbCfg, clock)
		}
	case config.AlgorithmFixedWindow:
		fwCfg := ratelimit.FixedWindowConfig{PermitLimit: cfg.PermitLimit, Window: cfg.Window.Std()}
		factory = func(clock ratelimit.Clock) (ratelimit.Limiter, error) {
			return ratelimit.NewFixedWindow(fwCfg, clock)
		}
	case config.AlgorithmSlidingWindow:
		swCfg := ratelimit.SlidingWindowConfig{PermitLimit: cfg.PermitLimit, Window: cfg.Window.Std(), Segments: cfg.Segments}
		factory = func(clock ratelimit.Clock) (ratelimit.Limiter, error) {
			return ratelimit.NewSlidingWindow(swCfg, clock)
		}
	case config.AlgorithmConcurrency:
		clCfg := ratelimit.ConcurrentConfig{PermitLimit: cfg.PermitLimit}
		factory = func(ratelimit.Clock) (ratelimit.Limiter, error) {
			return ratelimit.NewConcurrentLimiter(clCfg)
		}
	default:
		return Policy{}, fmt.Errorf("policy %q: unknown algorithm %q", cfg.Name, cfg.Algorithm)
	}

	return Policy{Name: cfg.Name, Partition: partition, NewLimiter: factory}, nil
}

// BuildPolicies constructs all configured policies, failing on the first
// invalid one.
func BuildPolicies(cfgs []config.PolicyConfig) ([]Policy, error) {
	policies := make([]Policy, 0, len(cfgs))
	for _, cfg := range cfgs {
		p, err := BuildPolicy(cfg)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// partitionResolver returns the partition-key function for a policy's
// configured partition source.
func partitionResolver(cfg config.PolicyConfig) (func(r *http.Request) string, error) {
	switch cfg.PartitionBy {
	case config.PartitionByClientIP:
		return clientIP, nil
	case config.PartitionByHeader:
		header := cfg.Header
		if header == "" {
			return nil, fmt.Errorf("policy %q: partition_by header requires a header name", cfg.Name)
		}
		return func(r *http.Request) string {
			return r.Header.Get(header)
		}, nil
	case config.PartitionByPath:
		return func(r *http.Request) string {
			return r.URL.Path
		}, nil
	case config.PartitionByGlobal, "":
		return func(*http.Request) string { return GlobalPartitionKey }, nil
	default:
		return nil, fmt.Errorf("policy %q: unknown partition_by %q", cfg.Name, cfg.PartitionBy)
	}
}

// clientIP extracts the caller's IP: the first X-Forwarded-For hop when
// present, otherwise the connection's remote address without the port.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
