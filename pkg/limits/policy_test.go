package limits

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"floodgate/pkg/config"
	"floodgate/pkg/limits/ratelimit"
)

func TestBuildPolicy_AllAlgorithms(t *testing.T) {
	cases := []config.PolicyConfig{
		{
			Name:        "tb",
			Algorithm:   config.AlgorithmTokenBucket,
			PermitLimit: 10,
			BurstLimit:  20,
			Window:      config.Duration(time.Second),
		},
		{
			Name:        "fw",
			Algorithm:   config.AlgorithmFixedWindow,
			PermitLimit: 10,
			Window:      config.Duration(time.Second),
		},
		{
			Name:        "sw",
			Algorithm:   config.AlgorithmSlidingWindow,
			PermitLimit: 10,
			Window:      config.Duration(time.Second),
			Segments:    4,
		},
		{
			Name:        "cl",
			Algorithm:   config.AlgorithmConcurrency,
			PermitLimit: 10,
		},
	}

	for _, cfg := range cases {
		t.Run(cfg.Algorithm, func(t *testing.T) {
			policy, err := BuildPolicy(cfg)
			if err != nil {
				t.Fatalf("BuildPolicy failed: %v", err)
			}
			if policy.Name != cfg.Name {
				t.Errorf("Expected name %q, got %q", cfg.Name, policy.Name)
			}

			limiter, err := policy.NewLimiter(ratelimit.SystemClock())
			if err != nil {
				t.Fatalf("NewLimiter failed: %v", err)
			}
			defer limiter.Close()

			lease, err := limiter.AttemptAcquire(1)
			if err != nil {
				t.Fatalf("AttemptAcquire failed: %v", err)
			}
			if !lease.Acquired() {
				t.Error("Expected fresh limiter to grant a permit")
			}
			lease.Release()
		})
	}
}

func TestBuildPolicy_UnknownAlgorithm(t *testing.T) {
	_, err := BuildPolicy(config.PolicyConfig{Name: "bad", Algorithm: "leaky_cauldron", PermitLimit: 1})
	if err == nil {
		t.Error("Expected error for unknown algorithm")
	}
}

func TestBuildPolicy_TokenBucketDefaultsBurstToLimit(t *testing.T) {
	policy, err := BuildPolicy(config.PolicyConfig{
		Name:        "tb",
		Algorithm:   config.AlgorithmTokenBucket,
		PermitLimit: 3,
		Window:      config.Duration(time.Second),
	})
	if err != nil {
		t.Fatalf("BuildPolicy failed: %v", err)
	}

	limiter, err := policy.NewLimiter(ratelimit.SystemClock())
	if err != nil {
		t.Fatalf("NewLimiter failed: %v", err)
	}
	defer limiter.Close()

	// The bucket starts full at the burst ceiling.
	stats, err := limiter.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.AvailablePermits != 3 {
		t.Errorf("Expected burst to default to permit limit, got %d available", stats.AvailablePermits)
	}
}

func TestBuildPolicy_HeaderPartitionRequiresName(t *testing.T) {
	_, err := BuildPolicy(config.PolicyConfig{
		Name:        "h",
		Algorithm:   config.AlgorithmConcurrency,
		PermitLimit: 1,
		PartitionBy: config.PartitionByHeader,
	})
	if err == nil {
		t.Error("Expected error for header partition without header name")
	}
}

func TestBuildPolicy_UnknownPartitionSource(t *testing.T) {
	_, err := BuildPolicy(config.PolicyConfig{
		Name:        "p",
		Algorithm:   config.AlgorithmConcurrency,
		PermitLimit: 1,
		PartitionBy: "zodiac_sign",
	})
	if err == nil {
		t.Error("Expected error for unknown partition source")
	}
}

func TestPartitionResolvers(t *testing.T) {
	newRequest := func(configure func(*http.Request)) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/v1/widgets", nil)
		req.RemoteAddr = "192.0.2.7:51000"
		if configure != nil {
			configure(req)
		}
		return req
	}

	tests := []struct {
		name      string
		cfg       config.PolicyConfig
		configure func(*http.Request)
		want      string
	}{
		{
			name: "client ip from remote addr",
			cfg:  config.PolicyConfig{PartitionBy: config.PartitionByClientIP},
			want: "192.0.2.7",
		},
		{
			name: "client ip prefers forwarded header",
			cfg:  config.PolicyConfig{PartitionBy: config.PartitionByClientIP},
			configure: func(r *http.Request) {
				r.Header.Set("X-Forwarded-For", "203.0.113.9, 192.0.2.7")
			},
			want: "203.0.113.9",
		},
		{
			name: "header value",
			cfg:  config.PolicyConfig{PartitionBy: config.PartitionByHeader, Header: "X-API-Key"},
			configure: func(r *http.Request) {
				r.Header.Set("X-API-Key", "key-123")
			},
			want: "key-123",
		},
		{
			name: "path",
			cfg:  config.PolicyConfig{PartitionBy: config.PartitionByPath},
			want: "/v1/widgets",
		},
		{
			name: "global",
			cfg:  config.PolicyConfig{PartitionBy: config.PartitionByGlobal},
			want: GlobalPartitionKey,
		},
		{
			name: "empty defaults to global",
			cfg:  config.PolicyConfig{},
			want: GlobalPartitionKey,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resolve, err := partitionResolver(tc.cfg)
			if err != nil {
				t.Fatalf("partitionResolver failed: %v", err)
			}
			if got := resolve(newRequest(tc.configure)); got != tc.want {
				t.Errorf("Expected partition %q, got %q", tc.want, got)
			}
		})
	}
}

func TestBuildPolicies_FailsOnFirstInvalid(t *testing.T) {
	_, err := BuildPolicies([]config.PolicyConfig{
		{Name: "ok", Algorithm: config.AlgorithmConcurrency, PermitLimit: 1},
		{Name: "bad", Algorithm: "nope", PermitLimit: 1},
	})
	if err == nil {
		t.Error("Expected error for invalid policy in the set")
	}
}
