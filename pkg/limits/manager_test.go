package limits

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"floodgate/pkg/config"
)

func buildTestPolicies(t *testing.T, cfgs ...config.PolicyConfig) []Policy {
	t.Helper()
	policies, err := BuildPolicies(cfgs)
	if err != nil {
		t.Fatalf("BuildPolicies failed: %v", err)
	}
	return policies
}

func globalFixedWindow(name string, limit int64) config.PolicyConfig {
	return config.PolicyConfig{
		Name:        name,
		Algorithm:   config.AlgorithmFixedWindow,
		PermitLimit: limit,
		Window:      config.Duration(time.Minute),
		PartitionBy: config.PartitionByGlobal,
	}
}

func testRequest() *http.Request {
	return httptest.NewRequest(http.MethodGet, "/", nil)
}

func TestManager_NoPoliciesAllowsEverything(t *testing.T) {
	mgr := NewManager(nil, ManagerConfig{})
	defer mgr.Close()

	decision, err := mgr.Check(testRequest())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !decision.Allowed {
		t.Error("Expected allow with no policies")
	}
	if decision.Lease != nil {
		t.Error("Expected nil lease with no policies")
	}
	decision.Release()
}

func TestManager_AllowsThenRejects(t *testing.T) {
	mgr := NewManager(buildTestPolicies(t, globalFixedWindow("api", 2)), ManagerConfig{})
	defer mgr.Close()

	for i := 0; i < 2; i++ {
		decision, err := mgr.Check(testRequest())
		if err != nil {
			t.Fatalf("Check %d failed: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("Expected request %d to be allowed", i)
		}
		decision.Release()
	}

	decision, err := mgr.Check(testRequest())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision.Allowed {
		t.Fatal("Expected rejection after limit exhausted")
	}
	if decision.Policy != "api" {
		t.Errorf("Expected rejecting policy name, got %q", decision.Policy)
	}
	if decision.Lease == nil || decision.Lease.Acquired() {
		t.Error("Expected a rejected lease on the decision")
	}
	if _, ok := decision.Lease.RetryAfter(); !ok {
		t.Error("Expected retry hint on rejection")
	}
}

func TestManager_RejectionReleasesEarlierPermits(t *testing.T) {
	mgr := NewManager(buildTestPolicies(t,
		config.PolicyConfig{
			Name:        "inflight",
			Algorithm:   config.AlgorithmConcurrency,
			PermitLimit: 1,
			PartitionBy: config.PartitionByGlobal,
		},
		globalFixedWindow("api", 1),
	), ManagerConfig{})
	defer mgr.Close()

	first, err := mgr.Check(testRequest())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !first.Allowed {
		t.Fatal("Expected first request to be allowed")
	}
	first.Release()

	// Second request: the concurrency permit is granted, then the window
	// rejects. The concurrency permit must come back.
	second, err := mgr.Check(testRequest())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if second.Allowed {
		t.Fatal("Expected window rejection")
	}
	if second.Policy != "api" {
		t.Errorf("Expected window policy to reject, got %q", second.Policy)
	}

	for _, snap := range mgr.Snapshot() {
		if snap.Policy == "inflight" && snap.Stats.AvailablePermits != 1 {
			t.Errorf("Expected concurrency capacity restored, got %d available", snap.Stats.AvailablePermits)
		}
	}
}

func TestManager_DecisionCarriesTightestLease(t *testing.T) {
	mgr := NewManager(buildTestPolicies(t,
		globalFixedWindow("loose", 5),
		globalFixedWindow("tight", 2),
	), ManagerConfig{})
	defer mgr.Close()

	decision, err := mgr.Check(testRequest())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("Expected allow")
	}
	defer decision.Release()

	if decision.Policy != "tight" {
		t.Errorf("Expected headers from the tightest policy, got %q", decision.Policy)
	}
	if decision.Lease.Limit() != 2 || decision.Lease.Remaining() != 1 {
		t.Errorf("Expected limit 2 remaining 1, got %d/%d", decision.Lease.Limit(), decision.Lease.Remaining())
	}
}

func TestManager_ReleaseIsIdempotent(t *testing.T) {
	mgr := NewManager(buildTestPolicies(t, config.PolicyConfig{
		Name:        "inflight",
		Algorithm:   config.AlgorithmConcurrency,
		PermitLimit: 2,
		PartitionBy: config.PartitionByGlobal,
	}), ManagerConfig{})
	defer mgr.Close()

	decision, err := mgr.Check(testRequest())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	decision.Release()
	decision.Release()

	for _, snap := range mgr.Snapshot() {
		if snap.Stats.AvailablePermits != 2 {
			t.Errorf("Expected double release to restore capacity once, got %d available", snap.Stats.AvailablePermits)
		}
	}
}

func TestManager_PartitionsIsolateClients(t *testing.T) {
	mgr := NewManager(buildTestPolicies(t, config.PolicyConfig{
		Name:        "per-ip",
		Algorithm:   config.AlgorithmFixedWindow,
		PermitLimit: 1,
		Window:      config.Duration(time.Minute),
		PartitionBy: config.PartitionByClientIP,
	}), ManagerConfig{})
	defer mgr.Close()

	request := func(ip string) *Decision {
		req := testRequest()
		req.RemoteAddr = ip + ":40000"
		d, err := mgr.Check(req)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		return d
	}

	if d := request("10.0.0.1"); !d.Allowed {
		t.Fatal("Expected first client to be allowed")
	} else {
		d.Release()
	}
	if d := request("10.0.0.1"); d.Allowed {
		t.Error("Expected first client to be rejected on second request")
	}
	if d := request("10.0.0.2"); !d.Allowed {
		t.Error("Expected second client to have independent capacity")
	} else {
		d.Release()
	}
}

func TestManager_EmptyPartitionFallsBackToGlobal(t *testing.T) {
	policies := buildTestPolicies(t, config.PolicyConfig{
		Name:        "by-key",
		Algorithm:   config.AlgorithmFixedWindow,
		PermitLimit: 1,
		Window:      config.Duration(time.Minute),
		PartitionBy: config.PartitionByHeader,
		Header:      "X-API-Key",
	})

	mgr := NewManager(policies, ManagerConfig{})
	defer mgr.Close()

	// No header set: both anonymous requests share the global partition.
	first, err := mgr.Check(testRequest())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !first.Allowed {
		t.Fatal("Expected first anonymous request to pass")
	}
	if first.Partition != GlobalPartitionKey {
		t.Errorf("Expected global partition fallback, got %q", first.Partition)
	}
	first.Release()

	second, err := mgr.Check(testRequest())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if second.Allowed {
		t.Error("Expected anonymous requests to share one partition")
	}
}

func TestManager_SetPoliciesSwapsAtRuntime(t *testing.T) {
	mgr := NewManager(buildTestPolicies(t, globalFixedWindow("api", 1)), ManagerConfig{})
	defer mgr.Close()

	d, err := mgr.Check(testRequest())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	d.Release()

	if d, _ := mgr.Check(testRequest()); d.Allowed {
		t.Fatal("Expected old policy to reject")
	}

	mgr.SetPolicies(buildTestPolicies(t, globalFixedWindow("api-v2", 100)))

	d, err = mgr.Check(testRequest())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !d.Allowed {
		t.Error("Expected replacement policy set to take effect")
	}
	d.Release()

	if got := len(mgr.Policies()); got != 1 {
		t.Errorf("Expected 1 active policy, got %d", got)
	}
}
