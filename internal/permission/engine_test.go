package permission

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestEngine(t *testing.T) (*Engine, *FileStore, *Manager) {
	t.Helper()
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "store.json"))
	if err := store.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mgr, err := NewManager(Config{
		Path:                filepath.Join(dir, "temporary_permissions.json"),
		MaxConcurrentGrants: 100,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	eng, err := NewEngine(store, mgr, EngineConfig{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng, store, mgr
}

// TestEvaluate_FrequencyLimitTripsOnSixthRequest asserts that microphone
// requests 1-5 within the window do not match the rate limit policy, and the
// 6th does: RateLimit appears among its applied actions (RateLimit does not
// decide the request by itself).
func TestEvaluate_FrequencyLimitTripsOnSixthRequest(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()
	base := time.Now()

	hasRateLimit := func(res EvaluationResult) bool {
		for _, a := range res.AppliedActions {
			if a.Kind == ActionRateLimit {
				return true
			}
		}
		return false
	}

	for i := 0; i < 5; i++ {
		req := EvaluationRequest{
			RequestID: "r", BundleID: "com.example.app", Service: "Microphone",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		res, err := eng.Evaluate(ctx, req)
		if err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
		if hasRateLimit(res) {
			t.Fatalf("request %d should not be rate limited yet: %+v", i, res.AppliedActions)
		}
	}

	res, err := eng.Evaluate(ctx, EvaluationRequest{
		RequestID: "r6", BundleID: "com.example.app", Service: "Microphone",
		Timestamp: base.Add(5 * time.Second),
	})
	if err != nil {
		t.Fatalf("evaluate 6th: %v", err)
	}
	if !hasRateLimit(res) {
		t.Fatalf("expected 6th request to trip rate limit, got %+v", res.AppliedActions)
	}
}

// TestEvaluate_PriorityResolvesHighestFirst asserts that a higher-priority policy wins.
func TestEvaluate_PriorityResolvesHighestFirst(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	eng.policies = nil
	eng.AddPolicy(PermissionPolicy{
		ID: "low-allow", Condition: PermissionPolicyCondition{Kind: CondServiceName, Pattern: "Camera"},
		Action: PolicyAction{Kind: ActionAllow}, Priority: PriorityLow, Enabled: true,
	})
	eng.AddPolicy(PermissionPolicy{
		ID: "high-deny", Condition: PermissionPolicyCondition{Kind: CondServiceName, Pattern: "Camera"},
		Action: PolicyAction{Kind: ActionDeny}, Priority: PriorityCritical, Enabled: true,
	})

	res, err := eng.Evaluate(context.Background(), EvaluationRequest{
		BundleID: "com.example.app", Service: "Camera", Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Decision.Kind != ActionDeny {
		t.Fatalf("expected higher-priority Deny to win, got %+v", res.Decision)
	}
}

// TestEvaluate_AccessibilityGrantsTemporaryAllow exercises the default
// accessibility policy's Context(...) condition, which is delegated to OPA.
func TestEvaluate_AccessibilityGrantsTemporaryAllow(t *testing.T) {
	eng, _, mgr := newTestEngine(t)
	res, err := eng.Evaluate(context.Background(), EvaluationRequest{
		BundleID: "com.example.app", Service: "Accessibility", Context: "UserInitiated", Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Decision.Kind != ActionAllowTemporary {
		t.Fatalf("expected AllowTemporary, got %+v", res.Decision)
	}
	if !mgr.HasActive("com.example.app", "Accessibility") {
		t.Fatal("expected temporary grant to be created in the manager")
	}
}

func TestEvaluate_AdmissionLimitRejectsOverflow(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	eng.maxConcurrent = 1
	eng.inFlight = make(chan struct{}, 1)
	eng.inFlight <- struct{}{}

	_, err := eng.Evaluate(context.Background(), EvaluationRequest{
		BundleID: "b", Service: "Camera", Timestamp: time.Now(),
	})
	if err == nil {
		t.Fatal("expected admission rejection")
	}
}
