package permission

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(t *testing.T, maxGrants int) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(Config{
		Path:                filepath.Join(dir, "temporary_permissions.json"),
		MaxConcurrentGrants: maxGrants,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestGrant_RejectsOutOfBoundsDuration(t *testing.T) {
	m := newTestManager(t, 10)
	if _, err := m.Grant(GrantRequest{BundleID: "b", Service: "Camera", Duration: 0}); err == nil {
		t.Fatal("expected error for zero duration")
	}
	if _, err := m.Grant(GrantRequest{BundleID: "b", Service: "Camera", Duration: 25 * time.Hour}); err == nil {
		t.Fatal("expected error for duration over 24h")
	}
}

func TestGrant_DuplicateReturnsAlreadyExists(t *testing.T) {
	m := newTestManager(t, 10)
	r1, err := m.Grant(GrantRequest{BundleID: "b", Service: "Camera", Duration: time.Hour})
	if err != nil || r1.Outcome != OutcomeGranted {
		t.Fatalf("first grant: %+v, %v", r1, err)
	}
	r2, err := m.Grant(GrantRequest{BundleID: "b", Service: "Camera", Duration: time.Hour})
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}
	if r2.Outcome != OutcomeAlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", r2.Outcome)
	}
}

// TestGrant_CapacityDeniedLeavesExistingGrantsUntouched asserts that a 101st
// concurrent grant request is denied for capacity while the 100 pre-existing
// grants remain active.
func TestGrant_CapacityDeniedLeavesExistingGrantsUntouched(t *testing.T) {
	m := newTestManager(t, 100)
	for i := 0; i < 100; i++ {
		bundle := "bundle-" + string(rune('A'+i%26)) + string(rune('0'+i/26))
		if _, err := m.Grant(GrantRequest{BundleID: bundle, Service: "Camera", Duration: time.Hour}); err != nil {
			t.Fatalf("grant %d: %v", i, err)
		}
	}
	if len(m.GetActive()) != 100 {
		t.Fatalf("expected 100 active grants, got %d", len(m.GetActive()))
	}

	r, err := m.Grant(GrantRequest{BundleID: "overflow", Service: "Camera", Duration: time.Hour})
	if err != nil {
		t.Fatalf("101st grant: %v", err)
	}
	if r.Outcome != OutcomeDenied || r.Reason != "capacity" {
		t.Fatalf("expected capacity denial, got %+v", r)
	}
	if len(m.GetActive()) != 100 {
		t.Fatalf("pre-existing grants affected: now %d active", len(m.GetActive()))
	}
}

// TestSweep_ExpiresGrantsAndRecordsStats asserts that expired
// grants stop being returned by GetActive/Get, and that a sweep records one
// CleanupStats entry counting the expired grant.
func TestSweep_ExpiresGrantsAndRecordsStats(t *testing.T) {
	m := newTestManager(t, 10)
	r, err := m.Grant(GrantRequest{BundleID: "b", Service: "Camera", Duration: time.Millisecond})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok := m.Get(r.Grant.ID); ok {
		t.Fatal("expired grant should not be returned by Get")
	}

	m.sweep()
	if len(m.GetActive()) != 0 {
		t.Fatalf("expected no active grants after sweep, got %d", len(m.GetActive()))
	}
	stats := m.Stats()
	if len(stats) != 1 || stats[0].Expired != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRevoke_UnknownIDFails(t *testing.T) {
	m := newTestManager(t, 10)
	if err := m.Revoke("nope"); err == nil {
		t.Fatal("expected error revoking unknown grant")
	}
}
