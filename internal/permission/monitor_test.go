package permission

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// TestMonitor_GrantedCriticalServiceAlertsWithinTwoPolls asserts that, from
// an empty store, granting Camera yields a Critical "Granted" alert within
// roughly two poll intervals.
func TestMonitor_GrantedCriticalServiceAlertsWithinTwoPolls(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "store.json"))
	if err := store.ConnectRW(context.Background()); err != nil {
		t.Fatalf("ConnectRW: %v", err)
	}

	changes := make(chan PermissionChange, 8)
	mon := NewMonitor(store, 10*time.Millisecond, func(c PermissionChange) { changes <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mon.Start(ctx)

	// First poll establishes baseline (empty store, no alert expected).
	time.Sleep(25 * time.Millisecond)

	if err := store.Grant(context.Background(), "com.example.app", "Camera", AuthAllowed); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	select {
	case c := <-changes:
		if c.Type != ChangeGranted || c.Service != "Camera" {
			t.Fatalf("unexpected change: %+v", c)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timed out waiting for permission change")
	}

	alerts := mon.Alerts()
	if len(alerts) != 1 || alerts[0].Severity != AlertCritical {
		t.Fatalf("expected one Critical alert, got %+v", alerts)
	}
}

func TestMonitor_AcknowledgeUnknownIDFails(t *testing.T) {
	mon := NewMonitor(NewFileStore(filepath.Join(t.TempDir(), "store.json")), time.Second, nil)
	if mon.Acknowledge("does-not-exist") {
		t.Fatal("expected Acknowledge to fail for unknown id")
	}
}

func TestMonitor_AcknowledgeKnownIDSucceeds(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "store.json"))
	store.ConnectRW(context.Background())
	mon := NewMonitor(store, time.Hour, nil)

	mon.emit(PermissionChange{Service: "Camera", BundleID: "b", Type: ChangeGranted, At: time.Now()})
	alerts := mon.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if !mon.Acknowledge(alerts[0].ID) {
		t.Fatal("expected Acknowledge to succeed")
	}
	if !mon.Alerts()[0].Acknowledged {
		t.Fatal("expected alert to be marked acknowledged")
	}
}
