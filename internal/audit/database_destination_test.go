package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func TestDatabaseDestination_WritesAndCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	dest, err := NewDatabaseDestination(path)
	if err != nil {
		t.Fatalf("NewDatabaseDestination: %v", err)
	}
	defer dest.Close()

	events := []Event{
		New(time.Now(), "identity.spoof", "identity", "spoof_hostname", SeverityNotice, OutcomeSuccess),
		New(time.Now(), "permission.evaluate", "permission", "evaluate", SeverityWarning, OutcomeDenied),
	}
	if err := dest.Write(context.Background(), events); err != nil {
		t.Fatalf("Write: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("opening db for verification: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&count); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows, got %d", count)
	}
}
