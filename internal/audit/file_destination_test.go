package audit

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileDestination_WritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	fd, err := NewFileDestination(FileDestinationConfig{Dir: dir})
	if err != nil {
		t.Fatalf("NewFileDestination: %v", err)
	}
	defer fd.Close()

	e := New(time.Now(), "ephemeral.create", "ephemeral", "create_space", SeverityInfo, OutcomeSuccess)
	if err := fd.Write(context.Background(), []Event{e}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	files, err := fd.LogFiles()
	if err != nil || len(files) != 1 {
		t.Fatalf("expected exactly one log file, got %v, err %v", files, err)
	}

	f, err := os.Open(filepath.Join(dir, files[0]))
	if err != nil {
		t.Fatalf("opening log file: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines int
	for scanner.Scan() {
		lines++
	}
	if lines != 2 { // header + one event
		t.Fatalf("expected 2 lines (header + event), got %d", lines)
	}

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected file mode 0600, got %v", info.Mode().Perm())
	}
}

func TestFileDestination_DirectoryModeIsRestricted(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "AuditLogs")
	if _, err := NewFileDestination(FileDestinationConfig{Dir: dir}); err != nil {
		t.Fatalf("NewFileDestination: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat dir: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Fatalf("expected dir mode 0700, got %v", info.Mode().Perm())
	}
}

func TestFileDestination_RotateOpensNewFile(t *testing.T) {
	dir := t.TempDir()
	fd, err := NewFileDestination(FileDestinationConfig{Dir: dir, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("NewFileDestination: %v", err)
	}
	defer fd.Close()

	e := New(time.Now(), "t", "s", "a", SeverityInfo, OutcomeSuccess)
	fd.Write(context.Background(), []Event{e})

	before, _ := fd.LogFiles()
	time.Sleep(1100 * time.Millisecond) // log file names carry second resolution
	if err := fd.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	after, _ := fd.LogFiles()
	if len(after) <= len(before) {
		t.Fatalf("expected rotate to add a new log file: before=%v after=%v", before, after)
	}
}

func TestFileDestination_SizeExceededTripsAboveThreshold(t *testing.T) {
	dir := t.TempDir()
	fd, err := NewFileDestination(FileDestinationConfig{Dir: dir, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("NewFileDestination: %v", err)
	}
	defer fd.Close()
	if fd.sizeExceeded() {
		t.Fatal("freshly opened file should not exceed the size threshold")
	}
	fd.cfg.MaxSizeMB = -1 // negative threshold: any non-empty file exceeds it
	if !fd.sizeExceeded() {
		t.Fatal("expected size check to trip with a sub-zero threshold")
	}
}

func TestFileDestination_CleanupRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	fd, err := NewFileDestination(FileDestinationConfig{Dir: dir, RetentionDays: 1})
	if err != nil {
		t.Fatalf("NewFileDestination: %v", err)
	}
	defer fd.Close()

	stalePath := filepath.Join(dir, "audit_19990101_000000.log")
	if err := os.WriteFile(stalePath, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("seeding stale file: %v", err)
	}
	old := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(stalePath, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if err := fd.cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Fatalf("expected stale log file to be removed, stat err: %v", err)
	}
}
