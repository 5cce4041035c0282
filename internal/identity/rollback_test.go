package identity

import (
	"context"
	"testing"

	"github.com/privarion/privarion/internal/backend"
)

func newTestRollbackManager(t *testing.T) (*RollbackManager, *backend.FakeCommandExecutor) {
	t.Helper()
	cmd := backend.NewFakeCommandExecutor()
	cmd.Responses["hostname"] = backend.CommandResult{Stdout: "original-host\n"}
	rm, err := NewRollbackManager(t.TempDir(), cmd)
	if err != nil {
		t.Fatalf("NewRollbackManager: %v", err)
	}
	return rm, cmd
}

func TestCreateRollbackPoint_PersistsAndReloads(t *testing.T) {
	rm, cmd := newTestRollbackManager(t)
	id, err := rm.CreateRollbackPoint(context.Background(), []Type{TypeHostname})
	if err != nil {
		t.Fatalf("CreateRollbackPoint: %v", err)
	}

	p, ok := rm.Get(id)
	if !ok {
		t.Fatalf("expected rollback point %s to be retrievable", id)
	}
	if p.OriginalValues[TypeHostname] != "original-host" {
		t.Fatalf("expected captured hostname, got %q", p.OriginalValues[TypeHostname])
	}

	reloaded, err := NewRollbackManager(rm.dir, cmd)
	if err != nil {
		t.Fatalf("reload NewRollbackManager: %v", err)
	}
	if _, ok := reloaded.Get(id); !ok {
		t.Fatalf("expected rollback point to survive reload from disk")
	}
}

// TestSpoofRollbackLaw exercises the property that observable identity
// values after a rollback equal those captured at rollback creation.
func TestSpoofRollbackLaw(t *testing.T) {
	rm, cmd := newTestRollbackManager(t)
	ctx := context.Background()

	id, err := rm.CreateRollbackPoint(ctx, []Type{TypeHostname})
	if err != nil {
		t.Fatalf("CreateRollbackPoint: %v", err)
	}

	if err := rm.PerformRollback(ctx, id); err != nil {
		t.Fatalf("PerformRollback: %v", err)
	}

	var sawRestore bool
	for _, call := range cmd.Calls {
		if call == "scutil --set HostName original-host" {
			sawRestore = true
		}
	}
	if !sawRestore {
		t.Fatalf("expected rollback to restore the captured hostname, calls=%v", cmd.Calls)
	}
}

func TestRollbackPoint_InvalidWithoutValues(t *testing.T) {
	p := RollbackPoint{ID: "x"}
	if p.Valid() {
		t.Fatalf("expected a point with no original_values to be invalid")
	}
}
