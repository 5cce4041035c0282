package ephemeral

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/privarion/privarion/internal/backend"
	"github.com/privarion/privarion/internal/perr"
)

func newTestManager(t *testing.T, capacity int) (*Manager, *backend.FakeSnapshotBackend) {
	t.Helper()
	snap := backend.NewFakeSnapshotBackend()
	cmd := backend.NewFakeCommandExecutor()
	m := NewManager(Config{
		BasePath:           t.TempDir(),
		MaxEphemeralSpaces: capacity,
		TestMode:           true,
	}, snap, cmd)
	return m, snap
}

func TestCreateSpace_BecomesActive(t *testing.T) {
	m, _ := newTestManager(t, 4)
	space, err := m.CreateSpace(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}
	if space.State != StateActive {
		t.Fatalf("expected StateActive, got %s", space.State)
	}
	if m.Spaces().Len() != 1 {
		t.Fatalf("expected 1 registered space, got %d", m.Spaces().Len())
	}
}

// TestCreateSpace_CapacityRejectionLeavesNoResidue asserts that a create
// rejected for capacity leaves no trace.
func TestCreateSpace_CapacityRejectionLeavesNoResidue(t *testing.T) {
	m, snap := newTestManager(t, 1)
	ctx := context.Background()

	if _, err := m.CreateSpace(ctx, nil, nil); err != nil {
		t.Fatalf("first CreateSpace: %v", err)
	}

	_, err := m.CreateSpace(ctx, nil, nil)
	if !perr.Is(err, perr.CodeMaxSpacesExceeded) {
		t.Fatalf("expected CodeMaxSpacesExceeded, got %v", err)
	}
	if m.Spaces().Len() != 1 {
		t.Fatalf("capacity rejection must not register a space, got len=%d", m.Spaces().Len())
	}
	_ = snap
}

func TestCreateSpace_FailureRollsBackPartialState(t *testing.T) {
	m, snap := newTestManager(t, 4)
	snap.FailOn["Mount"] = errTest
	_, err := m.CreateSpace(context.Background(), nil, nil)
	if !perr.Is(err, perr.CodeMountOperationFailed) {
		t.Fatalf("expected CodeMountOperationFailed, got %v", err)
	}
	if m.Spaces().Len() != 0 {
		t.Fatalf("failed create must unregister the space, got len=%d", m.Spaces().Len())
	}
}

func TestDestroySpace_IdempotentOnMissing(t *testing.T) {
	m, _ := newTestManager(t, 4)
	if err := m.DestroySpace(context.Background(), uuid.New()); err != nil {
		t.Fatalf("destroy on missing space should be a no-op, got %v", err)
	}
}

func TestDestroySpace_RemovesRegistration(t *testing.T) {
	m, _ := newTestManager(t, 4)
	ctx := context.Background()
	space, err := m.CreateSpace(ctx, nil, nil)
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}
	if err := m.DestroySpace(ctx, space.ID); err != nil {
		t.Fatalf("DestroySpace: %v", err)
	}
	if _, ok := m.GetInfo(space.ID); ok {
		t.Fatalf("expected space to be unregistered after destroy")
	}
}

func TestDestroySpace_AttemptsAllStepsDespiteFailure(t *testing.T) {
	m, snap := newTestManager(t, 4)
	ctx := context.Background()
	space, err := m.CreateSpace(ctx, nil, nil)
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}

	snap.FailOn["Unmount"] = errTest
	err = m.DestroySpace(ctx, space.ID)
	if err == nil {
		t.Fatalf("expected destroy to surface the unmount error")
	}
	// Despite the unmount failure, the space must still be unregistered:
	// every cleanup step is attempted regardless of earlier failures.
	if _, ok := m.GetInfo(space.ID); ok {
		t.Fatalf("expected space to be unregistered even after a partial failure")
	}
}

func TestCleanupAll_DestroysEverySpace(t *testing.T) {
	m, _ := newTestManager(t, 4)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := m.CreateSpace(ctx, nil, nil); err != nil {
			t.Fatalf("CreateSpace %d: %v", i, err)
		}
	}
	if err := m.CleanupAll(ctx); err != nil {
		t.Fatalf("CleanupAll: %v", err)
	}
	if n := m.Spaces().Len(); n != 0 {
		t.Fatalf("expected 0 spaces after CleanupAll, got %d", n)
	}
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("injected failure")
