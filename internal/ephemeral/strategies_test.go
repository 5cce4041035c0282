package ephemeral

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/privarion/privarion/internal/perr"
)

func TestPreExecutionRestoreCycle(t *testing.T) {
	m, _ := newTestManager(t, 4)
	ctx := context.Background()
	pid := 4242

	meta, err := m.CreatePreExecution(ctx, "/Applications/Foo.app", pid)
	if err != nil {
		t.Fatalf("CreatePreExecution: %v", err)
	}
	if meta.Strategy != StrategyPreExecution {
		t.Fatalf("expected StrategyPreExecution, got %s", meta.Strategy)
	}

	if err := m.RestoreFromPreExecution(ctx, meta.ID, true); err != nil {
		t.Fatalf("RestoreFromPreExecution: %v", err)
	}
	if _, ok := m.Snapshots().Get(meta.ID); ok {
		t.Fatalf("expected metadata removed after restore")
	}
}

func TestRestoreFromPreExecution_UnknownID(t *testing.T) {
	m, _ := newTestManager(t, 4)
	err := m.RestoreFromPreExecution(context.Background(), uuid.New(), false)
	if !perr.Is(err, perr.CodeSnapshotNotFound) {
		t.Fatalf("expected CodeSnapshotNotFound, got %v", err)
	}
}

func TestCreatePostExecution_RecordsParentLink(t *testing.T) {
	m, _ := newTestManager(t, 4)
	ctx := context.Background()
	pre, err := m.CreatePreExecution(ctx, "/Applications/Foo.app", 1)
	if err != nil {
		t.Fatalf("CreatePreExecution: %v", err)
	}

	post, err := m.CreatePostExecution(ctx, pre.ID, "/Applications/Foo.app", 1)
	if err != nil {
		t.Fatalf("CreatePostExecution: %v", err)
	}
	if post.Parent == nil || *post.Parent != pre.ID {
		t.Fatalf("expected post-execution metadata to link back to pre-execution id")
	}
}

func TestCreateIncremental_ChainsToPriorIncremental(t *testing.T) {
	m, _ := newTestManager(t, 4)
	ctx := context.Background()

	first, err := m.CreateIncremental(ctx, nil, nil)
	if err != nil {
		t.Fatalf("first CreateIncremental: %v", err)
	}
	if first.Parent != nil {
		t.Fatalf("expected no parent for the first incremental snapshot")
	}

	second, err := m.CreateIncremental(ctx, nil, nil)
	if err != nil {
		t.Fatalf("second CreateIncremental: %v", err)
	}
	if second.Parent == nil || *second.Parent != first.ID {
		t.Fatalf("expected second incremental snapshot to chain to the first")
	}
}

// TestScheduledCapture_EnforcesMaxSnapshots asserts that scheduled
// retention evicts the oldest snapshot once over max_snapshots.
func TestScheduledCapture_EnforcesMaxSnapshots(t *testing.T) {
	m, _ := newTestManager(t, 4)
	ctx := context.Background()
	schedule := Schedule{IntervalSeconds: 3600, MaxSnapshots: 2, RetentionDays: 365}

	for i := 0; i < 3; i++ {
		m.captureScheduled(ctx, schedule)
	}

	scheduled := m.Snapshots().ByStrategy(StrategyScheduled)
	if len(scheduled) != 2 {
		t.Fatalf("expected max_snapshots=2 to be enforced, got %d", len(scheduled))
	}
}

func TestStartScheduled_RejectsConcurrentSchedule(t *testing.T) {
	m, _ := newTestManager(t, 4)
	schedule := Schedule{IntervalSeconds: 3600, MaxSnapshots: 5, RetentionDays: 30}
	if err := m.StartScheduled(context.Background(), schedule); err != nil {
		t.Fatalf("StartScheduled: %v", err)
	}
	defer m.StopScheduled()

	err := m.StartScheduled(context.Background(), schedule)
	if !perr.Is(err, perr.CodeInvalidRequest) {
		t.Fatalf("expected CodeInvalidRequest for a second concurrent schedule, got %v", err)
	}
}

func TestStopScheduled_RemovesScheduledMetadata(t *testing.T) {
	m, _ := newTestManager(t, 4)
	ctx := context.Background()
	schedule := Schedule{IntervalSeconds: 3600, MaxSnapshots: 10, RetentionDays: 30}

	if err := m.StartScheduled(ctx, schedule); err != nil {
		t.Fatalf("StartScheduled: %v", err)
	}
	m.captureScheduled(ctx, schedule)
	if len(m.Snapshots().ByStrategy(StrategyScheduled)) == 0 {
		t.Fatalf("expected at least one scheduled snapshot before stop")
	}

	m.StopScheduled()
	if len(m.Snapshots().ByStrategy(StrategyScheduled)) != 0 {
		t.Fatalf("expected StopScheduled to clear scheduled metadata")
	}
	if _, active := m.Snapshots().ActiveSchedule(); active {
		t.Fatalf("expected no active schedule after StopScheduled")
	}
}
