package ephemeral

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/privarion/privarion/internal/backend"
	"github.com/privarion/privarion/internal/perr"
)

// Performance targets for ephemeral space lifecycle operations. Exceeding them only logs a
// warning; it never fails the operation.
const (
	snapshotCreateWarnThreshold = 100 * time.Millisecond
	snapshotDeleteWarnThreshold = 200 * time.Millisecond
	mountWarnThreshold          = 50 * time.Millisecond
)

// Manager orchestrates the ephemeral-space lifecycle: creation, strategy-
// aware snapshots, and bounded-capacity cleanup.
type Manager struct {
	basePath string
	testMode bool

	spaces    *SpaceRegistry
	snapshots *SnapshotRegistry

	snapshotBackend backend.SnapshotBackend
	cmdExecutor     backend.CommandExecutor

	cleanupMu sync.Mutex // serializes destroy_space per manager
}

// Config configures a Manager.
type Config struct {
	BasePath           string
	MaxEphemeralSpaces int
	TestMode           bool
}

// NewManager creates an EphemeralFileSystemManager.
func NewManager(cfg Config, snapBackend backend.SnapshotBackend, cmdExec backend.CommandExecutor) *Manager {
	return &Manager{
		basePath:        cfg.BasePath,
		testMode:        cfg.TestMode,
		spaces:          NewSpaceRegistry(cfg.MaxEphemeralSpaces),
		snapshots:       NewSnapshotRegistry(),
		snapshotBackend: snapBackend,
		cmdExecutor:     cmdExec,
	}
}

// CreateSpace creates a new ephemeral space bound to an optional owning pid
// and application path.
func (m *Manager) CreateSpace(ctx context.Context, pid *int, appPath *string) (Space, error) {
	id := uuid.New()
	snapshotName := snapshotNameForSpace(id)
	mountPath := filepath.Join(m.basePath, id.String())

	space := &Space{
		ID:           id,
		SnapshotName: snapshotName,
		MountPath:    mountPath,
		CreatedAt:    time.Now(),
		OwningPID:    pid,
		AppPath:      appPath,
		State:        StateCreated,
	}

	// Capacity check happens before any side effect so a rejected create
	// leaves nothing behind.
	if err := m.spaces.Register(space); err != nil {
		return Space{}, err
	}

	snapCreated := false
	mounted := false

	cleanupOnFailure := func() {
		if mounted {
			_ = m.snapshotBackend.Unmount(ctx, mountPath)
		}
		_ = os.RemoveAll(mountPath)
		if snapCreated {
			_ = m.snapshotBackend.Delete(ctx, snapshotName)
		}
		m.spaces.Unregister(id)
	}

	start := time.Now()
	if err := m.snapshotBackend.Create(ctx, snapshotName); err != nil {
		cleanupOnFailure()
		return Space{}, perr.Wrap(perr.CodeSnapshotCreationFailed, "failed to create snapshot", id.String(), err)
	}
	if d := time.Since(start); d > snapshotCreateWarnThreshold {
		slog.Warn("snapshot create exceeded target latency", "space_id", id, "duration", d)
	}
	snapCreated = true

	if err := os.MkdirAll(mountPath, 0o755); err != nil {
		cleanupOnFailure()
		return Space{}, perr.Wrap(perr.CodeMountOperationFailed, "failed to create mount directory", id.String(), err)
	}

	start = time.Now()
	if err := m.snapshotBackend.Mount(ctx, snapshotName, mountPath); err != nil {
		cleanupOnFailure()
		return Space{}, perr.Wrap(perr.CodeMountOperationFailed, "failed to mount snapshot", id.String(), err)
	}
	if d := time.Since(start); d > mountWarnThreshold {
		slog.Warn("mount exceeded target latency", "space_id", id, "duration", d)
	}
	mounted = true

	m.spaces.Mutate(id, func(s *Space) { s.State = StateActive })

	slog.Info("ephemeral space created", "space_id", id, "mount_path", mountPath)
	return *space, nil
}

// DestroySpace unmounts, removes the mount directory, and deletes the
// snapshot backing a space. It is idempotent: destroying a missing space
// logs and returns nil. Remaining cleanup steps are attempted even if an
// earlier step fails; all failures are joined into the returned error.
func (m *Manager) DestroySpace(ctx context.Context, id uuid.UUID) error {
	m.cleanupMu.Lock()
	defer m.cleanupMu.Unlock()

	space, ok := m.spaces.Get(id)
	if !ok {
		slog.Info("destroy_space on missing space is a no-op", "space_id", id)
		return nil
	}

	var errs []error

	start := time.Now()
	if err := m.snapshotBackend.Unmount(ctx, space.MountPath); err != nil {
		errs = append(errs, perr.Wrap(perr.CodeUnmountOperationFailed, "failed to unmount", id.String(), err))
	}
	_ = time.Since(start)

	if err := os.RemoveAll(space.MountPath); err != nil {
		slog.Warn("failed to remove mount directory, continuing cleanup", "space_id", id, "error", err)
	}

	start = time.Now()
	if err := m.snapshotBackend.Delete(ctx, space.SnapshotName); err != nil {
		errs = append(errs, perr.Wrap(perr.CodeSnapshotDeletionFailed, "failed to delete snapshot", id.String(), err))
	}
	if d := time.Since(start); d > snapshotDeleteWarnThreshold {
		slog.Warn("snapshot delete exceeded target latency", "space_id", id, "duration", d)
	}

	m.spaces.Unregister(id)

	if len(errs) > 0 {
		msg := errs[0].Error()
		for _, e := range errs[1:] {
			msg += "; " + e.Error()
		}
		return fmt.Errorf("destroy_space encountered errors: %s", msg)
	}
	return nil
}

// ListActive returns a read-only snapshot of all active spaces.
func (m *Manager) ListActive() []Space {
	return m.spaces.List()
}

// GetInfo returns the current state of a space, or false if it is absent.
func (m *Manager) GetInfo(id uuid.UUID) (Space, bool) {
	return m.spaces.Get(id)
}

// CleanupAll destroys every active space concurrently, returning the first
// error encountered (if any) after attempting every destruction.
func (m *Manager) CleanupAll(ctx context.Context) error {
	active := m.spaces.List()
	var wg sync.WaitGroup
	errCh := make(chan error, len(active))

	for _, s := range active {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if err := m.DestroySpace(ctx, id); err != nil {
				errCh <- err
			}
		}(s.ID)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

// ScheduleCleanup arms a one-shot timer that destroys the space when it
// fires, implementing timeout-driven cleanup.
func (m *Manager) ScheduleCleanup(ctx context.Context, id uuid.UUID, after time.Duration) {
	timer := time.AfterFunc(after, func() {
		if err := m.DestroySpace(ctx, id); err != nil {
			slog.Error("scheduled cleanup failed", "space_id", id, "error", err)
		}
	})
	m.spaces.SetCleanupTimer(id, timer)
}

// Snapshots exposes the manager's SnapshotRegistry for strategy operations.
func (m *Manager) Snapshots() *SnapshotRegistry { return m.snapshots }

// Spaces exposes the manager's SpaceRegistry.
func (m *Manager) Spaces() *SpaceRegistry { return m.spaces }
