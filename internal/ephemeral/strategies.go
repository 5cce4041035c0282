package ephemeral

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/privarion/privarion/internal/perr"
)

// CreatePreExecution captures a snapshot before launching app at appPath
// under pid.
func (m *Manager) CreatePreExecution(ctx context.Context, appPath string, pid int) (Metadata, error) {
	id := uuid.New()
	name := "privarion-pre-" + id.String()

	if err := m.snapshotBackend.Create(ctx, name); err != nil {
		return Metadata{}, perr.Wrap(perr.CodeSnapshotCreationFailed, "pre-execution snapshot failed", id.String(), err)
	}

	meta := Metadata{
		ID:           id,
		Strategy:     StrategyPreExecution,
		SnapshotName: name,
		CreatedAt:    time.Now(),
		AppPath:      &appPath,
		PID:          &pid,
	}
	m.snapshots.Add(meta)
	return meta, nil
}

// RestoreFromPreExecution restores the volume to a previously captured
// pre-execution snapshot, optionally killing the process it was captured
// for first.
func (m *Manager) RestoreFromPreExecution(ctx context.Context, id uuid.UUID, killProcess bool) error {
	meta, ok := m.snapshots.Get(id)
	if !ok {
		return perr.WithID(perr.CodeSnapshotNotFound, "pre-execution snapshot not found", id.String())
	}

	if killProcess && meta.PID != nil {
		if _, err := m.cmdExecutor.ExecPrivileged(ctx, "kill", "-9", strconv.Itoa(*meta.PID)); err != nil {
			slog.Warn("failed to kill recorded pid before restore", "pid", *meta.PID, "error", err)
		}
	}

	if err := m.snapshotBackend.Restore(ctx, meta.SnapshotName); err != nil {
		return perr.Wrap(perr.CodeRestoreFailed, "restore from pre-execution snapshot failed", id.String(), err)
	}

	m.snapshots.Remove(id)
	return nil
}

// CreatePostExecution records the file-level diff observed since a
// pre-execution snapshot, on a best-effort basis via host tooling.
func (m *Manager) CreatePostExecution(ctx context.Context, preID uuid.UUID, appPath string, pid int) (Metadata, error) {
	pre, ok := m.snapshots.Get(preID)
	if !ok {
		return Metadata{}, perr.WithID(perr.CodeSnapshotNotFound, "pre-execution snapshot not found", preID.String())
	}

	id := uuid.New()
	name := "privarion-post-" + id.String()
	if err := m.snapshotBackend.Create(ctx, name); err != nil {
		return Metadata{}, perr.Wrap(perr.CodeSnapshotCreationFailed, "post-execution snapshot failed", id.String(), err)
	}

	changed := m.diffChangedFiles(ctx, pre.SnapshotName, name)

	meta := Metadata{
		ID:           id,
		Strategy:     StrategyPostExecution,
		SnapshotName: name,
		CreatedAt:    time.Now(),
		Parent:       &preID,
		ChangedFiles: changed,
		TotalFiles:   uint32(len(changed)),
		AppPath:      &appPath,
		PID:          &pid,
	}
	m.snapshots.Add(meta)
	return meta, nil
}

// CreateIncremental captures a snapshot chained to the most recently
// recorded incremental snapshot, if any.
func (m *Manager) CreateIncremental(ctx context.Context, targetPath, appPath *string) (Metadata, error) {
	id := uuid.New()
	name := "privarion-incr-" + id.String()

	if err := m.snapshotBackend.Create(ctx, name); err != nil {
		return Metadata{}, perr.Wrap(perr.CodeSnapshotCreationFailed, "incremental snapshot failed", id.String(), err)
	}

	meta := Metadata{
		ID:           id,
		Strategy:     StrategyIncremental,
		SnapshotName: name,
		CreatedAt:    time.Now(),
		AppPath:      appPath,
	}

	if parent, ok := m.snapshots.LastIncremental(); ok {
		parentID := parent.ID
		meta.Parent = &parentID
		meta.ChangedFiles = m.diffChangedFiles(ctx, parent.SnapshotName, name)
		meta.TotalFiles = uint32(len(meta.ChangedFiles))
	}

	m.snapshots.Add(meta)
	return meta, nil
}

// StartScheduled begins a periodic snapshot capture on the given interval.
// After each capture it enforces schedule.MaxSnapshots (oldest evicted
// first) and sweeps snapshots older than schedule.RetentionDays.
func (m *Manager) StartScheduled(ctx context.Context, schedule Schedule) error {
	if _, active := m.snapshots.ActiveSchedule(); active {
		return perr.New(perr.CodeInvalidRequest, "a snapshot schedule is already active")
	}

	ticker := time.NewTicker(time.Duration(schedule.IntervalSeconds * float64(time.Second)))
	stop := make(chan struct{})
	m.snapshots.SetSchedule(&schedule, ticker, stop)

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.captureScheduled(ctx, schedule)
			}
		}
	}()

	return nil
}

func (m *Manager) captureScheduled(ctx context.Context, schedule Schedule) {
	id := uuid.New()
	name := "privarion-sched-" + id.String()
	if err := m.snapshotBackend.Create(ctx, name); err != nil {
		slog.Error("scheduled snapshot capture failed", "error", err)
		return
	}

	meta := Metadata{
		ID:           id,
		Strategy:     StrategyScheduled,
		SnapshotName: name,
		CreatedAt:    time.Now(),
		AppPath:      schedule.AppPath,
	}
	m.snapshots.Add(meta)

	// Enforce bounded retention: oldest evicted first. A failed backend
	// delete stops eviction for that snapshot rather than dropping its
	// tracking record out from under a still-live snapshot.
	scheduled := m.snapshots.ByStrategy(StrategyScheduled)
	for len(scheduled) > schedule.MaxSnapshots {
		oldest := scheduled[0]
		if err := m.snapshotBackend.Delete(ctx, oldest.SnapshotName); err != nil {
			slog.Warn("failed to delete evicted scheduled snapshot", "id", oldest.ID, "error", err)
			break
		}
		m.snapshots.Remove(oldest.ID)
		scheduled = scheduled[1:]
	}

	for _, old := range m.snapshots.OldSnapshots(schedule.RetentionDays) {
		if old.Strategy != StrategyScheduled {
			// OldSnapshots is strategy-agnostic but the schedule loop only
			// owns retention of its own snapshots.
			continue
		}
		if err := m.snapshotBackend.Delete(ctx, old.SnapshotName); err != nil {
			slog.Warn("failed to delete retention-swept snapshot", "id", old.ID, "error", err)
			continue
		}
		m.snapshots.Remove(old.ID)
	}
}

// StopScheduled cancels the active schedule and removes its metadata.
func (m *Manager) StopScheduled() {
	m.snapshots.StopSchedule()
}

// diffChangedFiles returns a best-effort list of files changed between two
// snapshots using host diff tooling. Failure is non-fatal: an empty diff is
// returned and a warning logged.
func (m *Manager) diffChangedFiles(ctx context.Context, fromSnapshot, toSnapshot string) []string {
	res, err := m.cmdExecutor.Exec(ctx, "diff", "-rq", "/.snapshots/"+fromSnapshot, "/.snapshots/"+toSnapshot)
	if err != nil {
		slog.Warn("changed-files diff failed, recording empty diff", "error", err)
		return nil
	}
	var files []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		files = append(files, line)
	}
	return files
}
