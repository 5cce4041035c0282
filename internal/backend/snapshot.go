package backend

import (
	"context"
	"fmt"
	"log/slog"
)

// APFSSnapshotBackend implements SnapshotBackend against the host's
// tmutil/diskutil/mount_apfs tool chain.
type APFSSnapshotBackend struct {
	exec   CommandExecutor
	volume string // the volume snapshots are taken against, default "/"
}

// NewAPFSSnapshotBackend creates a SnapshotBackend bound to the given volume.
func NewAPFSSnapshotBackend(exec CommandExecutor, volume string) *APFSSnapshotBackend {
	if volume == "" {
		volume = "/"
	}
	return &APFSSnapshotBackend{exec: exec, volume: volume}
}

func (b *APFSSnapshotBackend) Create(ctx context.Context, name string) error {
	res, err := b.exec.Exec(ctx, "tmutil", "localsnapshot")
	if err != nil {
		return fmt.Errorf("tmutil localsnapshot: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("tmutil localsnapshot failed (exit %d): %s", res.ExitCode, res.Stderr)
	}
	slog.Debug("snapshot created", "name", name)
	return nil
}

func (b *APFSSnapshotBackend) Delete(ctx context.Context, name string) error {
	res, err := b.exec.ExecPrivileged(ctx, "diskutil", "apfs", "deleteSnapshot", b.volume, "-name", name)
	if err != nil {
		return fmt.Errorf("diskutil apfs deleteSnapshot: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("diskutil apfs deleteSnapshot failed (exit %d): %s", res.ExitCode, res.Stderr)
	}
	return nil
}

func (b *APFSSnapshotBackend) Mount(ctx context.Context, name, mountPath string) error {
	res, err := b.exec.ExecPrivileged(ctx, "mount_apfs", "-s", name, b.volume, mountPath)
	if err != nil {
		return fmt.Errorf("mount_apfs: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("mount_apfs failed (exit %d): %s", res.ExitCode, res.Stderr)
	}
	return nil
}

func (b *APFSSnapshotBackend) Unmount(ctx context.Context, mountPath string) error {
	res, err := b.exec.ExecPrivileged(ctx, "umount", mountPath)
	if err != nil {
		return fmt.Errorf("umount: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("umount failed (exit %d): %s", res.ExitCode, res.Stderr)
	}
	return nil
}

func (b *APFSSnapshotBackend) Restore(ctx context.Context, name string) error {
	res, err := b.exec.ExecPrivileged(ctx, "diskutil", "apfs", "restore", name, b.volume, "-force")
	if err != nil {
		return fmt.Errorf("diskutil apfs restore: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("diskutil apfs restore failed (exit %d): %s", res.ExitCode, res.Stderr)
	}
	return nil
}

// FakeSnapshotBackend is an in-memory SnapshotBackend for test-mode callers
// and unit tests; it performs no host side effects.
type FakeSnapshotBackend struct {
	created map[string]bool
	mounted map[string]string // mountPath -> name
	FailOn  map[string]error  // operation name -> injected error, e.g. "Create"
}

// NewFakeSnapshotBackend creates an empty in-memory SnapshotBackend.
func NewFakeSnapshotBackend() *FakeSnapshotBackend {
	return &FakeSnapshotBackend{
		created: make(map[string]bool),
		mounted: make(map[string]string),
		FailOn:  make(map[string]error),
	}
}

func (f *FakeSnapshotBackend) Create(_ context.Context, name string) error {
	if err := f.FailOn["Create"]; err != nil {
		return err
	}
	f.created[name] = true
	return nil
}

func (f *FakeSnapshotBackend) Delete(_ context.Context, name string) error {
	if err := f.FailOn["Delete"]; err != nil {
		return err
	}
	delete(f.created, name)
	return nil
}

func (f *FakeSnapshotBackend) Mount(_ context.Context, name, mountPath string) error {
	if err := f.FailOn["Mount"]; err != nil {
		return err
	}
	f.mounted[mountPath] = name
	return nil
}

func (f *FakeSnapshotBackend) Unmount(_ context.Context, mountPath string) error {
	if err := f.FailOn["Unmount"]; err != nil {
		return err
	}
	delete(f.mounted, mountPath)
	return nil
}

func (f *FakeSnapshotBackend) Restore(_ context.Context, name string) error {
	return f.FailOn["Restore"]
}
