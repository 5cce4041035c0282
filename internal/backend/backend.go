// Package backend defines the pluggable host collaborators that Privarion's
// core engine drives: command execution, snapshot/mount management, and
// syscall hook configuration. Real implementations shell out to host
// utilities (tmutil, diskutil, mount_apfs); in-memory implementations back
// the test-mode paths.
package backend

import "context"

// CommandResult is the outcome of running a host command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandExecutor runs host commands without shell interpolation.
type CommandExecutor interface {
	// Exec runs an unprivileged command.
	Exec(ctx context.Context, cmd string, args ...string) (CommandResult, error)
	// ExecPrivileged runs a command that requires elevated privileges.
	ExecPrivileged(ctx context.Context, cmd string, args ...string) (CommandResult, error)
}

// SnapshotBackend creates, mounts, and restores named copy-on-write
// snapshots on a host volume.
type SnapshotBackend interface {
	Create(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
	Mount(ctx context.Context, name, mountPath string) error
	Unmount(ctx context.Context, mountPath string) error
	Restore(ctx context.Context, name string) error
}

// SyscallHookConfiguration is a hook-state update handed to a HookBackend.
// InMemoryHookBackend merges its hook flags and non-empty fake-data fields
// into the existing state rather than replacing it.
type SyscallHookConfiguration struct {
	Hooks    map[string]bool // gethostname, getuid, getgid, uname, ...
	FakeData FakeData
}

// FakeData is the set of values a HookBackend returns to hooked syscalls.
type FakeData struct {
	Hostname   string
	Username   string
	UserID     uint32
	GroupID    uint32
	SystemInfo SystemInfo
}

// SystemInfo mirrors the uname(2) fields a hook can fake.
type SystemInfo struct {
	Nodename string
	Version  string
	Release  string
	Machine  string
}

// InstallStatus describes the outcome of installing a single syscall hook.
type InstallStatus string

const (
	InstallStatusOK           InstallStatus = "installed"
	InstallStatusNotSupported InstallStatus = "not_supported"
	InstallStatusFailed       InstallStatus = "failed"
)

// HookBackend installs and configures syscall result hooks for spoofed
// identity values. Real installations require native hooking machinery;
// Privarion only depends on this interface.
type HookBackend interface {
	Initialize(ctx context.Context) error
	IsPlatformSupported() bool
	UpdateConfiguration(cfg SyscallHookConfiguration) error
	InstallConfiguredHooks(ctx context.Context) (map[string]InstallStatus, error)
	RemoveAllHooks(ctx context.Context) error
}

// SupportedHookSyscalls lists the syscalls a HookBackend can virtualize,
// for syscall monitoring.
var SupportedHookSyscalls = []string{"gethostname", "getuid", "getgid", "uname"}
