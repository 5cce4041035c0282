// Package launcher binds application processes to ephemeral filesystem
// spaces: spawn, env composition, timeout enforcement, and cascade cleanup
// on exit.
package launcher

import (
	"time"

	"github.com/google/uuid"
)

// Status is a process handle's lifecycle position.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusKilled    Status = "killed"
)

// LaunchConfiguration controls how a process is spawned into its space.
type LaunchConfiguration struct {
	InheritEnv              bool
	CustomEnv               map[string]string
	WorkingDir              *string
	RedirectOutput          bool
	EnableResourceMonitoring bool
	MaxExecTimeSeconds      uint32 // 0 disables the timeout
	KillOnParentExit        bool
}

// ProcessHandle identifies one launched process bound to a space.
type ProcessHandle struct {
	ID        uuid.UUID
	PID       int
	SpaceID   uuid.UUID
	AppPath   string
	LaunchedAt time.Time
	Config    LaunchConfiguration
}

// ResourceUsage reports coarse process resource consumption, populated only
// when LaunchConfiguration.EnableResourceMonitoring is set.
type ResourceUsage struct {
	UserCPUTime   time.Duration
	SystemCPUTime time.Duration
}

// ProcessResult is the terminal outcome of a launched process.
type ProcessResult struct {
	Handle        ProcessHandle
	ExitCode      int
	ExecutionTime time.Duration
	Stdout        *string
	Stderr        *string
	ResourceUsage *ResourceUsage
}
