// Package ephemeral implements snapshot-backed ephemeral filesystem spaces:
// bounded-capacity, timer-cleaned mount points that back application
// launches.
package ephemeral

import (
	"time"

	"github.com/google/uuid"
)

// State is a space's position in its lifecycle state machine. Only Active
// exposes a usable mount path.
type State string

const (
	StateCreated   State = "created"
	StateMounted   State = "mounted"
	StateActive    State = "active"
	StateUnmounted State = "unmounted"
	StateDeleted   State = "deleted"
)

// Space is an ephemeral, snapshot-backed, mountable directory.
type Space struct {
	ID           uuid.UUID
	SnapshotName string
	MountPath    string
	CreatedAt    time.Time
	OwningPID    *int
	AppPath      *string
	State        State
}

// Strategy is a snapshot capture strategy.
type Strategy string

const (
	StrategyPreExecution  Strategy = "pre_execution"
	StrategyPostExecution Strategy = "post_execution"
	StrategyIncremental   Strategy = "incremental"
	StrategyScheduled     Strategy = "scheduled"
)

// Metadata describes one captured snapshot.
type Metadata struct {
	ID           uuid.UUID
	Strategy     Strategy
	SnapshotName string
	CreatedAt    time.Time
	Parent       *uuid.UUID
	ChangedFiles []string
	TotalFiles   uint32
	SizeBytes    uint64
	AppPath      *string
	PID          *int
}

// Schedule configures a recurring scheduled snapshot capture.
type Schedule struct {
	IntervalSeconds float64
	MaxSnapshots    int
	RetentionDays   int
	TargetPath      *string
	AppPath         *string
}

func snapshotNameForSpace(id uuid.UUID) string {
	return "privarion-space-" + id.String()
}
