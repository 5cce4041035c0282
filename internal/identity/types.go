// Package identity implements identity-bearing syscall result spoofing:
// hardware identifier generation, rollback-safe capture/restore, and the
// orchestration that ties them to a HookBackend.
package identity

import "time"

// Type is one of the closed set of spoofable identity kinds.
type Type string

const (
	TypeMacAddress       Type = "MacAddress"
	TypeHostname         Type = "Hostname"
	TypeSerialNumber     Type = "SerialNumber"
	TypeDiskUUID         Type = "DiskUUID"
	TypeNetworkInterface Type = "NetworkInterface"
	TypeSystemVersion    Type = "SystemVersion"
	TypeKernelVersion    Type = "KernelVersion"
	TypeUserID           Type = "UserID"
	TypeGroupID          Type = "GroupID"
	TypeUsername         Type = "Username"
	TypeHomeDirectory    Type = "HomeDirectory"
	TypeProcessID        Type = "ProcessID"
	TypeParentProcessID  Type = "ParentProcessID"
	TypeArchitecture     Type = "Architecture"
	TypeVolumeUUID       Type = "VolumeUUID"
	TypeBootVolumeUUID   Type = "BootVolumeUUID"
)

// virtualizable identifies types applied through HookBackend's fake-data
// configuration rather than a privileged host-wide command.
var virtualizable = map[Type]bool{
	TypeHostname:      true,
	TypeSystemVersion: true,
	TypeKernelVersion: true,
	TypeUserID:        true,
	TypeGroupID:       true,
	TypeArchitecture:  true,
}

// IsVirtualizable reports whether t is applied via HookBackend fake data.
func IsVirtualizable(t Type) bool { return virtualizable[t] }

// unsupported identifies types whose spoof techniques are not implemented.
// RollbackManager has no capture for any of them either, so a Spoof call
// that lists one fails with an InvalidRollbackPoint error wrapping an
// Unsupported error before any state changes.
var unsupported = map[Type]bool{
	TypeUsername:         true,
	TypeHomeDirectory:    true,
	TypeProcessID:        true,
	TypeDiskUUID:         true,
	TypeNetworkInterface: true,
	TypeVolumeUUID:       true,
	TypeBootVolumeUUID:   true,
	TypeParentProcessID:  true,
}

// IsUnsupported reports whether t is listed in unsupported.
func IsUnsupported(t Type) bool { return unsupported[t] }

// Strategy selects how HardwareIdentifierEngine generates a new value.
type Strategy struct {
	Kind   StrategyKind `yaml:"kind"`
	Vendor string       `yaml:"vendor,omitempty"` // used by StrategyVendorBased
	Custom string       `yaml:"custom,omitempty"` // used by StrategyCustom, a partial pattern
}

// StrategyKind is the discriminant of Strategy.
type StrategyKind string

const (
	StrategyRandom      StrategyKind = "Random"
	StrategyVendorBased StrategyKind = "VendorBased"
	StrategyRealistic   StrategyKind = "Realistic"
	StrategyStealth     StrategyKind = "Stealth"
	StrategyCustom      StrategyKind = "Custom"
)

// RollbackPoint is a persisted record of captured original identity values
// sufficient to reverse a spoofing operation.
type RollbackPoint struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	Types          []Type            `json:"types"`
	OriginalValues map[Type]string   `json:"original_values"`
	Metadata       map[string]string `json:"metadata"`
}

// Valid reports the integrity invariant: id is non-empty
// and original_values is non-empty.
func (p RollbackPoint) Valid() bool {
	return p.ID != "" && len(p.OriginalValues) > 0
}

// SpoofOptions configures a spoof() call.
type SpoofOptions struct {
	Types           []Type
	ProfileName     string
	Persistent      bool
	ValidateChanges bool
}

// Profile answers per-type spoofing policy for a spoof() call.
type Profile interface {
	IsEnabled(t Type) bool
	IsCritical(t Type) bool
	StrategyFor(t Type) Strategy
}
