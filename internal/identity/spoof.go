package identity

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/privarion/privarion/internal/backend"
	"github.com/privarion/privarion/internal/perr"
)

// Manager is the IdentitySpoofingManager: it composes hook-backend
// configuration updates under rollback protection.
type Manager struct {
	hooks       backend.HookBackend
	cmdExecutor backend.CommandExecutor
	rollback    *RollbackManager
	engine      *Engine
}

// NewManager creates an IdentitySpoofingManager.
func NewManager(hooks backend.HookBackend, cmdExecutor backend.CommandExecutor, rollback *RollbackManager, engine *Engine) *Manager {
	return &Manager{hooks: hooks, cmdExecutor: cmdExecutor, rollback: rollback, engine: engine}
}

// Spoof applies options.Types under profile guidance, capturing a rollback
// point first and rolling back atomically on failure.
func (m *Manager) Spoof(ctx context.Context, profile Profile, options SpoofOptions) (string, error) {
	res, err := m.cmdExecutor.Exec(ctx, "id", "-u")
	if err != nil || strings.TrimSpace(res.Stdout) != "0" {
		return "", perr.New(perr.CodeAdminPrivilegesRequired, "spoof requires administrator privileges")
	}

	rollbackID, err := m.rollback.CreateRollbackPoint(ctx, options.Types)
	if err != nil {
		return "", err
	}

	cfg := backend.SyscallHookConfiguration{
		Hooks:    make(map[string]bool),
		FakeData: backend.FakeData{SystemInfo: backend.SystemInfo{}},
	}

	applyErr := m.applyAll(ctx, profile, options, &cfg)
	if applyErr != nil {
		if rbErr := m.rollback.PerformRollback(ctx, rollbackID); rbErr != nil {
			return "", perr.Wrap(perr.CodeRollbackDataCorrupted, "rollback after spoof failure also failed", rollbackID, rbErr)
		}
		return "", applyErr
	}

	if err := m.hooks.UpdateConfiguration(cfg); err != nil {
		if rbErr := m.rollback.PerformRollback(ctx, rollbackID); rbErr != nil {
			return "", perr.Wrap(perr.CodeRollbackDataCorrupted, "rollback after hook update failure also failed", rollbackID, rbErr)
		}
		return "", err
	}

	if options.ValidateChanges {
		m.validateChanges(ctx, options.Types)
	}

	return rollbackID, nil
}

func (m *Manager) applyAll(ctx context.Context, profile Profile, options SpoofOptions, cfg *backend.SyscallHookConfiguration) error {
	for _, t := range options.Types {
		if !profile.IsEnabled(t) {
			continue
		}

		if IsUnsupported(t) {
			slog.Warn("identity type uses an unimplemented spoof technique", "type", t)
			continue
		}

		strategy := profile.StrategyFor(t)
		value, genErr := m.generate(t, strategy)
		if genErr != nil {
			if profile.IsCritical(t) {
				return genErr
			}
			slog.Warn("non-critical identity generation failed", "type", t, "error", genErr)
			continue
		}

		if applyErr := m.applyOne(ctx, t, value, options.Persistent, cfg); applyErr != nil {
			if profile.IsCritical(t) {
				return applyErr
			}
			slog.Warn("non-critical identity apply failed", "type", t, "error", applyErr)
		}
	}
	return nil
}

func (m *Manager) generate(t Type, s Strategy) (string, error) {
	switch t {
	case TypeMacAddress:
		return m.engine.GenerateMAC(s)
	case TypeHostname:
		return m.engine.GenerateHostname(s)
	case TypeSerialNumber:
		return m.engine.GenerateSerial(s)
	case TypeSystemVersion:
		return m.engine.GenerateSystemVersion(s)
	case TypeKernelVersion:
		return m.engine.GenerateKernelVersion(s)
	case TypeUserID:
		return m.engine.GenerateUserID(s)
	case TypeGroupID:
		return m.engine.GenerateGroupID(s)
	case TypeArchitecture:
		return m.engine.GenerateArchitecture(s)
	default:
		return "", perr.WithID(perr.CodeUnsupported, "no generator defined for identity type", string(t))
	}
}

func (m *Manager) applyOne(ctx context.Context, t Type, value string, persistent bool, cfg *backend.SyscallHookConfiguration) error {
	if IsVirtualizable(t) {
		switch t {
		case TypeHostname:
			cfg.Hooks["gethostname"] = true
			cfg.FakeData.Hostname = value
		case TypeSystemVersion:
			cfg.FakeData.SystemInfo.Version = value
		case TypeKernelVersion:
			cfg.Hooks["uname"] = true
			cfg.FakeData.SystemInfo.Release = value
		case TypeUserID:
			cfg.Hooks["getuid"] = true
			uid, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return perr.WithID(perr.CodeInvalidIdentifierFormat, "generated uid is not numeric", value)
			}
			cfg.FakeData.UserID = uint32(uid)
		case TypeGroupID:
			cfg.Hooks["getgid"] = true
			gid, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return perr.WithID(perr.CodeInvalidIdentifierFormat, "generated gid is not numeric", value)
			}
			cfg.FakeData.GroupID = uint32(gid)
		case TypeArchitecture:
			cfg.Hooks["uname"] = true
			cfg.FakeData.SystemInfo.Machine = value
		}
	}

	if persistent && (t == TypeMacAddress || t == TypeHostname) {
		return m.applyPersistent(ctx, t, value)
	}
	return nil
}

func (m *Manager) applyPersistent(ctx context.Context, t Type, value string) error {
	switch t {
	case TypeHostname:
		_, err := m.cmdExecutor.ExecPrivileged(ctx, "scutil", "--set", "HostName", value)
		return err
	case TypeMacAddress:
		_, err := m.cmdExecutor.ExecPrivileged(ctx, "ifconfig", "en0", "ether", value)
		return err
	}
	return nil
}

func (m *Manager) validateChanges(ctx context.Context, types []Type) {
	for _, t := range types {
		switch t {
		case TypeHostname:
			v, err := m.engine.CaptureHostname(ctx)
			if err != nil {
				slog.Warn("post-spoof validation failed", "type", t, "error", err)
				continue
			}
			slog.Info("post-spoof observed value", "type", t, "value", v)
		}
	}
}

// Restore re-applies the original values recorded in the most recent
// rollback point that covers the given types (all of its types when none
// are given), through RollbackManager.RestoreOriginalValues. Only Hostname
// has a restore command; the HookBackend configuration set by Spoof is not
// changed.
func (m *Manager) Restore(ctx context.Context, types []Type) error {
	return m.rollback.RestoreOriginalValues(ctx, types)
}
