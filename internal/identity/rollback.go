package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/privarion/privarion/internal/backend"
	"github.com/privarion/privarion/internal/perr"
)

// RollbackManager persists and restores RollbackPoints, one file per point,
// under an owner-only directory.
type RollbackManager struct {
	dir         string
	cmdExecutor backend.CommandExecutor

	mu     sync.RWMutex
	points map[string]RollbackPoint
}

// NewRollbackManager creates a RollbackManager rooted at dir, loading any
// points already persisted there.
func NewRollbackManager(dir string, cmdExecutor backend.CommandExecutor) (*RollbackManager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, perr.Wrap(perr.CodeWriteFailed, "failed to create rollback directory", dir, err)
	}
	rm := &RollbackManager{dir: dir, cmdExecutor: cmdExecutor, points: make(map[string]RollbackPoint)}
	if err := rm.load(); err != nil {
		return nil, err
	}
	return rm, nil
}

func (rm *RollbackManager) load() error {
	entries, err := os.ReadDir(rm.dir)
	if err != nil {
		return perr.Wrap(perr.CodeCorruptedData, "failed to read rollback directory", rm.dir, err)
	}
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(rm.dir, ent.Name()))
		if err != nil {
			continue
		}
		var p RollbackPoint
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		if p.Valid() {
			rm.points[p.ID] = p
		}
	}
	return nil
}

func (rm *RollbackManager) path(id string) string {
	return filepath.Join(rm.dir, id+".json")
}

func (rm *RollbackManager) persist(p RollbackPoint) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return perr.Wrap(perr.CodeWriteFailed, "failed to marshal rollback point", p.ID, err)
	}
	tmp := rm.path(p.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return perr.Wrap(perr.CodeWriteFailed, "failed to write rollback point", p.ID, err)
	}
	if err := os.Rename(tmp, rm.path(p.ID)); err != nil {
		return perr.Wrap(perr.CodeWriteFailed, "failed to finalize rollback point", p.ID, err)
	}
	return nil
}

// capture reads a type's current value through CommandExecutor. Types
// without a defined capture return an Unsupported error, which
// CreateRollbackPoint treats as fatal.
func (rm *RollbackManager) capture(ctx context.Context, t Type) (string, error) {
	switch t {
	case TypeHostname:
		res, err := rm.cmdExecutor.Exec(ctx, "hostname")
		return strings.TrimSpace(res.Stdout), err
	case TypeUserID:
		res, err := rm.cmdExecutor.Exec(ctx, "id", "-u")
		return strings.TrimSpace(res.Stdout), err
	case TypeGroupID:
		res, err := rm.cmdExecutor.Exec(ctx, "id", "-g")
		return strings.TrimSpace(res.Stdout), err
	case TypeSystemVersion:
		res, err := rm.cmdExecutor.Exec(ctx, "sw_vers", "-productVersion")
		return strings.TrimSpace(res.Stdout), err
	case TypeKernelVersion:
		res, err := rm.cmdExecutor.Exec(ctx, "uname", "-r")
		return strings.TrimSpace(res.Stdout), err
	case TypeArchitecture:
		res, err := rm.cmdExecutor.Exec(ctx, "uname", "-m")
		return strings.TrimSpace(res.Stdout), err
	case TypeMacAddress:
		res, err := rm.cmdExecutor.Exec(ctx, "ifconfig", "en0")
		return strings.TrimSpace(res.Stdout), err
	case TypeSerialNumber:
		res, err := rm.cmdExecutor.Exec(ctx, "ioreg", "-l")
		return strings.TrimSpace(res.Stdout), err
	default:
		return "", perr.WithID(perr.CodeUnsupported, "no capture operation defined for identity type", string(t))
	}
}

// restoreValue applies a previously captured value for a type. Types whose
// restore path is not supported (SIP-protected items, runtime-only values)
// are logged and skipped by the caller, not here.
func (rm *RollbackManager) restoreValue(ctx context.Context, t Type, value string) error {
	switch t {
	case TypeHostname:
		_, err := rm.cmdExecutor.ExecPrivileged(ctx, "scutil", "--set", "HostName", value)
		return err
	default:
		return perr.WithID(perr.CodeUnsupported, "no restore operation defined for identity type", string(t))
	}
}

// CreateRollbackPoint captures current values for every requested type and
// persists the resulting RollbackPoint. Capture failure is fatal.
func (rm *RollbackManager) CreateRollbackPoint(ctx context.Context, types []Type) (string, error) {
	values := make(map[Type]string, len(types))
	for _, t := range types {
		v, err := rm.capture(ctx, t)
		if err != nil {
			return "", perr.Wrap(perr.CodeInvalidRollbackPoint, "failed to capture original value", string(t), err)
		}
		values[t] = v
	}

	p := RollbackPoint{
		ID:             uuid.New().String(),
		Timestamp:      time.Now(),
		Types:          types,
		OriginalValues: values,
		Metadata:       map[string]string{},
	}
	if !p.Valid() {
		return "", perr.WithID(perr.CodeInvalidRollbackPoint, "rollback point failed integrity validation", p.ID)
	}
	if err := rm.persist(p); err != nil {
		return "", err
	}

	rm.mu.Lock()
	rm.points[p.ID] = p
	rm.mu.Unlock()
	return p.ID, nil
}

// PerformRollback restores every recorded value in the named point.
func (rm *RollbackManager) PerformRollback(ctx context.Context, id string) error {
	rm.mu.RLock()
	p, ok := rm.points[id]
	rm.mu.RUnlock()
	if !ok {
		return perr.WithID(perr.CodeRollbackPointNotFound, "rollback point not found", id)
	}

	for t, v := range p.OriginalValues {
		if err := rm.restoreValue(ctx, t, v); err != nil {
			slog.Warn("rollback restore skipped", "type", t, "error", err)
			continue
		}
	}
	return nil
}

// RestoreOriginalValues picks the most recent point whose types superset
// requested (or all types, when requested is empty) and restores the
// intersection.
func (rm *RollbackManager) RestoreOriginalValues(ctx context.Context, requested []Type) error {
	rm.mu.RLock()
	var best *RollbackPoint
	for _, p := range rm.points {
		pp := p
		if !supersetOf(pp.Types, requested) {
			continue
		}
		if best == nil || pp.Timestamp.After(best.Timestamp) {
			best = &pp
		}
	}
	rm.mu.RUnlock()

	if best == nil {
		return perr.New(perr.CodeRollbackPointNotFound, "no rollback point covers the requested types")
	}

	toRestore := requested
	if len(toRestore) == 0 {
		toRestore = best.Types
	}
	for _, t := range toRestore {
		v, ok := best.OriginalValues[t]
		if !ok {
			continue
		}
		if err := rm.restoreValue(ctx, t, v); err != nil {
			slog.Warn("rollback restore skipped", "type", t, "error", err)
			continue
		}
	}
	return nil
}

func supersetOf(set, subset []Type) bool {
	if len(subset) == 0 {
		return true
	}
	has := make(map[Type]bool, len(set))
	for _, t := range set {
		has[t] = true
	}
	for _, t := range subset {
		if !has[t] {
			return false
		}
	}
	return true
}

// Cleanup deletes every rollback point older than olderThanDays.
func (rm *RollbackManager) Cleanup(olderThanDays int) error {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	rm.mu.Lock()
	defer rm.mu.Unlock()

	var firstErr error
	for id, p := range rm.points {
		if p.Timestamp.Before(cutoff) {
			if err := os.Remove(rm.path(id)); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to remove rollback file %s: %w", id, err)
			}
			delete(rm.points, id)
		}
	}
	return firstErr
}

// Get returns a copy of a rollback point.
func (rm *RollbackManager) Get(id string) (RollbackPoint, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	p, ok := rm.points[id]
	return p, ok
}
