package permission

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/privarion/privarion/internal/perr"
)

// GrantRequest is the input to TemporaryPermissionManager.Grant.
type GrantRequest struct {
	BundleID  string
	Service   string
	Duration  time.Duration
	GrantedBy string
	Reason    string
}

// GrantOutcome discriminates the result of a Grant call.
type GrantOutcome string

const (
	OutcomeGranted     GrantOutcome = "Granted"
	OutcomeAlreadyExists GrantOutcome = "AlreadyExists"
	OutcomeDenied      GrantOutcome = "Denied"
)

// GrantResult is the outcome of a Grant call.
type GrantResult struct {
	Outcome GrantOutcome
	Grant   TemporaryPermissionGrant
	Reason  string
}

// CleanupStats records one pass of the background expiry sweep.
type CleanupStats struct {
	At             time.Time
	Expired        int
	NotificationsSent int
}

// NotificationSender is invoked when a grant crosses the expiry warning
// threshold. The default is a no-op; callers typically wire this to the
// audit pipeline.
type NotificationSender func(g TemporaryPermissionGrant)

func defaultNotificationSender(TemporaryPermissionGrant) {}

// Manager is the TemporaryPermissionManager: a single-writer actor over an
// in-memory map and a JSON file.
type Manager struct {
	path                 string
	maxConcurrentGrants  int
	cleanupInterval      time.Duration
	notificationThreshold time.Duration
	notify               NotificationSender

	mu     sync.Mutex
	grants map[string]TemporaryPermissionGrant
	stats  []CleanupStats

	stopCh chan struct{}
}

// Config configures a Manager.
type Config struct {
	Path                   string
	MaxConcurrentGrants    int
	CleanupInterval        time.Duration
	NotificationThreshold  time.Duration
}

// NewManager creates a TemporaryPermissionManager, loading any grants
// already persisted at cfg.Path.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 60 * time.Second
	}
	if cfg.NotificationThreshold <= 0 {
		cfg.NotificationThreshold = 5 * time.Minute
	}
	m := &Manager{
		path:                  cfg.Path,
		maxConcurrentGrants:   cfg.MaxConcurrentGrants,
		cleanupInterval:       cfg.CleanupInterval,
		notificationThreshold: cfg.NotificationThreshold,
		notify:                defaultNotificationSender,
		grants:                make(map[string]TemporaryPermissionGrant),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// SetNotificationSender overrides the no-op expiry notification hook.
func (m *Manager) SetNotificationSender(fn NotificationSender) { m.notify = fn }

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return perr.Wrap(perr.CodeCorruptedData, "failed to read temporary grants file", m.path, err)
	}
	var rows map[string]TemporaryPermissionGrant
	if err := json.Unmarshal(data, &rows); err != nil {
		return perr.Wrap(perr.CodeCorruptedData, "failed to parse temporary grants file", m.path, err)
	}
	m.grants = rows
	return nil
}

func (m *Manager) persistLocked() error {
	data, err := json.MarshalIndent(m.grants, "", "  ")
	if err != nil {
		return perr.Wrap(perr.CodeWriteFailed, "failed to marshal temporary grants", m.path, err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return perr.Wrap(perr.CodeWriteFailed, "failed to write temporary grants", m.path, err)
	}
	return os.Rename(tmp, m.path)
}

// Grant inserts a new temporary grant, subject to duration bounds,
// uniqueness-per-(bundle,service), and capacity.
func (m *Manager) Grant(req GrantRequest) (GrantResult, error) {
	if req.Duration <= 0 || req.Duration > 24*time.Hour {
		return GrantResult{}, perr.New(perr.CodeInvalidRequest, "grant duration must be within (0, 24h]")
	}
	if req.BundleID == "" || req.Service == "" {
		return GrantResult{}, perr.New(perr.CodeInvalidRequest, "bundle_id and service are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, g := range m.grants {
		if g.BundleID == req.BundleID && g.Service == req.Service && !g.IsExpired(now) {
			return GrantResult{Outcome: OutcomeAlreadyExists, Grant: g}, nil
		}
	}

	if len(m.grants) >= m.maxConcurrentGrants {
		return GrantResult{Outcome: OutcomeDenied, Reason: "capacity"}, nil
	}

	g := TemporaryPermissionGrant{
		ID:        uuid.New().String(),
		BundleID:  req.BundleID,
		Service:   req.Service,
		GrantedAt: now,
		ExpiresAt: now.Add(req.Duration),
		GrantedBy: req.GrantedBy,
		Reason:    req.Reason,
		AutoRevoke: true,
	}
	m.grants[g.ID] = g
	if err := m.persistLocked(); err != nil {
		return GrantResult{}, err
	}
	return GrantResult{Outcome: OutcomeGranted, Grant: g}, nil
}

// Revoke removes a grant by id.
func (m *Manager) Revoke(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grants[id]; !ok {
		return perr.WithID(perr.CodeGrantNotFound, "grant not found", id)
	}
	delete(m.grants, id)
	return m.persistLocked()
}

// RevokeAll removes every grant for bundleID.
func (m *Manager) RevokeAll(bundleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, g := range m.grants {
		if g.BundleID == bundleID {
			delete(m.grants, id)
		}
	}
	return m.persistLocked()
}

// GetActive returns every non-expired grant.
func (m *Manager) GetActive() []TemporaryPermissionGrant {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []TemporaryPermissionGrant
	for _, g := range m.grants {
		if !g.IsExpired(now) {
			out = append(out, g)
		}
	}
	return out
}

// GetByBundle returns every non-expired grant for bundleID.
func (m *Manager) GetByBundle(bundleID string) []TemporaryPermissionGrant {
	var out []TemporaryPermissionGrant
	for _, g := range m.GetActive() {
		if g.BundleID == bundleID {
			out = append(out, g)
		}
	}
	return out
}

// HasActive reports whether (bundleID, service) has a non-expired grant.
func (m *Manager) HasActive(bundleID, service string) bool {
	for _, g := range m.GetActive() {
		if g.BundleID == bundleID && g.Service == service {
			return true
		}
	}
	return false
}

// Get returns a grant by id. Expired grants are not returned.
func (m *Manager) Get(id string) (TemporaryPermissionGrant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok || g.IsExpired(time.Now()) {
		return TemporaryPermissionGrant{}, false
	}
	return g, true
}

// StartCleanupLoop runs the background expiry sweep until ctx is done.
func (m *Manager) StartCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Manager) sweep() {
	m.mu.Lock()
	now := time.Now()
	stat := CleanupStats{At: now}

	for id, g := range m.grants {
		if g.IsExpired(now) {
			delete(m.grants, id)
			stat.Expired++
			continue
		}
		if g.IsExpiringSoon(now, m.notificationThreshold) && !g.NotificationSent {
			g.NotificationSent = true
			m.grants[id] = g
			stat.NotificationsSent++
			go m.notify(g)
		}
	}

	m.stats = append(m.stats, stat)
	if len(m.stats) > 100 {
		m.stats = m.stats[len(m.stats)-100:]
	}

	if err := m.persistLocked(); err != nil {
		slog.Warn("failed to persist temporary grants after cleanup sweep", "error", err)
	}
	m.mu.Unlock()
}

// Stats returns the capped history of cleanup sweeps.
func (m *Manager) Stats() []CleanupStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CleanupStats, len(m.stats))
	copy(out, m.stats)
	return out
}
