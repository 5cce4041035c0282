package ephemeral

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SnapshotRegistry tracks snapshot metadata, the most recent incremental
// snapshot, and a single active schedule.
type SnapshotRegistry struct {
	mu               sync.RWMutex
	byID             map[uuid.UUID]*Metadata
	lastIncremental  *uuid.UUID
	schedule         *Schedule
	scheduleTimer    *time.Ticker
	scheduleStop     chan struct{}
}

// NewSnapshotRegistry creates an empty SnapshotRegistry.
func NewSnapshotRegistry() *SnapshotRegistry {
	return &SnapshotRegistry{byID: make(map[uuid.UUID]*Metadata)}
}

// Add stores a new metadata record, updating the last-incremental pointer
// when the strategy is Incremental.
func (r *SnapshotRegistry) Add(m Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[m.ID] = &m
	if m.Strategy == StrategyIncremental {
		id := m.ID
		r.lastIncremental = &id
	}
}

// Get returns a copy of a snapshot's metadata.
func (r *SnapshotRegistry) Get(id uuid.UUID) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return Metadata{}, false
	}
	return *m, true
}

// Remove deletes a metadata record.
func (r *SnapshotRegistry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	if r.lastIncremental != nil && *r.lastIncremental == id {
		r.lastIncremental = nil
	}
}

// LastIncremental returns the most recently recorded incremental snapshot,
// if any, to serve as the next incremental's parent.
func (r *SnapshotRegistry) LastIncremental() (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastIncremental == nil {
		return Metadata{}, false
	}
	m, ok := r.byID[*r.lastIncremental]
	if !ok {
		return Metadata{}, false
	}
	return *m, true
}

// ByStrategy returns every snapshot with the given strategy, oldest first.
func (r *SnapshotRegistry) ByStrategy(s Strategy) []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Metadata
	for _, m := range r.byID {
		if m.Strategy == s {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// SetSchedule installs the single active schedule and its timer handle.
func (r *SnapshotRegistry) SetSchedule(s *Schedule, ticker *time.Ticker, stop chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedule = s
	r.scheduleTimer = ticker
	r.scheduleStop = stop
}

// ActiveSchedule returns the currently active schedule, if any.
func (r *SnapshotRegistry) ActiveSchedule() (*Schedule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schedule, r.schedule != nil
}

// StopSchedule cancels the active schedule's timer and clears it, removing
// every Scheduled-strategy metadata record.
func (r *SnapshotRegistry) StopSchedule() {
	r.mu.Lock()
	if r.scheduleTimer != nil {
		r.scheduleTimer.Stop()
	}
	if r.scheduleStop != nil {
		close(r.scheduleStop)
	}
	r.schedule = nil
	r.scheduleTimer = nil
	r.scheduleStop = nil
	for id, m := range r.byID {
		if m.Strategy == StrategyScheduled {
			delete(r.byID, id)
		}
	}
	r.mu.Unlock()
}

// OldSnapshots returns metadata older than retentionDays without removing
// it. The caller must delete the underlying physical snapshot through
// SnapshotBackend before calling Remove, so a failed backend delete never
// leaves a snapshot with no tracking record.
func (r *SnapshotRegistry) OldSnapshots(retentionDays int) []Metadata {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var old []Metadata
	for _, m := range r.byID {
		if m.CreatedAt.Before(cutoff) {
			old = append(old, *m)
		}
	}
	return old
}

// All returns every tracked metadata record.
func (r *SnapshotRegistry) All() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.byID))
	for _, m := range r.byID {
		out = append(out, *m)
	}
	return out
}
