package ephemeral

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/privarion/privarion/internal/perr"
)

// entry pairs a Space with its pending cleanup timer, if any.
type entry struct {
	space *Space
	timer *time.Timer
}

// SpaceRegistry is a concurrency-safe table of active ephemeral spaces and
// their cleanup timers.
type SpaceRegistry struct {
	mu       sync.RWMutex
	capacity int
	entries  map[uuid.UUID]*entry
}

// NewSpaceRegistry creates a registry bounded to the given capacity.
func NewSpaceRegistry(capacity int) *SpaceRegistry {
	return &SpaceRegistry{
		capacity: capacity,
		entries:  make(map[uuid.UUID]*entry),
	}
}

// Register adds a space to the registry, failing with MaxSpacesExceeded
// once the registry is at capacity.
func (r *SpaceRegistry) Register(space *Space) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.capacity {
		return perr.WithID(perr.CodeMaxSpacesExceeded, "ephemeral space capacity reached", space.ID.String())
	}
	r.entries[space.ID] = &entry{space: space}
	return nil
}

// SetCleanupTimer attaches (replacing any existing) cleanup timer to a
// registered space.
func (r *SpaceRegistry) SetCleanupTimer(id uuid.UUID, timer *time.Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.timer = timer
	}
}

// Unregister removes a space, cancelling any pending cleanup timer.
// Returns false if the space was not present.
func (r *SpaceRegistry) Unregister(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(r.entries, id)
	return true
}

// Get returns a copy of the space's current state.
func (r *SpaceRegistry) Get(id uuid.UUID) (Space, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Space{}, false
	}
	return *e.space, true
}

// Mutate applies fn to the registered space under the write lock.
func (r *SpaceRegistry) Mutate(id uuid.UUID, fn func(*Space)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	fn(e.space)
	return true
}

// List returns a point-in-time snapshot of every registered space.
func (r *SpaceRegistry) List() []Space {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Space, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e.space)
	}
	return out
}

// Len returns the number of registered spaces.
func (r *SpaceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
