package entities

import (
	"context"
	"sync"
	"time"

	"skyrelay/pkg/kinematic"
	"skyrelay/pkg/log"
	"skyrelay/pkg/messages"
)

const (
	// DefaultStaleTimeout is how long an entity may go without an update
	// before the sweep evicts it. This is a fallback for lost leave
	// notifications; the server's own timeout is shorter.
	DefaultStaleTimeout = 15 * time.Second
	// DefaultSweepInterval is the period of the stale sweep.
	DefaultSweepInterval = 5 * time.Second
)

// Renderer is the rendering collaborator. The registry owns entity
// membership and target transforms; the renderer owns the display proxies
// and converges them toward the targets at its own cadence. CreateProxy
// receives a nil snapshot when a participant joins before reporting state,
// in which case the renderer picks a default placement.
type Renderer interface {
	CreateProxy(id string, initial *messages.StateSnapshot)
	UpdateProxy(id string, target messages.StateSnapshot)
	RemoveProxy(id string)
}

// RemoteEntity is the local record of another participant.
type RemoteEntity struct {
	ID               string
	LastUpdate       time.Time
	TargetPosition   kinematic.Vector3
	TargetQuaternion kinematic.Quaternion
}

// Registry maintains one RemoteEntity per remote participant. It is
// mutated only from the inbound dispatch path and the periodic stale
// sweep; one mutex serializes the two. Renderer callbacks run outside
// the lock.
type Registry struct {
	mu            sync.Mutex
	entities      map[string]*RemoteEntity
	renderer      Renderer
	staleTimeout  time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

type NewRegistryOptions struct {
	Renderer Renderer
	// StaleTimeout overrides DefaultStaleTimeout when positive.
	StaleTimeout time.Duration
	// SweepInterval overrides DefaultSweepInterval when positive.
	SweepInterval time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewRegistry creates a new Registry.
func NewRegistry(opts NewRegistryOptions) *Registry {
	staleTimeout := opts.StaleTimeout
	if staleTimeout <= 0 {
		staleTimeout = DefaultStaleTimeout
	}
	sweepInterval := opts.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		entities:      make(map[string]*RemoteEntity),
		renderer:      opts.Renderer,
		staleTimeout:  staleTimeout,
		sweepInterval: sweepInterval,
		now:           now,
	}
}

// Upsert creates the entity on first sight or retargets an existing one.
// A new entity is positioned immediately at the given snapshot so it does
// not visibly travel from an arbitrary default; subsequent updates only
// move the target and leave convergence to the renderer.
func (r *Registry) Upsert(id string, snapshot *messages.StateSnapshot) {
	r.mu.Lock()
	entity, ok := r.entities[id]
	if !ok {
		entity = &RemoteEntity{
			ID:               id,
			LastUpdate:       r.now(),
			TargetQuaternion: kinematic.Identity(),
		}
		if snapshot != nil {
			entity.TargetPosition = snapshot.Position
			entity.TargetQuaternion = snapshot.Quaternion
		}
		r.entities[id] = entity
		r.mu.Unlock()
		log.Debug("created remote entity %s", id)
		r.renderer.CreateProxy(id, snapshot)
		return
	}

	entity.LastUpdate = r.now()
	if snapshot == nil {
		r.mu.Unlock()
		return
	}
	entity.TargetPosition = snapshot.Position
	entity.TargetQuaternion = snapshot.Quaternion
	target := *snapshot
	r.mu.Unlock()
	r.renderer.UpdateProxy(id, target)
}

// Remove destroys the entity's proxy and drops the entry. Removing an
// unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, ok := r.entities[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.entities, id)
	r.mu.Unlock()
	log.Debug("removed remote entity %s", id)
	r.renderer.RemoveProxy(id)
}

// Clear removes every entity. Called when the connection drops, since
// identity continuity is not guaranteed across a reconnect.
func (r *Registry) Clear() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	r.entities = make(map[string]*RemoteEntity)
	r.mu.Unlock()

	for _, id := range ids {
		r.renderer.RemoveProxy(id)
	}
	if len(ids) > 0 {
		log.Info("cleared %d remote entities", len(ids))
	}
}

// SweepStale removes every entity whose last update is older than timeout
// and returns the removed ids. This compensates for lost leave
// notifications and bounds growth from phantom entities.
func (r *Registry) SweepStale(now time.Time, timeout time.Duration) []string {
	r.mu.Lock()
	var stale []string
	for id, entity := range r.entities {
		if now.Sub(entity.LastUpdate) > timeout {
			stale = append(stale, id)
			delete(r.entities, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		log.Warn("remote entity %s went stale, removing", id)
		r.renderer.RemoveProxy(id)
	}
	return stale
}

// Start runs the periodic stale sweep until the context is cancelled.
func (r *Registry) Start(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SweepStale(r.now(), r.staleTimeout)
		}
	}
}

// Entity returns a copy of the entity for id, for renderers that pull
// target transforms.
func (r *Registry) Entity(id string) (RemoteEntity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entity, ok := r.entities[id]
	if !ok {
		return RemoteEntity{}, false
	}
	return *entity, true
}

// IDs returns the ids of all known entities.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of known entities.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entities)
}
