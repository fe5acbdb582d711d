package akashi

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EntityAdapter persists live-entity membership across restarts. Like
// component persistence it is write-back: Create never blocks on I/O, and
// membership changes reach the backing store on flush.
//
// Worlds without an EntityAdapter keep the live set purely in memory.
type EntityAdapter interface {
	// SaveEntity records id as live.
	SaveEntity(ctx context.Context, id EntityID) error

	// DeleteEntity removes id from the persisted live set. Deleting an
	// absent entity is not an error.
	DeleteEntity(ctx context.Context, id EntityID) error

	// ListEntities returns every persisted live entity ID.
	ListEntities(ctx context.Context) ([]EntityID, error)
}

// EntityManager allocates and tracks live entities.
//
// An entity is nothing but an EntityID plus membership in the live set; all
// data lives in components. IDs are allocated monotonically and never
// reused, so a reference to a destroyed entity can never alias a newer one.
//
// Concurrency:
// All methods are safe for concurrent use.
type EntityManager struct {
	gen     *SnowflakeGen
	adapter EntityAdapter // may be nil

	mu   sync.RWMutex
	live map[EntityID]struct{}

	// dirty holds created entities not yet persisted; pendingDeletes holds
	// destroyed entities whose persisted membership record remains. Both
	// drain on flush. Unused when no adapter is configured.
	dirty          map[EntityID]struct{}
	pendingDeletes map[EntityID]struct{}
}

// NewEntityManager creates an EntityManager issuing IDs from gen. Pass a
// nil adapter for a purely in-memory live set.
func NewEntityManager(gen *SnowflakeGen, adapter EntityAdapter) *EntityManager {
	return &EntityManager{
		gen:            gen,
		adapter:        adapter,
		live:           make(map[EntityID]struct{}),
		dirty:          make(map[EntityID]struct{}),
		pendingDeletes: make(map[EntityID]struct{}),
	}
}

// Create allocates a fresh entity of the given kind and adds it to the
// live set. It never blocks on I/O; persisted membership follows on the
// next flush.
func (m *EntityManager) Create(kind EntityKind) (EntityID, error) {
	if !kind.valid() {
		return EntityID{}, fmt.Errorf("akashi: invalid entity kind %d", kind)
	}

	raw, err := m.gen.Generate()
	if err != nil {
		return EntityID{}, fmt.Errorf("akashi: allocate entity id: %w", err)
	}

	id := EntityID{Raw: raw, Kind: kind}
	m.mu.Lock()
	m.live[id] = struct{}{}
	if m.adapter != nil {
		m.dirty[id] = struct{}{}
	}
	m.mu.Unlock()
	return id, nil
}

// Exists reports whether id names a live entity.
func (m *EntityManager) Exists(id EntityID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.live[id]
	return ok
}

// Len reports how many entities are currently live.
func (m *EntityManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

// remove takes id out of the live set, reporting whether it was live.
// Destruction fans out through World.DestroyEntity, which owns the
// component-store cascade.
func (m *EntityManager) remove(id EntityID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live[id]; !ok {
		return false
	}
	delete(m.live, id)
	delete(m.dirty, id)
	return true
}

// destroyPersist removes id's persisted membership record. On failure the
// delete is queued for retry on the next flush.
func (m *EntityManager) destroyPersist(ctx context.Context, id EntityID) error {
	if m.adapter == nil {
		return nil
	}
	if err := m.adapter.DeleteEntity(ctx, id); err != nil {
		m.mu.Lock()
		m.pendingDeletes[id] = struct{}{}
		m.mu.Unlock()
		return wrapPersistence("delete", "entity", err)
	}
	return nil
}

// flush writes pending membership changes to the adapter. Failed entries
// stay queued for the next flush.
func (m *EntityManager) flush(ctx context.Context) error {
	if m.adapter == nil {
		return nil
	}

	m.mu.RLock()
	creates := make([]EntityID, 0, len(m.dirty))
	for id := range m.dirty {
		creates = append(creates, id)
	}
	m.mu.RUnlock()

	var errs []error
	for _, id := range creates {
		if err := m.adapter.SaveEntity(ctx, id); err != nil {
			errs = append(errs, wrapPersistence("save", "entity", err))
			continue
		}
		m.mu.Lock()
		if _, stillLive := m.live[id]; stillLive {
			delete(m.dirty, id)
		} else {
			// Destroyed while the save was in flight; the record just
			// written has to come back out.
			m.pendingDeletes[id] = struct{}{}
		}
		m.mu.Unlock()
	}

	// Snapshot the deletes after the saves so a delete queued by a save
	// that lost a race with destroy is retired in this same flush.
	m.mu.RLock()
	deletes := make([]EntityID, 0, len(m.pendingDeletes))
	for id := range m.pendingDeletes {
		deletes = append(deletes, id)
	}
	m.mu.RUnlock()

	for _, id := range deletes {
		if err := m.adapter.DeleteEntity(ctx, id); err != nil {
			errs = append(errs, wrapPersistence("delete", "entity", err))
			continue
		}
		m.mu.Lock()
		delete(m.pendingDeletes, id)
		m.mu.Unlock()
	}
	return errors.Join(errs...)
}

// restore merges the persisted live set into memory. Called by
// World.LoadEntities after a restart.
func (m *EntityManager) restore(ctx context.Context) error {
	if m.adapter == nil {
		return nil
	}
	ids, err := m.adapter.ListEntities(ctx)
	if err != nil {
		return wrapPersistence("scan", "entity", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if _, deleted := m.pendingDeletes[id]; deleted {
			continue
		}
		m.live[id] = struct{}{}
	}
	return nil
}
