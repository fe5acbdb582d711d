package akashi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// World is the central akashi coordinator: the live-entity set, the
// component registry, and every registered component store. Multiple World
// instances can coexist in one process; tests should build a fresh one
// rather than sharing state.
//
// Typical setup registers all component types once at startup:
//
//	w := akashi.NewWorld()
//	if err := akashi.RegisterComponent(w, "inventory", adapter); err != nil {
//		log.Fatal(err)
//	}
//	id, _ := w.CreateEntity(akashi.KindPlayer)
//	_ = akashi.Set(w, id, components.Inventory{})
type World struct {
	entities *EntityManager
	registry *componentRegistry
	logger   *slog.Logger
	defaults storeOptions

	gen           *SnowflakeGen
	entityAdapter EntityAdapter

	closeOnce sync.Once
	closeErr  error
}

// NewWorld creates a World. With no options it uses a randomly seeded
// snowflake generator, slog.Default(), manual flushing, and a purely
// in-memory live-entity set.
func NewWorld(opts ...Option) *World {
	w := &World{
		registry: newComponentRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.gen == nil {
		w.gen = NewRandomSnowflakeGen()
	}
	w.entities = NewEntityManager(w.gen, w.entityAdapter)
	return w
}

// LoadEntities restores the persisted live-entity set after a restart.
// It is a no-op on worlds without an entity adapter.
func (w *World) LoadEntities(ctx context.Context) error {
	return w.entities.restore(ctx)
}

func (w *World) storeDefaults() storeOptions {
	return w.defaults
}

// Entities exposes the world's EntityManager.
func (w *World) Entities() *EntityManager {
	return w.entities
}

// CreateEntity allocates a fresh entity of the given kind.
func (w *World) CreateEntity(kind EntityKind) (EntityID, error) {
	return w.entities.Create(kind)
}

// EntityExists reports whether id names a live entity.
func (w *World) EntityExists(id EntityID) bool {
	return w.entities.Exists(id)
}

// DestroyEntity removes an entity and all of its component data, resident
// and persisted, from every registered store.
//
// The entity leaves the live set immediately, so component operations on it
// fail with ErrNotFound from this point on; the storage cascade then runs
// best-effort. Stores whose backing-store delete fails are reported in a
// DestroyError so the caller can retry their cleanup. Destroying an unknown
// or already-destroyed entity reports ErrNotFound.
func (w *World) DestroyEntity(ctx context.Context, id EntityID) error {
	if !w.entities.remove(id) {
		return notFoundEntity(id)
	}

	failures := make(map[string]error)
	for _, store := range w.registry.all() {
		if err := store.dropEntity(ctx, id); err != nil {
			failures[store.componentName()] = err
		}
	}
	if err := w.entities.destroyPersist(ctx, id); err != nil {
		failures["entity"] = err
	}
	if len(failures) > 0 {
		err := &DestroyError{ID: id, Failures: failures}
		w.logger.Warn("entity destroy left persisted component data behind",
			"entity", id, "error", err)
		return err
	}
	return nil
}

// FlushAll forces write-back of pending entity-membership changes and
// every dirty component value in every registered store, joining any
// errors. Failed values stay dirty.
func (w *World) FlushAll(ctx context.Context) error {
	var errs []error
	if err := w.entities.flush(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, store := range w.registry.all() {
		if err := store.flushAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EvictIdle drops clean component values not touched within maxIdle from
// every registered store, returning how many values were evicted. Dirty
// values are never evicted.
func (w *World) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	evicted := 0
	for _, store := range w.registry.all() {
		evicted += store.evictIdle(cutoff)
	}
	return evicted
}

// Close flushes all dirty component values and stops every store's
// background flush loop. The world must not be used afterwards.
func (w *World) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		w.closeErr = w.FlushAll(ctx)
		for _, store := range w.registry.all() {
			store.close()
		}
	})
	return w.closeErr
}
