package akashi

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"
)

// componentType returns the reflect.Type key for component type T.
func componentType[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// anyStore is the type-erased capability surface every ComponentStore[T]
// satisfies. The registry dispatches cross-type operations (cascading
// deletes, flushes, eviction sweeps) through it without reflection.
type anyStore interface {
	componentName() string

	// dropEntity removes any resident value for id and deletes the
	// persisted copy. Used by entity destruction.
	dropEntity(ctx context.Context, id EntityID) error

	// flushAll writes back every dirty resident value.
	flushAll(ctx context.Context) error

	// evictIdle drops clean resident values not touched since the cutoff.
	evictIdle(cutoff time.Time) int

	// close stops the store's background flush loop, if running.
	close()
}

// componentRegistry is the directory of all registered component stores,
// keyed by component type. Registration happens once at startup; lookups
// are the hot path and take only a read lock.
type componentRegistry struct {
	mu     sync.RWMutex
	stores map[reflect.Type]anyStore
	names  map[string]reflect.Type
}

func newComponentRegistry() *componentRegistry {
	return &componentRegistry{
		stores: make(map[reflect.Type]anyStore),
		names:  make(map[string]reflect.Type),
	}
}

func (r *componentRegistry) register(t reflect.Type, name string, store anyStore) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stores[t]; ok {
		return &ConfigurationError{Component: t.String(), Reason: "component type registered twice"}
	}
	if prev, ok := r.names[name]; ok {
		return &ConfigurationError{
			Component: name,
			Reason:    "component name already registered for type " + prev.String(),
		}
	}

	r.stores[t] = store
	r.names[name] = t
	return nil
}

func (r *componentRegistry) lookup(t reflect.Type) (anyStore, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[t]
	return s, ok
}

// all returns a snapshot of every registered store.
func (r *componentRegistry) all() []anyStore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stores := make([]anyStore, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	return stores
}

// RegisterComponent registers component type T under a stable name along
// with the adapter persisting it, creating the singleton ComponentStore for
// the type. The name namespaces the component's persisted data and appears
// in logs and errors.
//
// Registration is startup-only: registering the same type or name twice
// returns a ConfigurationError, which callers should treat as fatal.
func RegisterComponent[T any](w *World, name string, adapter PersistenceAdapter[T], opts ...StoreOption) error {
	if name == "" {
		return &ConfigurationError{Component: componentType[T]().String(), Reason: "component name is required"}
	}
	if adapter == nil {
		return &ConfigurationError{Component: name, Reason: "persistence adapter is required"}
	}

	store := newComponentStore(w, name, adapter, opts...)
	if err := w.registry.register(componentType[T](), name, store); err != nil {
		return err
	}
	store.start()
	return nil
}

// storeFor fetches the registered singleton store for T. Requesting an
// unregistered type is a configuration error.
func storeFor[T any](w *World) (*ComponentStore[T], error) {
	s, ok := w.registry.lookup(componentType[T]())
	if !ok {
		return nil, &ConfigurationError{
			Component: componentType[T]().String(),
			Reason:    "component type not registered",
		}
	}
	return s.(*ComponentStore[T]), nil
}

// Get retrieves the component of type T attached to an entity. The cached
// value is returned when resident; otherwise the value is loaded from the
// backing store and cached.
//
// Concurrency:
// Safe for concurrent use. Concurrent gets of the same cold component
// coalesce into a single backing-store load.
func Get[T any](ctx context.Context, w *World, id EntityID) (T, error) {
	store, err := storeFor[T](w)
	if err != nil {
		var zero T
		return zero, err
	}
	return store.Get(ctx, id)
}

// Set attaches a component of type T to an entity, replacing any previous
// value. The write is held in memory and marked dirty; persistence happens
// on the next flush (write-back).
//
// Concurrency:
// Safe for concurrent use. Writes to the same (entity, type) pair are
// applied in the order their lock was granted.
func Set[T any](w *World, id EntityID, value T) error {
	store, err := storeFor[T](w)
	if err != nil {
		return err
	}
	return store.Set(id, value)
}

// Remove detaches the component of type T from an entity, dropping the
// resident value and deleting the persisted copy. Removing a component the
// entity doesn't hold is not an error.
func Remove[T any](ctx context.Context, w *World, id EntityID) error {
	store, err := storeFor[T](w)
	if err != nil {
		return err
	}
	return store.Remove(ctx, id)
}

// Has reports whether an entity currently holds a component of type T,
// resident or persisted.
func Has[T any](ctx context.Context, w *World, id EntityID) (bool, error) {
	store, err := storeFor[T](w)
	if err != nil {
		return false, err
	}
	_, err = store.Get(ctx, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Flush forces write-back of the entity's component of type T if dirty.
// Flushing a clean value is a no-op. A failed flush leaves the dirty flag
// set so the write is retried later.
func Flush[T any](ctx context.Context, w *World, id EntityID) error {
	store, err := storeFor[T](w)
	if err != nil {
		return err
	}
	return store.Flush(ctx, id)
}
