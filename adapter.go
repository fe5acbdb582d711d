package akashi

import (
	"context"
	"sync"
)

// PersistenceAdapter bridges one component type with an external backing
// store (file, database, remote cache). The core consumes exactly these
// three operations; no file format or wire protocol is mandated.
//
// Adapters must not retry internally: retry policy lives in the component
// store. Each call either succeeds or surfaces an error, and any call may
// honor cancellation through ctx.
type PersistenceAdapter[T any] interface {
	// Load retrieves the persisted value for an entity. The second return
	// reports whether a value exists; an absent value is not an error.
	Load(ctx context.Context, id EntityID) (T, bool, error)

	// Save writes the value for an entity, replacing any previous copy.
	Save(ctx context.Context, id EntityID, value T) error

	// Delete removes the persisted value for an entity, if any. Deleting
	// an absent value is not an error.
	Delete(ctx context.Context, id EntityID) error
}

// Scanner is an optional adapter capability: enumerating the IDs of every
// entity with a persisted value. Query fallback over cold entities requires
// it; adapters that cannot enumerate their keys simply don't implement it,
// and queries against them surface ErrUnsupported.
type Scanner interface {
	ScanIDs(ctx context.Context) ([]EntityID, error)
}

// MemoryAdapter is an in-memory PersistenceAdapter for testing and
// prototyping. It has no provisions for writing data to a durable medium.
//
// Concurrency:
// All methods are safe for concurrent use.
type MemoryAdapter[T any] struct {
	mu     sync.RWMutex
	values map[EntityID]T
}

// NewMemoryAdapter creates an empty MemoryAdapter.
func NewMemoryAdapter[T any]() *MemoryAdapter[T] {
	return &MemoryAdapter[T]{values: make(map[EntityID]T)}
}

var _ PersistenceAdapter[int] = (*MemoryAdapter[int])(nil)
var _ Scanner = (*MemoryAdapter[int])(nil)

// Load retrieves the stored value for an entity.
func (m *MemoryAdapter[T]) Load(ctx context.Context, id EntityID) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[id]
	if !ok {
		return zero, false, nil
	}
	return v, true, nil
}

// Save stores the value for an entity.
func (m *MemoryAdapter[T]) Save(ctx context.Context, id EntityID, value T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[id] = value
	return nil
}

// Delete removes the stored value for an entity.
func (m *MemoryAdapter[T]) Delete(ctx context.Context, id EntityID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, id)
	return nil
}

// ScanIDs lists every entity ID with a stored value, in no defined order.
func (m *MemoryAdapter[T]) ScanIDs(ctx context.Context) ([]EntityID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]EntityID, 0, len(m.values))
	for id := range m.values {
		ids = append(ids, id)
	}
	return ids, nil
}

// Len reports how many values are currently stored.
func (m *MemoryAdapter[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// MemoryEntityAdapter is an in-memory EntityAdapter for testing and
// prototyping.
type MemoryEntityAdapter struct {
	mu  sync.RWMutex
	ids map[EntityID]struct{}
}

// NewMemoryEntityAdapter creates an empty MemoryEntityAdapter.
func NewMemoryEntityAdapter() *MemoryEntityAdapter {
	return &MemoryEntityAdapter{ids: make(map[EntityID]struct{})}
}

var _ EntityAdapter = (*MemoryEntityAdapter)(nil)

// SaveEntity records id as live.
func (m *MemoryEntityAdapter) SaveEntity(ctx context.Context, id EntityID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id] = struct{}{}
	return nil
}

// DeleteEntity removes id from the stored live set.
func (m *MemoryEntityAdapter) DeleteEntity(ctx context.Context, id EntityID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ids, id)
	return nil
}

// ListEntities returns every stored live entity ID.
func (m *MemoryEntityAdapter) ListEntities(ctx context.Context) ([]EntityID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]EntityID, 0, len(m.ids))
	for id := range m.ids {
		ids = append(ids, id)
	}
	return ids, nil
}
