package akashi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// entry holds one resident component value together with its cache state.
//
// An entry present in the store map means the backing store has been
// consulted for this entity (or a value was set locally): present reports
// whether a value exists, so absent components are cached negatively and
// repeated gets don't hammer the backend.
type entry[T any] struct {
	// mu guards value, present, dirty, pendingDelete and version. It is the
	// single-writer token for the (entity, type) pair and is never held
	// across a backing-store call.
	mu            sync.Mutex
	value         T
	present       bool
	dirty         bool
	pendingDelete bool

	// version increments on every mutation; a flush only clears the dirty
	// flag when the value it wrote is still current.
	version uint64

	// flushMu is the flush-in-flight marker: it serializes flushes of this
	// entry so two concurrent flushes of the same dirty value cannot race.
	flushMu sync.Mutex

	// lastAccess is unix nanos of the last read or write, for idle eviction.
	lastAccess atomic.Int64
}

func (e *entry[T]) touch(now time.Time) {
	e.lastAccess.Store(now.UnixNano())
}

// ComponentStore is the singleton storage for one component type: an
// in-memory map from EntityID to value, write-back dirty tracking, and a
// PersistenceAdapter supplying the durable copy.
//
// Stores are created by RegisterComponent, one per registered type.
//
// Concurrency:
// All methods are safe for concurrent use. Mutations of the same entity's
// value are serialized; reads of distinct entities never contend on I/O.
type ComponentStore[T any] struct {
	name    string
	adapter PersistenceAdapter[T]
	world   *World
	logger  *slog.Logger
	opts    storeOptions

	mu      sync.RWMutex
	entries map[EntityID]*entry[T]

	// loads coalesces concurrent cold gets of the same entity into a
	// single backing-store load.
	loads singleflight.Group

	stopFlush chan struct{}
	flushDone chan struct{}
	closeOnce sync.Once
}

func newComponentStore[T any](w *World, name string, adapter PersistenceAdapter[T], opts ...StoreOption) *ComponentStore[T] {
	so := w.storeDefaults()
	for _, opt := range opts {
		opt(&so)
	}

	return &ComponentStore[T]{
		name:    name,
		adapter: adapter,
		world:   w,
		logger:  w.logger.With("component", name),
		opts:    so,
		entries: make(map[EntityID]*entry[T]),
	}
}

// start launches the background flush loop if one is configured. Called by
// RegisterComponent after the store is registered.
func (s *ComponentStore[T]) start() {
	if s.opts.flushInterval <= 0 {
		return
	}
	s.stopFlush = make(chan struct{})
	s.flushDone = make(chan struct{})
	go s.flushLoop()
}

func (s *ComponentStore[T]) componentName() string {
	return s.name
}

func (s *ComponentStore[T]) entry(id EntityID) (*entry[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// getOrCreateEntry returns the entry for id, inserting a fresh one if the
// entity has never been seen by this store.
func (s *ComponentStore[T]) getOrCreateEntry(id EntityID) *entry[T] {
	if e, ok := s.entry(id); ok {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e
	}
	e := &entry[T]{}
	e.touch(time.Now())
	s.entries[id] = e
	return e
}

// Get returns the component value for an entity, loading and caching it
// from the backing store on a miss. Unknown and destroyed entities, and
// live entities holding no value, report ErrNotFound.
func (s *ComponentStore[T]) Get(ctx context.Context, id EntityID) (T, error) {
	var zero T
	if !s.world.entities.Exists(id) {
		return zero, notFoundEntity(id)
	}

	if e, ok := s.entry(id); ok {
		return s.readEntry(e, id)
	}

	// Cold: coalesce concurrent loads of the same entity.
	v, err, _ := s.loads.Do(id.String(), func() (any, error) {
		return s.loadEntry(ctx, id)
	})
	if err != nil {
		return zero, err
	}
	return s.readEntry(v.(*entry[T]), id)
}

func (s *ComponentStore[T]) readEntry(e *entry[T], id EntityID) (T, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.present {
		var zero T
		return zero, notFoundComponent(id, s.name)
	}
	e.touch(time.Now())
	return e.value, nil
}

// loadEntry consults the backing store for id and caches the result,
// including negative results. Load failures are not cached so a later get
// can retry.
func (s *ComponentStore[T]) loadEntry(ctx context.Context, id EntityID) (*entry[T], error) {
	value, found, err := s.loadWithRetry(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A Set may have raced ahead of the load; its value wins over the
	// possibly staler persisted copy.
	if existing, ok := s.entries[id]; ok {
		return existing, nil
	}
	e := &entry[T]{value: value, present: found}
	e.touch(time.Now())
	s.entries[id] = e
	return e, nil
}

// loadWithRetry performs the adapter load with one transparent retry on
// timeout. Retry policy beyond that single attempt belongs to callers.
func (s *ComponentStore[T]) loadWithRetry(ctx context.Context, id EntityID) (T, bool, error) {
	value, found, err := s.adapterLoad(ctx, id)
	if err != nil {
		var pe *PersistenceError
		if errors.As(err, &pe) && pe.Kind == PersistenceTimeout && ctx.Err() == nil {
			s.logger.Warn("component load timed out, retrying once", "entity", id)
			value, found, err = s.adapterLoad(ctx, id)
		}
	}
	return value, found, err
}

func (s *ComponentStore[T]) adapterLoad(ctx context.Context, id EntityID) (T, bool, error) {
	if s.opts.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.loadTimeout)
		defer cancel()
	}
	value, found, err := s.adapter.Load(ctx, id)
	if err != nil {
		var zero T
		return zero, false, wrapPersistence("load", s.name, err)
	}
	return value, found, nil
}

// discardIfDead drops the entry for id when the entity was destroyed
// between the caller's liveness check and its map insert, so stale residue
// never reaches a flush. Reports whether the entity is still live.
func (s *ComponentStore[T]) discardIfDead(id EntityID) bool {
	if s.world.entities.Exists(id) {
		return true
	}
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return false
}

// Set replaces the in-memory value for an entity and marks it dirty. The
// backing store is not written synchronously; the value persists on the
// next flush.
func (s *ComponentStore[T]) Set(id EntityID, value T) error {
	if !s.world.entities.Exists(id) {
		return notFoundEntity(id)
	}

	e := s.getOrCreateEntry(id)
	e.mu.Lock()
	e.value = value
	e.present = true
	e.dirty = true
	e.pendingDelete = false
	e.version++
	e.touch(time.Now())
	e.mu.Unlock()

	// A destroy may have completed between the liveness check and the
	// insert; its cascade cannot see an entry added after it ran.
	if !s.discardIfDead(id) {
		return notFoundEntity(id)
	}
	return nil
}

// Remove drops the in-memory value for an entity and deletes the persisted
// copy. By default the backing-store delete is issued eagerly; with
// WithLazyDelete it is deferred to the flush path instead.
func (s *ComponentStore[T]) Remove(ctx context.Context, id EntityID) error {
	if !s.world.entities.Exists(id) {
		return notFoundEntity(id)
	}

	e := s.getOrCreateEntry(id)
	e.mu.Lock()
	var zero T
	e.value = zero
	e.present = false
	e.version++
	version := e.version
	if s.opts.lazyDelete {
		e.pendingDelete = true
		e.dirty = true
		e.mu.Unlock()
		s.discardIfDead(id)
		return nil
	}
	e.pendingDelete = false
	e.dirty = false
	e.mu.Unlock()

	if err := s.adapterDelete(ctx, id); err != nil {
		// Leave a dirty tombstone behind so a later flush retries the
		// delete, unless a newer write already replaced the value.
		e.mu.Lock()
		if e.version == version {
			e.pendingDelete = true
			e.dirty = true
		}
		e.mu.Unlock()
		return err
	}
	s.discardIfDead(id)
	return nil
}

// Flush forces write-back of the entity's value if dirty; flushing a clean
// value is a no-op. A failed flush leaves the dirty flag set.
func (s *ComponentStore[T]) Flush(ctx context.Context, id EntityID) error {
	e, ok := s.entry(id)
	if !ok {
		return nil
	}
	return s.flushEntry(ctx, id, e)
}

func (s *ComponentStore[T]) flushEntry(ctx context.Context, id EntityID, e *entry[T]) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	if !e.dirty {
		e.mu.Unlock()
		return nil
	}
	value := e.value
	present := e.present
	pendingDelete := e.pendingDelete
	version := e.version
	e.mu.Unlock()

	// The entry lock is released during I/O; the version check below keeps
	// a racing mutation from being marked clean.
	var err error
	switch {
	case present:
		err = s.adapterSave(ctx, id, value)
		if err == nil && !s.world.entities.Exists(id) {
			// The entity was destroyed while the save was in flight, so
			// the destroy cascade's delete may have run before the save
			// landed. Take the row back out.
			s.mu.Lock()
			delete(s.entries, id)
			s.mu.Unlock()
			err = s.adapterDelete(ctx, id)
		}
	case pendingDelete:
		err = s.adapterDelete(ctx, id)
	}
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.version == version {
		e.dirty = false
		e.pendingDelete = false
	}
	e.mu.Unlock()
	return nil
}

func (s *ComponentStore[T]) adapterSave(ctx context.Context, id EntityID, value T) error {
	if s.opts.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.loadTimeout)
		defer cancel()
	}
	return wrapPersistence("save", s.name, s.adapter.Save(ctx, id, value))
}

func (s *ComponentStore[T]) adapterDelete(ctx context.Context, id EntityID) error {
	if s.opts.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.loadTimeout)
		defer cancel()
	}
	return wrapPersistence("delete", s.name, s.adapter.Delete(ctx, id))
}

// flushAll writes back every dirty resident value, joining any errors.
func (s *ComponentStore[T]) flushAll(ctx context.Context) error {
	s.mu.RLock()
	ids := make([]EntityID, 0, len(s.entries))
	ents := make([]*entry[T], 0, len(s.entries))
	for id, e := range s.entries {
		ids = append(ids, id)
		ents = append(ents, e)
	}
	s.mu.RUnlock()

	var errs []error
	for i, e := range ents {
		if err := s.flushEntry(ctx, ids[i], e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dropEntity discards any resident value for id and deletes the persisted
// copy. Part of the entity-destruction cascade; the adapter delete runs
// even when nothing is resident, since a persisted copy may still exist.
func (s *ComponentStore[T]) dropEntity(ctx context.Context, id EntityID) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()

	return s.adapterDelete(ctx, id)
}

// Evict drops the resident value for an entity if it is clean. Dirty
// values are never evicted. Reports whether an eviction happened.
func (s *ComponentStore[T]) Evict(id EntityID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.mu.Lock()
	dirty := e.dirty
	e.mu.Unlock()
	if dirty {
		return false
	}
	delete(s.entries, id)
	return true
}

// evictIdle drops clean entries last touched before the cutoff, returning
// how many were evicted.
func (s *ComponentStore[T]) evictIdle(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.entries {
		if e.lastAccess.Load() >= cutoff.UnixNano() {
			continue
		}
		e.mu.Lock()
		dirty := e.dirty
		e.mu.Unlock()
		if dirty {
			continue
		}
		delete(s.entries, id)
		evicted++
	}
	return evicted
}

// resident returns a snapshot of every resident (id, value) pair. Used by
// the query engine's warm scan.
func (s *ComponentStore[T]) resident() ([]EntityID, []T) {
	s.mu.RLock()
	ids := make([]EntityID, 0, len(s.entries))
	ents := make([]*entry[T], 0, len(s.entries))
	for id, e := range s.entries {
		ids = append(ids, id)
		ents = append(ents, e)
	}
	s.mu.RUnlock()

	outIDs := make([]EntityID, 0, len(ids))
	outValues := make([]T, 0, len(ids))
	for i, e := range ents {
		e.mu.Lock()
		if e.present {
			outIDs = append(outIDs, ids[i])
			outValues = append(outValues, e.value)
		}
		e.mu.Unlock()
	}
	return outIDs, outValues
}

// flushLoop periodically writes back dirty values and sweeps idle clean
// entries until the store is closed.
func (s *ComponentStore[T]) flushLoop() {
	defer close(s.flushDone)

	ticker := time.NewTicker(s.opts.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopFlush:
			return
		case <-ticker.C:
			if err := s.flushAll(context.Background()); err != nil {
				s.logger.Warn("background flush failed, dirty values retained", "error", err)
			}
			if s.opts.evictAfter > 0 {
				if n := s.evictIdle(time.Now().Add(-s.opts.evictAfter)); n > 0 {
					s.logger.Debug("evicted idle component values", "count", n)
				}
			}
		}
	}
}

// close stops the background flush loop. Pending dirty values are not
// flushed here; World.Close runs a final FlushAll first.
func (s *ComponentStore[T]) close() {
	s.closeOnce.Do(func() {
		if s.stopFlush != nil {
			close(s.stopFlush)
			<-s.flushDone
		}
	})
}
