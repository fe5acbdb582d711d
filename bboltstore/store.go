// Package bboltstore provides a bbolt-backed persistence adapter for
// akashi component stores.
//
// Component values are stored as JSON, one bucket per component name, keyed
// by the entity's kind tag and raw snowflake. A single Store (one database
// file) can back any number of component adapters.
package bboltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/stmobo/akashi"
)

// Store is a bbolt-backed database file shared by component adapters.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) a bbolt database at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Adapter is a PersistenceAdapter backed by one bucket of a Store.
type Adapter[T any] struct {
	db        *bbolt.DB
	component string
	bucket    []byte
}

var _ akashi.Scanner = (*Adapter[int])(nil)

// NewAdapter creates an adapter persisting component values into the
// bucket named after the component, creating the bucket if needed.
func NewAdapter[T any](store *Store, component string) (*Adapter[T], error) {
	if store == nil || store.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(component) == "" {
		return nil, fmt.Errorf("component name is required")
	}

	bucket := []byte(component)
	err := store.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", component, err)
	}

	return &Adapter[T]{db: store.db, component: component, bucket: bucket}, nil
}

// entityKey encodes an EntityID as kind byte + big-endian raw snowflake,
// so keys sort by kind and then by allocation order.
func entityKey(id akashi.EntityID) []byte {
	key := make([]byte, 9)
	key[0] = byte(id.Kind)
	binary.BigEndian.PutUint64(key[1:], uint64(id.Raw))
	return key
}

func decodeEntityKey(key []byte) (akashi.EntityID, bool) {
	if len(key) != 9 {
		return akashi.EntityID{}, false
	}
	return akashi.EntityID{
		Raw:  akashi.Snowflake(binary.BigEndian.Uint64(key[1:])),
		Kind: akashi.EntityKind(key[0]),
	}, true
}

// Load retrieves the persisted value for an entity.
func (a *Adapter[T]) Load(ctx context.Context, id akashi.EntityID) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, akashi.NewPersistenceError(akashi.PersistenceTimeout, "load", a.component, err)
	}

	var raw []byte
	err := a.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(a.bucket).Get(entityKey(id)); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if err != nil {
		return zero, false, akashi.NewPersistenceError(akashi.PersistenceIO, "load", a.component, err)
	}
	if raw == nil {
		return zero, false, nil
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, false, akashi.NewPersistenceError(akashi.PersistenceSerialization, "load", a.component, err)
	}
	return value, true, nil
}

// Save writes the value for an entity, replacing any previous copy.
func (a *Adapter[T]) Save(ctx context.Context, id akashi.EntityID, value T) error {
	if err := ctx.Err(); err != nil {
		return akashi.NewPersistenceError(akashi.PersistenceTimeout, "save", a.component, err)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return akashi.NewPersistenceError(akashi.PersistenceSerialization, "save", a.component, err)
	}

	err = a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(a.bucket).Put(entityKey(id), raw)
	})
	if err != nil {
		return akashi.NewPersistenceError(akashi.PersistenceIO, "save", a.component, err)
	}
	return nil
}

// Delete removes the persisted value for an entity, if any.
func (a *Adapter[T]) Delete(ctx context.Context, id akashi.EntityID) error {
	if err := ctx.Err(); err != nil {
		return akashi.NewPersistenceError(akashi.PersistenceTimeout, "delete", a.component, err)
	}

	err := a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(a.bucket).Delete(entityKey(id))
	})
	if err != nil {
		return akashi.NewPersistenceError(akashi.PersistenceIO, "delete", a.component, err)
	}
	return nil
}

// ScanIDs lists every entity ID with a persisted value.
func (a *Adapter[T]) ScanIDs(ctx context.Context) ([]akashi.EntityID, error) {
	if err := ctx.Err(); err != nil {
		return nil, akashi.NewPersistenceError(akashi.PersistenceTimeout, "scan", a.component, err)
	}

	var ids []akashi.EntityID
	err := a.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(a.bucket).ForEach(func(k, _ []byte) error {
			if id, ok := decodeEntityKey(k); ok {
				ids = append(ids, id)
			}
			return nil
		})
	})
	if err != nil {
		return nil, akashi.NewPersistenceError(akashi.PersistenceIO, "scan", a.component, err)
	}
	return ids, nil
}

// entityBucket holds live-entity membership records.
var entityBucket = []byte("entities")

// EntityAdapter persists live-entity membership in the "entities" bucket
// of a Store.
type EntityAdapter struct {
	db *bbolt.DB
}

var _ akashi.EntityAdapter = (*EntityAdapter)(nil)

// NewEntityAdapter creates an EntityAdapter on the store, creating its
// bucket if needed.
func NewEntityAdapter(store *Store) (*EntityAdapter, error) {
	if store == nil || store.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	err := store.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entityBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create entity bucket: %w", err)
	}
	return &EntityAdapter{db: store.db}, nil
}

// SaveEntity records id as live.
func (a *EntityAdapter) SaveEntity(ctx context.Context, id akashi.EntityID) error {
	if err := ctx.Err(); err != nil {
		return akashi.NewPersistenceError(akashi.PersistenceTimeout, "save", "entity", err)
	}
	created := make([]byte, 8)
	binary.BigEndian.PutUint64(created, uint64(time.Now().UTC().UnixMilli()))
	err := a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(entityBucket).Put(entityKey(id), created)
	})
	if err != nil {
		return akashi.NewPersistenceError(akashi.PersistenceIO, "save", "entity", err)
	}
	return nil
}

// DeleteEntity removes id from the persisted live set.
func (a *EntityAdapter) DeleteEntity(ctx context.Context, id akashi.EntityID) error {
	if err := ctx.Err(); err != nil {
		return akashi.NewPersistenceError(akashi.PersistenceTimeout, "delete", "entity", err)
	}
	err := a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(entityBucket).Delete(entityKey(id))
	})
	if err != nil {
		return akashi.NewPersistenceError(akashi.PersistenceIO, "delete", "entity", err)
	}
	return nil
}

// ListEntities returns every persisted live entity ID.
func (a *EntityAdapter) ListEntities(ctx context.Context) ([]akashi.EntityID, error) {
	if err := ctx.Err(); err != nil {
		return nil, akashi.NewPersistenceError(akashi.PersistenceTimeout, "scan", "entity", err)
	}
	var ids []akashi.EntityID
	err := a.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(entityBucket).ForEach(func(k, _ []byte) error {
			if id, ok := decodeEntityKey(k); ok {
				ids = append(ids, id)
			}
			return nil
		})
	})
	if err != nil {
		return nil, akashi.NewPersistenceError(akashi.PersistenceIO, "scan", "entity", err)
	}
	return ids, nil
}
