// Package sqlitestore provides a SQLite-backed persistence adapter for
// akashi component stores, using the pure-Go modernc.org/sqlite driver.
//
// Component values are stored as JSON, one table per component name, keyed
// by the entity's kind tag and raw snowflake. A single Store (one database
// file) can back any number of component adapters.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stmobo/akashi"
)

// Store is a SQLite database shared by component adapters.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) a SQLite database at the provided path.
// Pass ":memory:" for an in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// componentNameRe restricts component names used as table identifiers.
var componentNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Adapter is a PersistenceAdapter backed by one table of a Store.
type Adapter[T any] struct {
	sqlDB     *sql.DB
	component string
	table     string
}

var _ akashi.Scanner = (*Adapter[int])(nil)

// NewAdapter creates an adapter persisting component values into the table
// component_<name>, creating the table if needed. The component name must
// match [A-Za-z][A-Za-z0-9_]* since it becomes a SQL identifier.
func NewAdapter[T any](store *Store, component string) (*Adapter[T], error) {
	if store == nil || store.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if !componentNameRe.MatchString(component) {
		return nil, fmt.Errorf("invalid component name %q", component)
	}

	table := "component_" + component
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		entity_kind INTEGER NOT NULL,
		entity_raw  INTEGER NOT NULL,
		value       TEXT NOT NULL,
		updated_at  INTEGER NOT NULL,
		PRIMARY KEY (entity_kind, entity_raw)
	)`, table)
	if _, err := store.sqlDB.Exec(ddl); err != nil {
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}

	return &Adapter[T]{sqlDB: store.sqlDB, component: component, table: table}, nil
}

// Load retrieves the persisted value for an entity.
func (a *Adapter[T]) Load(ctx context.Context, id akashi.EntityID) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, akashi.NewPersistenceError(akashi.PersistenceTimeout, "load", a.component, err)
	}

	query := fmt.Sprintf("SELECT value FROM %s WHERE entity_kind = ? AND entity_raw = ?", a.table)
	var raw string
	err := a.sqlDB.QueryRowContext(ctx, query, int64(id.Kind), int64(id.Raw)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, akashi.NewPersistenceError(akashi.PersistenceIO, "load", a.component, err)
	}

	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
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

	query := fmt.Sprintf(`INSERT INTO %s (entity_kind, entity_raw, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (entity_kind, entity_raw) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`, a.table)
	_, err = a.sqlDB.ExecContext(ctx, query,
		int64(id.Kind), int64(id.Raw), string(raw), time.Now().UTC().UnixMilli())
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

	query := fmt.Sprintf("DELETE FROM %s WHERE entity_kind = ? AND entity_raw = ?", a.table)
	if _, err := a.sqlDB.ExecContext(ctx, query, int64(id.Kind), int64(id.Raw)); err != nil {
		return akashi.NewPersistenceError(akashi.PersistenceIO, "delete", a.component, err)
	}
	return nil
}

// ScanIDs lists every entity ID with a persisted value.
func (a *Adapter[T]) ScanIDs(ctx context.Context) ([]akashi.EntityID, error) {
	if err := ctx.Err(); err != nil {
		return nil, akashi.NewPersistenceError(akashi.PersistenceTimeout, "scan", a.component, err)
	}

	query := fmt.Sprintf("SELECT entity_kind, entity_raw FROM %s", a.table)
	rows, err := a.sqlDB.QueryContext(ctx, query)
	if err != nil {
		return nil, akashi.NewPersistenceError(akashi.PersistenceIO, "scan", a.component, err)
	}
	defer rows.Close()

	var ids []akashi.EntityID
	for rows.Next() {
		var kind, raw int64
		if err := rows.Scan(&kind, &raw); err != nil {
			return nil, akashi.NewPersistenceError(akashi.PersistenceIO, "scan", a.component, err)
		}
		ids = append(ids, akashi.EntityID{
			Raw:  akashi.Snowflake(raw),
			Kind: akashi.EntityKind(kind),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, akashi.NewPersistenceError(akashi.PersistenceIO, "scan", a.component, err)
	}
	return ids, nil
}

// EntityAdapter persists live-entity membership in the "entities" table
// of a Store.
type EntityAdapter struct {
	sqlDB *sql.DB
}

var _ akashi.EntityAdapter = (*EntityAdapter)(nil)

// NewEntityAdapter creates an EntityAdapter on the store, creating its
// table if needed.
func NewEntityAdapter(store *Store) (*EntityAdapter, error) {
	if store == nil || store.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	ddl := `CREATE TABLE IF NOT EXISTS entities (
		entity_kind INTEGER NOT NULL,
		entity_raw  INTEGER NOT NULL,
		created_at  INTEGER NOT NULL,
		PRIMARY KEY (entity_kind, entity_raw)
	)`
	if _, err := store.sqlDB.Exec(ddl); err != nil {
		return nil, fmt.Errorf("create table entities: %w", err)
	}
	return &EntityAdapter{sqlDB: store.sqlDB}, nil
}

// SaveEntity records id as live.
func (a *EntityAdapter) SaveEntity(ctx context.Context, id akashi.EntityID) error {
	if err := ctx.Err(); err != nil {
		return akashi.NewPersistenceError(akashi.PersistenceTimeout, "save", "entity", err)
	}
	query := `INSERT INTO entities (entity_kind, entity_raw, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (entity_kind, entity_raw) DO NOTHING`
	_, err := a.sqlDB.ExecContext(ctx, query,
		int64(id.Kind), int64(id.Raw), time.Now().UTC().UnixMilli())
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
	query := "DELETE FROM entities WHERE entity_kind = ? AND entity_raw = ?"
	if _, err := a.sqlDB.ExecContext(ctx, query, int64(id.Kind), int64(id.Raw)); err != nil {
		return akashi.NewPersistenceError(akashi.PersistenceIO, "delete", "entity", err)
	}
	return nil
}

// ListEntities returns every persisted live entity ID.
func (a *EntityAdapter) ListEntities(ctx context.Context) ([]akashi.EntityID, error) {
	if err := ctx.Err(); err != nil {
		return nil, akashi.NewPersistenceError(akashi.PersistenceTimeout, "scan", "entity", err)
	}
	rows, err := a.sqlDB.QueryContext(ctx, "SELECT entity_kind, entity_raw FROM entities")
	if err != nil {
		return nil, akashi.NewPersistenceError(akashi.PersistenceIO, "scan", "entity", err)
	}
	defer rows.Close()

	var ids []akashi.EntityID
	for rows.Next() {
		var kind, raw int64
		if err := rows.Scan(&kind, &raw); err != nil {
			return nil, akashi.NewPersistenceError(akashi.PersistenceIO, "scan", "entity", err)
		}
		ids = append(ids, akashi.EntityID{
			Raw:  akashi.Snowflake(raw),
			Kind: akashi.EntityKind(kind),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, akashi.NewPersistenceError(akashi.PersistenceIO, "scan", "entity", err)
	}
	return ids, nil
}
