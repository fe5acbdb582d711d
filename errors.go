package akashi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound indicates an unknown or destroyed entity, or an entity that
// holds no value for the requested component type. It is a normal,
// recoverable condition.
var ErrNotFound = errors.New("not found")

// ErrUnsupported indicates a query-engine operation the configured backend
// cannot fulfill, such as scanning persisted entries through an adapter
// that cannot enumerate its keys.
var ErrUnsupported = errors.New("operation not supported by backend")

// ErrExhausted indicates that a snowflake generator ran out of ID space,
// which happens when the timestamp field overflows its 42 bits. Practically
// unreachable before the 22nd century.
var ErrExhausted = errors.New("snowflake id space exhausted")

// PersistenceErrorKind classifies backing-store failures.
type PersistenceErrorKind uint8

const (
	// PersistenceTimeout means a backing-store call exceeded its deadline.
	// The operation is treated as not having happened and is safe to retry.
	PersistenceTimeout PersistenceErrorKind = iota + 1

	// PersistenceIO covers transport and storage-engine failures.
	PersistenceIO

	// PersistenceSerialization covers encode/decode failures of component
	// values on their way to or from the backing store.
	PersistenceSerialization
)

func (k PersistenceErrorKind) String() string {
	switch k {
	case PersistenceTimeout:
		return "timeout"
	case PersistenceIO:
		return "io"
	case PersistenceSerialization:
		return "serialization"
	default:
		return "unknown"
	}
}

// PersistenceError wraps a backing-store failure. It is always recoverable
// by retry at the caller's discretion; a failed write-back leaves the dirty
// flag set so no update is ever silently dropped.
type PersistenceError struct {
	Kind      PersistenceErrorKind
	Op        string // "load", "save", "delete", or "scan"
	Component string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Component, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError builds a PersistenceError for adapter implementations.
// Context deadline errors are classified as timeouts regardless of kind.
func NewPersistenceError(kind PersistenceErrorKind, op, component string, err error) *PersistenceError {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = PersistenceTimeout
	}
	return &PersistenceError{Kind: kind, Op: op, Component: component, Err: err}
}

// wrapPersistence normalizes an adapter error into a PersistenceError,
// passing through errors that are already classified.
func wrapPersistence(op, component string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	kind := PersistenceIO
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = PersistenceTimeout
	}
	return &PersistenceError{Kind: kind, Op: op, Component: component, Err: err}
}

// ConfigurationError reports invalid registry setup: duplicate component
// registration, or an operation against a type that was never registered.
// It is fatal at startup and not meant to be retried.
type ConfigurationError struct {
	Component string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("component %s: %s", e.Component, e.Reason)
}

// DestroyError collects per-store failures from a cascading entity delete.
// The entity is removed from the live set regardless; the named stores may
// still hold a persisted copy and their deletes should be retried.
type DestroyError struct {
	ID       EntityID
	Failures map[string]error // component name -> delete error
}

func (e *DestroyError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "destroy %v: %d store(s) failed to delete:", e.ID, len(e.Failures))
	for _, name := range names {
		fmt.Fprintf(&b, " %s: %v;", name, e.Failures[name])
	}
	return strings.TrimSuffix(b.String(), ";")
}

// notFoundEntity reports an unknown or destroyed entity.
func notFoundEntity(id EntityID) error {
	return fmt.Errorf("entity %v: %w", id, ErrNotFound)
}

// notFoundComponent reports a live entity holding no value for a component.
func notFoundComponent(id EntityID, component string) error {
	return fmt.Errorf("entity %v has no %s component: %w", id, component, ErrNotFound)
}
