package akashi

import (
	"context"
	"fmt"
	"iter"
	"math"
	"sort"
)

// queryOptions configures a component query.
type queryOptions struct {
	persisted bool
}

// QueryOption configures a Query call.
type QueryOption func(*queryOptions)

// WithPersisted extends a query past warm (resident) entries to every
// entity with a persisted value, loading cold values through the adapter.
// Requires an adapter implementing Scanner; otherwise the query fails with
// ErrUnsupported.
func WithPersisted() QueryOption {
	return func(o *queryOptions) {
		o.persisted = true
	}
}

// Query returns the live entities whose component of type T satisfies the
// predicate, as a lazy, finite, single-use sequence. Re-issue the query to
// re-scan.
//
// By default only warm entries (values currently resident in the store) are
// scanned: exact and fast for warm entities, blind to cold ones. Use
// WithPersisted to include cold entities at the cost of loading each one.
// Cold values that fail to load are skipped and logged, not surfaced.
func Query[T any](ctx context.Context, w *World, pred func(EntityID, T) bool, opts ...QueryOption) (iter.Seq[EntityID], error) {
	store, err := storeFor[T](w)
	if err != nil {
		return nil, err
	}

	var qo queryOptions
	for _, opt := range opts {
		opt(&qo)
	}

	warmIDs, warmValues := store.resident()

	var coldIDs []EntityID
	if qo.persisted {
		scanner, ok := store.adapter.(Scanner)
		if !ok {
			return nil, fmt.Errorf("query %s over persisted entities: %w", store.name, ErrUnsupported)
		}
		ids, err := scanner.ScanIDs(ctx)
		if err != nil {
			return nil, wrapPersistence("scan", store.name, err)
		}
		warm := make(map[EntityID]struct{}, len(warmIDs))
		for _, id := range warmIDs {
			warm[id] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := warm[id]; !ok {
				coldIDs = append(coldIDs, id)
			}
		}
	}

	return func(yield func(EntityID) bool) {
		for i, id := range warmIDs {
			if !w.entities.Exists(id) {
				continue
			}
			if pred(id, warmValues[i]) && !yield(id) {
				return
			}
		}
		for _, id := range coldIDs {
			if !w.entities.Exists(id) {
				continue
			}
			value, err := store.Get(ctx, id)
			if err != nil {
				store.logger.Warn("skipping cold entity during query", "entity", id, "error", err)
				continue
			}
			if pred(id, value) && !yield(id) {
				return
			}
		}
	}, nil
}

// Keys lists the IDs of every entity with a persisted value of component
// type T, paginated and sorted by (kind, raw) for a stable order. Requires
// an adapter implementing Scanner.
func Keys[T any](ctx context.Context, w *World, page, limit int) ([]EntityID, error) {
	store, err := storeFor[T](w)
	if err != nil {
		return nil, err
	}
	scanner, ok := store.adapter.(Scanner)
	if !ok {
		return nil, fmt.Errorf("list %s keys: %w", store.name, ErrUnsupported)
	}
	if page < 0 || limit <= 0 {
		return nil, fmt.Errorf("akashi: invalid pagination page=%d limit=%d", page, limit)
	}

	ids, err := scanner.ScanIDs(ctx)
	if err != nil {
		return nil, wrapPersistence("scan", store.name, err)
	}

	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Kind != ids[j].Kind {
			return ids[i].Kind < ids[j].Kind
		}
		return ids[i].Raw < ids[j].Raw
	})

	// page*limit can overflow int for absurd page values; such pages are
	// past the end of any slice regardless.
	if page > math.MaxInt/limit {
		return nil, nil
	}
	start := page * limit
	if start >= len(ids) {
		return nil, nil
	}
	end := min(start+limit, len(ids))
	return ids[start:end], nil
}
