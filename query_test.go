package akashi

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
)

// noScanAdapter is a PersistenceAdapter without the Scanner capability.
type noScanAdapter[T any] struct {
	inner *MemoryAdapter[T]
}

func (a *noScanAdapter[T]) Load(ctx context.Context, id EntityID) (T, bool, error) {
	return a.inner.Load(ctx, id)
}

func (a *noScanAdapter[T]) Save(ctx context.Context, id EntityID, value T) error {
	return a.inner.Save(ctx, id, value)
}

func (a *noScanAdapter[T]) Delete(ctx context.Context, id EntityID) error {
	return a.inner.Delete(ctx, id)
}

func collect(seq func(func(EntityID) bool)) []EntityID {
	var out []EntityID
	seq(func(id EntityID) bool {
		out = append(out, id)
		return true
	})
	return out
}

func TestQuery_WarmScan(t *testing.T) {
	w := NewWorld()
	ctx := context.Background()
	if err := RegisterComponent(w, "gold", NewMemoryAdapter[gold]()); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}

	rich, _ := w.CreateEntity(KindPlayer)
	poor, _ := w.CreateEntity(KindPlayer)
	_ = Set(w, rich, gold{Amount: 1000})
	_ = Set(w, poor, gold{Amount: 5})

	seq, err := Query(ctx, w, func(_ EntityID, g gold) bool { return g.Amount >= 100 })
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	got := collect(seq)
	if len(got) != 1 || got[0] != rich {
		t.Errorf("Query = %v, want [%v]", got, rich)
	}
}

func TestQuery_SkipsDestroyedEntities(t *testing.T) {
	w := NewWorld()
	ctx := context.Background()
	if err := RegisterComponent(w, "gold", NewMemoryAdapter[gold]()); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}

	alive, _ := w.CreateEntity(KindPlayer)
	doomed, _ := w.CreateEntity(KindPlayer)
	_ = Set(w, alive, gold{Amount: 1})
	_ = Set(w, doomed, gold{Amount: 1})

	seq, err := Query(ctx, w, func(EntityID, gold) bool { return true })
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	// Destroy between building the query and consuming it; the lazy
	// sequence must not yield the dead entity.
	if err := w.DestroyEntity(ctx, doomed); err != nil {
		t.Fatalf("DestroyEntity: %v", err)
	}

	got := collect(seq)
	if len(got) != 1 || got[0] != alive {
		t.Errorf("Query = %v, want [%v]", got, alive)
	}
}

func TestQuery_EarlyStop(t *testing.T) {
	w := NewWorld()
	ctx := context.Background()
	if err := RegisterComponent(w, "gold", NewMemoryAdapter[gold]()); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}

	for i := 0; i < 10; i++ {
		id, _ := w.CreateEntity(KindPlayer)
		_ = Set(w, id, gold{Amount: int64(i)})
	}

	seq, err := Query(ctx, w, func(EntityID, gold) bool { return true })
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	n := 0
	seq(func(EntityID) bool {
		n++
		return n < 3
	})
	if n != 3 {
		t.Errorf("yielded %d entities after early stop, want 3", n)
	}
}

func TestQuery_Persisted(t *testing.T) {
	w := NewWorld()
	ctx := context.Background()
	adapter := NewMemoryAdapter[gold]()
	if err := RegisterComponent(w, "gold", adapter); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}

	warm, _ := w.CreateEntity(KindPlayer)
	cold, _ := w.CreateEntity(KindPlayer)
	_ = Set(w, warm, gold{Amount: 500})
	_ = Set(w, cold, gold{Amount: 700})
	if err := w.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}

	store, err := storeFor[gold](w)
	if err != nil {
		t.Fatalf("storeFor: %v", err)
	}
	if !store.Evict(cold) {
		t.Fatal("Evict: expected clean value to be evicted")
	}

	// The default warm scan is blind to the evicted entity.
	seq, err := Query(ctx, w, func(_ EntityID, g gold) bool { return g.Amount >= 100 })
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := collect(seq); len(got) != 1 || got[0] != warm {
		t.Errorf("warm Query = %v, want [%v]", got, warm)
	}

	// WithPersisted reaches through to the backing store.
	seq, err = Query(ctx, w, func(_ EntityID, g gold) bool { return g.Amount >= 100 }, WithPersisted())
	if err != nil {
		t.Fatalf("Query persisted: %v", err)
	}
	got := collect(seq)
	slices.SortFunc(got, func(a, b EntityID) int {
		return int(a.Raw) - int(b.Raw)
	})
	want := []EntityID{warm, cold}
	slices.SortFunc(want, func(a, b EntityID) int {
		return int(a.Raw) - int(b.Raw)
	})
	if !slices.Equal(got, want) {
		t.Errorf("persisted Query = %v, want %v", got, want)
	}
}

func TestQuery_PersistedUnsupported(t *testing.T) {
	w := NewWorld()
	ctx := context.Background()
	adapter := &noScanAdapter[gold]{inner: NewMemoryAdapter[gold]()}
	if err := RegisterComponent(w, "gold", adapter); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}

	// Warm-only queries still work without Scanner.
	if _, err := Query(ctx, w, func(EntityID, gold) bool { return true }); err != nil {
		t.Errorf("warm Query: %v", err)
	}

	_, err := Query(ctx, w, func(EntityID, gold) bool { return true }, WithPersisted())
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("persisted Query error = %v, want ErrUnsupported", err)
	}

	if _, err := Keys[gold](ctx, w, 0, 10); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Keys error = %v, want ErrUnsupported", err)
	}
}

func TestKeys_Pagination(t *testing.T) {
	w := NewWorld()
	ctx := context.Background()
	if err := RegisterComponent(w, "gold", NewMemoryAdapter[gold]()); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}

	ids := make([]EntityID, 5)
	for i := range ids {
		id, _ := w.CreateEntity(KindPlayer)
		_ = Set(w, id, gold{Amount: int64(i)})
		ids[i] = id
	}
	if err := w.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}

	// Snowflakes are monotonic, so creation order is the sorted order.
	var all []EntityID
	for page := 0; ; page++ {
		batch, err := Keys[gold](ctx, w, page, 2)
		if err != nil {
			t.Fatalf("Keys page %d: %v", page, err)
		}
		if len(batch) == 0 {
			break
		}
		if len(batch) > 2 {
			t.Fatalf("Keys page %d returned %d ids, limit was 2", page, len(batch))
		}
		all = append(all, batch...)
	}
	if !slices.Equal(all, ids) {
		t.Errorf("paginated Keys = %v, want %v", all, ids)
	}

	if _, err := Keys[gold](ctx, w, -1, 2); err == nil {
		t.Error("negative page must be rejected")
	}
	if _, err := Keys[gold](ctx, w, 0, 0); err == nil {
		t.Error("zero limit must be rejected")
	}
}

func TestKeys_HugePage(t *testing.T) {
	w := NewWorld()
	ctx := context.Background()
	if err := RegisterComponent(w, "gold", NewMemoryAdapter[gold]()); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}
	id, _ := w.CreateEntity(KindPlayer)
	_ = Set(w, id, gold{Amount: 1})
	if err := w.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}

	// page*limit would wrap around int here; any such page is past the end.
	for _, page := range []int{math.MaxInt, math.MaxInt / 2, math.MaxInt/3 + 1} {
		batch, err := Keys[gold](ctx, w, page, 3)
		if err != nil {
			t.Fatalf("Keys page %d: %v", page, err)
		}
		if len(batch) != 0 {
			t.Errorf("Keys page %d = %v, want empty", page, batch)
		}
	}
}
