package akashi

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// gateEntityAdapter blocks SaveEntity on a gate channel so tests can
// interleave entity destruction with an in-flight membership save.
type gateEntityAdapter struct {
	inner   *MemoryEntityAdapter
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGateEntityAdapter() *gateEntityAdapter {
	return &gateEntityAdapter{
		inner:   NewMemoryEntityAdapter(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (a *gateEntityAdapter) SaveEntity(ctx context.Context, id EntityID) error {
	a.once.Do(func() { close(a.started) })
	<-a.release
	return a.inner.SaveEntity(ctx, id)
}

func (a *gateEntityAdapter) DeleteEntity(ctx context.Context, id EntityID) error {
	return a.inner.DeleteEntity(ctx, id)
}

func (a *gateEntityAdapter) ListEntities(ctx context.Context) ([]EntityID, error) {
	return a.inner.ListEntities(ctx)
}

func TestWorld_EntityLifecycle(t *testing.T) {
	w := NewWorld()
	ctx := context.Background()

	id, err := w.CreateEntity(KindPlayer)
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if id.Kind != KindPlayer {
		t.Errorf("CreateEntity kind = %v, want %v", id.Kind, KindPlayer)
	}
	if !w.EntityExists(id) {
		t.Error("created entity must exist")
	}
	if got := w.Entities().Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}

	if err := w.DestroyEntity(ctx, id); err != nil {
		t.Fatalf("DestroyEntity: %v", err)
	}
	if w.EntityExists(id) {
		t.Error("destroyed entity must not exist")
	}
	if got := w.Entities().Len(); got != 0 {
		t.Errorf("Len() after destroy = %d, want 0", got)
	}
}

func TestWorld_CreateEntity_InvalidKind(t *testing.T) {
	w := NewWorld()
	if _, err := w.CreateEntity(EntityKind(0)); err == nil {
		t.Error("CreateEntity with invalid kind must fail")
	}
}

func TestWorld_DestroyEntity_Unknown(t *testing.T) {
	w := NewWorld()
	ctx := context.Background()

	err := w.DestroyEntity(ctx, EntityID{Raw: 7, Kind: KindCard})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("DestroyEntity(unknown) error = %v, want ErrNotFound", err)
	}

	// Double destroy reports the same.
	id, _ := w.CreateEntity(KindPlayer)
	if err := w.DestroyEntity(ctx, id); err != nil {
		t.Fatalf("DestroyEntity: %v", err)
	}
	if err := w.DestroyEntity(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DestroyEntity error = %v, want ErrNotFound", err)
	}
}

type gold struct {
	Amount int64 `json:"amount"`
}

type mana struct {
	Amount int64 `json:"amount"`
}

func TestWorld_DestroyEntity_Cascades(t *testing.T) {
	w := NewWorld()
	ctx := context.Background()

	goldAdapter := NewMemoryAdapter[gold]()
	manaAdapter := NewMemoryAdapter[mana]()
	if err := RegisterComponent(w, "gold", goldAdapter); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}
	if err := RegisterComponent(w, "mana", manaAdapter); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}

	id, _ := w.CreateEntity(KindPlayer)
	if err := Set(w, id, gold{Amount: 50}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := Set(w, id, mana{Amount: 10}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := w.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if goldAdapter.Len() != 1 || manaAdapter.Len() != 1 {
		t.Fatal("expected both components persisted before destroy")
	}

	if err := w.DestroyEntity(ctx, id); err != nil {
		t.Fatalf("DestroyEntity: %v", err)
	}

	if goldAdapter.Len() != 0 {
		t.Error("gold component survived the destroy cascade")
	}
	if manaAdapter.Len() != 0 {
		t.Error("mana component survived the destroy cascade")
	}
	if _, err := Get[gold](ctx, w, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after destroy error = %v, want ErrNotFound", err)
	}
	if err := Set(w, id, gold{Amount: 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Set after destroy error = %v, want ErrNotFound", err)
	}
}

func TestWorld_DestroyEntity_PartialFailure(t *testing.T) {
	w := NewWorld()
	ctx := context.Background()

	goldAdapter := NewMemoryAdapter[gold]()
	broken := &failingAdapter[mana]{inner: NewMemoryAdapter[mana]()}
	broken.failDelete = true
	if err := RegisterComponent(w, "gold", goldAdapter); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}
	if err := RegisterComponent(w, "mana", broken); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}

	id, _ := w.CreateEntity(KindPlayer)
	if err := Set(w, id, mana{Amount: 3}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := w.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}

	err := w.DestroyEntity(ctx, id)
	var de *DestroyError
	if !errors.As(err, &de) {
		t.Fatalf("DestroyEntity error = %v, want *DestroyError", err)
	}
	if de.ID != id {
		t.Errorf("DestroyError.ID = %v, want %v", de.ID, id)
	}
	if _, ok := de.Failures["mana"]; !ok {
		t.Errorf("DestroyError.Failures = %v, want entry for mana", de.Failures)
	}
	if _, ok := de.Failures["gold"]; ok {
		t.Errorf("DestroyError.Failures = %v, must not include gold", de.Failures)
	}

	// The entity leaves the live set even when cleanup partially fails.
	if w.EntityExists(id) {
		t.Error("entity must be gone after a partially failed destroy")
	}
}

func TestWorld_EntityPersistence_Restart(t *testing.T) {
	ctx := context.Background()
	entities := NewMemoryEntityAdapter()
	goldAdapter := NewMemoryAdapter[gold]()

	w1 := NewWorld(WithEntityAdapter(entities))
	if err := RegisterComponent(w1, "gold", goldAdapter); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}
	id, _ := w1.CreateEntity(KindPlayer)
	if err := Set(w1, id, gold{Amount: 100}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := w1.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Fresh world over the same backing stores, as after a process restart.
	w2 := NewWorld(WithEntityAdapter(entities))
	if err := RegisterComponent(w2, "gold", goldAdapter); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}
	if err := w2.LoadEntities(ctx); err != nil {
		t.Fatalf("LoadEntities: %v", err)
	}

	if !w2.EntityExists(id) {
		t.Fatal("entity must survive a restart through the entity adapter")
	}
	v, err := Get[gold](ctx, w2, id)
	if err != nil {
		t.Fatalf("Get after restart: %v", err)
	}
	if v.Amount != 100 {
		t.Errorf("gold after restart = %d, want 100", v.Amount)
	}
}

func TestWorld_EntityPersistence_DestroyDuringFlush(t *testing.T) {
	ctx := context.Background()
	gated := newGateEntityAdapter()

	w := NewWorld(WithEntityAdapter(gated))
	id, _ := w.CreateEntity(KindPlayer)

	flushDone := make(chan error, 1)
	go func() { flushDone <- w.FlushAll(ctx) }()

	// Destroy while the membership save is stuck in flight; the delete
	// issued by the destroy sees nothing persisted yet.
	<-gated.started
	if err := w.DestroyEntity(ctx, id); err != nil {
		t.Fatalf("DestroyEntity: %v", err)
	}
	close(gated.release)
	if err := <-flushDone; err != nil {
		t.Fatalf("FlushAll: %v", err)
	}

	// The late save must not leave a membership record behind.
	w2 := NewWorld(WithEntityAdapter(gated.inner))
	if err := w2.LoadEntities(ctx); err != nil {
		t.Fatalf("LoadEntities: %v", err)
	}
	if w2.EntityExists(id) {
		t.Error("destroyed entity came back after restart")
	}
}

func TestWorld_EntityPersistence_DestroyedStaysGone(t *testing.T) {
	ctx := context.Background()
	entities := NewMemoryEntityAdapter()

	w1 := NewWorld(WithEntityAdapter(entities))
	id, _ := w1.CreateEntity(KindPlayer)
	if err := w1.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if err := w1.DestroyEntity(ctx, id); err != nil {
		t.Fatalf("DestroyEntity: %v", err)
	}

	w2 := NewWorld(WithEntityAdapter(entities))
	if err := w2.LoadEntities(ctx); err != nil {
		t.Fatalf("LoadEntities: %v", err)
	}
	if w2.EntityExists(id) {
		t.Error("destroyed entity reappeared after restart")
	}
}
