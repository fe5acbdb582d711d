package akashi

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterComponent_Validation(t *testing.T) {
	w := NewWorld()

	if err := RegisterComponent(w, "", NewMemoryAdapter[gold]()); err == nil {
		t.Error("empty component name must be rejected")
	}
	if err := RegisterComponent[gold](w, "gold", nil); err == nil {
		t.Error("nil adapter must be rejected")
	}
}

func TestRegisterComponent_DuplicateType(t *testing.T) {
	w := NewWorld()

	if err := RegisterComponent(w, "gold", NewMemoryAdapter[gold]()); err != nil {
		t.Fatalf("first RegisterComponent: %v", err)
	}
	err := RegisterComponent(w, "gold2", NewMemoryAdapter[gold]())
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("duplicate type registration error = %v, want *ConfigurationError", err)
	}
}

func TestRegisterComponent_DuplicateName(t *testing.T) {
	w := NewWorld()

	if err := RegisterComponent(w, "currency", NewMemoryAdapter[gold]()); err != nil {
		t.Fatalf("first RegisterComponent: %v", err)
	}
	err := RegisterComponent(w, "currency", NewMemoryAdapter[mana]())
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("duplicate name registration error = %v, want *ConfigurationError", err)
	}
}

func TestUnregisteredType_ConfigurationError(t *testing.T) {
	w := NewWorld()
	ctx := context.Background()
	id, _ := w.CreateEntity(KindPlayer)

	var ce *ConfigurationError
	if _, err := Get[gold](ctx, w, id); !errors.As(err, &ce) {
		t.Errorf("Get error = %v, want *ConfigurationError", err)
	}
	if err := Set(w, id, gold{}); !errors.As(err, &ce) {
		t.Errorf("Set error = %v, want *ConfigurationError", err)
	}
	if err := Remove[gold](ctx, w, id); !errors.As(err, &ce) {
		t.Errorf("Remove error = %v, want *ConfigurationError", err)
	}
	if _, err := Has[gold](ctx, w, id); !errors.As(err, &ce) {
		t.Errorf("Has error = %v, want *ConfigurationError", err)
	}
	if err := Flush[gold](ctx, w, id); !errors.As(err, &ce) {
		t.Errorf("Flush error = %v, want *ConfigurationError", err)
	}
}

func TestWorlds_AreIsolated(t *testing.T) {
	ctx := context.Background()
	w1 := NewWorld()
	w2 := NewWorld()
	if err := RegisterComponent(w1, "gold", NewMemoryAdapter[gold]()); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}
	if err := RegisterComponent(w2, "gold", NewMemoryAdapter[gold]()); err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}

	id, _ := w1.CreateEntity(KindPlayer)
	if err := Set(w1, id, gold{Amount: 40}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// w2 never saw this entity.
	if w2.EntityExists(id) {
		t.Error("entity leaked into a different world")
	}
	if _, err := Get[gold](ctx, w2, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get in other world = %v, want ErrNotFound", err)
	}
}
