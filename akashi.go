// Package akashi provides the component storage and retrieval core for
// collectible-card and gacha games.
//
// Game objects (players, cards) are opaque Entity IDs; all state is
// attached to them as typed components. The package provides:
//   - Monotonic 64-bit snowflake entity IDs tagged with an entity kind
//   - One singleton component store per registered component type, with
//     dirty-tracked write-back caching
//   - Pluggable persistence via a three-operation adapter contract
//     (load/save/delete), with in-memory, bbolt, and sqlite adapters
//   - Predicate queries over warm (resident) or persisted entities
//
// # Quick Start
//
// Register every component type once at startup, then attach data to
// entities:
//
//	w := akashi.NewWorld()
//	if err := akashi.RegisterComponent(w, "balance", akashi.NewMemoryAdapter[Balance]()); err != nil {
//	    log.Fatal(err)
//	}
//
//	p, _ := w.CreateEntity(akashi.KindPlayer)
//	_ = akashi.Set(w, p, Balance{Gold: 100})
//	bal, _ := akashi.Get[Balance](ctx, w, p)
//
// # Components
//
// Components are plain Go values. A component type holds at most one value
// per entity; setting again overwrites:
//
//	type Balance struct {
//	    Gold int64
//	}
//
//	_ = akashi.Set(w, p, Balance{Gold: 150})
//	_ = akashi.Remove[Balance](ctx, w, p)
//
// Mutations are held in memory and marked dirty. Persist them explicitly
// with Flush/World.FlushAll, or register stores with WithFlushInterval for
// periodic background write-back. World.Close flushes everything.
//
// # Persistence
//
// Any backend qualifies as a backing store by implementing
// PersistenceAdapter's load/save/delete for a component type. The
// bboltstore and sqlitestore subpackages provide durable file-backed
// implementations; MemoryAdapter serves tests and prototyping.
package akashi

// Version is the akashi core version.
const Version = "1.0.0"
