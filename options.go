package akashi

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// storeOptions configures a single component store's cache behavior.
type storeOptions struct {
	// flushInterval is how often the background loop writes back dirty
	// values. Zero disables the loop; flushing is then manual via Flush,
	// FlushAll or Close.
	flushInterval time.Duration

	// loadTimeout bounds each individual backing-store call. Zero means
	// the caller's context is the only bound.
	loadTimeout time.Duration

	// evictAfter is the idle period after which clean values are dropped
	// by the background loop. Zero disables idle eviction.
	evictAfter time.Duration

	// lazyDelete defers the backing-store delete of removed components to
	// the flush path instead of issuing it eagerly.
	lazyDelete bool
}

// Option configures a World.
type Option func(*World)

// WithLogger sets the logger used by the world and its stores.
func WithLogger(logger *slog.Logger) Option {
	return func(w *World) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithSnowflakeGen sets the generator used to allocate entity IDs. Pin
// group/worker IDs here when running multiple processes against the same
// backing store.
func WithSnowflakeGen(gen *SnowflakeGen) Option {
	return func(w *World) {
		if gen != nil {
			w.gen = gen
		}
	}
}

// WithEntityAdapter persists live-entity membership so the live set
// survives restarts. Restore it after startup with World.LoadEntities.
func WithEntityAdapter(adapter EntityAdapter) Option {
	return func(w *World) {
		w.entityAdapter = adapter
	}
}

// WithOptions seeds every store registered on the world with the given
// cache settings. Individual stores can still override them at
// registration time.
func WithOptions(o Options) Option {
	return func(w *World) {
		w.defaults = storeOptions{
			flushInterval: o.FlushInterval,
			loadTimeout:   o.LoadTimeout,
			evictAfter:    o.EvictAfter,
		}
	}
}

// StoreOption overrides cache settings for one component store at
// registration time.
type StoreOption func(*storeOptions)

// WithFlushInterval enables the store's background write-back loop.
func WithFlushInterval(d time.Duration) StoreOption {
	return func(o *storeOptions) {
		o.flushInterval = d
	}
}

// WithLoadTimeout bounds each backing-store call made by the store.
func WithLoadTimeout(d time.Duration) StoreOption {
	return func(o *storeOptions) {
		o.loadTimeout = d
	}
}

// WithEvictAfter enables idle eviction of clean values during background
// flushes.
func WithEvictAfter(d time.Duration) StoreOption {
	return func(o *storeOptions) {
		o.evictAfter = d
	}
}

// WithLazyDelete defers backing-store deletes of removed components to the
// flush path. The default is an eager delete at Remove time.
func WithLazyDelete() StoreOption {
	return func(o *storeOptions) {
		o.lazyDelete = true
	}
}

// Options is the environment-configurable subset of store settings.
type Options struct {
	// FlushInterval is the background write-back period. Zero disables
	// automatic flushing.
	FlushInterval time.Duration `env:"AKASHI_FLUSH_INTERVAL" envDefault:"0s"`

	// LoadTimeout bounds individual backing-store calls.
	LoadTimeout time.Duration `env:"AKASHI_LOAD_TIMEOUT" envDefault:"5s"`

	// EvictAfter is the idle period before clean values are evicted.
	// Zero disables idle eviction.
	EvictAfter time.Duration `env:"AKASHI_EVICT_AFTER" envDefault:"0s"`
}

// OptionsFromEnv loads store settings from AKASHI_* environment variables.
func OptionsFromEnv() (Options, error) {
	var o Options
	if err := env.Parse(&o); err != nil {
		return Options{}, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}
