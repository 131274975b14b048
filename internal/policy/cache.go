package policy

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/api"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/cache"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/telemetry"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/tenant"
)

// Cache is the TTL cache shared by every cached call of one console.
// Freshness is judged against the max age of the call reading the entry.
type Cache struct {
	store cache.Store
	now   func() time.Time
	sink  telemetry.Sink

	// generation changes on every Reload; a result fetched under an older
	// generation is not stored.
	generation atomic.Uint64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCacheSink sends cache_hit and cache_miss events to s.
func WithCacheSink(s telemetry.Sink) CacheOption {
	return func(c *Cache) { c.sink = s }
}

// NewCache returns a Cache on store, an in-memory store when nil.
func NewCache(store cache.Store, opts ...CacheOption) *Cache {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	c := &Cache{store: store, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the backing store.
func (c *Cache) Store() cache.Store { return c.store }

// Reload drops every entry so the next cached call goes to the backend.
func (c *Cache) Reload(ctx context.Context) error {
	c.generation.Add(1)
	return c.store.Clear(ctx)
}

// BindTenant clears the cache whenever the active tenant changes, so an
// entry fetched for one tenant is never served to another.
func (c *Cache) BindTenant(t *tenant.Context) {
	if t == nil {
		return
	}
	t.OnChange(func(old, next string) {
		if err := c.Reload(context.Background()); err != nil {
			slog.Warn("cache clear after tenant change failed", "from", old, "to", next, "error", err)
		}
	})
}

func (c *Cache) lookup(ctx context.Context, key string, maxAge time.Duration) (json.RawMessage, bool) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Debug("cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok || entry.Key != key {
		return nil, false
	}
	entry.MaxAge = maxAge
	if !entry.Valid(c.now()) {
		return nil, false
	}
	return entry.Value, true
}

func (c *Cache) save(ctx context.Context, generation uint64, key string, value json.RawMessage, maxAge time.Duration) {
	if c.generation.Load() != generation {
		slog.Debug("cache reloaded during fetch; result not stored", "key", key)
		return
	}
	err := c.store.Set(ctx, cache.Entry{
		Key:      key,
		Value:    value,
		StoredAt: c.now(),
		MaxAge:   maxAge,
	})
	if err != nil {
		slog.Debug("cache write failed", "key", key, "error", err)
		return
	}
	// A Reload that raced the write must not leave the entry behind.
	if c.generation.Load() != generation {
		_ = c.store.Delete(ctx, key)
	}
}

// WithCache serves GET calls from c while the entry under key is younger
// than maxAge. key defaults to the path. Stale or missing entries cause one
// call to next; a successful result replaces the entry. Failures are never
// stored, and neither is a result whose fetch overlapped a Reload (for
// example a tenant switch). Non-GET calls pass straight through.
func WithCache(next api.ExecuteFunc, c *Cache, key string, maxAge time.Duration) api.ExecuteFunc {
	return func(ctx context.Context, path string, opts api.Options) (json.RawMessage, error) {
		if c == nil || opts.HTTPMethod() != "GET" {
			return next(ctx, path, opts)
		}
		k := key
		if k == "" {
			k = path
		}

		evt := telemetry.Event{Method: "GET", Path: path}
		if value, ok := c.lookup(ctx, k, maxAge); ok {
			evt.Type = telemetry.EventCacheHit
			telemetry.Emit(ctx, c.sink, evt)
			return value, nil
		}
		evt.Type = telemetry.EventCacheMiss
		telemetry.Emit(ctx, c.sink, evt)

		generation := c.generation.Load()
		result, err := next(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		c.save(ctx, generation, k, result, maxAge)
		return result, nil
	}
}
