// Package console wires the request executor, credential gate and
// resilience policies into the functions UI collaborators call.
//
// Composition, outermost first:
//
//	notify → busy → cache (GET only) → retry → gate → executor
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/api"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/cache"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/config"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/credential"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/policy"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/telemetry"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/tenant"
)

type options struct {
	doer     api.Doer
	sink     telemetry.Sink
	notifier policy.Notifier
	store    cache.Store
	sleep    policy.SleepFunc
	now      func() time.Time
	tracer   trace.Tracer
	newID    func() string
}

// Option configures a Console.
type Option func(*options)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(d api.Doer) Option { return func(o *options) { o.doer = d } }

// WithSink sends request telemetry to s instead of the default log sink.
func WithSink(s telemetry.Sink) Option { return func(o *options) { o.sink = s } }

// WithNotifier sets the collaborator that presents notifications.
func WithNotifier(n policy.Notifier) Option { return func(o *options) { o.notifier = n } }

// WithCacheStore replaces the cache store chosen from configuration.
func WithCacheStore(s cache.Store) Option { return func(o *options) { o.store = s } }

// WithSleep replaces the retry backoff wait.
func WithSleep(fn policy.SleepFunc) Option { return func(o *options) { o.sleep = fn } }

// WithClock replaces time.Now for cache freshness.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithTracer replaces the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option { return func(o *options) { o.tracer = t } }

// WithRequestID replaces the X-Request-Id generator.
func WithRequestID(fn func() string) Option { return func(o *options) { o.newID = fn } }

// Console is one composed console session: a tenant, a credential and a
// shared cache in front of one backend.
type Console struct {
	cfg         config.Config
	tenants     *tenant.Context
	credentials *credential.Store
	gate        *credential.Gate
	cache       *policy.Cache
	busy        *policy.Busy
	notifier    policy.Notifier

	// retried is retry(gate(executor)); every public call builds on it.
	retried api.ExecuteFunc
}

// New validates cfg and builds the composed console.
func New(cfg config.Config, opts ...Option) (*Console, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sink == nil {
		o.sink = telemetry.NewLogSink(nil)
	}

	gate, err := credential.NewGate(cfg.Rules())
	if err != nil {
		return nil, err
	}

	store := o.store
	if store == nil && cfg.RedisURL != "" {
		rs, err := cache.NewRedisStoreFromURL(cfg.RedisURL, "")
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		store = rs
	}

	tenants := tenant.New(cfg.Tenant)
	credentials := credential.NewStore(cfg.AdminKey)

	exec := api.NewExecutor(cfg.BaseURL, tenants)
	exec.Sink = o.sink
	if cfg.UserAgent != "" {
		exec.UserAgent = cfg.UserAgent
	}
	if o.doer != nil {
		exec.HTTP = o.doer
	} else if hc, ok := exec.HTTP.(*http.Client); ok && cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	if o.tracer != nil {
		exec.Tracer = o.tracer
	}
	if o.newID != nil {
		exec.NewRequestID = o.newID
	}

	cacheOpts := []policy.CacheOption{policy.WithCacheSink(o.sink)}
	if o.now != nil {
		cacheOpts = append(cacheOpts, policy.WithClock(o.now))
	}
	c := policy.NewCache(store, cacheOpts...)
	c.BindTenant(tenants)

	retryOpts := []policy.RetryOption{policy.WithRetrySink(o.sink)}
	if o.sleep != nil {
		retryOpts = append(retryOpts, policy.WithSleep(o.sleep))
	}

	return &Console{
		cfg:         cfg,
		tenants:     tenants,
		credentials: credentials,
		gate:        gate,
		cache:       c,
		busy:        &policy.Busy{},
		notifier:    o.notifier,
		retried:     policy.WithRetry(gate.Wrap(exec.Execute, credentials), cfg.MaxRetries, cfg.RetryDelay, retryOpts...),
	}, nil
}

// wrap adds busy and notify around next and pins the active tenant at call
// time, so every attempt of the call is made for the same tenant.
func (c *Console) wrap(next api.ExecuteFunc, successMessage string) api.ExecuteFunc {
	fn := policy.WithNotify(policy.WithBusy(next, c.busy), c.notifier, successMessage)
	return func(ctx context.Context, path string, opts api.Options) (json.RawMessage, error) {
		if ctx == nil {
			ctx = context.Background()
		}
		return fn(tenant.WithSnapshot(ctx, c.tenants.Get()), path, opts)
	}
}

// Execute runs one uncached call.
func (c *Console) Execute(ctx context.Context, path string, opts api.Options) (json.RawMessage, error) {
	return c.wrap(c.retried, "")(ctx, path, opts)
}

// Mutate runs one uncached call and notifies successMessage when it succeeds.
func (c *Console) Mutate(ctx context.Context, path string, opts api.Options, successMessage string) (json.RawMessage, error) {
	return c.wrap(c.retried, successMessage)(ctx, path, opts)
}

// Get runs a cached GET. key defaults to path; maxAge <= 0 uses the
// configured cache TTL.
func (c *Console) Get(ctx context.Context, path, key string, maxAge time.Duration) (json.RawMessage, error) {
	if maxAge <= 0 {
		maxAge = c.cfg.CacheTTL
	}
	fn := policy.WithCache(c.retried, c.cache, key, maxAge)
	return c.wrap(fn, "")(ctx, path, api.Options{Method: http.MethodGet})
}

// List runs a cached GET and normalizes the answer to a list.
func (c *Console) List(ctx context.Context, path string, maxAge time.Duration, keys ...string) ([]json.RawMessage, error) {
	raw, err := c.Get(ctx, path, "", maxAge)
	if err != nil {
		return nil, err
	}
	return api.NormalizeList(raw, keys...)
}

// Reload invalidates every cached entry.
func (c *Console) Reload(ctx context.Context) error { return c.cache.Reload(ctx) }

// Tenant returns the session's tenant context.
func (c *Console) Tenant() *tenant.Context { return c.tenants }

// Credentials returns the session's admin credential store.
func (c *Console) Credentials() *credential.Store { return c.credentials }

// Gate returns the privileged-path gate.
func (c *Console) Gate() *credential.Gate { return c.gate }

// Busy returns the in-flight reference count.
func (c *Console) Busy() *policy.Busy { return c.busy }

// Cache returns the shared response cache.
func (c *Console) Cache() *policy.Cache { return c.cache }

// Config returns the configuration the console was built from.
func (c *Console) Config() config.Config { return c.cfg }

// Close releases the cache store's connections, if it holds any.
func (c *Console) Close() error {
	if closer, ok := c.cache.Store().(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
