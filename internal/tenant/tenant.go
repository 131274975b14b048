// Package tenant holds the active tenant for the console session.
//
// The active tenant is sent as the X-Tenant-ID header on every request.
// An empty tenant means the header is omitted.
package tenant

import (
	"context"
	"strings"
	"sync"
)

// HeaderName is the canonical tenant header.
const HeaderName = "X-Tenant-ID"

// Context is the single mutable "active tenant id" shared by all requests.
// Writes are last-write-wins.
type Context struct {
	mu        sync.RWMutex
	id        string
	listeners []func(old, next string)
}

// New creates a Context with an optional initial tenant.
func New(initial string) *Context {
	return &Context{id: strings.TrimSpace(initial)}
}

// Get returns the active tenant id, or "" when none is active.
func (c *Context) Get() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Active reports whether a tenant is active.
func (c *Context) Active() bool {
	return c.Get() != ""
}

// Set switches the active tenant. Listeners run only when the value changes.
func (c *Context) Set(id string) {
	id = strings.TrimSpace(id)

	c.mu.Lock()
	old := c.id
	c.id = id
	listeners := append([]func(string, string){}, c.listeners...)
	c.mu.Unlock()

	if old == id {
		return
	}
	for _, fn := range listeners {
		fn(old, id)
	}
}

// Clear deactivates the tenant.
func (c *Context) Clear() {
	c.Set("")
}

// OnChange registers fn to run after every effective tenant switch.
func (c *Context) OnChange(fn func(old, next string)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

type snapshotKey struct{}

// WithSnapshot pins id as the tenant for every request made with ctx,
// including retries, regardless of later switches.
func WithSnapshot(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, snapshotKey{}, id)
}

// SnapshotFromContext returns the tenant pinned by WithSnapshot.
func SnapshotFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(snapshotKey{}).(string)
	return id, ok
}
