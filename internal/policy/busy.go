package policy

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/api"
)

// Busy counts in-flight calls. It reports busy while at least one wrapped
// call is outstanding, however many overlap.
type Busy struct {
	count atomic.Int64

	mu        sync.Mutex
	listeners []func(busy bool)
}

// Busy reports whether any wrapped call is in flight.
func (b *Busy) Busy() bool { return b.count.Load() > 0 }

// Count returns the number of calls in flight.
func (b *Busy) Count() int64 { return b.count.Load() }

// OnChange registers fn to run on every idle/busy edge.
func (b *Busy) OnChange(fn func(busy bool)) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

func (b *Busy) enter() {
	if b.count.Add(1) == 1 {
		b.notify(true)
	}
}

func (b *Busy) leave() {
	if b.count.Add(-1) == 0 {
		b.notify(false)
	}
}

func (b *Busy) notify(busy bool) {
	b.mu.Lock()
	listeners := append([]func(bool){}, b.listeners...)
	b.mu.Unlock()
	for _, fn := range listeners {
		fn(busy)
	}
}

// WithBusy holds b for the duration of every call to next.
func WithBusy(next api.ExecuteFunc, b *Busy) api.ExecuteFunc {
	return func(ctx context.Context, path string, opts api.Options) (json.RawMessage, error) {
		if b == nil {
			return next(ctx, path, opts)
		}
		b.enter()
		defer b.leave()
		return next(ctx, path, opts)
	}
}
