// Package telemetry receives structured request lifecycle events.
//
// Sinks are best effort: they never see a request's result before the
// caller does and can never change the error a caller receives.
package telemetry

import (
	"context"
	"sync"
	"time"
)

// EventType names a point in a request's lifecycle.
type EventType string

const (
	EventStart     EventType = "start"
	EventSuccess   EventType = "success"
	EventFailure   EventType = "failure"
	EventRetry     EventType = "retry"
	EventCacheHit  EventType = "cache_hit"
	EventCacheMiss EventType = "cache_miss"
)

// Event is one structured telemetry record.
type Event struct {
	Type      EventType
	Method    string
	Path      string
	Tenant    string
	RequestID string
	Attempt   int
	Status    int
	Duration  time.Duration
	Delay     time.Duration // backoff before the next attempt (retry events)
	State     string
	Err       error
	Timestamp time.Time
}

// Sink consumes telemetry events.
type Sink interface {
	Record(ctx context.Context, evt Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt Event)

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, evt Event) { f(ctx, evt) }

// Nop discards every event.
var Nop Sink = SinkFunc(func(context.Context, Event) {})

// Emit stamps evt and forwards it to s. Nil sinks and panicking sinks are
// tolerated so callers can emit unconditionally.
func Emit(ctx context.Context, s Sink, evt Event) {
	if s == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	defer func() { _ = recover() }()
	s.Record(ctx, evt)
}

type multi []Sink

func (m multi) Record(ctx context.Context, evt Event) {
	for _, s := range m {
		Emit(ctx, s, evt)
	}
}

// Multi fans events out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return Nop
	case 1:
		return out[0]
	}
	return out
}

// Recorder keeps events in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Record appends evt.
func (r *Recorder) Record(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of the given type were recorded.
func (r *Recorder) Count(typ EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}
