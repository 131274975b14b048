// Package cache provides the TTL entry stores behind the request cache.
//
// Entries are keyed explicitly (the request path by default) and scoped by
// the caller; they are dropped wholesale on tenant change or reload.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Entry is one cached response body.
type Entry struct {
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
	MaxAge   time.Duration   `json:"max_age"`
}

// Valid reports whether the entry is still fresh: now - StoredAt <= MaxAge.
func (e Entry) Valid(now time.Time) bool {
	return now.Sub(e.StoredAt) <= e.MaxAge
}

// Store persists entries.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps entries in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Get returns the entry for key.
func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

// Set stores entry under entry.Key.
func (m *MemoryStore) Set(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]Entry)
	}
	m.entries[entry.Key] = entry
	return nil
}

// Delete removes key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Clear removes every entry.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
	return nil
}

// Len returns the number of stored entries, fresh or stale.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
