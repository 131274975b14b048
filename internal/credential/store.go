package credential

import (
	"strings"
	"sync"
)

// Store holds the process-wide admin credential.
//
// Lifecycle: set, then attached to matching calls, then cleared either
// explicitly or when the backend rejects it with 401/403. Writes are
// last-write-wins.
type Store struct {
	mu        sync.RWMutex
	token     string
	listeners []func(token string)
}

// NewStore returns a Store holding token ("" for none).
func NewStore(token string) *Store {
	return &Store{token: strings.TrimSpace(token)}
}

// Get returns the stored credential and whether one is set.
func (s *Store) Get() (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Set stores token. A blank token clears the store.
func (s *Store) Set(token string) {
	s.swap(func(string) (string, bool) { return strings.TrimSpace(token), true })
}

// Clear drops the stored credential.
func (s *Store) Clear() {
	s.swap(func(string) (string, bool) { return "", true })
}

// OnChange registers fn to run after the credential is set or cleared.
// fn receives the new token, "" after a clear.
func (s *Store) OnChange(fn func(token string)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// clearIf clears the store only while it still holds token, so a rejection
// of an old credential never wipes one set in the meantime.
func (s *Store) clearIf(token string) {
	s.swap(func(current string) (string, bool) { return "", current == token })
}

func (s *Store) swap(next func(current string) (string, bool)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	value, ok := next(s.token)
	if !ok || value == s.token {
		s.mu.Unlock()
		return
	}
	s.token = value
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(value)
	}
}
