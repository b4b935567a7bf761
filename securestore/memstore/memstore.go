package memstore

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-authkit-session/securestore"
)

var _ securestore.Store = (*InMemoryStore)(nil)

// InMemoryStore is a thread-safe in-memory implementation of securestore.Store.
// Nothing is encrypted; it is meant for tests and throwaway sessions.
type InMemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// New creates a new in-memory store
func New() *InMemoryStore {
	return &InMemoryStore{
		items: make(map[string][]byte),
	}
}

// Get retrieves a value by key
func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := securestore.ValidateKey(key); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}

	// Return a copy to prevent external modifications
	return append([]byte(nil), v...), true, nil
}

// Set stores or replaces a value
func (s *InMemoryStore) Set(_ context.Context, key string, value []byte) error {
	if err := securestore.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes a value
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	if err := securestore.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// Len reports the number of stored keys.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
