// Package memory is an in-memory chunk store backend, standing in for the
// local-disk backend in tests that don't need a real filesystem.
package memory

import (
	"log/slog"
	"sync"

	"distcompute/internal/chunkstore"
)

type store struct {
	mu   sync.RWMutex
	data map[chunkstore.Key][]byte
}

// New returns a fresh in-memory Store.
func New() chunkstore.Store {
	return &store{data: make(map[chunkstore.Key][]byte)}
}

func (s *store) Put(key chunkstore.Key, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.data[key] = cp
	return nil
}

func (s *store) Get(key chunkstore.Key) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, chunkstore.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *store) Delete(key chunkstore.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func init() {
	chunkstore.Register("memory", func(map[string]string, *slog.Logger) (chunkstore.Store, error) {
		return New(), nil
	})
}
