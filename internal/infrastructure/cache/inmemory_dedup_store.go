package cache

import (
	"context"
	"time"

	"github.com/erp/manufacture/internal/domain/shared"
)

// InMemoryDedupStore implements shared.DedupStore with an in-process map.
// Suitable for single-instance deployments and tests; state is not shared across processes.
type InMemoryDedupStore struct {
	m *ttlMap
}

// NewInMemoryDedupStore creates a new in-memory dedup store
func NewInMemoryDedupStore() *InMemoryDedupStore {
	return &InMemoryDedupStore{m: newTTLMap()}
}

// SetIfAbsent atomically stores key unless a live entry exists
func (s *InMemoryDedupStore) SetIfAbsent(_ context.Context, key string, ttl time.Duration) (bool, error) {
	return s.m.setIfAbsent(key, nil, ttl), nil
}

// Exists reports whether a live entry exists
func (s *InMemoryDedupStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.m.get(key)
	return ok, nil
}

// Delete removes key
func (s *InMemoryDedupStore) Delete(_ context.Context, key string) error {
	s.m.delete(key)
	return nil
}

// Close stops the cleanup goroutine
func (s *InMemoryDedupStore) Close() error {
	s.m.close()
	return nil
}

// Size returns the number of entries, expired ones included until cleanup
func (s *InMemoryDedupStore) Size() int {
	return s.m.size()
}

var _ shared.DedupStore = (*InMemoryDedupStore)(nil)
