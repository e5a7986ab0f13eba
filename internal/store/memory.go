package store

import (
	"context"
	"sync"
)

// MemoryStore keeps everything in process memory. It is used for tests and
// ephemeral servers.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, bucket string, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.buckets[bucket][string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Has(_ context.Context, bucket string, key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.buckets[bucket][string(key)]
	return ok, nil
}

func (s *MemoryStore) Apply(_ context.Context, b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range b.Writes() {
		m := s.buckets[w.Bucket]
		if w.Delete {
			delete(m, string(w.Key))
			continue
		}
		if m == nil {
			m = make(map[string][]byte)
			s.buckets[w.Bucket] = m
		}
		m[string(w.Key)] = append([]byte(nil), w.Value...)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
