package gallery

import (
	"context"
	"sync"
)

// Store is the key-value persistence capability holding the serialized gallery
type Store interface {
	// Get returns the blob stored under key; ok is false if the key is absent
	Get(ctx context.Context, key string) (blob []byte, ok bool, err error)

	// Set replaces the blob stored under key
	Set(ctx context.Context, key string, blob []byte) error
}

// Deleter is implemented by stores that can drop a key entirely
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, true, nil
}

// Set implements Store
func (s *MemoryStore) Set(_ context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(blob))
	copy(stored, blob)
	s.items[key] = stored
	return nil
}

// Delete implements Deleter
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
