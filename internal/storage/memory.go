package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps blobs in process. Used by tests and the local CLI.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	blobs   map[string]memoryBlob
}

type memoryBlob struct {
	data        []byte
	contentType string
}

func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://photos"
	}
	return &MemoryStore{
		baseURL: baseURL,
		blobs:   make(map[string]memoryBlob),
	}
}

func (s *MemoryStore) Put(_ context.Context, name string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = memoryBlob{data: append([]byte(nil), data...), contentType: contentType}
	return s.baseURL + "/" + name, nil
}

func (s *MemoryStore) Get(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return append([]byte(nil), b.data...), nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, name)
	return nil
}

func (s *MemoryStore) ContentType(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[name]
	return b.contentType, ok
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
