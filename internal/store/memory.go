// Package store provides AlbumStore backends.
package store

import (
	"context"
	"sync"
	"time"

	"memobridge/internal/domain"
)

// MemoryStore keeps album state in process memory. Expired entries are
// dropped lazily on read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	state     domain.AlbumState
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, albumID string) (*domain.AlbumState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[albumID]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, albumID)
		return nil, nil
	}
	state := e.state
	return &state, nil
}

func (s *MemoryStore) Put(_ context.Context, albumID string, state domain.AlbumState, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[albumID] = memoryEntry{state: state, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
