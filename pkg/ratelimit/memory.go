package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryStore is the in-process CounterStore: a mutex-guarded map. Increment
// is check-and-bump under one lock, so concurrent admits observe a
// consistent count.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return 0, time.Time{}, nil
	}
	return e.count, e.resetAt, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, now, resetAt time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.After(e.resetAt) {
		// First sight of the key, or its window has passed: fresh window,
		// never accumulate across windows.
		e = entry{count: 1, resetAt: resetAt}
		s.entries[key] = e
		return e.count, e.resetAt, nil
	}

	e.count++
	s.entries[key] = e
	return e.count, e.resetAt, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Sweep holds the lock for a single bounded pass over the map.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if now.After(e.resetAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of live windows. Used by sweep logging and tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
