// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// VolatileStore is a TTL key/value map guarded by a single mutex.
type VolatileStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewVolatileStore() *VolatileStore {
	return &VolatileStore{entries: make(map[string]entry), now: time.Now}
}

// WithClock replaces time.Now; for tests.
func (s *VolatileStore) WithClock(now func() time.Time) *VolatileStore {
	s.now = now
	return s
}

func (s *VolatileStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.lookup(key)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return value, nil
}

func (s *VolatileStore) PutWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(key, value, ttl)
	return nil
}

func (s *VolatileStore) Remove(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

func (s *VolatileStore) Update(ctx context.Context, key string, ttl time.Duration, fn func(current []byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, _ := s.lookup(key)
	next, err := fn(current)
	if err != nil {
		return err
	}
	if next != nil {
		s.put(key, next, ttl)
	}
	return nil
}

// HealthCheck always succeeds.
func (s *VolatileStore) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *VolatileStore) lookup(key string) ([]byte, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

func (s *VolatileStore) put(key string, value []byte, ttl time.Duration) {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
}
