package counter

import (
	"context"
	"sync"
	"time"
)

// MemStore is the in-process Store implementation, used in tests and when
// the service runs without Redis. TTLs are tracked per key and checked
// lazily on access.
type MemStore struct {
	mu      sync.Mutex
	values  map[string]int64
	expires map[string]time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		values:  make(map[string]int64),
		expires: make(map[string]time.Time),
	}
}

func (s *MemStore) IncrBy(_ context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(key)
	s.values[key] += n
	return s.values[key], nil
}

func (s *MemStore) DecrBy(_ context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(key)
	s.values[key] -= n
	return s.values[key], nil
}

func (s *MemStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(key)
	val, ok := s.values[key]
	return val, ok, nil
}

func (s *MemStore) Set(_ context.Context, key string, value int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.expires[key] = time.Now().Add(ttl)
	return nil
}

func (s *MemStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		s.expires[key] = time.Now().Add(ttl)
	}
	return nil
}

func (s *MemStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	delete(s.expires, key)
	return nil
}

func (s *MemStore) evictLocked(key string) {
	if exp, ok := s.expires[key]; ok && time.Now().After(exp) {
		delete(s.values, key)
		delete(s.expires, key)
	}
}
