// Package memory implements the cache interfaces in process memory. It backs
// tests and single-node deployments that run without Redis.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geniusdynamics/alumate-sub022/internal/cache"
)

type counterEntry struct {
	value     int64
	expiresAt time.Time
}

type payloadEntry struct {
	value     []byte
	expiresAt time.Time
}

// Store is a mutex-guarded in-memory CounterStore and Cache.
type Store struct {
	mu       sync.Mutex
	counters map[string]*counterEntry
	payloads map[string]payloadEntry
	now      func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		counters: make(map[string]*counterEntry),
		payloads: make(map[string]payloadEntry),
		now:      time.Now,
	}
}

// Increment adds delta under the store mutex, so concurrent writers never
// lose updates.
func (s *Store) Increment(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.counters[key]
	if ok && !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		ok = false
	}
	if !ok {
		entry = &counterEntry{}
		if ttl > 0 {
			entry.expiresAt = s.now().Add(ttl)
		}
		s.counters[key] = entry
	}

	entry.value += delta
	return entry.value, nil
}

// Get returns 0 for absent or expired keys.
func (s *Store) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.counters[key]
	if !ok {
		return 0, nil
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.counters, key)
		return 0, nil
	}
	return entry.value, nil
}

// Delete removes a counter key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}

// Set stores a payload with an optional TTL.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := payloadEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.payloads[key] = entry
	return nil
}

// cacheGet is the payload read path; wired through Payloads().
func (s *Store) cacheGet(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.payloads[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.payloads, key)
		return nil, cache.ErrCacheMiss
	}
	return append([]byte(nil), entry.value...), nil
}

func (s *Store) deleteAll(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.payloads, key)
	}
	return nil
}

// Counters returns the store as a CounterStore.
func (s *Store) Counters() cache.CounterStore {
	return s
}

// Payloads returns a cache.Cache view of the store.
func (s *Store) Payloads() cache.Cache {
	return &payloadView{store: s}
}

type payloadView struct {
	store *Store
}

func (v *payloadView) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return v.store.Set(ctx, key, value, ttl)
}

func (v *payloadView) Get(ctx context.Context, key string) ([]byte, error) {
	return v.store.cacheGet(ctx, key)
}

func (v *payloadView) Delete(ctx context.Context, keys ...string) error {
	return v.store.deleteAll(ctx, keys...)
}
