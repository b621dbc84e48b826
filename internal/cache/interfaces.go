// Package cache defines the ephemeral key-value stores backing counters and
// memoized views. Implementations are injected; nothing in the service layer
// touches a concrete store directly.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// CounterStore is a key-value store with atomic per-key increments. There is
// no cross-key atomicity; each increment must itself be race-free under
// concurrent writers.
type CounterStore interface {
	// Increment atomically adds delta to the counter at key, creating it at
	// zero first. A non-zero ttl bounds the key's lifetime from its creation.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Get returns the current counter value, or 0 for an absent key.
	Get(ctx context.Context, key string) (int64, error)

	// Delete removes the counter at key.
	Delete(ctx context.Context, key string) error
}

// Cache is a byte-payload cache with per-key TTLs, used for the time-boxed
// memoized views (active test lists, computed results, statistics).
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
}
