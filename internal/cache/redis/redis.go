// Package redis implements the cache interfaces on a Redis (or Valkey)
// server via go-redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/geniusdynamics/alumate-sub022/internal/cache"
	"github.com/geniusdynamics/alumate-sub022/internal/config"
)

// Store implements cache.CounterStore and cache.Cache on one Redis client.
type Store struct {
	client *redis.Client
	log    *zap.Logger
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, cfg config.Redis, log *zap.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info("Redis connection established",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.Int("db", cfg.DB))

	return &Store{client: client, log: log}, nil
}

// Increment relies on Redis INCRBY for per-key atomicity. The TTL is set only
// when the increment created the key, so an ongoing counter keeps its window.
func (s *Store) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	val, err := s.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}

	if ttl > 0 && val == delta {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			s.log.Warn("Failed to set counter TTL",
				zap.String("key", key),
				zap.Error(err))
		}
	}

	return val, nil
}

// Get returns 0 for absent keys, matching counter semantics.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, nil
}

// Delete removes a single counter key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Set stores a cache payload with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// cacheGet retrieves a cache payload; absence maps to cache.ErrCacheMiss.
func (s *Store) cacheGet(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

// deleteAll removes a set of cache keys in one round trip.
func (s *Store) deleteAll(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Counters returns the store as a CounterStore.
func (s *Store) Counters() cache.CounterStore {
	return s
}

// Payloads returns a cache.Cache view of the store. A separate view is needed
// because Get has counter semantics on the store itself.
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
