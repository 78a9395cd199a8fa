// Package cache is the convenience cache for derived views (state
// snapshots, intensity reports). Redis-backed when an address is
// configured, in-memory otherwise; losing it costs latency, never
// correctness, because the context loop owns the truth.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is the minimal cache surface the API layer uses.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
	Close() error
}

// =============================================================================
// Redis-backed store
// =============================================================================

// RedisStore wraps go-redis v9.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects and pings; the caller decides whether to fall
// back to memory on error.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	slog.Info("cache connected to redis", "addr", addr, "db", db)
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	return val, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

// =============================================================================
// In-memory fallback
// =============================================================================

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is the zero-dependency fallback used in tests and when
// Redis is not configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an empty in-memory cache.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrMiss
	}
	return entry.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Invalidate(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Open picks Redis when addr is set and reachable, memory otherwise.
func Open(addr, password string, db int, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	if addr != "" {
		store, err := NewRedisStore(addr, password, db)
		if err == nil {
			return store
		}
		logger.Warn("redis unavailable, using in-memory cache", "addr", addr, "error", err)
	}
	return NewMemoryStore()
}
