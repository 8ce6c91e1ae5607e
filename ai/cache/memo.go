package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Memo is a string key-value memo shared by concurrent callers.
// Implementations are safe for concurrent use. A failed lookup is reported
// as a miss; a failed store is dropped, so a memo can never fail a caller.
type Memo interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

// LRUMemo is a bounded in-process memo. Least recently used entries are
// evicted once the capacity is reached; entries also expire after ttl when
// ttl is positive.
type LRUMemo struct {
	lru *LRUCache[string, string]
}

func NewLRUMemo(capacity int, ttl time.Duration) *LRUMemo {
	return &LRUMemo{lru: NewLRUCache[string, string](capacity, ttl)}
}

func (m *LRUMemo) Get(_ context.Context, key string) (string, bool) {
	return m.lru.Get(key)
}

func (m *LRUMemo) Set(_ context.Context, key, value string) {
	m.lru.Set(key, value)
}

// MapMemo never evicts. It grows with the number of distinct keys for the
// lifetime of the process.
type MapMemo struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMapMemo() *MapMemo {
	return &MapMemo{items: make(map[string]string)}
}

func (m *MapMemo) Get(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

func (m *MapMemo) Set(_ context.Context, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
}

func (m *MapMemo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// RedisMemo stores entries in Redis so several bot processes share one memo.
// Eviction follows the server's maxmemory policy plus the optional ttl.
type RedisMemo struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func NewRedisMemo(client *redis.Client, prefix string, ttl time.Duration) *RedisMemo {
	return &RedisMemo{client: client, prefix: prefix, ttl: ttl}
}

// Ping checks the connection; callers use it at startup to fail fast.
func (m *RedisMemo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *RedisMemo) Get(ctx context.Context, key string) (string, bool) {
	v, err := m.client.Get(ctx, m.prefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("redis memo lookup failed", "key", key, "error", err)
		}
		return "", false
	}
	return v, true
}

func (m *RedisMemo) Set(ctx context.Context, key, value string) {
	if err := m.client.Set(ctx, m.prefix+key, value, m.ttl).Err(); err != nil {
		slog.Warn("redis memo store failed", "key", key, "error", err)
	}
}
