package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// lruCache is a size-bounded in-process backend on hashicorp's expirable LRU.
// The LRU enforces one cache-wide TTL (DefaultExpiration); shorter per-entry
// TTLs are honored lazily via the stored expiry.
type lruCache struct {
	lru *expirable.LRU[string, lruEntry]
}

type lruEntry struct {
	value     interface{}
	expiresAt time.Time // zero means the cache-wide TTL applies alone
}

// NewLRUCache creates a bounded LRU cache.
func NewLRUCache(config LocalConfig) Cache {
	size := config.MaxSize
	if size <= 0 {
		size = 1000
	}
	return &lruCache{
		lru: expirable.NewLRU[string, lruEntry](size, nil, config.DefaultExpiration),
	}
}

func (lc *lruCache) Get(ctx context.Context, key string) (interface{}, bool) {
	entry, ok := lc.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		lc.lru.Remove(key)
		return nil, false
	}
	return entry.value, true
}

func (lc *lruCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	var expiresAt time.Time
	if expiration > 0 {
		expiresAt = time.Now().Add(expiration)
	}
	lc.lru.Add(key, lruEntry{value: value, expiresAt: expiresAt})
	return nil
}

func (lc *lruCache) Delete(ctx context.Context, key string) error {
	lc.lru.Remove(key)
	return nil
}

func (lc *lruCache) Exists(ctx context.Context, key string) bool {
	_, ok := lc.Get(ctx, key)
	return ok
}

func (lc *lruCache) GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool) {
	entry, ok := lc.lru.Get(key)
	if !ok {
		return nil, 0, false
	}
	if entry.expiresAt.IsZero() {
		return entry.value, 0, true
	}
	ttl := time.Until(entry.expiresAt)
	if ttl <= 0 {
		lc.lru.Remove(key)
		return nil, 0, false
	}
	return entry.value, ttl, true
}

func (lc *lruCache) Close() error { return nil }
