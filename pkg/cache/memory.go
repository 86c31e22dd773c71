package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value   interface{}
	expires time.Time // zero when only the cache-wide TTL applies
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// MemoryCache is a size-bounded LRU. The cache-wide TTL evicts entries
// and shorter per-entry TTLs are checked on read.
type MemoryCache struct {
	entries *lru.LRU[string, memoryEntry]
	ttl     time.Duration
	mu      sync.RWMutex
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1000
	}
	return &MemoryCache{
		entries: lru.NewLRU[string, memoryEntry](size, nil, ttl),
		ttl:     ttl,
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	m.mu.RLock()
	entry, ok := m.entries.Get(key)
	m.mu.RUnlock()

	if !ok {
		return nil, ErrMiss
	}
	if entry.expired(time.Now()) {
		m.Delete(ctx, key)
		return nil, ErrMiss
	}
	return entry.value, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 && (m.ttl <= 0 || ttl < m.ttl) {
		entry.expires = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.entries.Add(key, entry)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	m.entries.Remove(key)
	m.mu.Unlock()
	return nil
}

// DeletePattern removes every key starting with pattern. A trailing "*"
// is accepted for parity with Redis globs.
func (m *MemoryCache) DeletePattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			m.entries.Remove(key)
		}
	}
	return nil
}

func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	entry, ok := m.entries.Peek(key)
	m.mu.RUnlock()
	return ok && !entry.expired(time.Now()), nil
}

// Len reports the number of live entries.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries.Len()
}

func (m *MemoryCache) Close() error {
	m.mu.Lock()
	m.entries.Purge()
	m.mu.Unlock()
	return nil
}
