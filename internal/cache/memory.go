package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider for single-replica deployments, the
// offline CLI and tests.
type MemoryProvider struct {
	mu   sync.Mutex
	data map[string]item
	now  func() time.Time
}

type item struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an empty in-memory cache.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]item), now: time.Now}
}

// Get retrieves a cached value if present and not expired.
func (c *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.lookup(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), it.value...), nil
}

// Set stores a value with optional TTL.
func (c *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = c.entry(value, ttl)
	return nil
}

// SetNX stores the value only when the key is absent or expired.
func (c *MemoryProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lookup(key); ok {
		return false, nil
	}
	c.data[key] = c.entry(value, ttl)
	return true, nil
}

// Del removes an entry.
func (c *MemoryProvider) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Close drops every entry.
func (c *MemoryProvider) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]item)
	return nil
}

// lookup must be called with mu held; it evicts expired entries.
func (c *MemoryProvider) lookup(key string) (item, bool) {
	it, ok := c.data[key]
	if !ok {
		return item{}, false
	}
	if !it.expiresAt.IsZero() && c.now().After(it.expiresAt) {
		delete(c.data, key)
		return item{}, false
	}
	return it, true
}

func (c *MemoryProvider) entry(value []byte, ttl time.Duration) item {
	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}
	return item{value: append([]byte(nil), value...), expiresAt: expires}
}
