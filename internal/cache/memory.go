package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process byte cache with per-entry TTLs.
type Memory struct {
	cache *gocache.Cache
}

// NewMemory creates a memory cache. A zero defaultTTL means entries never
// expire unless Set is called with an explicit TTL.
func NewMemory(defaultTTL, cleanupInterval time.Duration) *Memory {
	if defaultTTL == 0 {
		defaultTTL = gocache.NoExpiration
	}
	return &Memory{cache: gocache.New(defaultTTL, cleanupInterval)}
}

// Get retrieves a value.
func (c *Memory) Get(key string) ([]byte, bool) {
	if val, found := c.cache.Get(key); found {
		return val.([]byte), true
	}
	return nil, false
}

// Set stores a value with the given TTL (0 uses the default).
func (c *Memory) Set(key string, value []byte, ttl time.Duration) error {
	c.cache.Set(key, value, ttl)
	return nil
}

// Delete removes a value.
func (c *Memory) Delete(key string) error {
	c.cache.Delete(key)
	return nil
}

// Clear removes all values.
func (c *Memory) Clear() error {
	c.cache.Flush()
	return nil
}
