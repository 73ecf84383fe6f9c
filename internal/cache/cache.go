package cache

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"
)

// CachedResponse represents a cached answer
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// Cache keeps answers by query text for a fixed time to live
type Cache struct {
	entries sync.Map
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache whose entries expire after ttl. A non-positive ttl
// disables caching.
func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now}
}

// GenerateCacheKey generates a cache key from the query text
func GenerateCacheKey(query string) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(query)))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns the cached answer for query, if it has not expired.
func (c *Cache) Get(query string) (string, bool) {
	if c.ttl <= 0 {
		return "", false
	}
	key := GenerateCacheKey(query)
	val, ok := c.entries.Load(key)
	if !ok {
		return "", false
	}
	cached := val.(CachedResponse)
	if c.now().Sub(cached.Timestamp) >= c.ttl {
		c.entries.CompareAndDelete(key, val)
		return "", false
	}
	return cached.Response, true
}

// Set stores response for query.
func (c *Cache) Set(query, response string) {
	if c.ttl <= 0 {
		return
	}
	c.entries.Store(GenerateCacheKey(query), CachedResponse{
		Response:  response,
		Timestamp: c.now(),
	})
}
