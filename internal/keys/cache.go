package keys

import (
	"time"

	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"

	"crawlerd/internal/models"
)

const minCacheBytes = 512 * 1024

// Cache holds resolved key records for a fixed TTL. Only successful lookups
// are stored, so a key created after a miss is picked up on the next request.
type Cache struct {
	cache *freecache.Cache
	ttl   int
}

// NewCache returns nil when ttl is below one second; a nil *Cache is a valid
// cache that never hits.
func NewCache(sizeMB int, ttl time.Duration) *Cache {
	seconds := int(ttl.Seconds())
	if seconds < 1 {
		return nil
	}
	size := max(sizeMB*1024*1024, minCacheBytes)
	return &Cache{cache: freecache.NewCache(size), ttl: seconds}
}

func (c *Cache) Get(hash string) (*models.ApiKeyRecord, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.cache.Get([]byte(hash))
	if err != nil {
		return nil, false
	}
	var rec models.ApiKeyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.cache.Del([]byte(hash))
		return nil, false
	}
	return &rec, true
}

func (c *Cache) Set(hash string, rec *models.ApiKeyRecord) {
	if c == nil || rec == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = c.cache.Set([]byte(hash), raw, c.ttl)
}

// Invalidate drops one key, e.g. after it was revoked.
func (c *Cache) Invalidate(hash string) {
	if c == nil {
		return
	}
	c.cache.Del([]byte(hash))
}

func (c *Cache) InvalidateAll() {
	if c == nil {
		return
	}
	c.cache.Clear()
}

func (c *Cache) Len() int64 {
	if c == nil {
		return 0
	}
	return c.cache.EntryCount()
}
