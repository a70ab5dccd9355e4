package providers

import (
	"strconv"
	"sync"
	"time"
	"unsafe"

	"github.com/coocood/freecache"
	"go.uber.org/atomic"

	"crawlerd/internal/structures"
)

// CacheProviderInterface is the query response cache. Entries written under
// a scope are dropped together by Invalidate(scope); nothing is scanned, the
// scope generation moves on and stale entries age out by TTL.
type CacheProviderInterface interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	SetTTL(key string, value []byte, ttl time.Duration)
	Del(key string)
	ScopedKey(scope, key string) string
	Invalidate(scope string)
}

// scopes hands out per-scope generations.
type scopes struct {
	gens sync.Map // scope -> *atomic.Uint64
}

func (s *scopes) gen(scope string) *atomic.Uint64 {
	if g, ok := s.gens.Load(scope); ok {
		return g.(*atomic.Uint64)
	}
	g, _ := s.gens.LoadOrStore(scope, atomic.NewUint64(0))
	return g.(*atomic.Uint64)
}

func (s *scopes) ScopedKey(scope, key string) string {
	return scope + "@" + strconv.FormatUint(s.gen(scope).Load(), 10) + ":" + key
}

func (s *scopes) Invalidate(scope string) {
	s.gen(scope).Inc()
}

type CacheProvider struct {
	scopes
	cache *freecache.Cache
	ttl   int
}

func NewCacheProvider(conf *structures.Config, logger Logger) CacheProviderInterface {
	if !conf.Cache.Enabled || conf.Cache.Size <= 0 {
		logger.Infof(TypeApp, "Response cache disabled")
		return &noopCache{}
	}

	ttl := ttlSeconds(conf.Cache.TTL)
	logger.Infof(TypeApp, "Response cache: %dMB, TTL=%ds", conf.Cache.Size, ttl)

	return &CacheProvider{
		cache: freecache.NewCache(conf.Cache.Size << 20),
		ttl:   ttl,
	}
}

// ttlSeconds rounds to freecache's whole seconds, never below one.
func ttlSeconds(d time.Duration) int {
	return max(int(d.Seconds()), 1)
}

// keyBytes aliases the key's memory. freecache copies keys before storing,
// so the slice is never retained or written.
func keyBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func (c *CacheProvider) Get(key string) ([]byte, bool) {
	val, err := c.cache.Get(keyBytes(key))
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *CacheProvider) Set(key string, value []byte) {
	_ = c.cache.Set(keyBytes(key), value, c.ttl)
}

func (c *CacheProvider) SetTTL(key string, value []byte, ttl time.Duration) {
	_ = c.cache.Set(keyBytes(key), value, ttlSeconds(ttl))
}

func (c *CacheProvider) Del(key string) {
	c.cache.Del(keyBytes(key))
}

type noopCache struct {
	scopes
}

func (n *noopCache) Get(_ string) ([]byte, bool)                { return nil, false }
func (n *noopCache) Set(_ string, _ []byte)                     {}
func (n *noopCache) SetTTL(_ string, _ []byte, _ time.Duration) {}
func (n *noopCache) Del(_ string)                               {}
