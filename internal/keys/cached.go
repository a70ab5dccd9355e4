package keys

import (
	"context"

	"crawlerd/internal/models"
)

type cacheMetrics interface {
	IncKeyCacheHits()
	IncKeyCacheMisses()
}

// CachedValidator puts a Cache in front of another Validator.
type CachedValidator struct {
	inner   Validator
	cache   *Cache
	metrics cacheMetrics
}

func NewCachedValidator(inner Validator, cache *Cache, metrics cacheMetrics) *CachedValidator {
	return &CachedValidator{inner: inner, cache: cache, metrics: metrics}
}

func (v *CachedValidator) Lookup(ctx context.Context, hash string) (*models.ApiKeyRecord, error) {
	if rec, ok := v.cache.Get(hash); ok {
		v.metrics.IncKeyCacheHits()
		return rec, nil
	}
	v.metrics.IncKeyCacheMisses()

	rec, err := v.inner.Lookup(ctx, hash)
	if err != nil {
		return nil, err
	}
	v.cache.Set(hash, rec)
	return rec, nil
}

func (v *CachedValidator) Invalidate(hash string) { v.cache.Invalidate(hash) }

func (v *CachedValidator) InvalidateAll() { v.cache.InvalidateAll() }
