package providers

import "crawlerd/internal/structures"

// MetricsCacheProvider counts hits and misses of the response cache. Only
// Get is a lookup.
type MetricsCacheProvider struct {
	CacheProviderInterface
	metrics MetricsProviderInterface
}

func (c *MetricsCacheProvider) Get(key string) ([]byte, bool) {
	val, ok := c.CacheProviderInterface.Get(key)
	if ok {
		c.metrics.IncCacheHits()
	} else {
		c.metrics.IncCacheMisses()
	}
	return val, ok
}

// NewInstrumentedCacheProvider skips the wrapper when the cache is off so
// that a disabled cache does not report every request as a miss.
func NewInstrumentedCacheProvider(conf *structures.Config, logger Logger, metrics MetricsProviderInterface) CacheProviderInterface {
	inner := NewCacheProvider(conf, logger)
	if _, disabled := inner.(*noopCache); disabled {
		return inner
	}
	return &MetricsCacheProvider{
		CacheProviderInterface: inner,
		metrics:                metrics,
	}
}
