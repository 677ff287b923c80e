package providers

import "referrald/internal/structures"

type countingCache struct {
	inner   CacheProviderInterface
	metrics MetricsProviderInterface
}

func (c *countingCache) Get(key string) ([]byte, bool) {
	val, ok := c.inner.Get(key)
	if ok {
		c.metrics.IncCacheHits()
		return val, true
	}
	c.metrics.IncCacheMisses()
	return nil, false
}

func (c *countingCache) Set(key string, value []byte) {
	c.inner.Set(key, value)
}

// NewInstrumentedCacheProvider counts hits and misses of the response cache.
// A disabled cache is returned bare, every lookup on it would be a miss.
func NewInstrumentedCacheProvider(conf *structures.Config, logger Logger, metrics MetricsProviderInterface) CacheProviderInterface {
	inner := NewCacheProvider(conf, logger)
	if !conf.Cache.Enabled {
		return inner
	}
	return &countingCache{inner: inner, metrics: metrics}
}
