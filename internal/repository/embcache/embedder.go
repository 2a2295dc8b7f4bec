// Package embcache decorates an embedding provider with an in-memory
// TTL cache so repeated queries do not hit the embedding API.
package embcache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/seamark-nav/seamark/internal/cache"
	"github.com/seamark-nav/seamark/internal/domain"
)

// Compile-time check: CachedEmbedder implements domain.Embedder.
var _ domain.Embedder = (*CachedEmbedder)(nil)

// CachedEmbedder caches single-text embeddings keyed by text and model.
// Batch calls bypass the cache: they only run during background indexing,
// where each text is typically seen once.
type CachedEmbedder struct {
	inner      domain.Embedder
	cache      *cache.Cache
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	c *cache.Cache,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		cache:      c,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.VectorKey(text, c.inner.Model())

	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			c.incCache("hit")
			return vec, nil
		}
		c.logger.Warn("Cached embedding has unexpected type, dropping", zap.String("key", key))
		c.cache.Delete(key)
	}

	c.incCache("miss")

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.SetTTL(key, vec, c.ttl)
	return vec, nil
}

// EmbedBatch delegates to the inner embedder without touching the cache.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

// Dimension reports the inner embedder's vector length.
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

// Model reports the inner embedder's model name.
func (c *CachedEmbedder) Model() string { return c.inner.Model() }

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
