package embedding

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/cache"
)

// cachedProvider memoizes embeddings and pairwise distances. Attribution
// computes one distance per sentence group and chunk, so the same chunk text
// is embedded many times within a single request without this.
type cachedProvider struct {
	inner     Provider
	vectors   cache.Cache[[]float32]
	distances cache.Cache[float64]
}

func newCachedProvider(inner Provider, size int) Provider {
	return &cachedProvider{
		inner:     inner,
		vectors:   cache.NewLRU[[]float32](size, 10*time.Minute),
		distances: cache.NewLRU[float64](size, 10*time.Minute),
	}
}

func textKey(parts ...string) string {
	h := sha1.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *cachedProvider) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := textKey(text)
	if v, ok := c.vectors.Get(key); ok {
		return v, nil
	}
	v, err := c.inner.GetEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	c.vectors.Set(key, v, 0)
	return v, nil
}

func (c *cachedProvider) Distance(ctx context.Context, a, b string) float64 {
	key := textKey(a, b)
	if d, ok := c.distances.Get(key); ok {
		return d
	}
	d := c.inner.Distance(ctx, a, b)
	if d < SentinelDistance {
		// sentinel results are transient failures, not worth caching
		c.distances.Set(key, d, 0)
	}
	return d
}
