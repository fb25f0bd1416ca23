package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/config"
)

// SentinelDistance stands in for a failed distance computation. It is far
// above every calibrated threshold, so a failed comparison never admits a
// chunk.
const SentinelDistance = 100.0

// Provider computes embeddings and semantic distances. Lower distance means
// more similar.
type Provider interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
	// Distance returns the cosine distance between two texts. It never
	// fails: errors degrade to SentinelDistance.
	Distance(ctx context.Context, a, b string) float64
}

// NewProvider builds the configured provider, wrapped with the distance
// memoization cache.
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		p, err := newOpenAIProvider(cfg)
		if err != nil {
			return nil, err
		}
		return newCachedProvider(p, cfg.CacheSize), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// CosineDistance is 1 minus the cosine similarity of two vectors.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("vectors have mismatched dimensions %d and %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("zero-magnitude vector")
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}
