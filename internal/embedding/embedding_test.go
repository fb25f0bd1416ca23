package embedding

import (
	"context"
	"math"
	"testing"
)

type countingProvider struct {
	embedCalls    int
	distanceCalls int
	distance      float64
}

func (c *countingProvider) GetEmbedding(context.Context, string) ([]float32, error) {
	c.embedCalls++
	return []float32{1, 0}, nil
}

func (c *countingProvider) Distance(context.Context, string, string) float64 {
	c.distanceCalls++
	return c.distance
}

func TestCosineDistance(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CosineDistance(tc.a, tc.b)
			if err != nil {
				t.Fatalf("cosine distance: %v", err)
			}
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("want %.3f, got %.3f", tc.want, got)
			}
		})
	}
}

func TestCosineDistanceErrors(t *testing.T) {
	if _, err := CosineDistance([]float32{1}, []float32{1, 0}); err == nil {
		t.Errorf("dimension mismatch must error")
	}
	if _, err := CosineDistance([]float32{0, 0}, []float32{1, 0}); err == nil {
		t.Errorf("zero vector must error")
	}
	if _, err := CosineDistance(nil, nil); err == nil {
		t.Errorf("empty vectors must error")
	}
}

func TestCachedProviderMemoizesEmbeddings(t *testing.T) {
	inner := &countingProvider{}
	p := newCachedProvider(inner, 16)

	for i := 0; i < 3; i++ {
		if _, err := p.GetEmbedding(context.Background(), "same text"); err != nil {
			t.Fatalf("get embedding: %v", err)
		}
	}
	if inner.embedCalls != 1 {
		t.Errorf("expected a single backend call, got %d", inner.embedCalls)
	}
	if _, err := p.GetEmbedding(context.Background(), "other text"); err != nil {
		t.Fatalf("get embedding: %v", err)
	}
	if inner.embedCalls != 2 {
		t.Errorf("distinct text must reach the backend, got %d calls", inner.embedCalls)
	}
}

func TestCachedProviderMemoizesDistances(t *testing.T) {
	inner := &countingProvider{distance: 0.25}
	p := newCachedProvider(inner, 16)

	for i := 0; i < 3; i++ {
		if d := p.Distance(context.Background(), "a", "b"); d != 0.25 {
			t.Fatalf("unexpected distance %v", d)
		}
	}
	if inner.distanceCalls != 1 {
		t.Errorf("expected a single backend call, got %d", inner.distanceCalls)
	}
	// argument order matters for the key
	p.Distance(context.Background(), "b", "a")
	if inner.distanceCalls != 2 {
		t.Errorf("swapped arguments must miss the cache, got %d calls", inner.distanceCalls)
	}
}

func TestCachedProviderDoesNotCacheSentinel(t *testing.T) {
	inner := &countingProvider{distance: SentinelDistance}
	p := newCachedProvider(inner, 16)

	p.Distance(context.Background(), "a", "b")
	p.Distance(context.Background(), "a", "b")
	if inner.distanceCalls != 2 {
		t.Errorf("sentinel distances must not be cached, got %d calls", inner.distanceCalls)
	}
}
