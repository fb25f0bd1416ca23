package retriever

import (
	"context"
	"sync"
	"time"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/common/logger"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/metrics"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/schema"
)

// Retriever is the unified search interface across backends. Retrieve is the
// batch operation the assembler drives; transport failures degrade to an
// empty result, "no results" is an empty list, never an error.
type Retriever interface {
	Type() string
	// Label is the human-readable source label used when the backend
	// cannot enumerate document names.
	Label() string
	Search(ctx context.Context, query string, topK int) ([]schema.SearchResult, error)
	Retrieve(ctx context.Context, queries []string) ([]schema.SearchResult, error)
}

// batch fans the queries out concurrently and collects every result. A
// failed query contributes nothing; it never aborts the batch.
func batch(ctx context.Context, r Retriever, queries []string, topK int) ([]schema.SearchResult, error) {
	var wg sync.WaitGroup
	resCh := make(chan []schema.SearchResult, len(queries))
	for _, q := range queries {
		qq := q
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			res, err := r.Search(ctx, qq, topK)
			if err != nil {
				logger.Warnf("retriever %s: query %q failed: %v", r.Type(), qq, err)
				metrics.ObserveRetriever(r.Type(), start, 0)
				return
			}
			metrics.ObserveRetriever(r.Type(), start, len(res))
			resCh <- res
		}()
	}
	wg.Wait()
	close(resCh)

	out := make([]schema.SearchResult, 0)
	for res := range resCh {
		out = append(out, res...)
	}
	return out, nil
}
