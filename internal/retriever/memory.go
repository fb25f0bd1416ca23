package retriever

import (
	"context"
	"sort"
	"sync"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/common/logger"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/embedding"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/schema"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/textsplitter"
)

// MemoryRetriever searches documents supplied with the request. Each
// document is split, embedded once at construction, and searched with
// cosine similarity. The store lives for one request only.
type MemoryRetriever struct {
	embed   embedding.Provider
	entries []memoryEntry
	topK    int
}

type memoryEntry struct {
	content  string
	document string
	vector   []float32
}

// NewMemoryRetriever indexes the documents. Chunks whose embedding fails are
// skipped and logged, not fatal.
func NewMemoryRetriever(ctx context.Context, embed embedding.Provider, splitter *textsplitter.Splitter, docs []schema.Document, topK int) *MemoryRetriever {
	if topK <= 0 {
		topK = 5
	}
	r := &MemoryRetriever{embed: embed, topK: topK}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, doc := range docs {
		for _, chunk := range splitter.Split(doc.Content) {
			wg.Add(1)
			go func(content, document string) {
				defer wg.Done()
				vec, err := embed.GetEmbedding(ctx, content)
				if err != nil {
					logger.Warnf("memory retriever: embed chunk of %q failed: %v", document, err)
					return
				}
				mu.Lock()
				r.entries = append(r.entries, memoryEntry{content: content, document: document, vector: vec})
				mu.Unlock()
			}(chunk, doc.ID)
		}
	}
	wg.Wait()
	return r
}

func (r *MemoryRetriever) Type() string  { return "memory" }
func (r *MemoryRetriever) Label() string { return "uploaded documents" }

// Len reports how many chunks were indexed.
func (r *MemoryRetriever) Len() int { return len(r.entries) }

func (r *MemoryRetriever) Retrieve(ctx context.Context, queries []string) ([]schema.SearchResult, error) {
	return batch(ctx, r, queries, r.topK)
}

func (r *MemoryRetriever) Search(ctx context.Context, query string, topK int) ([]schema.SearchResult, error) {
	if topK <= 0 {
		topK = r.topK
	}
	qv, err := r.embed.GetEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}
	scored := make([]schema.SearchResult, 0, len(r.entries))
	for _, e := range r.entries {
		dist, err := embedding.CosineDistance(qv, e.vector)
		if err != nil {
			continue
		}
		scored = append(scored, schema.SearchResult{
			Document: schema.Document{
				ID:       e.document,
				Content:  e.content,
				Metadata: map[string]interface{}{"document": e.document},
			},
			Score: 1 - dist,
		})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}
