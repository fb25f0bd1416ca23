package retriever

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/config"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/embedding"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/schema"
)

// VectorRetriever searches a milvus collection. It serves both the index
// and document-store retrieval modes; only the collection differs.
type VectorRetriever struct {
	embed      embedding.Provider
	mc         client.Client
	collection string
	topK       int
}

func NewVectorRetriever(ctx context.Context, cfg config.VectorDBConfig, embed embedding.Provider, topK int) (*VectorRetriever, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("milvus: address is required")
	}
	mc, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("milvus: connect: %w", err)
	}
	if topK <= 0 {
		topK = 5
	}
	return &VectorRetriever{embed: embed, mc: mc, collection: cfg.Collection, topK: topK}, nil
}

func (r *VectorRetriever) Type() string  { return "vector" }
func (r *VectorRetriever) Label() string { return r.collection }

func (r *VectorRetriever) Retrieve(ctx context.Context, queries []string) ([]schema.SearchResult, error) {
	return batch(ctx, r, queries, r.topK)
}

func (r *VectorRetriever) Search(ctx context.Context, query string, topK int) ([]schema.SearchResult, error) {
	if topK <= 0 {
		topK = r.topK
	}
	vec, err := r.embed.GetEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, fmt.Errorf("milvus search params: %w", err)
	}
	results, err := r.mc.Search(ctx, r.collection, nil, "",
		[]string{"content", "document", "url"},
		[]entity.Vector{entity.FloatVector(vec)},
		"vector", entity.COSINE, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}

	out := make([]schema.SearchResult, 0, topK)
	for _, rs := range results {
		for i := 0; i < rs.ResultCount; i++ {
			content, err := rs.Fields.GetColumn("content").GetAsString(i)
			if err != nil {
				continue
			}
			document, _ := rs.Fields.GetColumn("document").GetAsString(i)
			url, _ := rs.Fields.GetColumn("url").GetAsString(i)
			out = append(out, schema.SearchResult{
				Document: schema.Document{
					ID:      fmt.Sprintf("%s-%d", r.collection, i),
					Content: content,
					Metadata: map[string]interface{}{
						"document": document,
						"url":      url,
					},
				},
				Score: float64(rs.Scores[i]),
			})
		}
	}
	return out, nil
}

// Close releases the milvus connection.
func (r *VectorRetriever) Close() error { return r.mc.Close() }
