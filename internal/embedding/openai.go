package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/common/logger"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/config"
)

type openAIProvider struct {
	client openai.Client
	model  string
}

func newOpenAIProvider(cfg config.EmbeddingConfig) (*openAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedding: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openAIProvider{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

func (p *openAIProvider) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embedding: empty response")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (p *openAIProvider) Distance(ctx context.Context, a, b string) float64 {
	va, err := p.GetEmbedding(ctx, a)
	if err != nil {
		logger.Warnf("embedding: distance fallback to sentinel: %v", err)
		return SentinelDistance
	}
	vb, err := p.GetEmbedding(ctx, b)
	if err != nil {
		logger.Warnf("embedding: distance fallback to sentinel: %v", err)
		return SentinelDistance
	}
	d, err := CosineDistance(va, vb)
	if err != nil {
		logger.Warnf("embedding: distance fallback to sentinel: %v", err)
		return SentinelDistance
	}
	return d
}
