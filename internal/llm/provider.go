package llm

import (
	"context"
	"fmt"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/config"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/schema"
)

// ChatResult carries the completion text and the tokens the call consumed.
// Token counts flow into the per-request usage accumulator at the call site.
type ChatResult struct {
	Text   string
	Tokens int64
}

// Provider is the chat completion interface consumed by the pipeline.
type Provider interface {
	// GenerateChat runs one completion over a system prompt, prior
	// conversation turns, and the user instruction.
	GenerateChat(ctx context.Context, system string, history []schema.ChatMessage, user string) (ChatResult, error)
	GetProviderType() string
}

// NewProvider builds the configured provider.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return newOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
