package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/config"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/evidence"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/llm"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/schema"
)

// routingLLM answers each pipeline prompt from its system text.
type routingLLM struct {
	failAll bool
}

func (m *routingLLM) GenerateChat(_ context.Context, system string, _ []schema.ChatMessage, user string) (llm.ChatResult, error) {
	if m.failAll {
		return llm.ChatResult{}, errors.New("model unavailable")
	}
	switch {
	case strings.Contains(system, "contextualizes"):
		return llm.ChatResult{Text: "What is the capital of France?", Tokens: 5}, nil
	case strings.Contains(system, "subqueries"):
		return llm.ChatResult{Text: "subqueries 1: capital France", Tokens: 5}, nil
	case strings.Contains(system, "step back"):
		return llm.ChatResult{Text: "stepback query 1: capitals of Europe", Tokens: 5}, nil
	case strings.Contains(system, "Rewrite exactly the same text"):
		start := strings.Index(user, "------\n") + len("------\n")
		end := strings.LastIndex(user, "\n------")
		return llm.ChatResult{Text: user[start:end], Tokens: 5}, nil
	case strings.Contains(system, "suggested questions"):
		return llm.ChatResult{Text: "question 1: And Germany?\nquestion 2: And Spain?\nquestion 3: And Italy?", Tokens: 5}, nil
	default:
		return llm.ChatResult{Text: "Paris is the capital of France", Tokens: 5}, nil
	}
}

func (m *routingLLM) GetProviderType() string { return "mock" }

type nearEmbedding struct{}

func (nearEmbedding) GetEmbedding(context.Context, string) ([]float32, error) {
	return []float32{1}, nil
}

func (nearEmbedding) Distance(context.Context, string, string) float64 { return 0.01 }

type fixedRetriever struct {
	results []schema.SearchResult
}

func (f *fixedRetriever) Type() string  { return "fixed" }
func (f *fixedRetriever) Label() string { return "test index" }

func (f *fixedRetriever) Search(context.Context, string, int) ([]schema.SearchResult, error) {
	return f.results, nil
}

func (f *fixedRetriever) Retrieve(context.Context, []string) ([]schema.SearchResult, error) {
	return f.results, nil
}

func testPipelineConfig() *config.Config {
	return &config.Config{
		Pipeline: config.PipelineConfig{
			Expansion:    config.ExpansionConfig{StandaloneDriftTolerance: 0.1, ChunksPerQuery: 5},
			Context:      config.ContextConfig{MaxChunks: 15, MaxTokens: 100000},
			Sourcing:     config.SourcingConfig{SourcesPerSentence: 3, MinGroupChars: 200, WebChunkCap: 10},
			Splitter:     config.SplitterConfig{ChunkTokens: 500},
			ErrorMessage: config.DefaultErrorMessage,
		},
		Thresholds: config.Thresholds{
			ChunkScoreLimit:            0.40,
			SourceDistanceLimit:        0.15,
			SourceDistanceNeighbor:     0.05,
			HallucinationDistanceLimit: 0.35,
		},
	}
}

func counter() countByChar { return countByChar{} }

type countByChar struct{}

func (countByChar) Count(text string) int { return len(text) }

func TestAnswerChatMode(t *testing.T) {
	p := New(testPipelineConfig(), &routingLLM{}, nearEmbedding{}, counter(), nil, nil)

	resp := p.Answer(context.Background(), Request{Question: "capital of France?", Mode: schema.ModeChat})

	if resp.Answer != "Paris is the capital of France" {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
	if strings.Contains(resp.Answer, "[") {
		t.Errorf("chat mode must not carry reference tags")
	}
	if len(resp.References) != 0 || len(resp.QueriesGenerated) != 0 {
		t.Errorf("chat mode must skip retrieval, got %d refs %d queries", len(resp.References), len(resp.QueriesGenerated))
	}
	if len(resp.History) != 2 || resp.History[0].Role != "user" || resp.History[1].Role != "assistant" {
		t.Errorf("history not extended: %+v", resp.History)
	}
	if len(resp.FollowUpQuestions) != 3 {
		t.Errorf("expected 3 follow-ups, got %v", resp.FollowUpQuestions)
	}
	if resp.TokensUsed == 0 {
		t.Errorf("token usage not accumulated")
	}
	if _, err := base64.StdEncoding.DecodeString(resp.AnswerHTML); err != nil {
		t.Errorf("answer html is not base64: %v", err)
	}
}

func TestAnswerIndexModeSourcesAnswer(t *testing.T) {
	ret := &fixedRetriever{results: []schema.SearchResult{
		{Document: schema.Document{ID: "geo.pdf", Content: "Paris is the capital and most populous city of France."}, Score: 0.9},
		{Document: schema.Document{ID: "geo.pdf", Content: "France is a country in Western Europe."}, Score: 0.8},
	}}
	p := New(testPipelineConfig(), &routingLLM{}, nearEmbedding{}, counter(), ret, nil)

	resp := p.Answer(context.Background(), Request{Question: "capital of France?", Mode: schema.ModeIndex})

	if !strings.Contains(resp.Answer, "[1]") {
		t.Errorf("index-mode answer should carry reference tags, got %q", resp.Answer)
	}
	if len(resp.References) == 0 {
		t.Errorf("referenced chunks missing from response")
	}
	for _, ref := range resp.References {
		if !ref.IsUsedInAnswer {
			t.Errorf("reference %d not marked as used", ref.Index)
		}
	}
	if len(resp.QueriesGenerated) == 0 {
		t.Errorf("expanded queries missing from response")
	}
}

func TestAnswerLLMFailureYieldsSentinel(t *testing.T) {
	p := New(testPipelineConfig(), &routingLLM{failAll: true}, nearEmbedding{}, counter(), nil, nil)

	resp := p.Answer(context.Background(), Request{Question: "capital of France?", Mode: schema.ModeChat})

	if !strings.HasPrefix(resp.Answer, config.DefaultErrorMessage) {
		t.Errorf("expected the error sentinel, got %q", resp.Answer)
	}
	if !strings.Contains(resp.Answer, "model unavailable") {
		t.Errorf("failure cause missing from answer: %q", resp.Answer)
	}
	if len(resp.FollowUpQuestions) != 0 {
		t.Errorf("follow-ups should be empty on total failure")
	}
}

// reformatOnlyLLM fails every completion except the markdown reformat, which
// would rewrite whatever it is given.
type reformatOnlyLLM struct{}

func (reformatOnlyLLM) GenerateChat(_ context.Context, system string, _ []schema.ChatMessage, _ string) (llm.ChatResult, error) {
	if strings.Contains(system, "Rewrite exactly the same text") {
		return llm.ChatResult{Text: "a rewritten answer", Tokens: 5}, nil
	}
	return llm.ChatResult{}, errors.New("model unavailable")
}

func (reformatOnlyLLM) GetProviderType() string { return "mock" }

func TestAnswerSentinelSkipsReformat(t *testing.T) {
	p := New(testPipelineConfig(), reformatOnlyLLM{}, nearEmbedding{}, counter(), nil, nil)

	resp := p.Answer(context.Background(), Request{Question: "capital of France?", Mode: schema.ModeChat})

	if !strings.HasPrefix(resp.Answer, config.DefaultErrorMessage) {
		t.Fatalf("expected the error sentinel, got %q", resp.Answer)
	}
	if strings.Contains(resp.Answer, "a rewritten answer") {
		t.Errorf("error sentinel must not be sent through the reformatter: %q", resp.Answer)
	}
}

func TestAnswerDocumentModeWithoutDocumentsSkipsRetrieval(t *testing.T) {
	p := New(testPipelineConfig(), &routingLLM{}, nearEmbedding{}, counter(), nil, nil)

	resp := p.Answer(context.Background(), Request{Question: "capital of France?", Mode: schema.ModeDocument})
	if len(resp.References) != 0 {
		t.Errorf("no documents means no retrieval")
	}
}

func TestSourcingContextCapsWebChunks(t *testing.T) {
	p := New(testPipelineConfig(), &routingLLM{}, nearEmbedding{}, counter(), nil, nil)
	ec := &evidence.Context{}
	for i := 0; i < 12; i++ {
		ec.Chunks = append(ec.Chunks, &schema.EvidenceChunk{Index: i + 1, Content: "chunk"})
	}

	capped := p.sourcingContext(ec, schema.ModeWeb)
	if len(capped.Chunks) != 10 {
		t.Fatalf("expected 10 chunks after the web cap, got %d", len(capped.Chunks))
	}
	capped.MarkUsed(3)
	if !ec.Chunks[2].IsUsedInAnswer {
		t.Errorf("marking through the capped view must reach the original context")
	}

	uncapped := p.sourcingContext(ec, schema.ModeIndex)
	if len(uncapped.Chunks) != 12 {
		t.Errorf("non-web modes must not be capped")
	}
}
