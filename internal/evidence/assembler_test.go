package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/config"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/schema"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/tokens"
)

type fakeRetriever struct {
	results []schema.SearchResult
	err     error
	queries []string
}

func (f *fakeRetriever) Type() string  { return "fake" }
func (f *fakeRetriever) Label() string { return "fake source" }

func (f *fakeRetriever) Search(_ context.Context, query string, _ int) ([]schema.SearchResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeRetriever) Retrieve(_ context.Context, queries []string) ([]schema.SearchResult, error) {
	f.queries = queries
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func result(doc, content string, score float64) schema.SearchResult {
	return schema.SearchResult{
		Document: schema.Document{ID: doc, Content: content, Metadata: map[string]interface{}{"document": doc}},
		Score:    score,
	}
}

func charCounter() tokens.Counter {
	return tokens.CounterFunc(func(text string) int { return len(text) })
}

func newTestAssembler(maxChunks, maxTokens int, limit float64) *Assembler {
	return NewAssembler(
		config.ContextConfig{MaxChunks: maxChunks, MaxTokens: maxTokens},
		config.Thresholds{ChunkScoreLimit: limit},
		charCounter(),
	)
}

func TestAssembleSelection(t *testing.T) {
	ret := &fakeRetriever{results: []schema.SearchResult{
		result("a.pdf", "alpha", 0.91),
		result("b.pdf", "bravo", 0.85),
		result("a.pdf", "alpha", 0.80), // duplicate text
		result("b.pdf", "charlie", 0.60),
		result("c.pdf", "delta", 0.40), // at the limit, excluded
		result("c.pdf", "echo", 0.10),
	}}
	a := newTestAssembler(15, 100000, 0.40)

	ec := a.Assemble(context.Background(), ret, []string{"q1", "q2"}, false)

	if len(ec.Chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(ec.Chunks))
	}
	for i, c := range ec.Chunks {
		if c.Index != i+1 {
			t.Errorf("chunk %d has index %d, indices must be 1-based and contiguous", i, c.Index)
		}
		if c.Similarity <= 0.40 {
			t.Errorf("chunk %d admitted with score %.2f at or below the limit", i, c.Similarity)
		}
	}
	seen := map[string]bool{}
	for _, c := range ec.Chunks {
		if seen[c.Content] {
			t.Errorf("duplicate chunk text %q admitted", c.Content)
		}
		seen[c.Content] = true
	}
	if len(ec.DocumentsUsed) != 2 || ec.DocumentsUsed[0] != "a.pdf" || ec.DocumentsUsed[1] != "b.pdf" {
		t.Errorf("documents used should follow first-seen order, got %v", ec.DocumentsUsed)
	}
}

func TestAssembleCapsChunkCount(t *testing.T) {
	ret := &fakeRetriever{}
	for i := 0; i < 30; i++ {
		ret.results = append(ret.results, result("doc", fmt.Sprintf("chunk %d", i), 0.9-float64(i)*0.001))
	}
	a := newTestAssembler(15, 100000, 0.40)

	ec := a.Assemble(context.Background(), ret, []string{"q"}, false)
	if len(ec.Chunks) != 15 {
		t.Errorf("expected the cap of 15 chunks, got %d", len(ec.Chunks))
	}
}

func TestAssembleSerializationGroupsByDocument(t *testing.T) {
	ret := &fakeRetriever{results: []schema.SearchResult{
		result("low.pdf", "low doc text", 0.70),
		result("high.pdf", "high doc first", 0.95),
		result("high.pdf", "high doc second", 0.50),
	}}
	a := newTestAssembler(15, 100000, 0.40)

	ec := a.Assemble(context.Background(), ret, []string{"q"}, false)

	high := strings.Index(ec.Serialized, "Source from 'high.pdf':")
	low := strings.Index(ec.Serialized, "Source from 'low.pdf':")
	if high == -1 || low == -1 {
		t.Fatalf("missing source block:\n%s", ec.Serialized)
	}
	if high > low {
		t.Errorf("document with the best chunk must serialize first")
	}
	if !strings.Contains(ec.Serialized, "high doc first\n\nhigh doc second") {
		t.Errorf("chunks of one document must be joined with a blank line:\n%s", ec.Serialized)
	}
	if !strings.Contains(ec.Serialized, "------------------------------") {
		t.Errorf("source delimiter missing")
	}
}

func TestAssembleWebModeConcatenates(t *testing.T) {
	ret := &fakeRetriever{results: []schema.SearchResult{
		result("", "web snippet one", 1.0),
	}}
	ret.results[0].Document.Metadata = nil
	a := newTestAssembler(15, 100000, 0.40)

	ec := a.Assemble(context.Background(), ret, []string{"q"}, true)
	if strings.Contains(ec.Serialized, "Source from") {
		t.Errorf("web serialization must not carry source labels:\n%s", ec.Serialized)
	}
	if !strings.HasPrefix(ec.Serialized, "web snippet one") {
		t.Errorf("unexpected web serialization: %q", ec.Serialized)
	}
}

func TestAssembleStripsNonPrintable(t *testing.T) {
	ret := &fakeRetriever{results: []schema.SearchResult{
		result("a.pdf", "café menu — page", 0.9),
	}}
	a := newTestAssembler(15, 100000, 0.40)

	ec := a.Assemble(context.Background(), ret, []string{"q"}, false)
	if !strings.Contains(ec.Serialized, "caf menu  page") {
		t.Errorf("non-ascii runes must be stripped from the serialized text:\n%q", ec.Serialized)
	}
}

func TestAssembleReducesToTokenBudget(t *testing.T) {
	long := strings.Repeat("paragraph text ", 200)
	ret := &fakeRetriever{results: []schema.SearchResult{result("a.pdf", long, 0.9)}}
	a := newTestAssembler(15, 100, 0.40)

	ec := a.Assemble(context.Background(), ret, []string{"q"}, false)
	if got := len(ec.Serialized); got > 90 {
		t.Errorf("serialized text not reduced to the budget, %d chars remain", got)
	}
	if len(ec.Chunks) != 1 {
		t.Errorf("reduction must not drop chunks")
	}
}

func TestAssembleRetrievalFailureIsEmpty(t *testing.T) {
	ret := &fakeRetriever{err: errors.New("backend down")}
	a := newTestAssembler(15, 100000, 0.40)

	ec := a.Assemble(context.Background(), ret, []string{"q"}, false)
	if len(ec.Chunks) != 0 || ec.Serialized != "" || len(ec.DocumentsUsed) != 0 {
		t.Errorf("retrieval failure must produce an empty context")
	}
}

func TestAssembleEmptyQueries(t *testing.T) {
	ret := &fakeRetriever{results: []schema.SearchResult{result("a.pdf", "alpha", 0.9)}}
	a := newTestAssembler(15, 100000, 0.40)

	ec := a.Assemble(context.Background(), ret, nil, false)
	if len(ec.Chunks) != 0 || ec.Serialized != "" {
		t.Errorf("no queries means no retrieval")
	}
	if ret.queries != nil {
		t.Errorf("retriever must not be driven without queries")
	}
}

func TestMarkUsed(t *testing.T) {
	ec := &Context{Chunks: []*schema.EvidenceChunk{
		{Index: 1, Content: "a"},
		{Index: 2, Content: "b"},
	}}
	if !ec.MarkUsed(2) {
		t.Fatalf("in-range index rejected")
	}
	if !ec.MarkUsed(2) {
		t.Fatalf("marking must be idempotent")
	}
	if ec.MarkUsed(0) || ec.MarkUsed(3) {
		t.Errorf("out-of-range index accepted")
	}
	used := ec.UsedChunks()
	if len(used) != 1 || used[0].Index != 2 {
		t.Errorf("unexpected used set: %+v", used)
	}
}
