package evidence

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/common/logger"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/config"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/retriever"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/schema"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/tokens"
)

// Context is the assembled evidence for one request. Chunks are append-only
// during assembly; afterwards the only mutation is MarkUsed.
type Context struct {
	Chunks        []*schema.EvidenceChunk
	DocumentsUsed []string
	Serialized    string
}

// MarkUsed flips is_used_in_answer for a 1-based chunk index. Idempotent;
// out-of-range indices are rejected.
func (c *Context) MarkUsed(index int) bool {
	if c == nil || index < 1 || index > len(c.Chunks) {
		return false
	}
	c.Chunks[index-1].IsUsedInAnswer = true
	return true
}

// UsedChunks returns the chunks referenced by the answer, in index order.
func (c *Context) UsedChunks() []*schema.EvidenceChunk {
	if c == nil {
		return nil
	}
	out := make([]*schema.EvidenceChunk, 0, len(c.Chunks))
	for _, ch := range c.Chunks {
		if ch.IsUsedInAnswer {
			out = append(out, ch)
		}
	}
	return out
}

// Assembler converts expanded queries into a ranked, bounded, deduplicated
// evidence set and one serialized text block.
type Assembler struct {
	cfg        config.ContextConfig
	thresholds config.Thresholds
	counter    tokens.Counter
}

func NewAssembler(cfg config.ContextConfig, thresholds config.Thresholds, counter tokens.Counter) *Assembler {
	return &Assembler{cfg: cfg, thresholds: thresholds, counter: counter}
}

// Assemble drives the retriever with all queries and packages the results.
// Retrieval failure degrades to an empty context. A serialization failure
// clears the whole context: no context beats corrupt context.
func (a *Assembler) Assemble(ctx context.Context, ret retriever.Retriever, queries []string, webMode bool) *Context {
	ec := &Context{}
	if ret == nil || len(queries) == 0 {
		return ec
	}

	results, err := ret.Retrieve(ctx, queries)
	if err != nil {
		logger.Warnf("assembler: retrieval failed: %v", err)
		return ec
	}

	a.selectChunks(ec, results, ret.Label())

	serialized, err := a.serialize(ec, webMode)
	if err != nil {
		logger.Errorf("assembler: serialization failed, dropping context: %v", err)
		ec.Chunks = nil
		ec.DocumentsUsed = nil
		ec.Serialized = ""
		return ec
	}
	ec.Serialized = tokens.ReduceUntil(a.counter, serialized, a.cfg.MaxTokens)
	return ec
}

// selectChunks walks the score-sorted results and keeps a result iff its
// score clears the threshold and its text is new (exact-text dedup), up to
// the configured maximum.
func (a *Assembler) selectChunks(ec *Context, results []schema.SearchResult, fallbackLabel string) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	seenText := make(map[string]struct{}, len(results))
	seenDoc := make(map[string]struct{})
	for i := range results {
		if len(ec.Chunks) >= a.cfg.MaxChunks {
			break
		}
		r := results[i]
		if r.Score <= a.thresholds.ChunkScoreLimit {
			// results are sorted, everything after is below too
			break
		}
		content := r.Document.Content
		if content == "" {
			logger.Debugf("assembler: skipping empty result %d from %q", i, fallbackLabel)
			continue
		}
		if _, ok := seenText[content]; ok {
			continue
		}
		seenText[content] = struct{}{}

		document := metaString(r.Document.Metadata, "document")
		if document == "" {
			document = r.Document.ID
		}
		if document == "" {
			document = fallbackLabel
		}
		chunk := &schema.EvidenceChunk{
			Index:      len(ec.Chunks) + 1,
			Content:    content,
			Similarity: r.Score,
			Document:   document,
			URL:        metaString(r.Document.Metadata, "url"),
			Metadata:   r.Document.Metadata,
		}
		ec.Chunks = append(ec.Chunks, chunk)
		if _, ok := seenDoc[document]; !ok {
			seenDoc[document] = struct{}{}
			ec.DocumentsUsed = append(ec.DocumentsUsed, document)
		}
	}
}

var nonPrintable = regexp.MustCompile(`[^\x20-\x7E\n\r]+`)

// serialize groups chunks per document, orders documents by their best
// chunk score, and renders either labeled source blocks or, for web
// results, a plain concatenation.
func (a *Assembler) serialize(ec *Context, webMode bool) (string, error) {
	if len(ec.Chunks) == 0 {
		return "", nil
	}

	type docGroup struct {
		name     string
		content  strings.Builder
		maxScore float64
	}
	groups := make(map[string]*docGroup, len(ec.DocumentsUsed))
	order := make([]*docGroup, 0, len(ec.DocumentsUsed))
	for _, chunk := range ec.Chunks {
		if chunk == nil {
			return "", fmt.Errorf("nil chunk in context")
		}
		g, ok := groups[chunk.Document]
		if !ok {
			g = &docGroup{name: chunk.Document, maxScore: chunk.Similarity}
			groups[chunk.Document] = g
			order = append(order, g)
		}
		if g.content.Len() > 0 {
			g.content.WriteString("\n\n")
		}
		g.content.WriteString(chunk.Content)
		if chunk.Similarity > g.maxScore {
			g.maxScore = chunk.Similarity
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].maxScore > order[j].maxScore })

	var b strings.Builder
	for _, g := range order {
		content := nonPrintable.ReplaceAllString(g.content.String(), "")
		if webMode {
			b.WriteString(content)
			b.WriteString("\n\n")
			continue
		}
		b.WriteString(fmt.Sprintf("Source from '%s':\n------------------------------\n%s\n------------------------------\n\n", g.name, content))
	}
	return b.String(), nil
}

func metaString(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
