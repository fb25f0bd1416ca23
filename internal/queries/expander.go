package queries

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/common/logger"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/config"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/embedding"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/llm"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/metrics"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/schema"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/tokens"
)

// Expander turns one user question into the query set sent to retrieval.
// Every strategy failure degrades to an empty contribution; expansion as a
// whole never fails.
type Expander struct {
	llm   llm.Provider
	embed embedding.Provider
	cfg   config.ExpansionConfig

	// now is swapped in tests to pin date injection.
	now func() time.Time
}

func NewExpander(provider llm.Provider, embed embedding.Provider, cfg config.ExpansionConfig) *Expander {
	return &Expander{llm: provider, embed: embed, cfg: cfg, now: time.Now}
}

// Expand builds the QuerySet. In web mode the strategies are replaced by
// time-aware search-engine query generation.
func (e *Expander) Expand(ctx context.Context, question string, history []schema.ChatMessage, documents []string, webMode bool, usage *tokens.Usage) schema.QuerySet {
	if webMode {
		return e.expandWeb(ctx, question, history, usage)
	}

	standalone := e.standalone(ctx, question, history, documents, usage)
	base := standalone
	if base == "" {
		base = question
	}

	var multi, abstract []string
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		multi = e.multiQueries(ctx, base, usage)
	}()
	go func() {
		defer wg.Done()
		abstract = e.abstractQueries(ctx, base, usage)
	}()
	wg.Wait()

	qs := schema.QuerySet{
		Standalone:      standalone,
		MultiQueries:    multi,
		AbstractQueries: abstract,
	}
	qs.AllQueries = dedupeStrip(append(append([]string{standalone}, multi...), abstract...))
	if len(qs.AllQueries) == 0 {
		logger.Errorf("expansion: no query generated for question %q, retrieval will be skipped", question)
	}
	return qs
}

// standalone rewrites the question into a conversation-independent form. A
// rewrite whose semantic distance from the original exceeds the tolerance is
// discarded: paraphrase drift changes meaning more often than it helps.
func (e *Expander) standalone(ctx context.Context, question string, history []schema.ChatMessage, documents []string, usage *tokens.Usage) string {
	start := time.Now()
	defer metrics.ObserveExpansion("standalone", start)

	docList := strings.Join(documents, "\n")
	system := fmt.Sprintf(llm.StandaloneSystem, docList)
	res, err := e.llm.GenerateChat(ctx, system, history, llm.StandaloneInstruction+question)
	if err != nil {
		logger.Warnf("expansion: standalone rewrite failed for %q: %v", question, err)
		return ""
	}
	usage.Add(res.Tokens)

	rewrite := strings.TrimSpace(res.Text)
	if rewrite == "" {
		return question
	}
	if d := e.embed.Distance(ctx, rewrite, question); d > e.cfg.StandaloneDriftTolerance {
		logger.Infof("expansion: standalone rewrite drifted (distance %.3f), keeping original question", d)
		return question
	}
	return rewrite
}

func (e *Expander) multiQueries(ctx context.Context, question string, usage *tokens.Usage) []string {
	start := time.Now()
	defer metrics.ObserveExpansion("multi", start)

	res, err := e.llm.GenerateChat(ctx, llm.MultiQuerySystem, []schema.ChatMessage{{Role: "user", Content: question}}, llm.MultiQueryInstruction)
	if err != nil {
		logger.Warnf("expansion: multi-query decomposition failed for %q: %v", question, err)
		return nil
	}
	usage.Add(res.Tokens)
	return ParseLabeledList(res.Text, "subqueries")
}

func (e *Expander) abstractQueries(ctx context.Context, question string, usage *tokens.Usage) []string {
	start := time.Now()
	defer metrics.ObserveExpansion("abstract", start)

	res, err := e.llm.GenerateChat(ctx, llm.AbstractSystem, []schema.ChatMessage{{Role: "user", Content: question}}, llm.AbstractInstruction)
	if err != nil {
		logger.Warnf("expansion: step-back abstraction failed for %q: %v", question, err)
		return nil
	}
	usage.Add(res.Tokens)
	return ParseLabeledList(res.Text, "stepback query")
}

// expandWeb decomposes the question and turns each sub-query (plus the
// original) into a time-aware search-engine query.
func (e *Expander) expandWeb(ctx context.Context, question string, history []schema.ChatMessage, usage *tokens.Usage) schema.QuerySet {
	multi := e.multiQueries(ctx, question, usage)
	candidates := append(multi, question)

	results := make([]string, len(candidates))
	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Add(1)
		go func(idx int, q string) {
			defer wg.Done()
			results[idx] = e.webQuery(ctx, q, usage)
		}(i, c)
	}
	wg.Wait()

	googleQueries := dedupeStrip(results)
	qs := schema.QuerySet{MultiQueries: multi}
	if len(googleQueries) == 0 {
		// nothing usable generated, search the raw question twice
		qs.AllQueries = []string{question, question}
		return qs
	}
	qs.AllQueries = dedupeStrip(append(googleQueries, question))
	return qs
}

func (e *Expander) webQuery(ctx context.Context, question string, usage *tokens.Usage) string {
	start := time.Now()
	defer metrics.ObserveExpansion("web", start)

	const dayFormat = "Monday, 02 January 2006"
	today := e.now()
	system := fmt.Sprintf(llm.WebQuerySystem,
		today.Format(dayFormat),
		today.AddDate(0, 0, 1).Format(dayFormat),
		today.AddDate(0, 0, -1).Format(dayFormat))

	res, err := e.llm.GenerateChat(ctx, system, []schema.ChatMessage{{Role: "user", Content: question}}, llm.WebQueryInstruction)
	if err != nil {
		logger.Warnf("expansion: web query generation failed for %q: %v", question, err)
		return ""
	}
	usage.Add(res.Tokens)
	return stripLabel(strings.TrimSpace(res.Text), "google query")
}

var numberedPrefix = regexp.MustCompile(`^\d+[.)]\s*`)

// ParseLabeledList extracts the queries from a labeled completion such as
// "subqueries 1: ...". Unlabeled non-empty lines are kept too; models echo
// the label inconsistently.
func ParseLabeledList(response, label string) []string {
	out := make([]string, 0, 3)
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = stripLabel(line, label)
		line = numberedPrefix.ReplaceAllString(line, "")
		line = strings.TrimSpace(strings.TrimPrefix(line, "-"))
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == 3 {
			break
		}
	}
	return out
}

// stripLabel removes a leading "label N:" or "label:" marker, case
// insensitively.
func stripLabel(line, label string) string {
	lower := strings.ToLower(line)
	label = strings.ToLower(label)
	if !strings.HasPrefix(lower, label) {
		return line
	}
	rest := line[len(label):]
	rest = strings.TrimLeft(rest, " 0123456789")
	rest = strings.TrimPrefix(rest, ":")
	return strings.TrimSpace(rest)
}

func dedupeStrip(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, q := range in {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
