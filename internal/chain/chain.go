package chain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/common/logger"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/config"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/embedding"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/evidence"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/formatter"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/llm"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/metrics"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/queries"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/retriever"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/schema"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/sourcer"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/textsplitter"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/tokens"
)

// Request is one question to answer.
type Request struct {
	Question  string               `json:"question"`
	History   []schema.ChatMessage `json:"chat_history,omitempty"`
	Mode      schema.RetrievalMode `json:"mode"`
	Documents []schema.Document    `json:"documents,omitempty"`
}

// Response is the full answering outcome.
type Response struct {
	Answer            string                  `json:"answer"`
	AnswerHTML        string                  `json:"answer_html"`
	References        []*schema.EvidenceChunk `json:"references"`
	QueriesGenerated  []string                `json:"questions_generated"`
	FollowUpQuestions []string                `json:"follow_up_questions"`
	History           []schema.ChatMessage    `json:"chat_history"`
	TokensUsed        int64                   `json:"tokens_used"`
}

// Pipeline orchestrates expansion, retrieval, answering, formatting and
// attribution. It holds no per-request state; every request builds its own
// QuerySet, Context and usage accumulator.
type Pipeline struct {
	cfg       *config.Config
	llm       llm.Provider
	embed     embedding.Provider
	counter   tokens.Counter
	splitter  *textsplitter.Splitter
	expander  *queries.Expander
	assembler *evidence.Assembler
	sourcer   *sourcer.Sourcer
	formatter *formatter.Formatter

	indexRetriever retriever.Retriever
	webRetriever   retriever.Retriever

	now func() time.Time
}

// New wires the pipeline. indexRet and webRet may be nil; their modes then
// answer without retrieval.
func New(cfg *config.Config, provider llm.Provider, embed embedding.Provider, counter tokens.Counter, indexRet, webRet retriever.Retriever) *Pipeline {
	return &Pipeline{
		cfg:            cfg,
		llm:            provider,
		embed:          embed,
		counter:        counter,
		splitter:       textsplitter.New(cfg.Pipeline.Splitter, counter),
		expander:       queries.NewExpander(provider, embed, cfg.Pipeline.Expansion),
		assembler:      evidence.NewAssembler(cfg.Pipeline.Context, cfg.Thresholds, counter),
		sourcer:        sourcer.NewSourcer(embed, cfg.Pipeline.Sourcing, cfg.Thresholds),
		formatter:      formatter.New(provider, embed, cfg.Thresholds.HallucinationDistanceLimit),
		indexRetriever: indexRet,
		webRetriever:   webRet,
		now:            time.Now,
	}
}

// Answer runs the full pipeline. It never returns an error: every failure
// degrades per component policy and an answer is always produced.
func (p *Pipeline) Answer(ctx context.Context, req Request) *Response {
	requestID := uuid.New().String()
	usage := &tokens.Usage{}
	question := strings.TrimSpace(req.Question)
	mode := req.Mode
	logger.Infof("answer %s: mode=%s question=%q", requestID, mode, question)

	ret := p.selectRetriever(ctx, mode, req.Documents)

	var qs schema.QuerySet
	ec := &evidence.Context{}
	if ret != nil {
		qs = p.expander.Expand(ctx, question, req.History, documentNames(req.Documents, ret), mode.IsWeb(), usage)
		if len(qs.AllQueries) > 0 {
			ec = p.assembler.Assemble(ctx, ret, qs.AllQueries, mode.IsWeb())
		} else {
			logger.Warnf("answer %s: empty query set, retrieval skipped", requestID)
		}
	}

	raw := p.rawAnswer(ctx, question, req.History, ec.Serialized, mode.IsWeb(), usage)
	answer := raw
	if !p.isErrorAnswer(raw) {
		answer = p.formatter.Format(ctx, raw, usage)
	}

	if ec.Serialized != "" && !p.isErrorAnswer(raw) {
		answer = p.sourcer.Source(ctx, answer, p.sourcingContext(ec, mode))
	}

	followUps := p.followUpQuestions(ctx, question, answer, req.History, usage)

	history := append(append([]schema.ChatMessage{}, req.History...),
		schema.ChatMessage{Role: "user", Content: question},
		schema.ChatMessage{Role: "assistant", Content: answer},
	)
	metrics.ObserveRequestTokens(usage.Total())
	logger.Infof("answer %s: done, %d chunks, %d used, %d tokens", requestID, len(ec.Chunks), len(ec.UsedChunks()), usage.Total())

	return &Response{
		Answer:            answer,
		AnswerHTML:        formatter.RenderHTML(answer),
		References:        ec.UsedChunks(),
		QueriesGenerated:  qs.AllQueries,
		FollowUpQuestions: followUps,
		History:           history,
		TokensUsed:        usage.Total(),
	}
}

func (p *Pipeline) selectRetriever(ctx context.Context, mode schema.RetrievalMode, docs []schema.Document) retriever.Retriever {
	switch mode {
	case schema.ModeIndex:
		return p.indexRetriever
	case schema.ModeWeb:
		return p.webRetriever
	case schema.ModeDocument:
		if len(docs) == 0 {
			return nil
		}
		mr := retriever.NewMemoryRetriever(ctx, p.embed, p.splitter, docs, p.cfg.Pipeline.Expansion.ChunksPerQuery)
		if mr.Len() == 0 {
			logger.Warnf("no chunk could be indexed from %d uploaded documents", len(docs))
			return nil
		}
		return mr
	default:
		return nil
	}
}

// sourcingContext caps the chunks the sourcer sees in web mode. The capped
// context shares chunk pointers, so marking flows back to the original.
func (p *Pipeline) sourcingContext(ec *evidence.Context, mode schema.RetrievalMode) *evidence.Context {
	limit := p.cfg.Pipeline.Sourcing.WebChunkCap
	if !mode.IsWeb() || limit <= 0 || len(ec.Chunks) <= limit {
		return ec
	}
	return &evidence.Context{Chunks: ec.Chunks[:limit], DocumentsUsed: ec.DocumentsUsed}
}

// rawAnswer asks the model for the answer, grounded on the context block
// when one exists. Failure substitutes the configured sentinel with the
// cause appended.
func (p *Pipeline) rawAnswer(ctx context.Context, question string, history []schema.ChatMessage, contextBlock string, webMode bool, usage *tokens.Usage) string {
	system := llm.RawAnswerSystem
	message := question
	if webMode {
		message = "Today we are : " + p.now().Format("Monday, 02 January 2006") + ". " + message
	}
	if contextBlock != "" {
		system = llm.RawAnswerSystemWithContext
		history = append(append([]schema.ChatMessage{}, history...),
			schema.ChatMessage{Role: "user", Content: llm.RawAnswerContextInstruction})
		message = message + "\n\nSources:\n" + contextBlock
	}
	res, err := p.llm.GenerateChat(ctx, system, history, message)
	if err != nil {
		logger.Errorf("raw answer generation failed: %v", err)
		return p.cfg.Pipeline.ErrorMessage + " (" + err.Error() + ")"
	}
	usage.Add(res.Tokens)
	return strings.TrimSpace(res.Text)
}

func (p *Pipeline) isErrorAnswer(answer string) bool {
	return strings.HasPrefix(answer, p.cfg.Pipeline.ErrorMessage)
}

func (p *Pipeline) followUpQuestions(ctx context.Context, question, answer string, history []schema.ChatMessage, usage *tokens.Usage) []string {
	conv := append(append([]schema.ChatMessage{}, history...),
		schema.ChatMessage{Role: "user", Content: question},
		schema.ChatMessage{Role: "assistant", Content: answer},
	)
	res, err := p.llm.GenerateChat(ctx, llm.FollowUpSystem, conv, llm.FollowUpInstruction)
	if err != nil {
		logger.Warnf("follow-up question generation failed: %v", err)
		return nil
	}
	usage.Add(res.Tokens)
	return queries.ParseLabeledList(res.Text, "question")
}

// documentNames lists what the expansion prompt can cite as available
// sources. Backends that cannot enumerate documents contribute their label.
func documentNames(docs []schema.Document, ret retriever.Retriever) []string {
	if len(docs) > 0 {
		names := make([]string, 0, len(docs))
		for _, d := range docs {
			names = append(names, d.ID)
		}
		return names
	}
	if ret != nil {
		return []string{ret.Label()}
	}
	return nil
}
