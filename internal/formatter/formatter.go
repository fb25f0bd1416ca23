package formatter

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"

	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/common/logger"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/embedding"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/llm"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/schema"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/tokens"
)

// Formatter rewrites the raw answer into markdown and renders it to HTML.
// A reformat that drifts semantically from the raw answer, or that echoes
// the formatting instructions, is discarded in favor of the raw text.
type Formatter struct {
	llm         llm.Provider
	embed       embedding.Provider
	hallucLimit float64
}

func New(provider llm.Provider, embed embedding.Provider, hallucLimit float64) *Formatter {
	return &Formatter{llm: provider, embed: embed, hallucLimit: hallucLimit}
}

// instruction-echo artifacts that mark a failed reformat
var echoArtifacts = []string{"formatted text", "heading 1", "markdown"}

// Format returns the markdown version of the answer, or the answer itself
// when reformatting fails or is rejected.
func (f *Formatter) Format(ctx context.Context, answer string, usage *tokens.Usage) string {
	if strings.TrimSpace(answer) == "" {
		return answer
	}
	user := "------\n" + answer + "\n------\n" + llm.FormatInstruction
	res, err := f.llm.GenerateChat(ctx, llm.FormatSystem, []schema.ChatMessage{}, user)
	if err != nil {
		logger.Warnf("formatter: reformat failed, keeping raw answer: %v", err)
		return answer
	}
	usage.Add(res.Tokens)

	formatted := strings.TrimSpace(strings.ReplaceAll(res.Text, "------", ""))
	if formatted == "" {
		return answer
	}
	lower := strings.ToLower(formatted)
	for _, artifact := range echoArtifacts {
		if strings.Contains(lower, artifact) && !strings.Contains(strings.ToLower(answer), artifact) {
			logger.Infof("formatter: reformat echoed instructions, keeping raw answer")
			return answer
		}
	}
	if d := f.embed.Distance(ctx, answer, formatted); d > f.hallucLimit {
		logger.Infof("formatter: reformat drifted from answer (distance %.3f), keeping raw answer", d)
		return answer
	}
	return formatted
}

var markdown = goldmark.New(goldmark.WithRendererOptions(gmhtml.WithHardWraps()))

// RenderHTML converts markdown to HTML and returns it base64 encoded. A
// conversion failure falls back to the escaped raw text.
func RenderHTML(md string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		logger.Warnf("formatter: html render failed: %v", err)
		buf.Reset()
		buf.WriteString(md)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
