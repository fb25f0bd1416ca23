package textsplitter

import (
	"strings"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/config"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/tokens"
)

// Splitter cuts uploaded document text into token-bounded chunks before
// embedding. Paragraph boundaries are preferred, then line boundaries, then
// a hard character cut for pathological inputs.
type Splitter struct {
	counter     tokens.Counter
	chunkTokens int
}

func New(cfg config.SplitterConfig, counter tokens.Counter) *Splitter {
	ct := cfg.ChunkTokens
	if ct <= 0 {
		ct = 500
	}
	return &Splitter{counter: counter, chunkTokens: ct}
}

func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var chunks []string
	var current strings.Builder
	flush := func() {
		if c := strings.TrimSpace(current.String()); c != "" {
			chunks = append(chunks, c)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if s.counter.Count(para) > s.chunkTokens {
			flush()
			chunks = append(chunks, s.splitLong(para)...)
			continue
		}
		joined := para
		if current.Len() > 0 {
			joined = current.String() + "\n\n" + para
		}
		if s.counter.Count(joined) > s.chunkTokens {
			flush()
			current.WriteString(para)
			continue
		}
		current.Reset()
		current.WriteString(joined)
	}
	flush()
	return chunks
}

func (s *Splitter) splitLong(para string) []string {
	var out []string
	var current strings.Builder
	for _, line := range strings.Split(para, "\n") {
		joined := line
		if current.Len() > 0 {
			joined = current.String() + "\n" + line
		}
		if s.counter.Count(joined) > s.chunkTokens && current.Len() > 0 {
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
			current.WriteString(line)
			continue
		}
		current.Reset()
		current.WriteString(joined)
	}
	if c := strings.TrimSpace(current.String()); c != "" {
		if s.counter.Count(c) > s.chunkTokens {
			out = append(out, hardCut(c, s.counter, s.chunkTokens)...)
		} else {
			out = append(out, c)
		}
	}
	return out
}

// hardCut slices by characters, assuming roughly four characters per token.
func hardCut(text string, counter tokens.Counter, budget int) []string {
	var out []string
	step := budget * 4
	if step <= 0 {
		step = 2000
	}
	for len(text) > 0 {
		end := step
		if end > len(text) {
			end = len(text)
		}
		out = append(out, text[:end])
		text = text[end:]
	}
	return out
}
