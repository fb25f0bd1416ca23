package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens for budget enforcement. Production uses tiktoken;
// tests substitute a deterministic counter.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a function to the Counter interface.
type CounterFunc func(text string) int

func (f CounterFunc) Count(text string) int { return f(text) }

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter builds a Counter over the cl100k_base encoding.
func NewTiktokenCounter() (Counter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load cl100k_base encoding: %w", err)
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (t *tiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// ReduceUntil repeatedly drops the trailing 20% of characters until the text
// fits within maxTokens (with a 10-token safety margin). Lossy tail
// truncation, intentionally crude; it is the last resort once ranking and
// deduplication have already bounded the context.
func ReduceUntil(c Counter, text string, maxTokens int) string {
	if maxTokens < 10 {
		return text
	}
	for c.Count(text) > maxTokens-10 {
		next := text[:int(float64(len(text))*0.80)]
		if len(next) == len(text) {
			break
		}
		text = next
	}
	return text
}

// Usage accumulates token consumption for a single request. Each request
// creates its own accumulator; it is never shared across requests.
type Usage struct {
	mu    sync.Mutex
	total int64
}

func (u *Usage) Add(n int64) {
	if u == nil || n <= 0 {
		return
	}
	u.mu.Lock()
	u.total += n
	u.mu.Unlock()
}

func (u *Usage) Total() int64 {
	if u == nil {
		return 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.total
}
