package schema

import "strings"

// Document represents a unit of retrievable text.
type Document struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Vector   []float32              `json:"vector,omitempty"`
}

// SearchResult pairs a document with its retrieval relevance score.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// EvidenceChunk is one retrieved unit of text kept as candidate support for
// an answer. Index is 1-based and assigned on insertion into the assembled
// context; it is stable for the lifetime of one request. IsUsedInAnswer is
// mutated only through Context.MarkUsed.
type EvidenceChunk struct {
	Index          int                    `json:"referenceNumber"`
	Content        string                 `json:"content"`
	Similarity     float64                `json:"similarity"`
	Document       string                 `json:"document"`
	URL            string                 `json:"url,omitempty"`
	IsUsedInAnswer bool                   `json:"is_used_in_answer"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// QuerySet is the outcome of query expansion. Immutable once assembled.
type QuerySet struct {
	Standalone      string   `json:"standalone"`
	MultiQueries    []string `json:"multi_queries"`
	AbstractQueries []string `json:"abstract_queries"`
	AllQueries      []string `json:"all_queries"`
}

// ChatMessage is a single conversation turn supplied with the request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RetrievalMode names the backend a request retrieves evidence from.
type RetrievalMode string

const (
	// ModeChat answers without retrieval.
	ModeChat RetrievalMode = "chat"
	// ModeIndex searches the milvus collection.
	ModeIndex RetrievalMode = "index"
	// ModeDocument searches documents uploaded with the request.
	ModeDocument RetrievalMode = "document"
	// ModeWeb searches the web through the search API.
	ModeWeb RetrievalMode = "web"
)

// IsWeb reports whether the mode uses web-style expansion and serialization.
func (m RetrievalMode) IsWeb() bool { return m == ModeWeb }

// ParseRetrievalMode normalizes a mode string; unknown values map to ModeChat.
func ParseRetrievalMode(s string) RetrievalMode {
	switch RetrievalMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeIndex:
		return ModeIndex
	case ModeDocument:
		return ModeDocument
	case ModeWeb:
		return ModeWeb
	default:
		return ModeChat
	}
}
