package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the answering service.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	LLM        LLMConfig        `json:"llm" yaml:"llm"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	VectorDB   VectorDBConfig   `json:"vectordb" yaml:"vectordb"`
	Serper     SerperConfig     `json:"serper" yaml:"serper"`
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline"`
	HTTPClient HTTPClientConfig `json:"http_client" yaml:"http_client"`

	// Thresholds is resolved from Embedding.Family at load time, then
	// overlaid with any explicit pipeline overrides.
	Thresholds Thresholds `json:"-" yaml:"-"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// LLMConfig defines configuration for the chat completion model.
type LLMConfig struct {
	Provider    string  `json:"provider" yaml:"provider"` // Available options: openai
	APIKey      string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// EmbeddingConfig defines configuration for the embedding model.
type EmbeddingConfig struct {
	Provider   string          `json:"provider" yaml:"provider"` // Available options: openai
	APIKey     string          `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL    string          `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model      string          `json:"model,omitempty" yaml:"model,omitempty"`
	Family     EmbeddingFamily `json:"family,omitempty" yaml:"family,omitempty"`
	Dimensions int             `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	CacheSize  int             `json:"cache_size,omitempty" yaml:"cache_size,omitempty"`
}

// VectorDBConfig defines the milvus connection used by the index retriever.
type VectorDBConfig struct {
	Address    string `json:"address,omitempty" yaml:"address,omitempty"`
	Database   string `json:"database,omitempty" yaml:"database,omitempty"`
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty"`
	Username   string `json:"username,omitempty" yaml:"username,omitempty"`
	Password   string `json:"password,omitempty" yaml:"password,omitempty"`
}

// SerperConfig defines the web search API used by the web retriever.
type SerperConfig struct {
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	SearchURL string `json:"search_url,omitempty" yaml:"search_url,omitempty"`
	PlacesURL string `json:"places_url,omitempty" yaml:"places_url,omitempty"`
	Country   string `json:"country,omitempty" yaml:"country,omitempty"`
	Language  string `json:"language,omitempty" yaml:"language,omitempty"`
}

// PipelineConfig groups the tunables of expansion, assembly and attribution.
type PipelineConfig struct {
	Expansion ExpansionConfig `json:"expansion" yaml:"expansion"`
	Context   ContextConfig   `json:"context" yaml:"context"`
	Sourcing  SourcingConfig  `json:"sourcing" yaml:"sourcing"`
	Splitter  SplitterConfig  `json:"splitter" yaml:"splitter"`

	// ErrorMessage is returned as the answer when the completion call fails.
	ErrorMessage string `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// ExpansionConfig tunes query expansion.
type ExpansionConfig struct {
	// StandaloneDriftTolerance rejects a standalone rewrite whose semantic
	// distance from the original question exceeds it.
	StandaloneDriftTolerance float64 `json:"standalone_drift_tolerance,omitempty" yaml:"standalone_drift_tolerance,omitempty"`
	ChunksPerQuery           int     `json:"chunks_per_query,omitempty" yaml:"chunks_per_query,omitempty"`
}

// ContextConfig tunes context assembly.
type ContextConfig struct {
	ChunkScoreLimit float64 `json:"chunk_score_limit,omitempty" yaml:"chunk_score_limit,omitempty"`
	MaxChunks       int     `json:"max_chunks,omitempty" yaml:"max_chunks,omitempty"`
	MaxTokens       int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// SourcingConfig tunes evidence attribution.
type SourcingConfig struct {
	DistanceLimit      float64 `json:"distance_limit,omitempty" yaml:"distance_limit,omitempty"`
	DistanceNeighbor   float64 `json:"distance_neighbor,omitempty" yaml:"distance_neighbor,omitempty"`
	SourcesPerSentence int     `json:"sources_per_sentence,omitempty" yaml:"sources_per_sentence,omitempty"`
	MinGroupChars      int     `json:"min_group_chars,omitempty" yaml:"min_group_chars,omitempty"`
	// WebChunkCap bounds how many chunks the sourcer sees in web mode.
	WebChunkCap int `json:"web_chunk_cap,omitempty" yaml:"web_chunk_cap,omitempty"`
}

// SplitterConfig tunes the splitter used by the uploaded-document retriever.
type SplitterConfig struct {
	ChunkTokens  int `json:"chunk_tokens,omitempty" yaml:"chunk_tokens,omitempty"`
	ChunkOverlap int `json:"chunk_overlap,omitempty" yaml:"chunk_overlap,omitempty"`
}

// HTTPClientConfig tunes the outbound retrying HTTP client.
type HTTPClientConfig struct {
	TimeoutMs              int      `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Retry                  int      `json:"retry,omitempty" yaml:"retry,omitempty"`
	BackoffMinMs           int      `json:"backoff_min_ms,omitempty" yaml:"backoff_min_ms,omitempty"`
	BackoffMaxMs           int      `json:"backoff_max_ms,omitempty" yaml:"backoff_max_ms,omitempty"`
	HostAllowlist          []string `json:"host_allowlist,omitempty" yaml:"host_allowlist,omitempty"`
	MaxConsecutiveFailures int      `json:"max_consecutive_failures,omitempty" yaml:"max_consecutive_failures,omitempty"`
	CircuitOpenSeconds     int      `json:"circuit_open_seconds,omitempty" yaml:"circuit_open_seconds,omitempty"`
}

const DefaultErrorMessage = "Sorry, I cannot answer your question for the moment"

// Load reads the YAML file at path, applies environment overrides and
// defaults, resolves the threshold profile, and validates the result.
func Load(path string) (*Config, error) {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.resolveThresholds(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&c.Server.Addr, "FALLM_ADDR")
	setStr(&c.Server.LogLevel, "FALLM_LOG_LEVEL")
	setStr(&c.LLM.APIKey, "OPENAI_API_KEY")
	setStr(&c.LLM.BaseURL, "OPENAI_BASE_URL")
	setStr(&c.LLM.Model, "FALLM_LLM_MODEL")
	setStr(&c.Embedding.APIKey, "OPENAI_API_KEY")
	setStr(&c.Embedding.Model, "FALLM_EMBEDDING_MODEL")
	if v := os.Getenv("FALLM_EMBEDDING_FAMILY"); v != "" {
		c.Embedding.Family = EmbeddingFamily(v)
	}
	setStr(&c.VectorDB.Address, "MILVUS_ADDRESS")
	setStr(&c.VectorDB.Username, "MILVUS_USERNAME")
	setStr(&c.VectorDB.Password, "MILVUS_PASSWORD")
	setStr(&c.Serper.APIKey, "SERPER_API_KEY")
	if v := os.Getenv("FALLM_MAX_TOKEN_CONTEXT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.Context.MaxTokens = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-large"
	}
	if c.Embedding.Family == "" {
		c.Embedding.Family = FamilyFromModel(c.Embedding.Model)
	}
	if c.Embedding.CacheSize == 0 {
		c.Embedding.CacheSize = 2048
	}
	if c.Serper.SearchURL == "" {
		c.Serper.SearchURL = "https://google.serper.dev/search"
	}
	if c.Serper.PlacesURL == "" {
		c.Serper.PlacesURL = "https://google.serper.dev/places"
	}
	if c.Serper.Country == "" {
		c.Serper.Country = "fr"
	}
	if c.Serper.Language == "" {
		c.Serper.Language = "fr"
	}
	if c.Pipeline.Expansion.StandaloneDriftTolerance == 0 {
		c.Pipeline.Expansion.StandaloneDriftTolerance = 0.1
	}
	if c.Pipeline.Expansion.ChunksPerQuery == 0 {
		c.Pipeline.Expansion.ChunksPerQuery = 5
	}
	if c.Pipeline.Context.MaxChunks == 0 {
		c.Pipeline.Context.MaxChunks = 15
	}
	if c.Pipeline.Context.MaxTokens == 0 {
		c.Pipeline.Context.MaxTokens = 3000
	}
	if c.Pipeline.Sourcing.SourcesPerSentence == 0 {
		c.Pipeline.Sourcing.SourcesPerSentence = 3
	}
	if c.Pipeline.Sourcing.MinGroupChars == 0 {
		c.Pipeline.Sourcing.MinGroupChars = 200
	}
	if c.Pipeline.Sourcing.WebChunkCap == 0 {
		c.Pipeline.Sourcing.WebChunkCap = 10
	}
	if c.Pipeline.Splitter.ChunkTokens == 0 {
		c.Pipeline.Splitter.ChunkTokens = 500
	}
	if c.Pipeline.ErrorMessage == "" {
		c.Pipeline.ErrorMessage = DefaultErrorMessage
	}
}

// resolveThresholds merges the family profile with explicit overrides.
func (c *Config) resolveThresholds() error {
	prof, err := ProfileFor(c.Embedding.Family)
	if err != nil {
		return err
	}
	c.Thresholds = prof
	if v := c.Pipeline.Context.ChunkScoreLimit; v != 0 {
		c.Thresholds.ChunkScoreLimit = v
	}
	if v := c.Pipeline.Sourcing.DistanceLimit; v != 0 {
		c.Thresholds.SourceDistanceLimit = v
	}
	if v := c.Pipeline.Sourcing.DistanceNeighbor; v != 0 {
		c.Thresholds.SourceDistanceNeighbor = v
	}
	return nil
}

// Validate reports startup-fatal configuration errors.
func (c *Config) Validate() error {
	if c.LLM.Provider != "openai" {
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.Embedding.Provider != "openai" {
		return fmt.Errorf("unsupported embedding provider %q", c.Embedding.Provider)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api key is required")
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding api key is required")
	}
	if c.Thresholds.SourceDistanceLimit <= 0 {
		return fmt.Errorf("source distance limit must be positive")
	}
	if c.Thresholds.SourceDistanceNeighbor <= 0 {
		return fmt.Errorf("source distance neighbor must be positive")
	}
	if c.Pipeline.Context.MaxChunks <= 0 {
		return fmt.Errorf("context max chunks must be positive")
	}
	if c.Pipeline.Context.MaxTokens < 10 {
		return fmt.Errorf("context max tokens must be at least 10")
	}
	return nil
}
