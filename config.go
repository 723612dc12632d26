package manuals

import (
	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for the evidence pipeline core.
type Config struct {
	// AssetsDir is the root directory under which each document's
	// persisted corpus lives, per spec.md §6.3:
	// {AssetsDir}/{doc_id}/chunks.jsonl (+ visual artifact files).
	AssetsDir string `json:"assets_dir" yaml:"assets_dir" validate:"required"`

	// LLM/embedding/vision providers (ports, no concrete vendor wired here).
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`
	Vision    LLMConfig `json:"vision" yaml:"vision"`

	// Ingestion.
	IngestConcurrency            int     `json:"ingest_concurrency" yaml:"ingest_concurrency" validate:"gte=0"`
	IngestPageWorkers            int     `json:"ingest_page_workers" yaml:"ingest_page_workers" validate:"gte=0"`
	VisionMaxPages               int     `json:"vision_max_pages" yaml:"vision_max_pages" validate:"gte=0"`
	UseVisionIngestion            bool    `json:"use_vision_ingestion" yaml:"use_vision_ingestion"`
	EmbeddingProvider             string  `json:"embedding_provider" yaml:"embedding_provider" validate:"omitempty,oneof=hash metadata"`
	EmbeddingMinCoverage          float64 `json:"embedding_min_coverage" yaml:"embedding_min_coverage" validate:"gte=0,lte=1"`
	EmbeddingFailFast             bool    `json:"embedding_fail_fast" yaml:"embedding_fail_fast"`
	EmbeddingSecondPassMaxChars   int     `json:"embedding_second_pass_max_chars" yaml:"embedding_second_pass_max_chars" validate:"gte=0"`
	EmbeddingDim                  int     `json:"embedding_dim" yaml:"embedding_dim" validate:"gt=0"`
	EmbeddingCache                bool    `json:"embedding_cache" yaml:"embedding_cache"`
	EmbeddingCacheAddr             string  `json:"embedding_cache_addr" yaml:"embedding_cache_addr"`

	// Chunking.
	MaxChunkTokens int `json:"max_chunk_tokens" yaml:"max_chunk_tokens" validate:"gt=0"`
	ChunkOverlap   int `json:"chunk_overlap" yaml:"chunk_overlap" validate:"gte=0"`

	// Retrieval.
	UseReranker     bool `json:"use_reranker" yaml:"use_reranker"`
	RerankerPoolSize int `json:"reranker_pool_size" yaml:"reranker_pool_size" validate:"gte=0"`

	// Answer composition / agentic mode.
	UseLLMAnswering         bool    `json:"use_llm_answering" yaml:"use_llm_answering"`
	UseAgenticMode          bool    `json:"use_agentic_mode" yaml:"use_agentic_mode"`
	AgenticMaxIterations    int     `json:"agentic_max_iterations" yaml:"agentic_max_iterations" validate:"gte=0"`
	AgenticMaxToolCalls     int     `json:"agentic_max_tool_calls" yaml:"agentic_max_tool_calls" validate:"gte=0"`
	AgenticTimeoutSeconds   float64 `json:"agentic_timeout_seconds" yaml:"agentic_timeout_seconds" validate:"gte=0"`
	EnforceStructuredOutput bool    `json:"enforce_structured_output" yaml:"enforce_structured_output"`
	ConfidenceThreshold     float64 `json:"confidence_threshold" yaml:"confidence_threshold" validate:"gte=0,lte=1"`

	// Trace files: empty means tracing for that stream is disabled.
	RetrievalTraceFile string `json:"retrieval_trace_file" yaml:"retrieval_trace_file"`
	AnswerTraceFile    string `json:"answer_trace_file" yaml:"answer_trace_file"`
	AgenticTraceFile   string `json:"agentic_trace_file" yaml:"agentic_trace_file"`
}

// LLMConfig configures a single LLM/embedding/vision provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with sensible defaults for local inference
// and an in-memory per-query reference retrieval stack.
func DefaultConfig() Config {
	return Config{
		AssetsDir: "./assets",
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		Vision: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.2-vision",
			BaseURL:  "http://localhost:11434",
		},
		IngestConcurrency:          4,
		IngestPageWorkers:          4,
		VisionMaxPages:             0,
		EmbeddingProvider:          "hash",
		EmbeddingMinCoverage:       0.8,
		EmbeddingFailFast:          false,
		EmbeddingSecondPassMaxChars: 2000,
		EmbeddingDim:               384,
		MaxChunkTokens:             1024,
		ChunkOverlap:               128,
		RerankerPoolSize:           20,
		AgenticMaxIterations:       4,
		AgenticMaxToolCalls:        6,
		AgenticTimeoutSeconds:      20,
		ConfidenceThreshold:        0.6,
	}
}

// Validate enforces field-level constraints via struct tags.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
