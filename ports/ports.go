// Package ports declares the interfaces the evidence pipeline core
// depends on for every external collaborator. Production-grade
// implementations (a real OCR engine, a vendor LLM, a persistent vector
// index) are the caller's responsibility; this module ships only
// reference adapters under adapters/ sufficient to exercise the core.
package ports

import (
	"context"

	"github.com/goreason/manuals/chunk"
)

// Page is one parsed page of a source document.
type Page struct {
	PageNumber int
	Text       string
}

// PdfParser extracts page text from a PDF file.
type PdfParser interface {
	Parse(ctx context.Context, path string) ([]Page, error)
}

// Ocr extracts text from a page image when native text extraction is
// insufficient.
type Ocr interface {
	ExtractText(ctx context.Context, path string, pageNumber int) (string, error)
}

// TableExtractor detects tabular structure within a page's text.
type TableExtractor interface {
	Extract(ctx context.Context, text string, pageNumber int, docID string) ([]chunk.ExtractedTable, error)
}

// ChunkStore persists the chunks produced for a document and returns an
// asset reference (e.g. a directory path) callers can hand to ChunkQuery.
type ChunkStore interface {
	Persist(ctx context.Context, docID string, chunks []chunk.Chunk) (assetRef string, err error)
}

// ChunkQuery lists the persisted chunks for a document, or every document
// when docID is empty.
type ChunkQuery interface {
	ListChunks(ctx context.Context, docID string) ([]chunk.Chunk, error)
}

// ScoredChunk is a chunk paired with a single-source relevance score.
type ScoredChunk struct {
	Chunk chunk.Chunk
	Score float64
}

// KeywordSearch scores chunks against a query using lexical matching.
type KeywordSearch interface {
	Search(ctx context.Context, query string, chunks []chunk.Chunk, topK int) ([]ScoredChunk, error)
}

// VectorSearch scores chunks against a query using embedding similarity.
type VectorSearch interface {
	Search(ctx context.Context, query string, chunks []chunk.Chunk, topK int) ([]ScoredChunk, error)
}

// RankedCandidate is a reranker's judgment of one candidate chunk.
type RankedCandidate struct {
	ChunkID string
	Score   float64 // in [0,1]
}

// Reranker re-scores a candidate pool against the query.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []chunk.Chunk, topK int) ([]RankedCandidate, error)
}

// Embedding produces a dense vector for a piece of text. LastError
// exposes the most recent embedding failure, if any, for diagnostics.
type Embedding interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
	LastError() string
}

// LlmEvidence is one piece of evidence handed to the answer-drafting LLM.
type LlmEvidence struct {
	ChunkID     string
	DocID       string
	Snippet     string
	ContentType string
}

// Llm drafts a natural-language answer from retrieved evidence.
type Llm interface {
	GenerateAnswer(ctx context.Context, query, intent string, evidence []LlmEvidence) (string, error)
}

// Vision derives a textual summary of a page's visual content.
type Vision interface {
	ExtractPageInsights(ctx context.Context, path string, pageNumber int) (string, error)
}
