package tools

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/goreason/manuals/chunk"
	"github.com/goreason/manuals/ports"
	"github.com/goreason/manuals/retrieval"
)

type fixedChunkQuery struct{ chunks []chunk.Chunk }

func (f fixedChunkQuery) ListChunks(ctx context.Context, docID string) ([]chunk.Chunk, error) {
	return f.chunks, nil
}

type noopKeyword struct{}

func (noopKeyword) Search(ctx context.Context, query string, chunks []chunk.Chunk, topK int) ([]ports.ScoredChunk, error) {
	var out []ports.ScoredChunk
	for _, c := range chunks {
		out = append(out, ports.ScoredChunk{Chunk: c, Score: 1})
	}
	return out, nil
}

type noopVector struct{}

func (noopVector) Search(ctx context.Context, query string, chunks []chunk.Chunk, topK int) ([]ports.ScoredChunk, error) {
	return noopKeyword{}.Search(ctx, query, chunks, topK)
}

func newTestExecutor() *Executor {
	corpus := []chunk.Chunk{
		chunk.New("c1", "d1", chunk.Text, 1, 1, "General installation notes"),
	}
	engine := retrieval.New(fixedChunkQuery{corpus}, noopKeyword{}, noopVector{}, nil, zerolog.Nop())
	return New(engine, nil)
}

func TestExecute_UnknownTool(t *testing.T) {
	e := newTestExecutor()
	res := e.Execute(context.Background(), "nope", map[string]any{})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "Unknown tool: nope")
}

func TestExecute_MissingRequiredArg(t *testing.T) {
	e := newTestExecutor()
	res := e.Execute(context.Background(), "search_evidence", map[string]any{})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "missing required arguments")
}

func TestExecute_InputRemapsToQuery(t *testing.T) {
	e := newTestExecutor()
	res := e.Execute(context.Background(), "search_evidence", map[string]any{"input": "installation"})
	require.True(t, res.Success)
	require.Contains(t, res.Payload, "hits")
}

func TestExecute_SearchEvidenceReturnsHits(t *testing.T) {
	e := newTestExecutor()
	res := e.Execute(context.Background(), "search_evidence", map[string]any{"query": "installation", "doc_id": "d1"})
	require.True(t, res.Success)
	hits, ok := res.Payload["hits"].([]map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, hits)
}

func TestExecute_DraftAnswerWithoutLlmReturnsEmptyPayload(t *testing.T) {
	e := newTestExecutor()
	res := e.Execute(context.Background(), "draft_answer", map[string]any{"query": "installation"})
	require.True(t, res.Success)
	require.Empty(t, res.Payload)
}

func TestAvailableTools_SortedNames(t *testing.T) {
	e := newTestExecutor()
	require.Equal(t, []string{"draft_answer", "search_evidence"}, e.AvailableTools())
}
