package retrieval

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/goreason/manuals/chunk"
	"github.com/goreason/manuals/ports"
)

type fixedChunkQuery struct{ chunks []chunk.Chunk }

func (f fixedChunkQuery) ListChunks(ctx context.Context, docID string) ([]chunk.Chunk, error) {
	return f.chunks, nil
}

// substringKeyword scores chunks by how many query words appear in the
// content text, a minimal stand-in for a BM25-like adapter.
type substringKeyword struct{}

func (substringKeyword) Search(ctx context.Context, query string, chunks []chunk.Chunk, topK int) ([]ports.ScoredChunk, error) {
	var out []ports.ScoredChunk
	for _, c := range chunks {
		score := 0.0
		for _, w := range tokenize(query) {
			if w == "" {
				continue
			}
			if containsToken(c.ContentText(), w) {
				score++
			}
		}
		if score > 0 {
			out = append(out, ports.ScoredChunk{Chunk: c, Score: score})
		}
	}
	return out, nil
}

func containsToken(text, token string) bool {
	for _, t := range tokenize(text) {
		if t == token {
			return true
		}
	}
	return false
}

// flatVector assigns every chunk the same score, exercising the
// constant-input min-max normalization invariant.
type flatVector struct{}

func (flatVector) Search(ctx context.Context, query string, chunks []chunk.Chunk, topK int) ([]ports.ScoredChunk, error) {
	var out []ports.ScoredChunk
	for _, c := range chunks {
		out = append(out, ports.ScoredChunk{Chunk: c, Score: 0.5})
	}
	return out, nil
}

func buildScenarioCorpus() []chunk.Chunk {
	c1 := chunk.New("c1", "d1", chunk.TableRow, 10, 10, "Torque | 45 Nm\nClearance | 0.2 mm", chunk.WithTableID("tbl-1"))
	c2 := chunk.New("c2", "d1", chunk.Text, 11, 11, "General installation and setup notes")
	c3 := chunk.New("c3", "d1", chunk.FigureOCR, 4, 4, "Terminal X1 pin 3 connects to enable input")
	return []chunk.Chunk{c1, c2, c3}
}

func newTestEngine(corpus []chunk.Chunk) *Engine {
	return New(fixedChunkQuery{corpus}, substringKeyword{}, flatVector{}, nil, zerolog.Nop())
}

func TestSearch_TableIntentWeighting(t *testing.T) {
	e := newTestEngine(buildScenarioCorpus())
	res, err := e.Search(context.Background(), "What is the torque spec in Nm?", "", Options{})
	require.NoError(t, err)
	require.Equal(t, "table", res.Intent)
	require.NotEmpty(t, res.Hits)
	require.Equal(t, "c1", res.Hits[0].ChunkID)
}

func TestSearch_EmptyQuery(t *testing.T) {
	e := newTestEngine(buildScenarioCorpus())
	res, err := e.Search(context.Background(), "   ", "", Options{})
	require.NoError(t, err)
	require.Equal(t, "general", res.Intent)
	require.Equal(t, 0, res.TotalChunksScanned)
	require.Empty(t, res.Hits)
}

func TestSearch_HitsSortedAndBounded(t *testing.T) {
	e := newTestEngine(buildScenarioCorpus())
	res, err := e.Search(context.Background(), "torque clearance terminal installation", "", Options{TopN: 2})
	require.NoError(t, err)
	require.LessOrEqual(t, len(res.Hits), 2)
	for i := 1; i < len(res.Hits); i++ {
		require.GreaterOrEqual(t, res.Hits[i-1].Score, res.Hits[i].Score)
	}
}

func TestMinMaxNormalize_ConstantInput(t *testing.T) {
	out := minMaxNormalize(map[string]float64{"a": 3, "b": 3, "c": 3})
	for _, v := range out {
		require.Equal(t, 1.0, v)
	}
}

func TestAnchorCoverage_FallbackWhenBelowThreshold(t *testing.T) {
	corpus := buildScenarioCorpus()
	e := newTestEngine(corpus)
	// A query whose anchors don't cover any chunk at >=15% should still
	// return results rather than an empty set (spec.md §8 boundary).
	res, err := e.Search(context.Background(), "unrelated zzz qqq terminology nowhere", "", Options{})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotEmpty(t, res.Hits)
}
