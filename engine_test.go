package manuals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goreason/manuals/adapters/chunkstore"
	"github.com/goreason/manuals/chunk"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.AssetsDir = t.TempDir()
	return cfg
}

func TestNew_WiresEngineWithoutNetworkCalls(t *testing.T) {
	cfg := testConfig(t)
	e, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, e)
	require.NoError(t, e.Close())
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.AssetsDir = ""
	_, err := New(cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_RejectsVisionIngestionWithoutVisionProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.UseVisionIngestion = true
	cfg.Vision.Provider = ""
	_, err := New(cfg)
	require.ErrorIs(t, err, ErrVisionRequired)
}

func TestIngest_RejectsNonPDFPaths(t *testing.T) {
	cfg := testConfig(t)
	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Ingest(context.Background(), IngestInput{PDFPath: "manual.txt"})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSearch_EmptyCorpusReturnsNotFoundShapedResult(t *testing.T) {
	cfg := testConfig(t)
	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	res, err := e.Search(context.Background(), SearchInput{Query: "replace the hydraulic filter"})
	require.NoError(t, err)
	require.Empty(t, res.Hits)
}

func TestSearch_DocIDsScopesAcrossDocuments(t *testing.T) {
	cfg := testConfig(t)
	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	store := chunkstore.New(cfg.AssetsDir)
	_, err = store.Persist(ctx, "d1", []chunk.Chunk{
		chunk.New("d1:c1", "d1", chunk.Text, 1, 1, "replace the hydraulic filter every service interval"),
	})
	require.NoError(t, err)
	_, err = store.Persist(ctx, "d2", []chunk.Chunk{
		chunk.New("d2:c1", "d2", chunk.Text, 1, 1, "replace the hydraulic filter on a different model"),
	})
	require.NoError(t, err)

	res, err := e.Search(ctx, SearchInput{Query: "hydraulic filter", DocIDs: []string{"d1"}})
	require.NoError(t, err)
	for _, h := range res.Hits {
		require.Equal(t, "d1", h.DocID)
	}
}

func TestAnswer_EmptyCorpusReturnsNotFound(t *testing.T) {
	cfg := testConfig(t)
	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	out, err := e.Answer(context.Background(), AnswerInput{Query: "how do I replace the filter?"})
	require.NoError(t, err)
	require.Equal(t, "not_found", out.Status)
}
