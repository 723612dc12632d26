package visual

import (
	"path/filepath"
	"testing"

	"github.com/goreason/manuals/chunk"
	"github.com/stretchr/testify/require"
)

func TestBuildFromChunks_SkipsNonVisualContentTypes(t *testing.T) {
	chunks := []chunk.Chunk{
		chunk.New("d1:p0001:text", "d1", chunk.Text, 1, 1, "body text"),
	}
	rows, embeds, manifest := BuildFromChunks("d1", chunks)
	require.Empty(t, rows)
	require.Empty(t, embeds)
	require.Equal(t, 0, manifest.VisualChunkCount)
}

func TestBuildFromChunks_DerivesRowsAndLinksTextChunks(t *testing.T) {
	chunks := []chunk.Chunk{
		chunk.New("d1:p0002:text", "d1", chunk.Text, 2, 2, "body text on page 2"),
		chunk.New("d1:p0002:figcap001", "d1", chunk.FigureCaption, 2, 2, "Figure 1: pump assembly",
			chunk.WithFigureID("fig-1"), chunk.WithCaption("Figure 1: pump assembly")),
	}
	rows, _, manifest := BuildFromChunks("d1", chunks)
	require.Len(t, rows, 1)
	require.Equal(t, "figure", rows[0].Modality)
	require.Equal(t, "fig-1", rows[0].RegionID)
	require.Equal(t, []string{"d1:p0002:text"}, rows[0].LinkedTextChunkIDs)
	require.Equal(t, 1, manifest.VisualChunkCount)
}

func TestBuildFromChunks_CollectsEmbeddingsWhenPresent(t *testing.T) {
	chunks := []chunk.Chunk{
		chunk.New("d1:p0001:row0001", "d1", chunk.TableRow, 1, 1, "Bolt A 45",
			chunk.WithMetadata("embedding", []float64{0.1, 0.2, 0.3})),
	}
	_, embeds, manifest := BuildFromChunks("d1", chunks)
	require.Len(t, embeds, 1)
	require.Equal(t, 3, embeds[0].Dim)
	require.Equal(t, 3, manifest.EmbeddingDim)
	require.Empty(t, manifest.Warnings)
}

func TestBuildFromChunks_WarnsOnInconsistentEmbeddingDims(t *testing.T) {
	chunks := []chunk.Chunk{
		chunk.New("d1:p0001:row0001", "d1", chunk.TableRow, 1, 1, "row a",
			chunk.WithMetadata("embedding", []float64{0.1, 0.2})),
		chunk.New("d1:p0001:row0002", "d1", chunk.TableRow, 1, 1, "row b",
			chunk.WithMetadata("embedding", []float64{0.1, 0.2, 0.3})),
	}
	_, _, manifest := BuildFromChunks("d1", chunks)
	require.Contains(t, manifest.Warnings, "inconsistent embedding dimensions in source metadata")
}

func TestWriteAndValidate_RoundTripsCleanArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "doc-7")
	chunks := []chunk.Chunk{
		chunk.New("doc-7:p0001:text", "doc-7", chunk.Text, 1, 1, "intro text"),
		chunk.New("doc-7:p0001:figcap001", "doc-7", chunk.FigureCaption, 1, 1, "Figure 1: valve",
			chunk.WithFigureID("fig-1"), chunk.WithCaption("Figure 1: valve"),
			chunk.WithMetadata("embedding", []float64{0.5, 0.5})),
	}
	rows, embeds, manifest := BuildFromChunks("doc-7", chunks)

	require.NoError(t, Write(dir, rows, embeds, manifest))

	result := Validate(dir, true)
	require.Empty(t, result.Errors, "expected no validation errors, got: %v", result.Errors)
	require.True(t, result.OK())
}

func TestValidate_ReportsMissingArtifactsInStrictMode(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "doc-missing")
	result := Validate(dir, true)
	require.False(t, result.OK())
	require.NotEmpty(t, result.Errors)
}

func TestValidate_DowngradesMissingArtifactsToWarningsWhenNotStrict(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "doc-missing")
	result := Validate(dir, false)
	require.True(t, result.OK())
	require.NotEmpty(t, result.Warnings)
}
