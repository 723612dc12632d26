package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goreason/manuals/chunk"
)

func TestHashedSearch_IdenticalTextScoresHighest(t *testing.T) {
	chunks := []chunk.Chunk{
		chunk.New("c1", "d1", chunk.Text, 1, 1, "replace the hydraulic filter every service interval"),
		chunk.New("c2", "d1", chunk.Text, 2, 2, "torque the bolt to 45 newton meters"),
	}

	h := NewHashed(128)
	hits, err := h.Search(context.Background(), "replace the hydraulic filter", chunks, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, "c1", hits[0].Chunk.ChunkID())
}

func TestHashedSearch_EmptyCorpusReturnsNil(t *testing.T) {
	h := NewHashed(0)
	hits, err := h.Search(context.Background(), "torque", nil, 5)
	require.NoError(t, err)
	require.Nil(t, hits)
}

func TestSqliteVecSearch_SkipsChunksWithoutEmbeddings(t *testing.T) {
	chunks := []chunk.Chunk{
		chunk.New("c1", "d1", chunk.Text, 1, 1, "no embedding here"),
	}
	v := NewSqliteVec(nil)
	hits, err := v.Search(context.Background(), "torque", chunks, 5)
	require.NoError(t, err)
	require.Nil(t, hits)
}
