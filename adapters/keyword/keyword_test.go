package keyword

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goreason/manuals/chunk"
)

func TestSearch_RanksMatchingChunkAboveUnrelated(t *testing.T) {
	chunks := []chunk.Chunk{
		chunk.New("c1", "d1", chunk.Text, 10, 10, "Torque specification for the main bolt is 45 Nm."),
		chunk.New("c2", "d1", chunk.Text, 20, 20, "Replace the air filter every 500 hours of operation."),
	}

	s := New()
	hits, err := s.Search(context.Background(), "torque bolt specification", chunks, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, "c1", hits[0].Chunk.ChunkID())
}

func TestSearch_EmptyCorpusReturnsNil(t *testing.T) {
	s := New()
	hits, err := s.Search(context.Background(), "torque", nil, 5)
	require.NoError(t, err)
	require.Nil(t, hits)
}

func TestSearch_EmptyQueryReturnsNil(t *testing.T) {
	chunks := []chunk.Chunk{chunk.New("c1", "d1", chunk.Text, 1, 1, "content")}
	s := New()
	hits, err := s.Search(context.Background(), "   ", chunks, 5)
	require.NoError(t, err)
	require.Nil(t, hits)
}
