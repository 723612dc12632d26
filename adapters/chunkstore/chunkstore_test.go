package chunkstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goreason/manuals/chunk"
)

func TestPersistThenListChunks_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()

	chunks := []chunk.Chunk{
		chunk.New("d1:p0001:text", "d1", chunk.Text, 1, 1, "hello world", chunk.WithSectionPath("Intro")),
		chunk.New("d1:p0002:row0001", "d1", chunk.TableRow, 2, 2, "Torque | 45 Nm", chunk.WithTableID("tbl-1")),
	}

	assetRef, err := s.Persist(ctx, "d1", chunks)
	require.NoError(t, err)
	require.NotEmpty(t, assetRef)

	got, err := s.ListChunks(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "d1:p0001:text", got[0].ChunkID())
	require.Equal(t, "Intro", got[0].SectionPath())
	require.Equal(t, "tbl-1", got[1].TableID())
}

func TestListChunks_EmptyDocIDListsAllDocuments(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()

	_, err := s.Persist(ctx, "d1", []chunk.Chunk{chunk.New("d1:c1", "d1", chunk.Text, 1, 1, "a")})
	require.NoError(t, err)
	_, err = s.Persist(ctx, "d2", []chunk.Chunk{chunk.New("d2:c1", "d2", chunk.Text, 1, 1, "b")})
	require.NoError(t, err)

	all, err := s.ListChunks(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestListChunks_UnknownDocIDReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	got, err := s.ListChunks(context.Background(), "missing")
	require.NoError(t, err)
	require.Empty(t, got)
}
