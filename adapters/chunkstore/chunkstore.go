// Package chunkstore is the reference ChunkStore/ChunkQuery adapter,
// persisting one chunks.jsonl file per document under an assets
// directory, per spec.md §6.3's corpus layout. Grounded in the teacher's
// store.New directory-creation pattern (os.MkdirAll before opening the
// backing file), generalized from a SQLite database file to a
// line-delimited JSON corpus tree.
package chunkstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goreason/manuals/chunk"
)

// Store implements ports.ChunkStore and ports.ChunkQuery over a tree of
// {assetsDir}/{doc_id}/chunks.jsonl files.
type Store struct {
	assetsDir string
	mu        sync.RWMutex
}

// New builds a chunk store rooted at assetsDir.
func New(assetsDir string) *Store {
	return &Store{assetsDir: assetsDir}
}

// Persist implements ports.ChunkStore: writes one JSON object per line to
// {assetsDir}/{doc_id}/chunks.jsonl, returning the document's directory
// as the asset reference.
func (s *Store) Persist(ctx context.Context, docID string, chunks []chunk.Chunk) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docDir := filepath.Join(s.assetsDir, docID)
	if err := os.MkdirAll(docDir, 0o755); err != nil {
		return "", fmt.Errorf("creating document directory: %w", err)
	}

	path := filepath.Join(docDir, "chunks.jsonl")
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating chunks file: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, c := range chunks {
		if err := enc.Encode(c.ToMap()); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return "", fmt.Errorf("encoding chunk %s: %w", c.ChunkID(), err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("flushing chunks file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing chunks file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("finalizing chunks file: %w", err)
	}

	return docDir, nil
}

// ListChunks implements ports.ChunkQuery: reading a single document's
// chunks.jsonl when docID is given, or every document under assetsDir
// when it is empty.
func (s *Store) ListChunks(ctx context.Context, docID string) ([]chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if docID != "" {
		return readChunksFile(filepath.Join(s.assetsDir, docID, "chunks.jsonl"))
	}

	entries, err := os.ReadDir(s.assetsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing assets directory: %w", err)
	}

	var all []chunk.Chunk
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		chunks, err := readChunksFile(filepath.Join(s.assetsDir, e.Name(), "chunks.jsonl"))
		if err != nil {
			continue
		}
		all = append(all, chunks...)
	}
	return all, nil
}

func readChunksFile(path string) ([]chunk.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var out []chunk.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var row map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			continue
		}
		out = append(out, chunkFromRow(row))
	}
	return out, scanner.Err()
}

func chunkFromRow(row map[string]any) chunk.Chunk {
	str := func(k string) string { v, _ := row[k].(string); return v }
	num := func(k string) int {
		if v, ok := row[k].(float64); ok {
			return int(v)
		}
		return 0
	}

	var opts []chunk.Option
	if v := str("section_path"); v != "" {
		opts = append(opts, chunk.WithSectionPath(v))
	}
	if v := str("figure_id"); v != "" {
		opts = append(opts, chunk.WithFigureID(v))
	}
	if v := str("table_id"); v != "" {
		opts = append(opts, chunk.WithTableID(v))
	}
	if v := str("caption"); v != "" {
		opts = append(opts, chunk.WithCaption(v))
	}
	if v := str("asset_ref"); v != "" {
		opts = append(opts, chunk.WithAssetRef(v))
	}
	if meta, ok := row["metadata"].(map[string]any); ok {
		opts = append(opts, chunk.WithMetadataMap(meta))
	}

	return chunk.New(
		str("chunk_id"), str("doc_id"), chunk.ContentType(str("content_type")),
		num("page_start"), num("page_end"), str("content_text"),
		opts...,
	)
}
