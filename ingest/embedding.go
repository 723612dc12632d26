package ingest

import (
	"context"
	"fmt"

	"github.com/goreason/manuals/chunk"
	"github.com/goreason/manuals/ports"
)

// embedChunks runs the two-pass embedding stage described in spec.md §4.E:
// a first pass over full content_text, then a second pass over the
// failures, truncating to progressively shorter candidate lengths until
// an embedding is obtained or candidates are exhausted.
func embedChunks(ctx context.Context, embedder ports.Embedding, chunks []chunk.Chunk, secondPassMaxChars int, onProgress ProgressFunc) ([]chunk.Chunk, int, int, []string, []string) {
	out := make([]chunk.Chunk, len(chunks))
	copy(out, chunks)

	var warnings, failureReasons []string
	successCount := 0
	var failedIdx []int

	for i, c := range out {
		vec, err := embedder.EmbedText(ctx, c.ContentText())
		if err == nil && len(vec) > 0 {
			out[i] = withEmbedding(c, vec)
			successCount++
		} else {
			reason := embedder.LastError()
			if reason == "" {
				reason = "embedding-returned-empty-vector"
			}
			failureReasons = append(failureReasons, fmt.Sprintf("chunk %s: %s", c.ChunkID(), reason))
			failedIdx = append(failedIdx, i)
		}
		reportStage(onProgress, StageEmbedding, i+1, len(out))
	}

	recovered := 0
	if len(failedIdx) > 0 {
		candidateLengths := dedupedLengths(secondPassMaxChars)
		for _, i := range failedIdx {
			c := out[i]
			for _, maxChars := range candidateLengths {
				truncated := truncateRunes(c.ContentText(), maxChars)
				if truncated == "" {
					continue
				}
				vec, err := embedder.EmbedText(ctx, truncated)
				if err == nil && len(vec) > 0 {
					out[i] = withEmbedding(c, vec)
					successCount++
					recovered++
					warnings = append(warnings, fmt.Sprintf("Second-pass embedding recovered chunk %s at %d chars", c.ChunkID(), maxChars))
					break
				}
			}
		}
	}

	return out, successCount, recovered, warnings, failureReasons
}

func withEmbedding(c chunk.Chunk, vec []float64) chunk.Chunk {
	return chunk.New(c.ChunkID(), c.DocID(), c.ContentType(), c.PageStart(), c.PageEnd(), c.ContentText(),
		withAllOptions(c, chunk.WithMetadata("embedding", vec))...)
}

func withAllOptions(c chunk.Chunk, extra ...chunk.Option) []chunk.Option {
	opts := []chunk.Option{chunk.WithMetadataMap(c.Metadata())}
	if c.SectionPath() != "" {
		opts = append(opts, chunk.WithSectionPath(c.SectionPath()))
	}
	if c.FigureID() != "" {
		opts = append(opts, chunk.WithFigureID(c.FigureID()))
	}
	if c.TableID() != "" {
		opts = append(opts, chunk.WithTableID(c.TableID()))
	}
	if c.Caption() != "" {
		opts = append(opts, chunk.WithCaption(c.Caption()))
	}
	if c.AssetRef() != "" {
		opts = append(opts, chunk.WithAssetRef(c.AssetRef()))
	}
	return append(opts, extra...)
}

// dedupedLengths returns [secondPassMaxChars, 1536, 1024, 768] in that
// order with duplicates removed, per spec.md §4.E.
func dedupedLengths(secondPassMaxChars int) []int {
	candidates := []int{secondPassMaxChars, 1536, 1024, 768}
	seen := map[int]bool{}
	var out []int
	for _, v := range candidates {
		if v <= 0 || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func truncateRunes(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
