// Package vector provides two reference VectorSearch adapters: a
// dependency-free hashed bag-of-words cosine scorer used when chunks
// carry no real embeddings, and a github.com/asg017/sqlite-vec-go-bindings
// backed adapter for chunks that do carry a precomputed "embedding"
// metadata vector (spec.md §4.G's dense-vector leg).
package vector

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"

	"github.com/goreason/manuals/chunk"
	"github.com/goreason/manuals/ports"
)

// Hashed is a fallback VectorSearch that hashes query and chunk text into
// a fixed-width bag-of-words vector and scores by cosine similarity, for
// corpora with no real embedding provider configured.
type Hashed struct {
	dim int
}

// NewHashed builds a hashed-BOW VectorSearch with the given vector width.
// dim <= 0 defaults to 384.
func NewHashed(dim int) *Hashed {
	if dim <= 0 {
		dim = 384
	}
	return &Hashed{dim: dim}
}

// Search implements ports.VectorSearch.
func (h *Hashed) Search(ctx context.Context, query string, chunks []chunk.Chunk, topK int) ([]ports.ScoredChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	qv := hashVector(query, h.dim)

	var out []ports.ScoredChunk
	for _, c := range chunks {
		cv := hashVector(c.ContentText(), h.dim)
		out = append(out, ports.ScoredChunk{Chunk: c, Score: cosine(qv, cv)})
	}
	return topN(out, topK), nil
}

func hashVector(text string, dim int) []float64 {
	v := make([]float64, dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		v[fnv32(w)%uint32(dim)] += 1.0
	}
	return v
}

func fnv32(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func topN(scored []ports.ScoredChunk, n int) []ports.ScoredChunk {
	if n <= 0 || n >= len(scored) {
		return scored
	}
	// Simple selection; corpora here are page/chunk sized, not web scale.
	for i := 0; i < n; i++ {
		best := i
		for j := i + 1; j < len(scored); j++ {
			if scored[j].Score > scored[best].Score {
				best = j
			}
		}
		scored[i], scored[best] = scored[best], scored[i]
	}
	return scored[:n]
}

// SqliteVec implements ports.VectorSearch over an in-memory sqlite-vec
// vec0 virtual table, consuming each chunk's precomputed "embedding"
// metadata and embedding the query text via the configured Embedding
// port. Like the keyword adapter, the vec0 table is rebuilt fresh per
// Search call — no standing index is kept.
type SqliteVec struct {
	embedder ports.Embedding
}

// NewSqliteVec builds a VectorSearch backed by sqlite-vec, embedding
// queries via embedder.
func NewSqliteVec(embedder ports.Embedding) *SqliteVec {
	return &SqliteVec{embedder: embedder}
}

func init() {
	sqlite_vec.Auto()
}

// Search implements ports.VectorSearch.
func (s *SqliteVec) Search(ctx context.Context, query string, chunks []chunk.Chunk, topK int) ([]ports.ScoredChunk, error) {
	embedded := make([]chunk.Chunk, 0, len(chunks))
	dim := 0
	for _, c := range chunks {
		if emb, ok := c.Embedding(); ok && len(emb) > 0 {
			if dim == 0 {
				dim = len(emb)
			}
			if len(emb) == dim {
				embedded = append(embedded, c)
			}
		}
	}
	if len(embedded) == 0 || s.embedder == nil {
		return nil, nil
	}

	qv, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(qv) != dim {
		return nil, nil
	}

	// A unique DSN per call: a fixed "file::memory:?cache=shared" DSN
	// names the same shared-cache database across every concurrent
	// caller in the process, so two concurrent requests would collide
	// on the same "vec_chunks" table.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory vec0 index: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE VIRTUAL TABLE vec_chunks USING vec0(embedding float[%d])`, dim)); err != nil {
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	idToChunk := make(map[int64]chunk.Chunk, len(embedded))
	stmt, err := db.PrepareContext(ctx, `INSERT INTO vec_chunks(rowid, embedding) VALUES (?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing vec0 insert: %w", err)
	}
	for i, c := range embedded {
		emb, _ := c.Embedding()
		blob, err := sqlite_vec.SerializeFloat32(toFloat32(emb))
		if err != nil {
			stmt.Close()
			return nil, fmt.Errorf("serializing embedding for chunk %s: %w", c.ChunkID(), err)
		}
		rowID := int64(i + 1)
		if _, err := stmt.ExecContext(ctx, rowID, blob); err != nil {
			stmt.Close()
			return nil, fmt.Errorf("indexing chunk %s: %w", c.ChunkID(), err)
		}
		idToChunk[rowID] = c
	}
	stmt.Close()

	queryBlob, err := sqlite_vec.SerializeFloat32(toFloat32(qv))
	if err != nil {
		return nil, fmt.Errorf("serializing query embedding: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT rowid, distance FROM vec_chunks WHERE embedding MATCH ? AND k = ? ORDER BY distance`, queryBlob, topK)
	if err != nil {
		return nil, fmt.Errorf("querying vec0 index: %w", err)
	}
	defer rows.Close()

	var out []ports.ScoredChunk
	for rows.Next() {
		var rowID int64
		var distance float64
		if err := rows.Scan(&rowID, &distance); err != nil {
			continue
		}
		c, ok := idToChunk[rowID]
		if !ok {
			continue
		}
		// vec0 distance is L2; convert to a bounded similarity score.
		out = append(out, ports.ScoredChunk{Chunk: c, Score: 1.0 / (1.0 + distance)})
	}
	return out, rows.Err()
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
