// Package keyword is the reference KeywordSearch adapter. It builds an
// in-memory SQLite FTS5 virtual table fresh for every Search call — no
// persistent index is kept between queries, matching spec.md's retrieval
// non-goal of a loaded-per-query corpus rather than a standing index.
package keyword

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/goreason/manuals/chunk"
	"github.com/goreason/manuals/ports"
)

// Search implements ports.KeywordSearch over an in-memory SQLite FTS5
// table built from the supplied chunks.
type Search struct{}

// New builds a KeywordSearch adapter.
func New() *Search {
	return &Search{}
}

// Search implements ports.KeywordSearch.
func (s *Search) Search(ctx context.Context, query string, chunks []chunk.Chunk, topK int) ([]ports.ScoredChunk, error) {
	if len(chunks) == 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	// A unique DSN per call: a fixed "file::memory:?cache=shared" DSN
	// names the same shared-cache database across every concurrent
	// caller in the process, so two /search requests racing through
	// here would collide on the same "chunks" table.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory FTS index: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `CREATE VIRTUAL TABLE chunks USING fts5(chunk_id UNINDEXED, content)`); err != nil {
		return nil, fmt.Errorf("creating FTS5 table: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, `INSERT INTO chunks(chunk_id, content) VALUES (?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing FTS5 insert: %w", err)
	}
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ChunkID(), c.ContentText()); err != nil {
			stmt.Close()
			return nil, fmt.Errorf("indexing chunk %s: %w", c.ChunkID(), err)
		}
	}
	stmt.Close()

	matchQuery := ftsMatchQuery(query)
	if matchQuery == "" {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, `SELECT chunk_id, bm25(chunks) FROM chunks WHERE chunks MATCH ? ORDER BY bm25(chunks) LIMIT ?`, matchQuery, topK)
	if err != nil {
		// A MATCH query with no valid terms (e.g. only stop characters)
		// is not an error condition for the caller — it simply means no
		// hits for this query against this corpus.
		return nil, nil
	}
	defer rows.Close()

	byID := make(map[string]chunk.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ChunkID()] = c
	}

	var out []ports.ScoredChunk
	for rows.Next() {
		var chunkID string
		var bm25 float64
		if err := rows.Scan(&chunkID, &bm25); err != nil {
			continue
		}
		c, ok := byID[chunkID]
		if !ok {
			continue
		}
		// FTS5's bm25() is negative, more negative meaning a better match;
		// negate it and map into [0,1) so that higher is better.
		rel := -bm25
		if rel < 0 {
			rel = 0
		}
		out = append(out, ports.ScoredChunk{Chunk: c, Score: rel / (1.0 + rel)})
	}
	return out, rows.Err()
}

// ftsMatchQuery builds an FTS5 MATCH expression that ORs together the
// query's alphanumeric terms, so a partial term match still surfaces
// results instead of requiring every word to appear.
func ftsMatchQuery(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + f + `"`
	}
	return strings.Join(quoted, " OR ")
}
