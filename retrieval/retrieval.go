// Package retrieval implements the hybrid keyword+dense search engine
// described in spec.md §4.G: query expansion, intent detection, anchor
// coverage filtering, content-type boosting, score fusion, and optional
// reranking over an in-memory chunk corpus.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/goreason/manuals/chunk"
	"github.com/goreason/manuals/ports"
)

// Hit is a retrieval result wrapping a chunk with fused scores and a
// snippet, matching the EvidenceHit record of spec.md §3.
type Hit struct {
	ChunkID      string             `json:"chunk_id"`
	DocID        string             `json:"doc_id"`
	ContentType  chunk.ContentType  `json:"content_type"`
	PageStart    int                `json:"page_start"`
	PageEnd      int                `json:"page_end"`
	SectionPath  string             `json:"section_path,omitempty"`
	FigureID     string             `json:"figure_id,omitempty"`
	TableID      string             `json:"table_id,omitempty"`
	Score        float64            `json:"score"`
	KeywordScore float64            `json:"keyword_score"`
	VectorScore  float64            `json:"vector_score"`
	RerankScore  float64            `json:"rerank_score,omitempty"`
	Snippet      string             `json:"snippet"`
}

// Result is the output of Search, per spec.md §6.1 /search.
type Result struct {
	Query              string `json:"query"`
	Intent             string `json:"intent"`
	TotalChunksScanned int    `json:"total_chunks_scanned"`
	Hits               []Hit  `json:"hits"`
}

// Options configures one Search call; zero values fall back to defaults.
type Options struct {
	DocID          string
	TopKKeyword    int
	TopKVector     int
	TopN           int
	RerankPoolSize int
}

func (o Options) withDefaults() Options {
	if o.TopKKeyword == 0 {
		o.TopKKeyword = 20
	}
	if o.TopKVector == 0 {
		o.TopKVector = 20
	}
	if o.TopN == 0 {
		o.TopN = 8
	}
	if o.RerankPoolSize == 0 {
		o.RerankPoolSize = 24
	}
	return o
}

var figureContentTypes = map[chunk.ContentType]bool{
	chunk.FigureCaption: true,
	chunk.FigureOCR:      true,
	chunk.VisionSummary:  true,
	chunk.VisualFigure:   true,
	chunk.VisualImage:    true,
}

// Engine performs hybrid retrieval over an in-memory chunk corpus loaded
// fresh for each query, per spec.md §1 (no persistent vector index).
type Engine struct {
	chunks   ports.ChunkQuery
	keyword  ports.KeywordSearch
	vector   ports.VectorSearch
	reranker ports.Reranker // optional
	logger   zerolog.Logger
}

// New builds a retrieval engine. reranker may be nil to disable step 13.
func New(chunks ports.ChunkQuery, keyword ports.KeywordSearch, vector ports.VectorSearch, reranker ports.Reranker, logger zerolog.Logger) *Engine {
	return &Engine{chunks: chunks, keyword: keyword, vector: vector, reranker: reranker, logger: logger}
}

// Search runs the full hybrid retrieval pipeline, per spec.md §4.G.
func (e *Engine) Search(ctx context.Context, query, docID string, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if docID == "" {
		docID = opts.DocID
	}

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Result{Query: query, Intent: "general"}, nil
	}

	corpus, err := e.chunks.ListChunks(ctx, docID)
	if err != nil {
		return Result{}, err
	}

	intent := detectIntent(trimmed)
	expanded := strings.Join(expandQuery(trimmed), " ")
	anchors := anchorTerms(trimmed)

	byID := make(map[string]chunk.Chunk, len(corpus))
	for _, c := range corpus {
		byID[c.ChunkID()] = c
	}

	var kwRaw, vecRaw []ports.ScoredChunk
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := e.keyword.Search(gctx, expanded, corpus, opts.TopKKeyword)
		if err != nil {
			e.logger.Warn().Err(err).Msg("retrieval: keyword search failed")
			return nil
		}
		kwRaw = res
		return nil
	})
	g.Go(func() error {
		res, err := e.vector.Search(gctx, trimmed, corpus, opts.TopKVector)
		if err != nil {
			e.logger.Warn().Err(err).Msg("retrieval: vector search failed")
			return nil
		}
		vecRaw = res
		return nil
	})
	_ = g.Wait()

	kwScores := toScoreMap(kwRaw)
	vecScores := toScoreMap(vecRaw)
	kwNorm := minMaxNormalize(kwScores)
	vecNorm := minMaxNormalize(vecScores)

	union := map[string]bool{}
	for id := range kwNorm {
		union[id] = true
	}
	for id := range vecNorm {
		union[id] = true
	}

	typeWeight := func(ct chunk.ContentType) float64 {
		switch intent {
		case "table":
			if ct == chunk.TableRow {
				return 1.35
			}
			if figureContentTypes[ct] {
				return 1.10
			}
		case "diagram":
			if figureContentTypes[ct] {
				return 1.40
			}
			if ct == chunk.TableRow {
				return 1.10
			}
		}
		return 1.0
	}

	var hits []Hit
	for id := range union {
		c, ok := byID[id]
		if !ok {
			continue
		}
		kw := kwNorm[id]
		vec := vecNorm[id]
		fused := 0.5*kw + 0.5*vec
		coverage := anchorCoverage(anchors, c.ContentText())
		score := round6(fused * typeWeight(c.ContentType()) * (0.70 + 0.60*coverage))
		hits = append(hits, Hit{
			ChunkID:      c.ChunkID(),
			DocID:        c.DocID(),
			ContentType:  c.ContentType(),
			PageStart:    c.PageStart(),
			PageEnd:      c.PageEnd(),
			SectionPath:  c.SectionPath(),
			FigureID:     c.FigureID(),
			TableID:      c.TableID(),
			Score:        score,
			KeywordScore: kw,
			VectorScore:  vec,
			Snippet:      buildSnippet(c.ContentText()),
		})
	}

	if len(anchors) >= 2 {
		filtered := filterByCoverage(hits, byID, anchors, 0.15)
		if len(filtered) > 0 {
			hits = filtered
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if e.reranker != nil && len(hits) > 0 {
		hits = e.rerank(ctx, trimmed, hits, byID, opts)
	}

	if len(hits) > opts.TopN {
		hits = hits[:opts.TopN]
	}

	e.logger.Debug().Str("query", trimmed).Str("intent", intent).
		Int("scanned", len(corpus)).Int("hits", len(hits)).Msg("retrieval: search complete")

	return Result{
		Query:              query,
		Intent:             intent,
		TotalChunksScanned: len(corpus),
		Hits:               hits,
	}, nil
}

func filterByCoverage(hits []Hit, byID map[string]chunk.Chunk, anchors []string, threshold float64) []Hit {
	var out []Hit
	for _, h := range hits {
		c := byID[h.ChunkID]
		if anchorCoverage(anchors, c.ContentText()) >= threshold {
			out = append(out, h)
		}
	}
	return out
}

// rerank reorders the top pool via the reranker, blending
// final = 0.35*prior + 0.65*rerank_score, leaving the tail untouched,
// per spec.md §4.G step 13.
func (e *Engine) rerank(ctx context.Context, query string, hits []Hit, byID map[string]chunk.Chunk, opts Options) []Hit {
	poolSize := min(opts.RerankPoolSize, len(hits))
	if poolSize < opts.TopN {
		poolSize = opts.TopN
	}
	if poolSize > len(hits) {
		poolSize = len(hits)
	}
	pool := hits[:poolSize]
	tail := hits[poolSize:]

	candidates := make([]chunk.Chunk, 0, len(pool))
	for _, h := range pool {
		candidates = append(candidates, byID[h.ChunkID])
	}

	ranked, err := e.reranker.Rerank(ctx, query, candidates, len(candidates))
	if err != nil {
		e.logger.Warn().Err(err).Msg("retrieval: rerank failed")
		return hits
	}
	rerankByID := make(map[string]float64, len(ranked))
	for _, r := range ranked {
		rerankByID[r.ChunkID] = r.Score
	}

	for i := range pool {
		if rs, ok := rerankByID[pool[i].ChunkID]; ok {
			pool[i].RerankScore = rs
			pool[i].Score = round6(0.35*pool[i].Score + 0.65*rs)
		}
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Score > pool[j].Score })

	return append(pool, tail...)
}

func toScoreMap(scored []ports.ScoredChunk) map[string]float64 {
	out := make(map[string]float64, len(scored))
	for _, s := range scored {
		out[s.Chunk.ChunkID()] = s.Score
	}
	return out
}
