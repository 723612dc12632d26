// Package ingest orchestrates PDF-to-chunk ingestion: parsing, per-page
// processing, two-pass embedding, and persistence. Grounded in
// original_source's ingest_document.py orchestration shape, generalized
// with a bounded errgroup worker pool (pattern from intelligencedev-manifold)
// in place of the original's sequential loop.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/goreason/manuals/chunk"
	"github.com/goreason/manuals/figureextract"
	"github.com/goreason/manuals/pageproc"
	"github.com/goreason/manuals/ports"
	"github.com/goreason/manuals/tableextract"
)

// ErrEmbeddingCoverage is returned when embedding_fail_fast is set and
// coverage falls below the configured minimum.
var ErrEmbeddingCoverage = errors.New("goreason/ingest: embedding coverage below configured minimum")

// ProgressStage names a phase of ingestion for progress callbacks.
type ProgressStage string

const (
	StageExtracting ProgressStage = "extracting"
	StageEmbedding  ProgressStage = "embedding"
	StagePersisted  ProgressStage = "persisted"
)

// Progress reports incremental ingestion status.
type Progress struct {
	Stage ProgressStage
	Done  int
	Total int
}

// ProgressFunc receives Progress updates; may be nil.
type ProgressFunc func(Progress)

// Options configures one ingestion run.
type Options struct {
	DocID                       string
	PDFPath                     string
	PdfParser                   ports.PdfParser
	Ocr                         ports.Ocr
	Vision                      ports.Vision
	TableExtractor              *tableextract.Extractor
	FigureExtractor             *figureextract.Extractor
	FigureGeometry              func(pageNumber int) (figureextract.PageGeometry, bool)
	Embedding                   ports.Embedding
	ChunkStore                  ports.ChunkStore
	VisionMaxPages              int
	PageWorkers                 int
	EmbeddingMinCoverage        float64
	EmbeddingFailFast           bool
	EmbeddingSecondPassMaxChars int
	OnProgress                  ProgressFunc
}

// Result is the outcome of one ingestion run.
type Result struct {
	DocID                        string
	AssetRef                     string
	TotalChunks                  int
	CountsByType                 map[chunk.ContentType]int
	EmbeddingSuccessCount        int
	EmbeddingCoverage            float64
	EmbeddingSecondPassRecovered int
	Warnings                     []string
	FailureReasons               []string
}

// Run executes the full ingestion pipeline.
func Run(ctx context.Context, opts Options) (Result, error) {
	pages, err := opts.PdfParser.Parse(ctx, opts.PDFPath)
	if err != nil {
		return Result{}, fmt.Errorf("manuals: parsing failed: %w", err)
	}

	regionsByPage := map[int][]figureextract.Region{}
	if opts.FigureExtractor != nil && opts.FigureGeometry != nil {
		for _, page := range pages {
			if geo, ok := opts.FigureGeometry(page.PageNumber); ok {
				regionsByPage[page.PageNumber] = opts.FigureExtractor.Extract(geo, opts.DocID, page.PageNumber)
			}
		}
	}

	budget := pageproc.NewVisionBudget(opts.VisionMaxPages)
	workers := opts.PageWorkers
	if workers < 1 {
		workers = 1
	}

	results := make([]pageproc.Result, len(pages))
	reportExtract(opts.OnProgress, 0, len(pages))

	if workers == 1 || len(pages) <= 1 {
		for i, page := range pages {
			results[i] = processOnePage(ctx, opts, budget, regionsByPage, page)
			reportExtract(opts.OnProgress, i+1, len(pages))
		}
	} else {
		var mu sync.Mutex
		done := 0
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, page := range pages {
			i, page := i, page
			g.Go(func() error {
				results[i] = processOnePage(gctx, opts, budget, regionsByPage, page)
				mu.Lock()
				done++
				reportExtract(opts.OnProgress, done, len(pages))
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	sort.Slice(results, func(i, j int) bool { return results[i].PageNumber < results[j].PageNumber })

	var chunks []chunk.Chunk
	for _, r := range results {
		chunks = append(chunks, r.Chunks...)
	}

	countsByType := map[chunk.ContentType]int{}
	for _, c := range chunks {
		countsByType[c.ContentType()]++
	}

	res := Result{
		DocID:        opts.DocID,
		TotalChunks:  len(chunks),
		CountsByType: countsByType,
	}

	if opts.Embedding != nil && len(chunks) > 0 {
		chunks, res.EmbeddingSuccessCount, res.EmbeddingSecondPassRecovered, res.Warnings, res.FailureReasons =
			embedChunks(ctx, opts.Embedding, chunks, opts.EmbeddingSecondPassMaxChars, opts.OnProgress)
		res.EmbeddingCoverage = float64(res.EmbeddingSuccessCount) / float64(len(chunks))

		if opts.EmbeddingFailFast && res.EmbeddingCoverage < opts.EmbeddingMinCoverage {
			return res, fmt.Errorf("manuals: embedding coverage %.2f below minimum %.2f: %w",
				res.EmbeddingCoverage, opts.EmbeddingMinCoverage, ErrEmbeddingCoverage)
		}
	}

	assetRef, err := opts.ChunkStore.Persist(ctx, opts.DocID, chunks)
	if err != nil {
		return res, fmt.Errorf("manuals: persisting chunks: %w", err)
	}
	res.AssetRef = assetRef
	reportStage(opts.OnProgress, StagePersisted, len(chunks), len(chunks))

	return res, nil
}

func processOnePage(ctx context.Context, opts Options, budget *pageproc.VisionBudget, regionsByPage map[int][]figureextract.Region, page ports.Page) pageproc.Result {
	deps := pageproc.Dependencies{
		TableExtractor:  opts.TableExtractor,
		FigureExtractor: opts.FigureExtractor,
		FigureRegions:   regionsByPage[page.PageNumber],
	}
	if opts.Ocr != nil {
		deps.Ocr = func(ctx context.Context, pageNumber int) (string, error) {
			return opts.Ocr.ExtractText(ctx, opts.PDFPath, pageNumber)
		}
	}
	if opts.Vision != nil {
		deps.Vision = func(ctx context.Context, pageNumber int) (string, error) {
			return opts.Vision.ExtractPageInsights(ctx, opts.PDFPath, pageNumber)
		}
	}
	proc := pageproc.New(opts.DocID, budget, deps)
	return proc.Process(ctx, page.PageNumber, page.Text)
}

func reportExtract(fn ProgressFunc, done, total int) {
	reportStage(fn, StageExtracting, done, total)
}

func reportStage(fn ProgressFunc, stage ProgressStage, done, total int) {
	if fn != nil {
		fn(Progress{Stage: stage, Done: done, Total: total})
	}
}
