// Package pageproc produces the chunk set for a single page, grounded in
// the teacher's parser/pdf.go per-page extraction loop generalized to a
// standalone, vision-budget-aware processor per spec.md §4.D.
package pageproc

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/goreason/manuals/chunk"
	"github.com/goreason/manuals/figureextract"
	"github.com/goreason/manuals/tableextract"
)

var captionPattern = regexp.MustCompile(`(?i)^(figure|fig\.)\s*\d+`)

// numericToken/alphaWord mirror the density heuristic used for vision
// gating: pages dense in numeric callouts but sparse in prose benefit
// from a vision pass even without an explicit figure caption.
var (
	numericTokenRe = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)
	proseWordRe    = regexp.MustCompile(`[A-Za-z]{4,}`)
)

// VisionBudget is shared mutable state across all pages of one document,
// guarded internally so concurrent page workers can share it safely.
type VisionBudget struct {
	mu        sync.Mutex
	remaining int
}

// NewVisionBudget creates a budget with the given number of allowed calls.
func NewVisionBudget(n int) *VisionBudget { return &VisionBudget{remaining: n} }

// take atomically decrements the budget, returning false if exhausted.
func (b *VisionBudget) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// refund returns a previously taken slot (used when a vision call comes
// back empty).
func (b *VisionBudget) refund() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining++
}

// Dependencies are the optional external collaborators a page processor
// may invoke. All are optional; nil disables the corresponding step.
type Dependencies struct {
	Ocr            OcrFunc
	Vision         VisionFunc
	TableExtractor *tableextract.Extractor
	FigureExtractor *figureextract.Extractor
	FigureRegions  []figureextract.Region // pre-extracted regions for this page, if available
}

type OcrFunc func(ctx context.Context, pageNumber int) (string, error)
type VisionFunc func(ctx context.Context, pageNumber int) (string, error)

// Result is the chunk set and bookkeeping produced for one page.
type Result struct {
	PageNumber int
	Chunks     []chunk.Chunk
}

// Processor produces chunks for a single page.
type Processor struct {
	docID  string
	budget *VisionBudget
	deps   Dependencies
}

// New builds a page processor for one document, sharing budget across
// pages.
func New(docID string, budget *VisionBudget, deps Dependencies) *Processor {
	return &Processor{docID: docID, budget: budget, deps: deps}
}

// Process produces the chunk set for one page's text.
func (p *Processor) Process(ctx context.Context, pageNumber int, pageText string) Result {
	var chunks []chunk.Chunk
	collapsed := collapseWhitespace(pageText)

	var ocrText string
	if len(collapsed) < 80 && p.deps.Ocr != nil {
		if text, err := p.deps.Ocr(ctx, pageNumber); err == nil {
			ocrText = text
		}
	}

	if strings.TrimSpace(pageText) != "" {
		chunks = append(chunks, chunk.New(
			fmt.Sprintf("%s:p%04d:text", p.docID, pageNumber),
			p.docID, chunk.Text, pageNumber, pageNumber, pageText,
		))
	}
	if strings.TrimSpace(ocrText) != "" {
		chunks = append(chunks, chunk.New(
			fmt.Sprintf("%s:p%04d:ocr", p.docID, pageNumber),
			p.docID, chunk.FigureOCR, pageNumber, pageNumber, ocrText,
		))
	}

	tableSource := pageText
	if strings.TrimSpace(tableSource) == "" {
		tableSource = ocrText
	}
	if p.deps.TableExtractor != nil && strings.TrimSpace(tableSource) != "" {
		tables := p.deps.TableExtractor.Extract(tableSource, pageNumber, p.docID)
		for _, table := range tables {
			for _, row := range table.Rows {
				chunks = append(chunks, chunk.New(
					fmt.Sprintf("%s:p%04d:%s:row%04d", p.docID, pageNumber, table.TableID, row.RowIndex),
					p.docID, chunk.TableRow, pageNumber, pageNumber, row.RawText,
					chunk.WithTableID(table.TableID),
					chunk.WithMetadataMap(map[string]any{
						"table_id":   table.TableID,
						"row_index":  row.RowIndex,
						"headers":    row.Headers,
						"units":      row.Units,
						"row_cells":  row.RowCells,
					}),
				))
			}
		}
	}

	captionIdx := 0
	for _, line := range strings.Split(pageText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !captionPattern.MatchString(trimmed) {
			continue
		}
		captionIdx++
		figureID := fmt.Sprintf("fig-p%04d-%03d", pageNumber, captionIdx)

		opts := []chunk.Option{chunk.WithFigureID(figureID), chunk.WithCaption(trimmed)}
		if region := regionByIndex(p.deps.FigureRegions, captionIdx-1); region != nil {
			opts = append(opts, chunk.WithMetadata("bbox", region.Bbox))
		}
		chunks = append(chunks, chunk.New(
			fmt.Sprintf("%s:p%04d:figcap%03d", p.docID, pageNumber, captionIdx),
			p.docID, chunk.FigureCaption, pageNumber, pageNumber, trimmed, opts...,
		))

		if strings.TrimSpace(ocrText) != "" {
			ocrOpts := []chunk.Option{chunk.WithFigureID(figureID)}
			if region := regionByIndex(p.deps.FigureRegions, captionIdx-1); region != nil {
				ocrOpts = append(ocrOpts, chunk.WithMetadata("bbox", region.Bbox))
			}
			chunks = append(chunks, chunk.New(
				fmt.Sprintf("%s:p%04d:figocr%03d", p.docID, pageNumber, captionIdx),
				p.docID, chunk.FigureOCR, pageNumber, pageNumber, ocrText, ocrOpts...,
			))
		}
	}

	if p.deps.Vision != nil && p.shouldCallVision(captionIdx > 0, pageText, ocrText) {
		if p.budget.take() {
			insight, err := p.deps.Vision(ctx, pageNumber)
			if err != nil || strings.TrimSpace(insight) == "" {
				p.budget.refund()
			} else {
				chunks = append(chunks, chunk.New(
					fmt.Sprintf("%s:p%04d:vision", p.docID, pageNumber),
					p.docID, chunk.VisionSummary, pageNumber, pageNumber, insight,
				))
			}
		}
	}

	return Result{PageNumber: pageNumber, Chunks: chunks}
}

func (p *Processor) shouldCallVision(hasCaption bool, pageText, ocrText string) bool {
	if hasCaption {
		return true
	}
	numeric := len(numericTokenRe.FindAllString(pageText, -1))
	prose := len(proseWordRe.FindAllString(pageText, -1))
	if numeric >= 5 && prose <= 8 {
		return true
	}
	if len(collapseWhitespace(pageText)) < 400 && len(collapseWhitespace(ocrText)) < 400 {
		return true
	}
	return false
}

func regionByIndex(regions []figureextract.Region, idx int) *figureextract.Region {
	if idx < 0 || idx >= len(regions) {
		return nil
	}
	return &regions[idx]
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
