// Package figureextract normalizes raster-image block geometry into
// figure regions, grounded in original_source's
// visual_artifact_generation.py _extract_figure_regions (PyMuPDF block
// enumeration) translated to a page-geometry interface so the core stays
// independent of any specific PDF rendering library.
package figureextract

import (
	"fmt"
	"math"
)

// ImageBlock is one raster-image block detected on a page, in raw point
// coordinates, as produced by a PdfParser-adjacent adapter capable of
// enumerating image blocks (e.g. via a rendering library).
type ImageBlock struct {
	X0, Y0, X1, Y1 float64
}

// PageGeometry describes a page's raster-image blocks and dimensions.
type PageGeometry struct {
	Width, Height float64
	Blocks        []ImageBlock
}

// Region is a normalized figure region.
type Region struct {
	FigureID   string
	Bbox       [4]float64 // x0,y0,x1,y1 each in [0,1]
	PageNumber int
}

// Extractor derives figure regions from page geometry.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

// Extract normalizes each raster-image block's bbox to [0,1] relative to
// page dimensions, rounded to four decimals. Returns nil when there are
// no image blocks or the page has non-positive dimensions.
func (e *Extractor) Extract(geo PageGeometry, docID string, pageNumber int) []Region {
	if geo.Width <= 0 || geo.Height <= 0 || len(geo.Blocks) == 0 {
		return nil
	}
	regions := make([]Region, 0, len(geo.Blocks))
	for idx, b := range geo.Blocks {
		bbox := [4]float64{
			round4(b.X0 / geo.Width),
			round4(b.Y0 / geo.Height),
			round4(b.X1 / geo.Width),
			round4(b.Y1 / geo.Height),
		}
		regions = append(regions, Region{
			FigureID:   fmt.Sprintf("fig_%s_p%04d_%03d", docID, pageNumber, idx),
			Bbox:       bbox,
			PageNumber: pageNumber,
		})
	}
	return regions
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
