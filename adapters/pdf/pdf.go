// Package pdf is the reference PdfParser adapter (spec.md §6.4), built
// on github.com/ledongthuc/pdf exactly as the teacher's parser.PDFParser
// does: visual line-grouped text extraction plus best-effort per-page
// image geometry for the figure region extractor.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/goreason/manuals/figureextract"
	"github.com/goreason/manuals/ports"
)

// Parser implements ports.PdfParser. A Parser instance is scoped to one
// document at a time: Parse caches the page geometry it observes, and
// Geometry reads that cache back for the figure region extractor. This
// mirrors the ingestion orchestrator's sequential "parse, then
// pre-extract figure regions" phasing (spec.md §4.E step 1-2).
type Parser struct {
	mu         sync.Mutex
	geometries map[int]figureextract.PageGeometry
}

// New builds a PDF parser adapter.
func New() *Parser {
	return &Parser{geometries: map[int]figureextract.PageGeometry{}}
}

// Parse implements ports.PdfParser.
func (p *Parser) Parse(ctx context.Context, path string) ([]ports.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	p.mu.Lock()
	p.geometries = map[int]figureextract.PageGeometry{}
	p.mu.Unlock()

	totalPages := reader.NumPage()
	pages := make([]ports.Page, 0, totalPages)

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := extractPageTextOrdered(page)
		if err != nil {
			continue
		}
		pages = append(pages, ports.Page{PageNumber: i, Text: text})

		geo := pageGeometry(page, i)
		p.mu.Lock()
		p.geometries[i] = geo
		p.mu.Unlock()
	}

	return pages, nil
}

// Geometry returns the page's image-block geometry observed during the
// most recent Parse call, for use as ingest.Options.FigureGeometry.
func (p *Parser) Geometry(pageNumber int) (figureextract.PageGeometry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	geo, ok := p.geometries[pageNumber]
	return geo, ok
}

// pageGeometry derives a best-effort PageGeometry for a page. ledongthuc/pdf
// does not expose the content-stream CTM that would give exact image
// placement, so images are assumed to stack in a single column, ordered
// by resource-dictionary iteration order, sized proportionally by their
// declared pixel height. This is a known approximation rather than a
// precise bounding box.
func pageGeometry(page pdf.Page, pageNum int) figureextract.PageGeometry {
	width, height := mediaBoxSize(page)
	if width <= 0 || height <= 0 {
		return figureextract.PageGeometry{}
	}

	blockHeights := imageBlockHeights(page, pageNum)
	if len(blockHeights) == 0 {
		return figureextract.PageGeometry{Width: width, Height: height}
	}

	totalHeight := 0
	for _, h := range blockHeights {
		totalHeight += h
	}
	if totalHeight <= 0 {
		return figureextract.PageGeometry{Width: width, Height: height}
	}

	blocks := make([]figureextract.ImageBlock, 0, len(blockHeights))
	cursorY := height
	for _, h := range blockHeights {
		bandHeight := height * float64(h) / float64(totalHeight)
		y1 := cursorY
		y0 := cursorY - bandHeight
		blocks = append(blocks, figureextract.ImageBlock{X0: 0, Y0: y0, X1: width, Y1: y1})
		cursorY = y0
	}

	return figureextract.PageGeometry{Width: width, Height: height, Blocks: blocks}
}

func mediaBoxSize(page pdf.Page) (float64, float64) {
	box := page.V.Key("MediaBox")
	if box.IsNull() || box.Len() < 4 {
		return 0, 0
	}
	x0 := box.Index(0).Float64()
	y0 := box.Index(1).Float64()
	x1 := box.Index(2).Float64()
	y1 := box.Index(3).Float64()
	return x1 - x0, y1 - y0
}

func imageBlockHeights(page pdf.Page, pageNum int) []int {
	resources := page.Resources()
	if resources.IsNull() {
		return nil
	}
	xobjects := resources.Key("XObject")
	if xobjects.IsNull() {
		return nil
	}

	var heights []int
	for _, name := range xobjects.Keys() {
		xobj := xobjects.Key(name)
		if xobj.Key("Subtype").Name() != "Image" {
			continue
		}
		if xobj.Key("ImageMask").Bool() {
			continue
		}
		width := int(xobj.Key("Width").Int64())
		height := int(xobj.Key("Height").Int64())
		if width < 32 || height < 32 {
			continue
		}
		heights = append(heights, height)
	}
	return heights
}

// extractSingleImage reads image data from a PDF XObject, handling panics
// from ledongthuc/pdf on unsupported filter combinations. Not used by the
// text/geometry path above, but kept available for a future visual-asset
// export step (the ingestion orchestrator currently persists bbox-only
// visual rows, not rendered crops).
func extractSingleImage(xobj pdf.Value, filter string, width, height, pageNum int, name string) (data []byte, mimeType string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("pdf: panic reading image stream, skipping", "page", pageNum, "name", name, "panic", r)
			data = nil
			mimeType = ""
		}
	}()

	switch filter {
	case "DCTDecode":
		raw, err := readRawStreamBytes(xobj)
		if err != nil {
			slog.Debug("pdf: failed to read raw JPEG stream", "page", pageNum, "name", name, "error", err)
			return nil, ""
		}
		if len(raw) > 2 && raw[0] == 0xff && raw[1] == 0xd8 {
			return raw, "image/jpeg"
		}
		return nil, ""
	case "FlateDecode", "":
		rc := xobj.Reader()
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, ""
		}
		pngData, err := rawPixelsToPNG(raw, width, height, xobj.Key("ColorSpace").Name(), int(xobj.Key("BitsPerComponent").Int64()))
		if err != nil {
			return nil, ""
		}
		return pngData, "image/png"
	default:
		slog.Debug("pdf: unsupported image filter", "page", pageNum, "name", name, "filter", filter)
		return nil, ""
	}
}

// readRawStreamBytes reads the raw (unfiltered) stream bytes from a
// pdf.Value by accessing the library's internal fields via reflection,
// bypassing Reader()'s filter chain (which panics on DCTDecode).
func readRawStreamBytes(v pdf.Value) ([]byte, error) {
	length := v.Key("Length").Int64()
	if length <= 0 {
		return nil, fmt.Errorf("stream has no length")
	}

	val := reflect.ValueOf(v)
	dataField := val.Field(2)
	if dataField.IsNil() {
		return nil, fmt.Errorf("value has nil data")
	}
	streamVal := dataField.Elem()
	if streamVal.Kind() == reflect.Ptr {
		streamVal = streamVal.Elem()
	}
	offsetField := streamVal.Field(2)
	offset := offsetField.Int()

	rField := val.Field(0)
	if rField.IsNil() {
		return nil, fmt.Errorf("value has nil reader")
	}
	readerStruct := reflect.NewAt(rField.Type().Elem(), rField.UnsafePointer()).Elem()
	fField := readerStruct.Field(0)
	readerAt, ok := fField.Interface().(io.ReaderAt)
	if !ok {
		return nil, fmt.Errorf("reader.f is not io.ReaderAt")
	}

	buf := make([]byte, length)
	n, err := readerAt.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading stream at offset %d: %w", offset, err)
	}
	return buf[:n], nil
}

func rawPixelsToPNG(data []byte, width, height int, colorSpace string, bitsPerComponent int) ([]byte, error) {
	if bitsPerComponent == 0 {
		bitsPerComponent = 8
	}

	var img image.Image
	switch colorSpace {
	case "DeviceRGB", "":
		expected := width * height * 3
		if len(data) < expected {
			return nil, fmt.Errorf("insufficient data for RGB image: got %d, expected %d", len(data), expected)
		}
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				offset := (y*width + x) * 3
				rgba.SetRGBA(x, y, color.RGBA{R: data[offset], G: data[offset+1], B: data[offset+2], A: 255})
			}
		}
		img = rgba
	case "DeviceGray":
		expected := width * height
		if len(data) < expected {
			return nil, fmt.Errorf("insufficient data for gray image: got %d, expected %d", len(data), expected)
		}
		gray := image.NewGray(image.Rect(0, 0, width, height))
		copy(gray.Pix, data[:expected])
		img = gray
	case "DeviceCMYK":
		expected := width * height * 4
		if len(data) < expected {
			return nil, fmt.Errorf("insufficient data for CMYK image: got %d, expected %d", len(data), expected)
		}
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				offset := (y*width + x) * 4
				c, m, yk, k := data[offset], data[offset+1], data[offset+2], data[offset+3]
				r := 255 - min(255, int(c)+int(k))
				g := 255 - min(255, int(m)+int(k))
				b := 255 - min(255, int(yk)+int(k))
				rgba.SetRGBA(x, y, color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255})
			}
		}
		img = rgba
	default:
		return nil, fmt.Errorf("unsupported color space: %s", colorSpace)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// extractPageTextOrdered extracts text sorted by visual position
// (top-to-bottom), grouping content-stream text elements into lines by
// Y-proximity so headings don't get shuffled behind body text.
func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0

	type visualLine struct {
		y   float64
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine

	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y > lines[j].y })

	var parts []string
	for _, l := range lines {
		text := strings.TrimSpace(l.buf.String())
		if text != "" {
			parts = append(parts, text)
		}
	}

	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}
	return result, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
