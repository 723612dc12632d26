// Package chunk defines the immutable unit of retrievable evidence shared
// by every stage of the pipeline: ingestion produces chunks, retrieval
// scores them, and answer composition cites them.
package chunk

import "fmt"

// ContentType enumerates the kinds of evidence a Chunk can carry.
type ContentType string

const (
	Text          ContentType = "text"
	TableRow      ContentType = "table_row"
	FigureCaption ContentType = "figure_caption"
	FigureOCR     ContentType = "figure_ocr"
	VisionSummary ContentType = "vision_summary"
	VisualFigure  ContentType = "visual_figure"
	VisualTable   ContentType = "visual_table"
	VisualImage   ContentType = "visual_image"
)

// Chunk is an immutable record of retrievable evidence. Construct with
// New; fields are accessed through methods so callers cannot violate the
// page-ordering or embedding-dimension invariants after construction.
type Chunk struct {
	chunkID     string
	docID       string
	contentType ContentType
	pageStart   int
	pageEnd     int
	contentText string
	sectionPath string
	figureID    string
	tableID     string
	caption     string
	assetRef    string
	metadata    map[string]any
}

// New constructs a Chunk, enforcing page-ordering and embedding
// invariants. A pageStart below 1 is clamped to 1 and a pageEnd below
// pageStart is clamped to pageStart. It panics when an embedding is
// present but empty, because that represents programmer error in the
// producing component (the ingestion orchestrator), not a recoverable
// runtime condition.
func New(chunkID, docID string, contentType ContentType, pageStart, pageEnd int, contentText string, opts ...Option) Chunk {
	if pageStart < 1 {
		pageStart = 1
	}
	if pageEnd < pageStart {
		pageEnd = pageStart
	}
	c := Chunk{
		chunkID:     chunkID,
		docID:       docID,
		contentType: contentType,
		pageStart:   pageStart,
		pageEnd:     pageEnd,
		contentText: contentText,
		metadata:    map[string]any{},
	}
	for _, opt := range opts {
		opt(&c)
	}
	if emb, ok := c.metadata["embedding"]; ok {
		dim := embeddingLen(emb)
		if dim == 0 {
			panic(fmt.Sprintf("chunk %s: embedding present but empty", chunkID))
		}
	}
	return c
}

// Option mutates a Chunk at construction time.
type Option func(*Chunk)

func WithSectionPath(v string) Option { return func(c *Chunk) { c.sectionPath = v } }
func WithFigureID(v string) Option    { return func(c *Chunk) { c.figureID = v } }
func WithTableID(v string) Option     { return func(c *Chunk) { c.tableID = v } }
func WithCaption(v string) Option     { return func(c *Chunk) { c.caption = v } }
func WithAssetRef(v string) Option    { return func(c *Chunk) { c.assetRef = v } }

func WithMetadata(key string, value any) Option {
	return func(c *Chunk) { c.metadata[key] = value }
}

func WithMetadataMap(m map[string]any) Option {
	return func(c *Chunk) {
		for k, v := range m {
			c.metadata[k] = v
		}
	}
}

func (c Chunk) ChunkID() string         { return c.chunkID }
func (c Chunk) DocID() string           { return c.docID }
func (c Chunk) ContentType() ContentType { return c.contentType }
func (c Chunk) PageStart() int          { return c.pageStart }
func (c Chunk) PageEnd() int            { return c.pageEnd }
func (c Chunk) ContentText() string     { return c.contentText }
func (c Chunk) SectionPath() string     { return c.sectionPath }
func (c Chunk) FigureID() string        { return c.figureID }
func (c Chunk) TableID() string         { return c.tableID }
func (c Chunk) Caption() string         { return c.caption }
func (c Chunk) AssetRef() string        { return c.assetRef }

// Metadata returns a copy of the metadata map so callers cannot mutate
// the chunk's stored state.
func (c Chunk) Metadata() map[string]any {
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// Embedding returns the chunk's embedding vector and whether one is set.
func (c Chunk) Embedding() ([]float64, bool) {
	raw, ok := c.metadata["embedding"]
	if !ok {
		return nil, false
	}
	return toFloat64Slice(raw), true
}

func embeddingLen(raw any) int {
	return len(toFloat64Slice(raw))
}

func toFloat64Slice(raw any) []float64 {
	switch v := raw.(type) {
	case []float64:
		return v
	case []float32:
		out := make([]float64, len(v))
		for i, f := range v {
			out[i] = float64(f)
		}
		return out
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case float32:
				out = append(out, float64(n))
			}
		}
		return out
	default:
		return nil
	}
}

// ToMap renders the chunk as a flat JSON-ready map matching the chunks.jsonl
// row shape used by the ingestion orchestrator and visual artifact
// generator.
func (c Chunk) ToMap() map[string]any {
	m := map[string]any{
		"chunk_id":     c.chunkID,
		"doc_id":       c.docID,
		"content_type": string(c.contentType),
		"page_start":   c.pageStart,
		"page_end":     c.pageEnd,
		"content_text": c.contentText,
		"metadata":     c.Metadata(),
	}
	if c.sectionPath != "" {
		m["section_path"] = c.sectionPath
	}
	if c.figureID != "" {
		m["figure_id"] = c.figureID
	}
	if c.tableID != "" {
		m["table_id"] = c.tableID
	}
	if c.caption != "" {
		m["caption"] = c.caption
	}
	if c.assetRef != "" {
		m["asset_ref"] = c.assetRef
	}
	return m
}
