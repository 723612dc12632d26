// Package visual generates and validates the visual artifact triple
// (visual_chunks.jsonl, visual_embeddings.jsonl, visual_manifest.json)
// derived from a document's chunks, grounded in original_source's
// visual_artifact_generation.py and visual_artifacts.py.
package visual

import (
	"fmt"
	"sort"

	"github.com/goreason/manuals/chunk"
)

// ChunkRow is the visual_chunks.jsonl row shape.
type ChunkRow struct {
	ChunkID             string    `json:"chunk_id"`
	DocID               string    `json:"doc_id"`
	Page                int       `json:"page"`
	RegionID            string    `json:"region_id"`
	Bbox                []float64 `json:"bbox"`
	Modality            string    `json:"modality"`
	FigureID            string    `json:"figure_id,omitempty"`
	TableID             string    `json:"table_id,omitempty"`
	CaptionText         string    `json:"caption_text"`
	OcrText             string    `json:"ocr_text"`
	LinkedTextChunkIDs  []string  `json:"linked_text_chunk_ids"`
	AssetRelpath        string    `json:"asset_relpath"`
	VisionConfidence    float64   `json:"vision_confidence"`
	FallbackUsed        bool      `json:"fallback_used"`
	SourceChunkID       string    `json:"source_chunk_id"`
}

// EmbeddingRow is the visual_embeddings.jsonl row shape.
type EmbeddingRow struct {
	ChunkID  string    `json:"chunk_id"`
	DocID    string    `json:"doc_id"`
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	Dim      int       `json:"dim"`
	Embedding []float64 `json:"embedding"`
}

// Manifest is the visual_manifest.json shape.
type Manifest struct {
	ContractVersion  string   `json:"contract_version"`
	DocID            string   `json:"doc_id"`
	VisualChunkCount int      `json:"visual_chunk_count"`
	EmbeddingCount   int      `json:"embedding_count"`
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
	EmbeddingDim     int      `json:"embedding_dim"`
	Warnings         []string `json:"warnings,omitempty"`
}

var visualContentTypes = map[chunk.ContentType]bool{
	chunk.FigureCaption: true,
	chunk.FigureOCR:      true,
	chunk.VisionSummary:  true,
	chunk.TableRow:       true,
}

// BuildFromChunks derives the visual artifact triple for one document from
// its persisted chunks, per spec.md §4.F.
func BuildFromChunks(docID string, chunks []chunk.Chunk) ([]ChunkRow, []EmbeddingRow, Manifest) {
	textChunkIDsByPage := map[int][]string{}
	for _, c := range chunks {
		if c.ContentType() != chunk.Text {
			continue
		}
		page := c.PageStart()
		if page <= 0 || c.ChunkID() == "" {
			continue
		}
		textChunkIDsByPage[page] = append(textChunkIDsByPage[page], c.ChunkID())
	}

	var visualRows []ChunkRow
	var embeddingRows []EmbeddingRow
	visualIndex := 0

	for _, c := range chunks {
		if !visualContentTypes[c.ContentType()] {
			continue
		}
		if c.ChunkID() == "" {
			continue
		}
		visualIndex++

		page := c.PageStart()
		if page <= 0 {
			page = maxInt(c.PageEnd(), 1)
		}

		modality := "image"
		switch c.ContentType() {
		case chunk.TableRow:
			modality = "table"
		case chunk.FigureCaption, chunk.FigureOCR:
			modality = "figure"
		}

		regionID := c.FigureID()
		if regionID == "" {
			regionID = c.TableID()
		}
		if regionID == "" {
			regionID = formatRegionID(visualIndex)
		}

		visualChunkID := fmt.Sprintf("%s:visual:%05d", docID, visualIndex)

		snippet := c.ContentText()
		caption := c.Caption()
		if caption == "" && modality == "figure" {
			caption = truncate(snippet, 240)
		}

		bbox := []float64{0, 0, 1, 1}
		if raw, ok := c.Metadata()["bbox"]; ok {
			if b, ok := toFloatSlice(raw); ok && len(b) == 4 {
				bbox = b
			}
		}

		row := ChunkRow{
			ChunkID:            visualChunkID,
			DocID:               docID,
			Page:                page,
			RegionID:            regionID,
			Bbox:                bbox,
			Modality:            modality,
			FigureID:            c.FigureID(),
			TableID:             c.TableID(),
			CaptionText:         caption,
			AssetRelpath:        fmt.Sprintf("generated/page_%04d_%s.png", page, regionID),
			VisionConfidence:    0.5,
			FallbackUsed:        false,
			SourceChunkID:       c.ChunkID(),
			LinkedTextChunkIDs:  limitStrings(textChunkIDsByPage[page], 3),
		}
		if c.ContentType() == chunk.FigureOCR || c.ContentType() == chunk.VisionSummary {
			row.OcrText = snippet
		}
		visualRows = append(visualRows, row)

		meta := c.Metadata()
		if raw, ok := meta["embedding"]; ok {
			if vec, ok := toFloatSlice(raw); ok && len(vec) > 0 {
				provider, _ := meta["embedding_provider"].(string)
				if provider == "" {
					provider = "derived"
				}
				model, _ := meta["embedding_model"].(string)
				if model == "" {
					model = "chunk-metadata"
				}
				embeddingRows = append(embeddingRows, EmbeddingRow{
					ChunkID:   visualChunkID,
					DocID:     docID,
					Provider:  provider,
					Model:     model,
					Dim:       len(vec),
					Embedding: vec,
				})
			}
		}
	}

	dims := map[int]bool{}
	for _, r := range embeddingRows {
		dims[r.Dim] = true
	}
	var dimList []int
	for d := range dims {
		dimList = append(dimList, d)
	}
	sort.Ints(dimList)

	manifest := Manifest{
		ContractVersion:  "visual-v1",
		DocID:            docID,
		VisualChunkCount: len(visualRows),
		EmbeddingCount:   len(embeddingRows),
		Provider:         "derived",
		Model:            "chunk-metadata",
	}
	if len(embeddingRows) > 0 && len(dimList) == 1 {
		manifest.EmbeddingDim = dimList[0]
		manifest.Provider = embeddingRows[0].Provider
		manifest.Model = embeddingRows[0].Model
	} else if len(dimList) > 1 {
		manifest.Warnings = append(manifest.Warnings, "inconsistent embedding dimensions in source metadata")
	}

	return visualRows, embeddingRows, manifest
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func formatRegionID(idx int) string {
	return fmt.Sprintf("r%04d", idx)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func limitStrings(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func toFloatSlice(raw any) ([]float64, bool) {
	switch v := raw.(type) {
	case []float64:
		return v, true
	case [4]float64:
		return v[:], true
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			f, ok := item.(float64)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	default:
		return nil, false
	}
}
