package visual

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const lowConfidenceThreshold = 0.45

const (
	chunkFileName    = "visual_chunks.jsonl"
	embedFileName    = "visual_embeddings.jsonl"
	manifestFileName = "visual_manifest.json"
)

// ValidationResult accumulates the errors and warnings produced by
// Validate.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

func (r *ValidationResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// OK reports whether the validation found no errors.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Validate checks the visual artifact triple for one document directory.
// In strict mode, missing files are errors; otherwise they are downgraded
// to warnings per spec.md §4.F. Row and manifest contract violations are
// errors in both modes.
func Validate(docAssetsDir string, strict bool) ValidationResult {
	result := ValidationResult{}
	docID := filepath.Base(docAssetsDir)

	chunkPath := filepath.Join(docAssetsDir, chunkFileName)
	embedPath := filepath.Join(docAssetsDir, embedFileName)
	manifestPath := filepath.Join(docAssetsDir, manifestFileName)

	var missing []string
	for name, path := range map[string]string{chunkFileName: chunkPath, embedFileName: embedPath, manifestFileName: manifestPath} {
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, name)
		}
	}
	for _, name := range missing {
		msg := fmt.Sprintf("%s: missing required artifact file `%s`", docID, name)
		if strict {
			result.Errors = append(result.Errors, msg)
		} else {
			result.Warnings = append(result.Warnings, msg)
		}
	}
	if len(missing) > 0 {
		return result
	}

	chunkRows := loadJSONLines(chunkPath, &result, fmt.Sprintf("%s:%s", docID, chunkFileName))
	embedRows := loadJSONLines(embedPath, &result, fmt.Sprintf("%s:%s", docID, embedFileName))
	manifest := loadManifest(manifestPath, &result, docID)

	chunkIDs := map[string]bool{}
	for idx, row := range chunkRows {
		prefix := fmt.Sprintf("%s:%s:%d", docID, chunkFileName, idx+1)
		chunkID := str(row["chunk_id"])
		if chunkID == "" {
			result.addError("%s missing chunk_id", prefix)
		} else if chunkIDs[chunkID] {
			result.addError("%s duplicate chunk_id `%s`", prefix, chunkID)
		} else {
			chunkIDs[chunkID] = true
		}

		if str(row["doc_id"]) != docID {
			result.addError("%s doc_id mismatch `%s` != `%s`", prefix, str(row["doc_id"]), docID)
		}

		page, ok := asInt(row["page"])
		if !ok || page < 1 {
			result.addError("%s page must be integer >= 1", prefix)
		}

		if str(row["region_id"]) == "" {
			result.addError("%s missing region_id", prefix)
		}

		if !isNumericBBox(row["bbox"]) {
			result.addError("%s bbox must be [x1, y1, x2, y2] numeric", prefix)
		}

		modality := strings.ToLower(str(row["modality"]))
		if modality != "figure" && modality != "table" && modality != "image" {
			result.addError("%s modality must be one of figure|table|image", prefix)
		}

		if str(row["asset_relpath"]) == "" {
			result.addError("%s missing asset_relpath", prefix)
		}

		confidence, hasConf := asFloat(row["vision_confidence"])
		fallbackUsed, _ := row["fallback_used"].(bool)
		if hasConf && confidence < lowConfidenceThreshold && !fallbackUsed {
			result.addWarning("%s low vision_confidence=%.3f without fallback_used=true", prefix, confidence)
		}
	}

	embedIDs := map[string]bool{}
	dims := map[int]bool{}
	for idx, row := range embedRows {
		prefix := fmt.Sprintf("%s:%s:%d", docID, embedFileName, idx+1)
		chunkID := str(row["chunk_id"])
		if chunkID == "" {
			result.addError("%s missing chunk_id", prefix)
		} else if embedIDs[chunkID] {
			result.addError("%s duplicate chunk_id `%s`", prefix, chunkID)
		} else {
			embedIDs[chunkID] = true
		}

		if str(row["doc_id"]) != docID {
			result.addError("%s doc_id mismatch `%s` != `%s`", prefix, str(row["doc_id"]), docID)
		}
		if str(row["provider"]) == "" {
			result.addError("%s missing provider", prefix)
		}
		if str(row["model"]) == "" {
			result.addError("%s missing model", prefix)
		}

		dim, dimOK := asInt(row["dim"])
		if !dimOK || dim <= 0 {
			result.addError("%s dim must be integer > 0", prefix)
			dimOK = false
		}

		embedding, embOK := row["embedding"].([]any)
		if !embOK || len(embedding) == 0 {
			result.addError("%s embedding must be non-empty list", prefix)
		}
		if dimOK && embOK && len(embedding) != dim {
			result.addError("%s embedding length %d != dim %d", prefix, len(embedding), dim)
		}
		if dimOK {
			dims[dim] = true
		}

		if chunkID != "" && len(chunkIDs) > 0 && !chunkIDs[chunkID] {
			result.addError("%s chunk_id `%s` not present in %s", prefix, chunkID, chunkFileName)
		}
	}

	if len(dims) > 1 {
		result.addError("%s:%s has inconsistent dimensions", docID, embedFileName)
	}

	if manifestDoc := str(manifest["doc_id"]); manifestDoc != "" && manifestDoc != docID {
		result.addError("%s:%s doc_id mismatch `%s` != `%s`", docID, manifestFileName, manifestDoc, docID)
	}
	if v := str(manifest["contract_version"]); v != "" && v != "visual-v1" {
		result.addWarning("%s:%s contract_version should be `visual-v1`", docID, manifestFileName)
	}

	if chunkCount, ok := asInt(manifest["visual_chunk_count"]); !ok {
		result.addError("%s:%s visual_chunk_count must be integer >= 0", docID, manifestFileName)
	} else if chunkCount != len(chunkRows) {
		result.addError("%s:%s visual_chunk_count %d != actual %d", docID, manifestFileName, chunkCount, len(chunkRows))
	}

	if embedCount, ok := asInt(manifest["embedding_count"]); !ok {
		result.addError("%s:%s embedding_count must be integer >= 0", docID, manifestFileName)
	} else if embedCount != len(embedRows) {
		result.addError("%s:%s embedding_count %d != actual %d", docID, manifestFileName, embedCount, len(embedRows))
	}

	if len(embedRows) > 0 {
		manifestDim, ok := asInt(manifest["embedding_dim"])
		if !ok || manifestDim <= 0 {
			result.addError("%s:%s embedding_dim must be integer > 0", docID, manifestFileName)
		} else if len(dims) > 0 && !dims[manifestDim] {
			result.addError("%s:%s embedding_dim %d not among actual dims", docID, manifestFileName, manifestDim)
		}
		if str(manifest["provider"]) == "" {
			result.addError("%s:%s provider is required when embeddings exist", docID, manifestFileName)
		}
		if str(manifest["model"]) == "" {
			result.addError("%s:%s model is required when embeddings exist", docID, manifestFileName)
		}
	}

	return result
}

func loadJSONLines(path string, result *ValidationResult, label string) []map[string]any {
	f, err := os.Open(path)
	if err != nil {
		result.addError("%s missing: %s", label, path)
		return nil
	}
	defer f.Close()

	var rows []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			result.addError("%s:%d invalid JSON: %s", label, lineNo, err.Error())
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func loadManifest(path string, result *ValidationResult, docID string) map[string]any {
	data, err := os.ReadFile(path)
	if err != nil {
		result.addError("manifest missing: %s", path)
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		result.addError("manifest invalid JSON: %s", err.Error())
		return map[string]any{}
	}
	return m
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	case int:
		return n, true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func isNumericBBox(v any) bool {
	arr, ok := v.([]any)
	if !ok || len(arr) != 4 {
		return false
	}
	for _, item := range arr {
		if _, ok := asFloat(item); !ok {
			return false
		}
	}
	return true
}
