package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goreason/manuals"
)

type handler struct {
	engine *manuals.Engine
}

func newHandler(e *manuals.Engine) *handler {
	return &handler{engine: e}
}

// GET /answer
// Composes a grounded answer, per spec.md §6.1.
func (h *handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	out, err := h.engine.Answer(ctx, manuals.AnswerInput{
		Query:          query,
		DocID:          q.Get("doc_id"),
		DocIDs:         splitCSV(q.Get("doc_ids")),
		TopN:           intParam(q, "top_n"),
		RerankPoolSize: intParam(q, "rerank_pool_size"),
		UseAgenticMode: true,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "answer composition failed")
		slog.Error("answer error", "query", query, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// GET /search
// Runs hybrid retrieval only, per spec.md §6.1.
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	res, err := h.engine.Search(ctx, manuals.SearchInput{
		Query:          query,
		DocID:          q.Get("doc_id"),
		DocIDs:         splitCSV(q.Get("doc_ids")),
		TopN:           intParam(q, "top_n"),
		RerankPoolSize: intParam(q, "rerank_pool_size"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		slog.Error("search error", "query", query, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// POST /ingest
// Accepts multipart file upload or JSON with a file path. Not part of
// spec.md §6.1's named surface, but kept as a thin front door to the
// ingestion pipeline so the corpus can be populated without a separate
// offline tool.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(100 << 20); err == nil { // 100MB max
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			safeName := filepath.Base(header.Filename)
			tmpPath := filepath.Join(os.TempDir(), safeName)
			dst, err := os.Create(tmpPath)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to process file")
				slog.Error("creating temp file", "error", err)
				return
			}
			if _, err := io.Copy(dst, file); err != nil {
				dst.Close()
				writeError(w, http.StatusInternalServerError, "failed to save file")
				slog.Error("saving uploaded file", "error", err)
				return
			}
			dst.Close()
			defer os.Remove(tmpPath)

			h.runIngest(ctx, w, manuals.IngestInput{DocID: r.FormValue("doc_id"), PDFPath: tmpPath})
			return
		}
	}

	var req struct {
		DocID string `json:"doc_id,omitempty"`
		Path  string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusBadRequest, "path must be an existing file")
		return
	}

	h.runIngest(ctx, w, manuals.IngestInput{DocID: req.DocID, PDFPath: absPath})
}

func (h *handler) runIngest(ctx context.Context, w http.ResponseWriter, in manuals.IngestInput) {
	result, err := h.engine.Ingest(ctx, in)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		slog.Error("ingest error", "path", in.PDFPath, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intParam(q url.Values, key string) int {
	v := q.Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf("%s", msg)})
}
