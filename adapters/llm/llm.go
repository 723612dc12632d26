// Package llm adapts the kept llm.Provider/llm.VisionProvider interfaces
// to the core's Llm, Embedding, Ocr, and Vision ports. The vision prompts
// are grounded in the teacher's parser.PDFVisionParser (sending the whole
// PDF as a base64 data URL to a vision-capable chat model).
package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/goreason/manuals/llm"
	"github.com/goreason/manuals/ports"
)

// Answerer implements ports.Llm by drafting a grounded answer from
// retrieved evidence via a chat completion.
type Answerer struct {
	provider llm.Provider
	model    string
}

// NewAnswerer builds an Llm adapter over provider, using model for chat
// completions.
func NewAnswerer(provider llm.Provider, model string) *Answerer {
	return &Answerer{provider: provider, model: model}
}

// GenerateAnswer implements ports.Llm.
func (a *Answerer) GenerateAnswer(ctx context.Context, query, intent string, evidence []ports.LlmEvidence) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Answer the question using only the evidence snippets below. Query intent: %s.\n\n", intent)
	for i, e := range evidence {
		fmt.Fprintf(&b, "[%d] (doc=%s chunk=%s type=%s)\n%s\n\n", i+1, e.DocID, e.ChunkID, e.ContentType, e.Snippet)
	}

	resp, err := a.provider.Chat(ctx, llm.ChatRequest{
		Model: a.model,
		Messages: []llm.Message{
			{Role: "system", Content: "You are a technical assistant answering questions about equipment manuals. Ground every claim in the provided evidence snippets. Be concise."},
			{Role: "user", Content: b.String() + "\nQuestion: " + query},
		},
		Temperature: 0.1,
		MaxTokens:   512,
	})
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// Embedder implements ports.Embedding over llm.Provider.Embed.
type Embedder struct {
	provider llm.Provider
	lastErr  string
}

// NewEmbedder builds an Embedding adapter over provider.
func NewEmbedder(provider llm.Provider) *Embedder {
	return &Embedder{provider: provider}
}

// EmbedText implements ports.Embedding.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	vecs, err := e.provider.Embed(ctx, []string{text})
	if err != nil {
		e.lastErr = err.Error()
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vecs) == 0 {
		e.lastErr = "embedding provider returned no vectors"
		return nil, fmt.Errorf(e.lastErr)
	}
	e.lastErr = ""
	out := make([]float64, len(vecs[0]))
	for i, v := range vecs[0] {
		out[i] = float64(v)
	}
	return out, nil
}

// LastError implements ports.Embedding.
func (e *Embedder) LastError() string {
	return e.lastErr
}

// Vision implements ports.Vision and ports.Ocr by sending the source PDF
// as a base64 data URL to a vision-capable chat model, matching the
// teacher's PDFVisionParser.Parse call shape.
type Vision struct {
	provider llm.VisionProvider
}

// NewVision builds a Vision/Ocr adapter over provider.
func NewVision(provider llm.VisionProvider) *Vision {
	return &Vision{provider: provider}
}

// ExtractPageInsights implements ports.Vision: a descriptive summary of a
// page's diagrams, tables, and layout, for visual artifact annotation.
func (v *Vision) ExtractPageInsights(ctx context.Context, path string, pageNumber int) (string, error) {
	return v.askVision(ctx, path, "Describe the diagrams, figures, and tables visible on this page in one or two sentences each. Note any callouts, labels, or reference numbers. Do not transcribe body text verbatim.")
}

// ExtractText implements ports.Ocr: raw text extraction for pages where
// native PDF text extraction is insufficient (scanned pages, complex
// multi-column layouts).
func (v *Vision) ExtractText(ctx context.Context, path string, pageNumber int) (string, error) {
	return v.askVision(ctx, path, `Extract all text content from this PDF page. Preserve the structure:
- For tables, format as markdown tables
- For headings, prefix with appropriate markdown heading levels
- For lists, use markdown list format
- Preserve section numbering`)
}

func (v *Vision) askVision(ctx context.Context, path, instruction string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading PDF for vision: %w", err)
	}
	b64 := base64.StdEncoding.EncodeToString(data)

	resp, err := v.provider.ChatWithImages(ctx, llm.VisionChatRequest{
		Messages: []llm.VisionMessage{
			{
				Role: "user",
				Content: []llm.ContentPart{
					{Type: "text", Text: instruction},
					{Type: "image_url", ImageURL: &llm.ImageURL{URL: "data:application/pdf;base64," + b64}},
				},
			},
		},
		MaxTokens: 4096,
	})
	if err != nil {
		return "", fmt.Errorf("vision extraction failed: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
