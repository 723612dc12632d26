// Package tools implements the bounded tool executor of spec.md §4.H:
// argument normalization and validation, a try/recover execution
// boundary, and the two tools the state graph runner invokes
// (search_evidence, draft_answer).
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goreason/manuals/ports"
	"github.com/goreason/manuals/retrieval"
)

// Evidence is one piece of evidence handed to the drafting LLM.
type Evidence struct {
	ChunkID     string
	DocID       string
	Page        int
	ContentType string
	Text        string
}

type toolDef struct {
	name     string
	required []string
	handler  func(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Executor dispatches named tool calls, per ports.ToolExecutor.
type Executor struct {
	retrieval *retrieval.Engine
	llm       ports.Llm // optional; nil disables LLM drafting
	defs      map[string]toolDef
}

// New builds a tool executor wired to the retrieval engine and an
// optional drafting LLM.
func New(retrievalEngine *retrieval.Engine, llm ports.Llm) *Executor {
	e := &Executor{retrieval: retrievalEngine, llm: llm}
	e.defs = map[string]toolDef{
		"search_evidence": {name: "search_evidence", required: []string{"query"}, handler: e.searchEvidence},
		"draft_answer":    {name: "draft_answer", required: []string{"query"}, handler: e.draftAnswer},
	}
	return e
}

// AvailableTools implements ports.ToolExecutor.
func (e *Executor) AvailableTools() []string {
	names := make([]string, 0, len(e.defs))
	for n := range e.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Execute implements ports.ToolExecutor.
func (e *Executor) Execute(ctx context.Context, toolName string, arguments map[string]any) ports.ToolExecutionResult {
	def, ok := e.defs[toolName]
	if !ok {
		return ports.ToolExecutionResult{
			ToolName: toolName,
			Success:  false,
			Error:    fmt.Sprintf("Unknown tool: %s", toolName),
		}
	}

	normalized := normalizeArgs(arguments)
	if missing := missingArgs(def.required, normalized); len(missing) > 0 {
		return ports.ToolExecutionResult{
			ToolName: toolName,
			Success:  false,
			Error: fmt.Sprintf("missing required arguments %v; provided keys=%v", missing, argKeys(normalized)),
		}
	}

	return e.runGuarded(ctx, def, normalized)
}

// runGuarded executes a handler under a recover boundary so a panicking
// adapter never propagates past the tool executor, per spec.md §4.H.
func (e *Executor) runGuarded(ctx context.Context, def toolDef, args map[string]any) (result ports.ToolExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ports.ToolExecutionResult{
				ToolName: def.name,
				Success:  false,
				Error:    fmt.Sprintf("PanicRecovered: %v; tool=%s; arg_keys=%v", r, def.name, argKeys(args)),
			}
		}
	}()

	payload, err := def.handler(ctx, args)
	if err != nil {
		return ports.ToolExecutionResult{
			ToolName: def.name,
			Success:  false,
			Error:    fmt.Sprintf("AdapterFailure: %s; tool=%s; arg_keys=%v", err.Error(), def.name, argKeys(args)),
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return ports.ToolExecutionResult{ToolName: def.name, Success: true, Payload: payload}
}

func normalizeArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	if _, hasQuery := out["query"]; !hasQuery {
		if input, ok := out["input"]; ok {
			out["query"] = input
		}
	}
	return out
}

func missingArgs(required []string, args map[string]any) []string {
	var missing []string
	for _, r := range required {
		if _, ok := args[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

func argKeys(args map[string]any) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *Executor) searchEvidence(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	docID, _ := args["doc_id"].(string)
	opts := retrieval.Options{}
	if v, ok := args["top_n"].(int); ok {
		opts.TopN = v
	}
	if v, ok := args["rerank_pool_size"].(int); ok {
		opts.RerankPoolSize = v
	}

	res, err := e.retrieval.Search(ctx, query, docID, opts)
	if err != nil {
		return nil, err
	}

	hits := make([]map[string]any, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, map[string]any{
			"chunk_id":      h.ChunkID,
			"doc_id":        h.DocID,
			"content_type":  string(h.ContentType),
			"page_start":    h.PageStart,
			"page_end":      h.PageEnd,
			"section_path":  h.SectionPath,
			"figure_id":     h.FigureID,
			"table_id":      h.TableID,
			"score":         h.Score,
			"keyword_score": h.KeywordScore,
			"vector_score":  h.VectorScore,
			"rerank_score":  h.RerankScore,
			"snippet":       h.Snippet,
		})
	}

	return map[string]any{
		"hits":                  hits,
		"intent":                res.Intent,
		"total_chunks_scanned":  res.TotalChunksScanned,
	}, nil
}

func (e *Executor) draftAnswer(ctx context.Context, args map[string]any) (map[string]any, error) {
	if e.llm == nil {
		return map[string]any{}, nil
	}
	query, _ := args["query"].(string)
	intent, _ := args["intent"].(string)

	var evidence []ports.LlmEvidence
	if raw, ok := args["evidence"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			chunkID, _ := m["chunk_id"].(string)
			docID, _ := m["doc_id"].(string)
			snippet, _ := m["snippet"].(string)
			contentType, _ := m["content_type"].(string)
			evidence = append(evidence, ports.LlmEvidence{
				ChunkID: chunkID, DocID: docID, Snippet: snippet, ContentType: contentType,
			})
		}
	}

	draft, err := e.llm.GenerateAnswer(ctx, query, intent, evidence)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(draft) == "" {
		return map[string]any{}, nil
	}
	return map[string]any{"answer_draft": draft}, nil
}
