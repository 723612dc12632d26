// Package graph implements the bounded agent state graph runner of
// spec.md §4.I: a plan -> execute (self-loop) -> finalize pipeline over
// a planner and a tool executor, with deterministic fallback when the
// graph framework itself raises.
package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"

	"github.com/goreason/manuals/ports"
)

// State is the mutable record threaded through a run, mirroring
// spec.md's AgenticAnswerState.
type State struct {
	Query          string
	DocID          string
	Intent         string
	TopN           int
	RerankPoolSize int

	PlanSteps         []ports.PlanStep
	ToolCalls         []ToolCallLog
	EvidenceHits      []EvidenceHit
	RetrievedChunkIDs []string
	AnswerDraft       string
	Status            string
	Warnings          []string
	Errors            []string
	Confidence        string
	ReasoningSummary  string

	TotalChunksScanned int

	iterations        int
	toolCalls         int
	planIndex         int
	done              bool
	terminatedReason  string
}

// ToolCallLog is one executed tool-call record.
type ToolCallLog struct {
	CallID   string
	ToolName string
	Success  bool
}

// EvidenceHit is the shape of one deep-merged search hit kept in state.
type EvidenceHit struct {
	ChunkID     string
	DocID       string
	ContentType string
	PageStart   int
	PageEnd     int
	SectionPath string
	FigureID    string
	TableID     string
	Score       float64
	Snippet     string
}

// Runner executes the plan/execute/finalize graph described in
// spec.md §4.I over an injected planner and tool executor.
type Runner struct {
	planner ports.Planner
	tools   ports.ToolExecutor
	trace   ports.AgentTrace // optional
}

// New builds a graph runner. trace may be nil.
func New(planner ports.Planner, tools ports.ToolExecutor, trace ports.AgentTrace) *Runner {
	return &Runner{planner: planner, tools: tools, trace: trace}
}

// Run implements ports.StateGraphRunner.
func (r *Runner) Run(ctx context.Context, initialState map[string]any, limits ports.GraphRunLimits, planner ports.Planner, tools ports.ToolExecutor, llm ports.Llm, trace ports.AgentTrace) (ports.GraphRunOutput, error) {
	if planner == nil {
		planner = r.planner
	}
	if tools == nil {
		tools = r.tools
	}
	if trace == nil {
		trace = r.trace
	}

	st := stateFromMap(initialState)

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				st.Errors = append(st.Errors, fmt.Sprintf("graph panic: %v", rec))
				runFallback(ctx, st, limits, planner, tools, llm, trace)
			}
		}()
		runGraph(ctx, st, limits, planner, tools, llm, trace)
	}()

	return ports.GraphRunOutput{
		State:            st.toMap(),
		Iterations:       st.iterations,
		ToolCalls:        st.toolCalls,
		TerminatedReason: st.terminatedReason,
	}, nil
}

func stateFromMap(m map[string]any) *State {
	st := &State{Status: "ok"}
	if m == nil {
		return st
	}
	if v, ok := m["query"].(string); ok {
		st.Query = v
	}
	if v, ok := m["doc_id"].(string); ok {
		st.DocID = v
	}
	if v, ok := m["intent"].(string); ok {
		st.Intent = v
	}
	if v, ok := m["status"].(string); ok && v != "" {
		st.Status = v
	}
	if v, ok := m["top_n"].(int); ok {
		st.TopN = v
	}
	if v, ok := m["rerank_pool_size"].(int); ok {
		st.RerankPoolSize = v
	}
	return st
}

// toMap renders the public view of state. EvidenceHits is deep-copied
// so the caller can't mutate the runner's working slice through the
// returned map, per the "agent state is threaded by value" design note.
func (s *State) toMap() map[string]any {
	var hits []EvidenceHit
	if err := deepcopy.Copy(&hits, s.EvidenceHits); err != nil {
		hits = s.EvidenceHits
	}
	return map[string]any{
		"query":                 s.Query,
		"doc_id":                s.DocID,
		"intent":                s.Intent,
		"plan_steps":            s.PlanSteps,
		"tool_calls":            s.ToolCalls,
		"evidence_hits":         hits,
		"retrieved_chunk_ids":   s.RetrievedChunkIDs,
		"answer_draft":          s.AnswerDraft,
		"status":                s.Status,
		"warnings":              s.Warnings,
		"errors":                s.Errors,
		"confidence":            s.Confidence,
		"reasoning_summary":     s.ReasoningSummary,
		"total_chunks_scanned":  s.TotalChunksScanned,
	}
}

func maxStepsFor(limits ports.GraphRunLimits) int {
	m := limits.MaxIterations
	if limits.MaxToolCalls < m {
		m = limits.MaxToolCalls
	}
	if m < 1 {
		m = 1
	}
	return m
}

func runGraph(ctx context.Context, st *State, limits ports.GraphRunLimits, planner ports.Planner, tools ports.ToolExecutor, llm ports.Llm, trace ports.AgentTrace) {
	planNode(ctx, st, limits, planner)

	start := time.Now()
	deadline := time.Duration(limits.TimeoutSeconds * float64(time.Second))

	for !st.done {
		executeNode(ctx, st, limits, tools, start, deadline, trace)
	}

	finalizeNode(ctx, st, llm, trace)
}

func planNode(ctx context.Context, st *State, limits ports.GraphRunLimits, planner ports.Planner) {
	maxSteps := maxStepsFor(limits)
	steps, err := planner.CreatePlan(ctx, st.Query, st.Intent, st.DocID, maxSteps)
	if err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("planner error: %v", err))
		steps = nil
	}

	hasSearch := false
	for _, s := range steps {
		if s.ToolName == "search_evidence" {
			hasSearch = true
			break
		}
	}
	if !hasSearch {
		steps = append([]ports.PlanStep{{StepID: "auto-search", ToolName: "search_evidence", Objective: "Automatically retrieve evidence before drafting."}}, steps...)
	}
	if len(steps) > maxSteps {
		steps = steps[:maxSteps]
	}

	st.PlanSteps = steps
	if len(steps) == 0 {
		st.done = true
		st.terminatedReason = "empty_plan"
	}
}

func executeNode(ctx context.Context, st *State, limits ports.GraphRunLimits, tools ports.ToolExecutor, start time.Time, deadline time.Duration, trace ports.AgentTrace) {
	if st.iterations >= limits.MaxIterations {
		st.done = true
		st.terminatedReason = "max_iterations"
		return
	}
	if st.toolCalls >= limits.MaxToolCalls {
		st.done = true
		st.terminatedReason = "max_tool_calls"
		return
	}
	if st.planIndex >= len(st.PlanSteps) {
		st.done = true
		st.terminatedReason = "completed"
		return
	}
	if deadline > 0 && time.Since(start) >= deadline {
		st.done = true
		st.terminatedReason = "timeout"
		return
	}

	step := st.PlanSteps[st.planIndex]
	st.planIndex++
	st.iterations++

	callID := uuid.NewString()
	args := map[string]any{"query": st.Query, "doc_id": st.DocID}
	if st.TopN > 0 {
		args["top_n"] = st.TopN
	}
	if st.RerankPoolSize > 0 {
		args["rerank_pool_size"] = st.RerankPoolSize
	}
	result := tools.Execute(ctx, step.ToolName, args)
	st.toolCalls++

	if result.Success {
		applyToolResult(st, step.ToolName, result)
	} else {
		st.Errors = append(st.Errors, result.Error)
		st.Warnings = append(st.Warnings, fmt.Sprintf("Tool failed: %s", result.Error))
	}

	if trace != nil {
		argKeys := make([]string, 0, len(args))
		for k := range args {
			argKeys = append(argKeys, k)
		}
		sort.Strings(argKeys)
		trace.Log(map[string]any{
			"event":      "tool_executed",
			"call_id":    callID,
			"tool_name":  step.ToolName,
			"arg_keys":   argKeys,
			"success":    result.Success,
			"iterations": st.iterations,
			"tool_calls": st.toolCalls,
		})
	}

	st.ToolCalls = append(st.ToolCalls, ToolCallLog{CallID: callID, ToolName: step.ToolName, Success: result.Success})
}

func applyToolResult(st *State, toolName string, result ports.ToolExecutionResult) {
	switch toolName {
	case "search_evidence":
		applySearchEvidence(st, result.Payload)
	case "draft_answer":
		if draft, ok := result.Payload["answer_draft"].(string); ok && draft != "" {
			st.AnswerDraft = draft
		}
	}
}

func applySearchEvidence(st *State, payload map[string]any) {
	if intent, ok := payload["intent"].(string); ok && intent != "" {
		st.Intent = intent
	}
	if scanned, ok := payload["total_chunks_scanned"].(int); ok {
		st.TotalChunksScanned = scanned
	}

	merged := make(map[string]EvidenceHit, len(st.EvidenceHits))
	for _, h := range st.EvidenceHits {
		merged[h.ChunkID] = h
	}

	rawHits, _ := payload["hits"].([]map[string]any)
	for _, rh := range rawHits {
		hit := hitFromMap(rh)
		if existing, ok := merged[hit.ChunkID]; !ok || hit.Score > existing.Score {
			merged[hit.ChunkID] = hit
		}
	}

	hits := make([]EvidenceHit, 0, len(merged))
	for _, h := range merged {
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	topN := st.TopN
	if topN <= 0 {
		topN = 8
	}
	limit := topN * 2
	if limit < topN {
		limit = topN
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	st.EvidenceHits = hits
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ChunkID)
	}
	st.RetrievedChunkIDs = ids
}

func hitFromMap(m map[string]any) EvidenceHit {
	str := func(k string) string { v, _ := m[k].(string); return v }
	num := func(k string) int { v, _ := m[k].(int); return v }
	score := func(k string) float64 { v, _ := m[k].(float64); return v }
	return EvidenceHit{
		ChunkID:     str("chunk_id"),
		DocID:       str("doc_id"),
		ContentType: str("content_type"),
		PageStart:   num("page_start"),
		PageEnd:     num("page_end"),
		SectionPath: str("section_path"),
		FigureID:    str("figure_id"),
		TableID:     str("table_id"),
		Score:       score("score"),
		Snippet:     str("snippet"),
	}
}

func finalizeNode(ctx context.Context, st *State, llm ports.Llm, trace ports.AgentTrace) {
	if st.AnswerDraft == "" && len(st.EvidenceHits) > 0 && llm != nil {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					st.Warnings = append(st.Warnings, fmt.Sprintf("LLM draft failed: %v", rec))
				}
			}()
			evidence := make([]ports.LlmEvidence, 0, len(st.EvidenceHits))
			for _, h := range st.EvidenceHits {
				evidence = append(evidence, ports.LlmEvidence{ChunkID: h.ChunkID, DocID: h.DocID, Snippet: h.Snippet, ContentType: h.ContentType})
			}
			draft, err := llm.GenerateAnswer(ctx, st.Query, st.Intent, evidence)
			if err != nil {
				st.Warnings = append(st.Warnings, fmt.Sprintf("LLM draft failed: %v", err))
				return
			}
			if draft != "" {
				st.AnswerDraft = draft
			}
		}()
	}

	if st.AnswerDraft == "" {
		st.AnswerDraft = composeFromTopSnippets(st.EvidenceHits)
	}

	if len(st.EvidenceHits) == 0 && st.Status == "ok" {
		st.Status = "not_found"
	}

	best := 0.0
	if len(st.EvidenceHits) > 0 {
		best = st.EvidenceHits[0].Score
	}
	st.Confidence = confidenceTier(best, st.Status, len(st.EvidenceHits) > 0)

	if st.ReasoningSummary == "" {
		names := make([]string, 0, len(st.ToolCalls))
		for _, tc := range st.ToolCalls {
			names = append(names, tc.ToolName)
		}
		st.ReasoningSummary = fmt.Sprintf("Plan executed with tools: %v", names)
	}

	if trace != nil {
		trace.Log(map[string]any{
			"event":             "graph_finalized",
			"status":            st.Status,
			"iterations":        st.iterations,
			"tool_calls":        st.toolCalls,
			"terminated_reason": st.terminatedReason,
		})
	}
}

func composeFromTopSnippets(hits []EvidenceHit) string {
	n := len(hits)
	if n > 3 {
		n = 3
	}
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += " "
		}
		out += hits[i].Snippet
	}
	return out
}

func confidenceTier(best float64, status string, hasHits bool) string {
	if status != "ok" || !hasHits {
		return "low"
	}
	switch {
	case best >= 0.60:
		return "high"
	case best >= 0.35:
		return "medium"
	default:
		return "low"
	}
}

// runFallback re-runs the plan/execute/finalize logic directly, without
// the (already-panicked) graph framework, producing a shape-identical
// output per spec.md §4.I's fallback clause.
func runFallback(ctx context.Context, st *State, limits ports.GraphRunLimits, planner ports.Planner, tools ports.ToolExecutor, llm ports.Llm, trace ports.AgentTrace) {
	st.done = false
	st.terminatedReason = ""
	runGraph(ctx, st, limits, planner, tools, llm, trace)
}
