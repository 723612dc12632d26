// Package answer implements the grounded answer composer of
// spec.md §4.J: ambiguity follow-up detection, insufficient-evidence
// thresholds, citation construction and enforcement, grounding policy,
// confidence tiering, structured-output rendering, and optional
// agent-mode integration with a deterministic fallback.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goreason/manuals/agent/graph"
	"github.com/goreason/manuals/ports"
	"github.com/goreason/manuals/retrieval"
)

// Citation identifies the grounding location behind part of an answer.
type Citation struct {
	DocID       string `json:"doc_id"`
	Page        int    `json:"page"`
	SectionPath string `json:"section_path,omitempty"`
	FigureID    string `json:"figure_id,omitempty"`
	TableID     string `json:"table_id,omitempty"`
}

// AgenticInfo is attached to Output when use_agentic_mode was honored.
type AgenticInfo struct {
	Iterations       int    `json:"iterations"`
	ToolCalls        int    `json:"tool_calls"`
	TerminatedReason string `json:"terminated_reason"`
}

// Output is the /answer response body of spec.md §6.1.
type Output struct {
	Query               string       `json:"query"`
	Intent              string       `json:"intent"`
	Status              string       `json:"status"`
	Confidence          string       `json:"confidence"`
	Answer              string       `json:"answer"`
	FollowUpQuestion     string      `json:"follow_up_question,omitempty"`
	Warnings            []string     `json:"warnings"`
	TotalChunksScanned  int          `json:"total_chunks_scanned"`
	RetrievedChunkIDs   []string     `json:"retrieved_chunk_ids"`
	Citations           []Citation   `json:"citations"`
	ReasoningSummary    string       `json:"reasoning_summary,omitempty"`
	Agentic             *AgenticInfo `json:"agentic,omitempty"`
}

// Input configures one Compose call.
type Input struct {
	Query                   string
	DocID                   string
	TopN                    int
	RerankPoolSize          int
	UseAgenticMode          bool
	EnforceStructuredOutput bool
	Limits                  ports.GraphRunLimits
}

const notFoundSentinel = "Not found: no grounded citation could be established for this query."

var ambiguousPhrases = []string{
	"my equipment", "it trips", "it will not", "it wont", "it doesn't work",
	"it does not work", "this thing", "the machine", "not working",
}

// hit is the answer composer's normalized view of one evidence record,
// built either from a retrieval.Hit or from an agentic run's state.
type hit struct {
	ChunkID      string
	DocID        string
	ContentType  string
	PageStart    int
	SectionPath  string
	FigureID     string
	TableID      string
	Score        float64
	KeywordScore float64
	VectorScore  float64
	RerankScore  float64
	Snippet      string
}

// Composer wires the retrieval engine, an optional drafting LLM, and an
// optional agentic stack (planner/tools/graph runner) together.
type Composer struct {
	retrieval *retrieval.Engine
	llm       ports.Llm // optional
	graph     ports.StateGraphRunner // optional
	planner   ports.Planner          // optional, used only by agent mode
	tools     ports.ToolExecutor     // optional, used only by agent mode
	agentTrace ports.AgentTrace      // optional, passed to the graph runner
	trace     ports.AgentTrace       // optional, the answer composer's own JSONL trace
}

// New builds an answer composer. Any collaborator may be nil to disable
// the feature it backs (LLM drafting, agent mode, tracing).
func New(retrievalEngine *retrieval.Engine, llm ports.Llm, graphRunner ports.StateGraphRunner, planner ports.Planner, tools ports.ToolExecutor, agentTrace, trace ports.AgentTrace) *Composer {
	return &Composer{
		retrieval:  retrievalEngine,
		llm:        llm,
		graph:      graphRunner,
		planner:    planner,
		tools:      tools,
		agentTrace: agentTrace,
		trace:      trace,
	}
}

// Compose runs the full answer pipeline of spec.md §4.J.
func (c *Composer) Compose(ctx context.Context, in Input) (Output, error) {
	var hits []hit
	var intent string
	var totalScanned int
	var externalDraft string
	var status = "ok"
	var warnings []string
	var reasoningSummary string
	var agentic *AgenticInfo

	if in.UseAgenticMode && c.graph != nil {
		hits, intent, totalScanned, externalDraft, status, warnings, reasoningSummary, agentic = c.runAgentic(ctx, in)
	}
	if agentic == nil {
		// Deterministic path: either agent mode was off, or the agentic
		// attempt raised and we fall back here per spec.md §4.J.
		res, err := c.retrieval.Search(ctx, in.Query, in.DocID, retrieval.Options{TopN: in.TopN, RerankPoolSize: in.RerankPoolSize})
		if err != nil {
			return Output{}, err
		}
		hits = fromRetrievalHits(res.Hits)
		intent = res.Intent
		totalScanned = res.TotalChunksScanned
	}

	queryTokens := contentTokens(in.Query)

	followUp := detectFollowUp(in.Query, in.DocID, hits)

	if insufficientEvidence(in.Query, queryTokens, intent, hits) {
		status = "not_found"
		externalDraft = closestEvidenceAnswer(hits)
	}

	if followUp != "" {
		status = "needs_follow_up"
	}

	answerText := externalDraft
	if status == "ok" && answerText == "" && c.llm != nil {
		answerText = c.draftWithLLM(ctx, in.Query, intent, hits, &warnings)
	}
	if answerText == "" {
		answerText = closestEvidenceAnswer(hits)
	}

	citations := buildCitations(hits)
	citations, droppedCount := enforceMinimumFields(citations)
	if droppedCount > 0 {
		warnings = append(warnings, fmt.Sprintf("Dropped %d citation(s) missing required fields", droppedCount))
	}

	if status == "ok" && len(citations) == 0 {
		status = "not_found"
		answerText = notFoundSentinel
		warnings = append(warnings, "Grounding policy downgraded status to not_found: no citations survived filtering")
	}

	confidence := composeConfidence(hits, status, queryTokens)

	if reasoningSummary == "" {
		reasoningSummary = "Answer composed from retrieved evidence."
	}

	if in.EnforceStructuredOutput {
		answerText = renderStructuredOutput(answerText, hits, warnings)
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ChunkID)
	}

	out := Output{
		Query:              in.Query,
		Intent:             intent,
		Status:             status,
		Confidence:         confidence,
		Answer:             answerText,
		FollowUpQuestion:   followUp,
		Warnings:           warnings,
		TotalChunksScanned: totalScanned,
		RetrievedChunkIDs:  ids,
		Citations:          citations,
		ReasoningSummary:   reasoningSummary,
		Agentic:            agentic,
	}

	c.logTrace(out)
	return out, nil
}

// runAgentic attempts the agent-graph path; on panic it records the
// fallback warning and signals the caller to use the deterministic
// path by returning a nil AgenticInfo.
func (c *Composer) runAgentic(ctx context.Context, in Input) (hits []hit, intent string, totalScanned int, draft string, status string, warnings []string, reasoningSummary string, agentic *AgenticInfo) {
	defer func() {
		if r := recover(); r != nil {
			warnings = append(warnings, fmt.Sprintf("Agentic mode fallback triggered: %v", r))
			agentic = nil
		}
	}()

	initialState := map[string]any{
		"query":            in.Query,
		"doc_id":           in.DocID,
		"top_n":            in.TopN,
		"rerank_pool_size": in.RerankPoolSize,
	}
	out, err := c.graph.Run(ctx, initialState, in.Limits, c.planner, c.tools, c.llm, c.agentTrace)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("Agentic mode fallback triggered: %v", err))
		return nil, "", 0, "", "ok", warnings, "", nil
	}

	if gs, ok := out.State["status"].(string); ok {
		status = gs
	} else {
		status = "ok"
	}
	if gi, ok := out.State["intent"].(string); ok {
		intent = gi
	}
	if ts, ok := out.State["total_chunks_scanned"].(int); ok {
		totalScanned = ts
	}
	if ad, ok := out.State["answer_draft"].(string); ok {
		draft = ad
	}
	if rs, ok := out.State["reasoning_summary"].(string); ok {
		reasoningSummary = rs
	}
	if gw, ok := out.State["warnings"].([]string); ok {
		warnings = append(warnings, gw...)
	}
	if eh, ok := out.State["evidence_hits"].([]graph.EvidenceHit); ok {
		hits = fromGraphHits(eh)
	}

	agentic = &AgenticInfo{Iterations: out.Iterations, ToolCalls: out.ToolCalls, TerminatedReason: out.TerminatedReason}
	return hits, intent, totalScanned, draft, status, warnings, reasoningSummary, agentic
}

func fromRetrievalHits(rh []retrieval.Hit) []hit {
	out := make([]hit, 0, len(rh))
	for _, h := range rh {
		out = append(out, hit{
			ChunkID: h.ChunkID, DocID: h.DocID, ContentType: string(h.ContentType),
			PageStart: h.PageStart, SectionPath: h.SectionPath, FigureID: h.FigureID, TableID: h.TableID,
			Score: h.Score, KeywordScore: h.KeywordScore, VectorScore: h.VectorScore, RerankScore: h.RerankScore,
			Snippet: h.Snippet,
		})
	}
	return out
}

func fromGraphHits(gh []graph.EvidenceHit) []hit {
	out := make([]hit, 0, len(gh))
	for _, h := range gh {
		out = append(out, hit{
			ChunkID: h.ChunkID, DocID: h.DocID, ContentType: h.ContentType,
			PageStart: h.PageStart, SectionPath: h.SectionPath, FigureID: h.FigureID, TableID: h.TableID,
			Score: h.Score, Snippet: h.Snippet,
		})
	}
	return out
}

func detectFollowUp(query, docID string, hits []hit) string {
	if docID != "" {
		return ""
	}
	lower := strings.ToLower(query)
	ambiguous := false
	for _, p := range ambiguousPhrases {
		if strings.Contains(lower, p) {
			ambiguous = true
			break
		}
	}
	multiDoc := spansMultipleDocs(hits)
	if !ambiguous && !multiDoc {
		return ""
	}
	return "Could you confirm which specific equipment or document this question refers to?"
}

func spansMultipleDocs(hits []hit) bool {
	docs := map[string]bool{}
	n := len(hits)
	if n > 5 {
		n = 5
	}
	for i := 0; i < n; i++ {
		docs[hits[i].DocID] = true
	}
	return len(docs) > 1
}

func bestScores(hits []hit) (bestScore, bestKeyword, bestVector float64) {
	for _, h := range hits {
		if h.Score > bestScore {
			bestScore = h.Score
		}
		if h.KeywordScore > bestKeyword {
			bestKeyword = h.KeywordScore
		}
		if h.VectorScore > bestVector {
			bestVector = h.VectorScore
		}
	}
	return
}

func overlapStats(queryTokens map[string]bool, hits []hit) (bestOverlap float64, bestOverlapCount int, aggregateOverlap float64) {
	if len(hits) == 0 {
		return 0, 0, 0
	}
	allTokens := []map[string]bool{}
	for _, h := range hits {
		t := contentTokens(h.Snippet)
		allTokens = append(allTokens, t)
		score, count := jaccard(queryTokens, t)
		if score > bestOverlap {
			bestOverlap = score
			bestOverlapCount = count
		}
	}
	aggregateOverlap, _ = jaccard(queryTokens, unionTokens(allTokens...))
	return
}

func isComparisonQuery(query string) bool {
	lower := strings.ToLower(query)
	return strings.Contains(lower, "compare") || strings.Contains(lower, " vs ") || strings.Contains(lower, "difference") || strings.Contains(lower, "versus")
}

func insufficientEvidence(query string, queryTokens map[string]bool, intent string, hits []hit) bool {
	if len(hits) == 0 {
		return true
	}
	bestScore, bestKeyword, bestVector := bestScores(hits)
	bestOverlap, bestOverlapCount, aggregateOverlap := overlapStats(queryTokens, hits)

	if bestScore < 0.22 && bestKeyword < 0.35 && bestVector < 0.60 {
		return true
	}
	if isComparisonQuery(query) {
		if aggregateOverlap < 0.22 && bestOverlap < 0.10 && bestVector < 0.70 && bestKeyword < 0.45 {
			return true
		}
	} else {
		if bestOverlap < 0.15 && aggregateOverlap < 0.25 && bestVector < 0.75 && bestKeyword < 0.55 {
			return true
		}
	}
	if len(queryTokens) >= 6 && bestOverlapCount < 2 && aggregateOverlap < 0.30 {
		return true
	}
	return false
}

func closestEvidenceAnswer(hits []hit) string {
	n := len(hits)
	if n > 3 {
		n = 3
	}
	var b strings.Builder
	b.WriteString("Direct answer is not explicitly stated. Closest grounded evidence:")
	for i := 0; i < n; i++ {
		b.WriteString(" ")
		b.WriteString(hits[i].Snippet)
	}
	return b.String()
}

func (c *Composer) draftWithLLM(ctx context.Context, query, intent string, hits []hit, warnings *[]string) string {
	n := len(hits)
	if n > 12 {
		n = 12
	}
	evidence := make([]ports.LlmEvidence, 0, n)
	for i := 0; i < n; i++ {
		evidence = append(evidence, ports.LlmEvidence{
			ChunkID: hits[i].ChunkID, DocID: hits[i].DocID, Snippet: hits[i].Snippet, ContentType: hits[i].ContentType,
		})
	}
	draft, err := c.llm.GenerateAnswer(ctx, query, intent, evidence)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("LLM draft failed: %v", err))
		return ""
	}
	return draft
}

func buildCitations(hits []hit) []Citation {
	if len(hits) == 0 {
		return nil
	}
	topScore := hits[0].Score
	threshold := topScore * 0.35
	if threshold < 0.18 {
		threshold = 0.18
	}

	seen := map[string]bool{}
	var citations []Citation
	for _, h := range hits {
		if h.Score < threshold {
			continue
		}
		cit := Citation{DocID: h.DocID, Page: h.PageStart, SectionPath: h.SectionPath, FigureID: h.FigureID, TableID: h.TableID}
		key := fmt.Sprintf("%s|%d|%s|%s|%s", cit.DocID, cit.Page, cit.SectionPath, cit.FigureID, cit.TableID)
		if seen[key] {
			continue
		}
		seen[key] = true
		citations = append(citations, cit)
	}

	if len(citations) == 0 {
		top := hits[0]
		citations = []Citation{{DocID: top.DocID, Page: top.PageStart, SectionPath: top.SectionPath, FigureID: top.FigureID, TableID: top.TableID}}
	}
	return citations
}

func enforceMinimumFields(citations []Citation) ([]Citation, int) {
	dropped := 0
	var kept []Citation
	for _, c := range citations {
		if c.DocID == "" || c.Page <= 0 {
			dropped++
			continue
		}
		kept = append(kept, c)
	}
	return kept, dropped
}

func composeConfidence(hits []hit, status string, queryTokens map[string]bool) string {
	bestScore, _, _ := bestScores(hits)
	hasHits := len(hits) > 0
	tier := "low"
	switch {
	case status != "ok" || !hasHits:
		tier = "low"
	case bestScore >= 0.60:
		tier = "high"
	case bestScore >= 0.35:
		tier = "medium"
	default:
		tier = "low"
	}

	if tier == "low" && status == "ok" && hasHits {
		bestOverlap, _, _ := overlapStats(queryTokens, hits)
		var bestRerank float64
		for _, h := range hits {
			if h.RerankScore > bestRerank {
				bestRerank = h.RerankScore
			}
		}
		if bestRerank >= 0.60 && bestOverlap >= 0.20 {
			tier = "medium"
		}
	}
	return tier
}

func renderStructuredOutput(answer string, hits []hit, warnings []string) string {
	n := len(hits)
	if n > 3 {
		n = 3
	}
	var keyDetails strings.Builder
	if n == 0 {
		keyDetails.WriteString("- No supporting evidence retrieved.")
	}
	for i := 0; i < n; i++ {
		if i > 0 {
			keyDetails.WriteString("\n")
		}
		keyDetails.WriteString("- ")
		keyDetails.WriteString(hits[i].Snippet)
	}

	var missing strings.Builder
	if len(warnings) == 0 {
		missing.WriteString("- None noted.")
	}
	for i, w := range warnings {
		if i > 0 {
			missing.WriteString("\n")
		}
		missing.WriteString("- ")
		missing.WriteString(w)
	}

	return fmt.Sprintf("Direct answer:\n%s\n\nKey details:\n%s\n\nIf missing data:\n%s", answer, keyDetails.String(), missing.String())
}

func (c *Composer) logTrace(out Output) {
	if c.trace == nil {
		return
	}
	citations := make([]map[string]any, 0, len(out.Citations))
	for _, cit := range out.Citations {
		citations = append(citations, map[string]any{
			"doc_id": cit.DocID, "page": cit.Page, "section_path": cit.SectionPath,
			"figure_id": cit.FigureID, "table_id": cit.TableID,
		})
	}
	payload := map[string]any{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"query":       out.Query,
		"intent":      out.Intent,
		"status":      out.Status,
		"confidence":  out.Confidence,
		"citations":   citations,
		"follow_up":   out.FollowUpQuestion,
	}
	if out.Agentic != nil {
		payload["agentic"] = map[string]any{
			"iterations":        out.Agentic.Iterations,
			"tool_calls":        out.Agentic.ToolCalls,
			"terminated_reason": out.Agentic.TerminatedReason,
		}
	}
	c.trace.Log(payload)
}
