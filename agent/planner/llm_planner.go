package planner

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/goreason/manuals/ports"
)

// LLM wraps the deterministic planner with an LLM call that is expected
// to return a JSON array of plan steps. A malformed or unparsable
// response falls back to the deterministic plan; per the Open Question
// resolution in DESIGN.md, the malformed response is logged to the
// agent trace rather than silently discarded.
type LLM struct {
	llm      ports.Llm
	fallback *Deterministic
	trace    ports.AgentTrace // optional
}

// NewLLM builds an LLM-backed planner. trace may be nil.
func NewLLM(llm ports.Llm, trace ports.AgentTrace) *LLM {
	return &LLM{llm: llm, fallback: New(), trace: trace}
}

type rawPlanStep struct {
	StepID    string `json:"step_id"`
	ToolName  string `json:"tool_name"`
	Objective string `json:"objective"`
}

// CreatePlan implements ports.Planner.
func (l *LLM) CreatePlan(ctx context.Context, query, intent, docID string, maxSteps int) ([]ports.PlanStep, error) {
	raw, err := l.llm.GenerateAnswer(ctx, planningPrompt(query, intent, maxSteps), intent, nil)
	if err != nil {
		return l.fallback.CreatePlan(ctx, query, intent, docID, maxSteps)
	}

	steps, parseErr := parsePlanJSON(raw)
	if parseErr != nil || len(steps) == 0 {
		if l.trace != nil {
			l.trace.Log(map[string]any{
				"event":   "planner_parse_error",
				"reason":  "malformed top-level JSON array from planner LLM",
				"query":   query,
				"excerpt": truncate(raw, 200),
			})
		}
		return l.fallback.CreatePlan(ctx, query, intent, docID, maxSteps)
	}
	if maxSteps > 0 && len(steps) > maxSteps {
		steps = steps[:maxSteps]
	}
	return steps, nil
}

func planningPrompt(query, intent string, maxSteps int) string {
	return "Produce a JSON array of at most " + itoa(maxSteps) +
		" plan steps (fields: step_id, tool_name, objective) to answer: " + query +
		" (intent: " + intent + ")"
}

func parsePlanJSON(raw string) ([]ports.PlanStep, error) {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if start < 0 || end < start {
		return nil, errNotArray
	}
	var rawSteps []rawPlanStep
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &rawSteps); err != nil {
		return nil, err
	}
	steps := make([]ports.PlanStep, 0, len(rawSteps))
	for _, rs := range rawSteps {
		if rs.ToolName == "" {
			continue
		}
		steps = append(steps, ports.PlanStep{StepID: rs.StepID, ToolName: rs.ToolName, Objective: rs.Objective})
	}
	return steps, nil
}

var errNotArray = jsonArrayError{}

type jsonArrayError struct{}

func (jsonArrayError) Error() string { return "planner: response is not a top-level JSON array" }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func itoa(n int) string {
	if n <= 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
