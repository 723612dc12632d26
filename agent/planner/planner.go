// Package planner implements the deterministic planning strategy of
// spec.md §4.H: a fixed sequence of search_evidence/draft_answer steps
// shaped by simple lexical cues in the query, with no LLM call involved.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/goreason/manuals/ports"
)

// Deterministic is the "noop" planner variant: it never calls an LLM and
// always produces the same plan shape for the same query cues.
type Deterministic struct{}

// New builds the deterministic planner.
func New() *Deterministic { return &Deterministic{} }

var visualHints = []string{"figure", "diagram", "image", "picture", "photo", "schematic"}
var tableHints = []string{"table", "spec", "value", "dimension", "rating"}

func mentionsVisualOrTableHint(lower string) bool {
	for _, h := range visualHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	for _, h := range tableHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

func looksLikeComparison(lower string) bool {
	return strings.Contains(lower, "compare") ||
		strings.Contains(lower, " vs ") ||
		strings.Contains(lower, "difference") ||
		strings.Contains(lower, "versus")
}

// CreatePlan implements ports.Planner, per spec.md §4.H.
func (p *Deterministic) CreatePlan(ctx context.Context, query, intent, docID string, maxSteps int) ([]ports.PlanStep, error) {
	lower := strings.ToLower(query)

	steps := []ports.PlanStep{
		{StepID: "step-1", ToolName: "search_evidence", Objective: "Retrieve evidence for: " + query},
	}

	if mentionsVisualOrTableHint(lower) {
		steps = append(steps, ports.PlanStep{
			StepID:    fmt.Sprintf("step-%d", len(steps)+1),
			ToolName:  "search_evidence",
			Objective: "Retrieve table/figure evidence focused on: " + query,
		})
	}
	if looksLikeComparison(lower) {
		steps = append(steps, ports.PlanStep{
			StepID:    fmt.Sprintf("step-%d", len(steps)+1),
			ToolName:  "search_evidence",
			Objective: "Retrieve comparison coverage for: " + query,
		})
	}

	steps = append(steps, ports.PlanStep{
		StepID:    fmt.Sprintf("step-%d", len(steps)+1),
		ToolName:  "draft_answer",
		Objective: "Draft an answer grounded in retrieved evidence.",
	})

	if maxSteps > 0 && len(steps) > maxSteps {
		steps = steps[:maxSteps]
	}
	if len(steps) == 0 {
		steps = []ports.PlanStep{{StepID: "step-1", ToolName: "search_evidence", Objective: "Retrieve evidence for: " + query}}
	}
	return steps, nil
}
