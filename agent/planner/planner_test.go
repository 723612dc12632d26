package planner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goreason/manuals/ports"
)

func TestDeterministic_BaseQueryYieldsSearchThenDraft(t *testing.T) {
	p := New()
	steps, err := p.CreatePlan(context.Background(), "How do I reset the pump?", "general", "doc-1", 0)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, "search_evidence", steps[0].ToolName)
	require.Equal(t, "draft_answer", steps[len(steps)-1].ToolName)
}

func TestDeterministic_TableHintAddsExtraSearchStep(t *testing.T) {
	p := New()
	steps, err := p.CreatePlan(context.Background(), "What is the torque spec value?", "table", "doc-1", 0)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	require.Equal(t, "search_evidence", steps[1].ToolName)
}

func TestDeterministic_ComparisonAddsExtraSearchStep(t *testing.T) {
	p := New()
	steps, err := p.CreatePlan(context.Background(), "Compare mode A vs mode B", "general", "doc-1", 0)
	require.NoError(t, err)
	require.Len(t, steps, 3)
}

func TestDeterministic_MaxStepsTruncates(t *testing.T) {
	p := New()
	steps, err := p.CreatePlan(context.Background(), "Compare the figure and table values", "table", "doc-1", 2)
	require.NoError(t, err)
	require.Len(t, steps, 2)
}

type stubLlm struct {
	response string
	err      error
}

func (s stubLlm) GenerateAnswer(ctx context.Context, query, intent string, evidence []ports.LlmEvidence) (string, error) {
	return s.response, s.err
}

type recordingTrace struct{ events []map[string]any }

func (r *recordingTrace) Log(payload map[string]any) { r.events = append(r.events, payload) }

func TestLLM_ParsesWellFormedPlan(t *testing.T) {
	raw, _ := json.Marshal([]rawPlanStep{
		{StepID: "s1", ToolName: "search_evidence", Objective: "find it"},
		{StepID: "s2", ToolName: "draft_answer", Objective: "draft it"},
	})
	l := NewLLM(stubLlm{response: string(raw)}, nil)
	steps, err := l.CreatePlan(context.Background(), "q", "general", "doc-1", 0)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, "search_evidence", steps[0].ToolName)
}

func TestLLM_FallsBackAndTracesOnMalformedResponse(t *testing.T) {
	trace := &recordingTrace{}
	l := NewLLM(stubLlm{response: "not json at all"}, trace)
	steps, err := l.CreatePlan(context.Background(), "q", "general", "doc-1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	require.Len(t, trace.events, 1)
	require.Equal(t, "planner_parse_error", trace.events[0]["event"])
}

func TestLLM_FallsBackOnLlmError(t *testing.T) {
	l := NewLLM(stubLlm{err: errors.New("boom")}, nil)
	steps, err := l.CreatePlan(context.Background(), "q", "general", "doc-1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, steps)
}
