package ports

import "context"

// PlanStep is one step a Planner wants the ToolExecutor to perform.
type PlanStep struct {
	StepID    string
	ToolName  string // "search_evidence" or "draft_answer"
	Objective string
}

// Planner produces a bounded plan of steps for a query.
type Planner interface {
	CreatePlan(ctx context.Context, query, intent, docID string, maxSteps int) ([]PlanStep, error)
}

// ToolExecutionResult is the outcome of invoking one tool.
type ToolExecutionResult struct {
	ToolName string
	Success  bool
	Payload  map[string]any
	Error    string
}

// ToolExecutor runs a named tool with arguments and reports the outcome.
type ToolExecutor interface {
	AvailableTools() []string
	Execute(ctx context.Context, toolName string, arguments map[string]any) ToolExecutionResult
}

// GraphRunLimits bounds a state-graph run.
type GraphRunLimits struct {
	MaxIterations   int
	MaxToolCalls    int
	TimeoutSeconds  float64
}

// GraphRunOutput is the result of a state-graph run.
type GraphRunOutput struct {
	State            map[string]any
	Iterations       int
	ToolCalls        int
	TerminatedReason string
}

// AgentTrace receives one structured JSON-line event per call.
type AgentTrace interface {
	Log(payload map[string]any)
}

// StateGraphRunner drives a plan -> execute -> finalize loop bounded by
// GraphRunLimits.
type StateGraphRunner interface {
	Run(ctx context.Context, initialState map[string]any, limits GraphRunLimits, planner Planner, tools ToolExecutor, llm Llm, trace AgentTrace) (GraphRunOutput, error)
}
