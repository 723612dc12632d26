package evaluator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/goreason/manuals/answer"
	"github.com/goreason/manuals/chunk"
	"github.com/goreason/manuals/ports"
	"github.com/goreason/manuals/retrieval"
)

type fixedChunkQuery struct{ chunks []chunk.Chunk }

func (f fixedChunkQuery) ListChunks(ctx context.Context, docID string) ([]chunk.Chunk, error) {
	return f.chunks, nil
}

type flatKeyword struct{}

func (flatKeyword) Search(ctx context.Context, query string, chunks []chunk.Chunk, topK int) ([]ports.ScoredChunk, error) {
	var out []ports.ScoredChunk
	for _, c := range chunks {
		out = append(out, ports.ScoredChunk{Chunk: c, Score: 0.6})
	}
	return out, nil
}

type flatVector struct{}

func (flatVector) Search(ctx context.Context, query string, chunks []chunk.Chunk, topK int) ([]ports.ScoredChunk, error) {
	var out []ports.ScoredChunk
	for _, c := range chunks {
		out = append(out, ports.ScoredChunk{Chunk: c, Score: 0.6})
	}
	return out, nil
}

func newTestEvaluator() *Evaluator {
	corpus := []chunk.Chunk{
		chunk.New("c1", "d1", chunk.Text, 2, 2, "Fault F005 indicates overcurrent protection tripped."),
	}
	engine := retrieval.New(fixedChunkQuery{corpus}, flatKeyword{}, flatVector{}, nil, zerolog.Nop())
	composer := answer.New(engine, nil, nil, nil, nil, nil, nil)
	return New(composer)
}

func TestRun_SingleTurn(t *testing.T) {
	e := newTestEvaluator()
	roll, err := e.Run(context.Background(), Question{DocID: "d1", TurnCount: 1, Prompt: "What does fault F005 mean?"}, false, false)
	require.NoError(t, err)
	require.Equal(t, 1, roll.PlannedTurns)
	require.Equal(t, 1, roll.ExecutedTurns)
	require.Empty(t, roll.Reasons)
}

func TestRun_MultiTurnStepSplit(t *testing.T) {
	e := newTestEvaluator()
	prompt := "Step 1: What does fault F005 mean? Step 2: What should I check first?"
	roll, err := e.Run(context.Background(), Question{DocID: "d1", TurnCount: 2, Prompt: prompt}, false, false)
	require.NoError(t, err)
	require.Equal(t, 2, roll.PlannedTurns)
	require.Equal(t, 2, roll.ExecutedTurns)
	require.Len(t, roll.TurnPrompts, 2)
	require.Empty(t, roll.Reasons)
}

func TestDecompose_FallsBackToArrow(t *testing.T) {
	parts := decompose("Check the fuse -> Reset the breaker", 2)
	require.Len(t, parts, 2)
}

func TestDecompose_FallsBackToThen(t *testing.T) {
	parts := decompose("Check the fuse then reset the breaker", 2)
	require.Len(t, parts, 2)
}

func TestDecompose_SingleTurnWhenNoSeparatorFound(t *testing.T) {
	parts := decompose("What does fault F005 mean", 3)
	require.Len(t, parts, 1)
}

func TestComposeTurnQuery_IncludesPriorTurns(t *testing.T) {
	history := []TurnResult{
		{TurnPrompt: "first question", Output: answer.Output{Answer: "first answer"}},
	}
	composed := composeTurnQuery("second question", history)
	require.Contains(t, composed, "Prior turn 1 user: first question")
	require.Contains(t, composed, "Prior turn 1 assistant: first answer")
	require.Contains(t, composed, "Current turn user: second question")
}
