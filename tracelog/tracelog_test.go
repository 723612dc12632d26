package tracelog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_EmptyPathDiscardsEvents(t *testing.T) {
	trace, err := Open("")
	require.NoError(t, err)
	require.NotNil(t, trace)
	trace.Log(map[string]any{"event": "noop"})
	require.NoError(t, trace.Close())
}

func TestFileTrace_LogAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentic.jsonl")
	trace, err := Open(path)
	require.NoError(t, err)

	trace.Log(map[string]any{"event": "plan_created", "iteration": 1})
	trace.Log(map[string]any{"event": "tool_call", "tool": "search_manual"})
	require.NoError(t, trace.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "plan_created")
	require.Contains(t, string(data), "tool_call")
	require.Equal(t, 2, countLines(string(data)))
}

func TestOpen_AppendsAcrossMultipleOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentic.jsonl")

	first, err := Open(path)
	require.NoError(t, err)
	first.Log(map[string]any{"event": "first"})
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	second.Log(map[string]any{"event": "second"})
	require.NoError(t, second.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, countLines(string(data)))
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}
