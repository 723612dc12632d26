package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goreason/manuals/llm"
	"github.com/goreason/manuals/ports"
)

type fakeProvider struct {
	chatContent string
	chatErr     error
	embedVecs   [][]float32
	embedErr    error
	lastChat    llm.ChatRequest
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.lastChat = req
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &llm.ChatResponse{Content: f.chatContent}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.embedVecs, nil
}

func TestAnswerer_GenerateAnswer_BuildsEvidenceNumberedPrompt(t *testing.T) {
	p := &fakeProvider{chatContent: "Replace the filter every 500 hours."}
	a := NewAnswerer(p, "test-model")

	out, err := a.GenerateAnswer(context.Background(), "how often should I replace the filter?", "maintenance", []ports.LlmEvidence{
		{ChunkID: "c1", DocID: "d1", Snippet: "Replace the filter every 500 hours.", ContentType: "text"},
	})
	require.NoError(t, err)
	require.Equal(t, "Replace the filter every 500 hours.", out)
	require.Contains(t, p.lastChat.Messages[1].Content, "[1] (doc=d1 chunk=c1 type=text)")
}

func TestAnswerer_GenerateAnswer_PropagatesProviderError(t *testing.T) {
	a := NewAnswerer(&fakeProvider{chatErr: errors.New("boom")}, "test-model")
	_, err := a.GenerateAnswer(context.Background(), "q", "intent", nil)
	require.Error(t, err)
}

func TestEmbedder_EmbedText_ConvertsFloat32ToFloat64(t *testing.T) {
	e := NewEmbedder(&fakeProvider{embedVecs: [][]float32{{0.5, 1.5}}})
	out, err := e.EmbedText(context.Background(), "hydraulic filter")
	require.NoError(t, err)
	require.Equal(t, []float64{0.5, 1.5}, out)
	require.Empty(t, e.LastError())
}

func TestEmbedder_EmbedText_RecordsLastError(t *testing.T) {
	e := NewEmbedder(&fakeProvider{embedErr: errors.New("provider down")})
	_, err := e.EmbedText(context.Background(), "text")
	require.Error(t, err)
	require.Equal(t, "provider down", e.LastError())
}
