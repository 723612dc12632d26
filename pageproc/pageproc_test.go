package pageproc

import (
	"context"
	"strings"
	"testing"

	"github.com/goreason/manuals/chunk"
	"github.com/goreason/manuals/tableextract"
	"github.com/stretchr/testify/require"
)

func TestProcess_EmitsTextChunkForNonEmptyPage(t *testing.T) {
	p := New("d1", NewVisionBudget(0), Dependencies{})
	res := p.Process(context.Background(), 1, "Routine maintenance should be performed every season.")
	require.Len(t, res.Chunks, 1)
	require.Equal(t, chunk.Text, res.Chunks[0].ContentType())
}

func TestProcess_SkipsTextChunkForBlankPage(t *testing.T) {
	p := New("d1", NewVisionBudget(0), Dependencies{})
	res := p.Process(context.Background(), 1, "   \n  ")
	require.Empty(t, res.Chunks)
}

func TestProcess_CallsOcrOnlyForSparsePages(t *testing.T) {
	called := 0
	ocr := func(ctx context.Context, pageNumber int) (string, error) {
		called++
		return "ocr text recovered from scan", nil
	}

	sparse := New("d1", NewVisionBudget(0), Dependencies{Ocr: ocr})
	sparse.Process(context.Background(), 1, "short")
	require.Equal(t, 1, called)

	dense := New("d1", NewVisionBudget(0), Dependencies{Ocr: ocr})
	dense.Process(context.Background(), 2, strings.Repeat("word ", 50))
	require.Equal(t, 1, called, "OCR should not run when page text already exceeds the sparse threshold")
}

func TestProcess_ExtractsTableRowsViaTableExtractor(t *testing.T) {
	deps := Dependencies{TableExtractor: tableextract.New()}
	p := New("d1", NewVisionBudget(0), deps)

	text := "Part | Torque\nBolt A | 45\nBolt B | 60\n"
	res := p.Process(context.Background(), 4, text)

	var rowChunks int
	for _, c := range res.Chunks {
		if c.ContentType() == chunk.TableRow {
			rowChunks++
		}
	}
	require.Equal(t, 2, rowChunks)
}

func TestProcess_EmitsFigureCaptionAndOcrChunks(t *testing.T) {
	ocr := func(ctx context.Context, pageNumber int) (string, error) {
		return "diagram callouts", nil
	}
	deps := Dependencies{Ocr: ocr}
	p := New("d1", NewVisionBudget(0), deps)

	text := "Figure 1: hydraulic schematic\nshort"
	res := p.Process(context.Background(), 2, text)

	var hasCaption, hasFigOcr bool
	for _, c := range res.Chunks {
		if c.ContentType() == chunk.FigureCaption {
			hasCaption = true
			require.Equal(t, "Figure 1: hydraulic schematic", c.Caption())
		}
		if c.ContentType() == chunk.FigureOCR && c.FigureID() != "" {
			hasFigOcr = true
		}
	}
	require.True(t, hasCaption)
	require.True(t, hasFigOcr)
}

func TestProcess_CallsVisionWhenCaptionPresentAndBudgetAvailable(t *testing.T) {
	visionCalled := 0
	vision := func(ctx context.Context, pageNumber int) (string, error) {
		visionCalled++
		return "a schematic showing the hydraulic valve assembly", nil
	}
	deps := Dependencies{Vision: vision}
	p := New("d1", NewVisionBudget(1), deps)

	res := p.Process(context.Background(), 1, "Figure 1: hydraulic schematic")
	require.Equal(t, 1, visionCalled)

	var hasVisionChunk bool
	for _, c := range res.Chunks {
		if c.ContentType() == chunk.VisionSummary {
			hasVisionChunk = true
		}
	}
	require.True(t, hasVisionChunk)
}

func TestProcess_SkipsVisionWhenBudgetExhausted(t *testing.T) {
	visionCalled := 0
	vision := func(ctx context.Context, pageNumber int) (string, error) {
		visionCalled++
		return "insight", nil
	}
	deps := Dependencies{Vision: vision}
	p := New("d1", NewVisionBudget(0), deps)

	p.Process(context.Background(), 1, "Figure 1: hydraulic schematic")
	require.Equal(t, 0, visionCalled)
}

func TestProcess_RefundsBudgetWhenVisionReturnsEmpty(t *testing.T) {
	vision := func(ctx context.Context, pageNumber int) (string, error) {
		return "", nil
	}
	budget := NewVisionBudget(1)
	deps := Dependencies{Vision: vision}
	p := New("d1", budget, deps)

	p.Process(context.Background(), 1, "Figure 1: hydraulic schematic")
	require.True(t, budget.take(), "budget should have been refunded after an empty vision response")
}
