package pdf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_StartsWithEmptyGeometryCache(t *testing.T) {
	p := New()
	_, ok := p.Geometry(1)
	require.False(t, ok)
}

func TestParse_ReturnsErrorForMissingFile(t *testing.T) {
	p := New()
	_, err := p.Parse(context.Background(), "/nonexistent/does-not-exist.pdf")
	require.Error(t, err)
}

func TestParse_RespectsCanceledContext(t *testing.T) {
	p := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Parse(ctx, "/nonexistent/does-not-exist.pdf")
	require.ErrorIs(t, err, context.Canceled)
}

func TestGeometry_UnknownPageReturnsFalse(t *testing.T) {
	p := New()
	geo, ok := p.Geometry(99)
	require.False(t, ok)
	require.Zero(t, geo.Width)
	require.Zero(t, geo.Height)
}
