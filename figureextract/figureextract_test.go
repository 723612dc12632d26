package figureextract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtract_NormalizesBboxToUnitSquare(t *testing.T) {
	e := New()
	geo := PageGeometry{
		Width:  1000,
		Height: 2000,
		Blocks: []ImageBlock{
			{X0: 0, Y0: 1000, X1: 500, Y1: 2000},
		},
	}

	regions := e.Extract(geo, "d1", 3)
	require.Len(t, regions, 1)
	require.Equal(t, [4]float64{0, 0.5, 0.5, 1}, regions[0].Bbox)
	require.Equal(t, 3, regions[0].PageNumber)
	require.Equal(t, "fig_d1_p0003_000", regions[0].FigureID)
}

func TestExtract_ReturnsNilForZeroDimensionPage(t *testing.T) {
	e := New()
	geo := PageGeometry{Width: 0, Height: 0, Blocks: []ImageBlock{{X1: 10, Y1: 10}}}
	require.Nil(t, e.Extract(geo, "d1", 1))
}

func TestExtract_ReturnsNilWithNoBlocks(t *testing.T) {
	e := New()
	geo := PageGeometry{Width: 100, Height: 100}
	require.Nil(t, e.Extract(geo, "d1", 1))
}

func TestExtract_AssignsSequentialFigureIDs(t *testing.T) {
	e := New()
	geo := PageGeometry{
		Width:  100,
		Height: 100,
		Blocks: []ImageBlock{
			{X0: 0, Y0: 0, X1: 10, Y1: 10},
			{X0: 10, Y0: 10, X1: 20, Y1: 20},
		},
	}
	regions := e.Extract(geo, "d2", 7)
	require.Equal(t, "fig_d2_p0007_000", regions[0].FigureID)
	require.Equal(t, "fig_d2_p0007_001", regions[1].FigureID)
}
