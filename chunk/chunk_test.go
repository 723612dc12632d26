package chunk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_ClampsPageStartAndPageEnd(t *testing.T) {
	c := New("c1", "d1", Text, 0, -1, "body text")
	require.Equal(t, 1, c.PageStart())
	require.Equal(t, 1, c.PageEnd())
}

func TestNew_AppliesOptions(t *testing.T) {
	c := New("c1", "d1", FigureCaption, 3, 3, "Figure 2: hydraulic schematic",
		WithSectionPath("3.2 Hydraulics"),
		WithFigureID("fig-2"),
		WithCaption("Figure 2: hydraulic schematic"),
		WithAssetRef("d1/figures/fig-2.png"),
		WithMetadata("confidence", 0.9),
	)

	require.Equal(t, "3.2 Hydraulics", c.SectionPath())
	require.Equal(t, "fig-2", c.FigureID())
	require.Equal(t, "Figure 2: hydraulic schematic", c.Caption())
	require.Equal(t, "d1/figures/fig-2.png", c.AssetRef())
	require.Equal(t, 0.9, c.Metadata()["confidence"])
}

func TestNew_PanicsOnEmptyEmbedding(t *testing.T) {
	require.Panics(t, func() {
		New("c1", "d1", Text, 1, 1, "text", WithMetadata("embedding", []float64{}))
	})
}

func TestEmbedding_ConvertsFloat32AndAnySlices(t *testing.T) {
	f32 := New("c1", "d1", Text, 1, 1, "x", WithMetadata("embedding", []float32{0.1, 0.2}))
	emb, ok := f32.Embedding()
	require.True(t, ok)
	require.InDeltaSlice(t, []float64{0.1, 0.2}, emb, 1e-6)

	any64 := New("c2", "d1", Text, 1, 1, "x", WithMetadata("embedding", []any{float64(1.0), float64(2.0)}))
	emb2, ok := any64.Embedding()
	require.True(t, ok)
	require.Equal(t, []float64{1.0, 2.0}, emb2)
}

func TestEmbedding_AbsentReturnsFalse(t *testing.T) {
	c := New("c1", "d1", Text, 1, 1, "x")
	_, ok := c.Embedding()
	require.False(t, ok)
}

func TestMetadata_ReturnsDefensiveCopy(t *testing.T) {
	c := New("c1", "d1", Text, 1, 1, "x", WithMetadata("key", "value"))
	m := c.Metadata()
	m["key"] = "mutated"
	require.Equal(t, "value", c.Metadata()["key"])
}

func TestToMap_OmitsUnsetOptionalFields(t *testing.T) {
	c := New("c1", "d1", Text, 2, 4, "body")
	m := c.ToMap()
	require.Equal(t, "c1", m["chunk_id"])
	require.Equal(t, "d1", m["doc_id"])
	require.Equal(t, 2, m["page_start"])
	require.Equal(t, 4, m["page_end"])
	_, hasFigureID := m["figure_id"]
	require.False(t, hasFigureID)
}

func TestToMap_IncludesSetOptionalFields(t *testing.T) {
	c := New("c1", "d1", TableRow, 1, 1, "row text", WithTableID("t1"), WithCaption("Table 1"))
	m := c.ToMap()
	require.Equal(t, "t1", m["table_id"])
	require.Equal(t, "Table 1", m["caption"])
}

func TestNewExtractedTableRow_PadsUnitsToRowCellsLength(t *testing.T) {
	row := NewExtractedTableRow(0, []string{"Part", "Torque"}, []string{"Bolt A", "45"}, []string{"Nm"}, "Bolt A | 45")
	require.Len(t, row.Units, len(row.RowCells))
	require.Equal(t, "Nm", row.Units[0])
	require.Equal(t, "", row.Units[1])
}
