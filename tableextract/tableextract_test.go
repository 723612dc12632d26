package tableextract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtract_DetectsPipeDelimitedTable(t *testing.T) {
	e := New()
	text := "Intro paragraph, not tabular at all here.\n" +
		"Part | Torque | Unit\n" +
		"Bolt A | 45 | Nm\n" +
		"Bolt B | 60 | Nm\n" +
		"Closing paragraph."

	tables := e.Extract(text, 5, "d1")
	require.Len(t, tables, 1)
	require.Equal(t, 5, tables[0].PageNumber)
	require.Contains(t, tables[0].TableID, "d1")
	require.Len(t, tables[0].Rows, 2)
	require.Equal(t, []string{"Bolt A", "45", "Nm"}, tables[0].Rows[0].RowCells)
}

func TestExtract_DetectsKeyValueBlock(t *testing.T) {
	e := New()
	text := "Operating Pressure: 3000 psi\n" +
		"Flow Rate: 12 gpm\n" +
		"Weight: 450 lbs\n"

	tables := e.Extract(text, 2, "d1")
	require.Len(t, tables, 1)
	require.Len(t, tables[0].Rows, 3)
	require.Equal(t, []string{"Operating Pressure", "3000 psi"}, tables[0].Rows[0].RowCells)
}

func TestExtract_ReturnsNilForProseText(t *testing.T) {
	e := New()
	text := "This section describes routine maintenance procedures for the filter assembly.\n" +
		"Replace the element every 500 operating hours or once per season."

	require.Nil(t, e.Extract(text, 1, "d1"))
}

func TestExtract_ReturnsNilForEmptyText(t *testing.T) {
	e := New()
	require.Nil(t, e.Extract("   \n\n", 1, "d1"))
}

func TestExtract_UsesGenericTableIDWhenDocIDEmpty(t *testing.T) {
	e := New()
	text := "Part | Torque\nBolt A | 45\nBolt B | 60\n"
	tables := e.Extract(text, 1, "")
	require.Len(t, tables, 1)
	require.Contains(t, tables[0].TableID, "table-p")
}

func TestExtract_ExtractsUnitsFromParentheses(t *testing.T) {
	e := New()
	text := "Part | Torque(Nm) | Spec\nBolt A | 45(Nm) | tight\nBolt B | 60(Nm) | snug\n"
	tables := e.Extract(text, 1, "d1")
	require.Len(t, tables, 1)
	require.Equal(t, "Nm", tables[0].Rows[0].Units[1])
}
