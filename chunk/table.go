package chunk

// ExtractedTableRow is one row of a table detected by the table row
// extractor. Invariant: len(Units) == len(RowCells).
type ExtractedTableRow struct {
	RowIndex int
	Headers  []string
	RowCells []string
	Units    []string
	RawText  string
}

// ExtractedTable groups the rows detected for one tabular region on a page.
type ExtractedTable struct {
	TableID    string
	PageNumber int
	Rows       []ExtractedTableRow
}

// NewExtractedTableRow builds a row, padding Units to match RowCells length
// so the invariant documented on ExtractedTableRow always holds for values
// produced through this constructor.
func NewExtractedTableRow(rowIndex int, headers, rowCells, units []string, rawText string) ExtractedTableRow {
	padded := make([]string, len(rowCells))
	copy(padded, units)
	return ExtractedTableRow{
		RowIndex: rowIndex,
		Headers:  headers,
		RowCells: rowCells,
		Units:    padded,
		RawText:  rawText,
	}
}
