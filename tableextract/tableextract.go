// Package tableextract detects tabular blocks in page text and splits
// them into row-level records, grounded in the heuristics of
// SimpleTableExtractorAdapter (pipe/key-value/spacing/numeric-density
// detection) generalized from whole-table to row-level emission per the
// table_row-only resolution recorded in DESIGN.md.
package tableextract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goreason/manuals/chunk"
)

var (
	keyValuePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9\-/()\s]{2,}:\s*[-+]?\d+(?:\.\d+)?\s*(?:[A-Za-z%/]+)?$`)
	colonURLGuard   = regexp.MustCompile(`://`)
	multiSpace      = regexp.MustCompile(`\s{2,}`)
	numericToken    = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)
	alphaToken      = regexp.MustCompile(`[A-Za-z]{2,}`)
	unitGroup       = regexp.MustCompile(`\(([^()]{1,20})\)`)
)

// Extractor detects tables within a page's text.
type Extractor struct{}

// New builds a table row extractor.
func New() *Extractor { return &Extractor{} }

// Extract splits page text into tabular-looking line groups and emits one
// ExtractedTable per group, each containing row-level ExtractedTableRows.
func (e *Extractor) Extract(pageText string, pageNumber int, docID string) []chunk.ExtractedTable {
	lines := nonEmptyTrimmedLines(pageText)
	if len(lines) == 0 {
		return nil
	}

	var groups [][]string
	var current []string
	for _, line := range lines {
		if looksTabular(line) {
			current = append(current, line)
			continue
		}
		if len(current) >= 2 {
			groups = append(groups, current)
		}
		current = nil
	}
	if len(current) >= 2 {
		groups = append(groups, current)
	}

	var tables []chunk.ExtractedTable
	for idx, group := range groups {
		tables = append(tables, buildTable(group, pageNumber, docID, idx+1))
	}
	return tables
}

func nonEmptyTrimmedLines(text string) []string {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		t := strings.TrimSpace(raw)
		if t != "" {
			lines = append(lines, t)
		}
	}
	return lines
}

func looksTabular(line string) bool {
	if line == "" {
		return false
	}
	if strings.Contains(line, "|") {
		return true
	}
	if !colonURLGuard.MatchString(line) && keyValuePattern.MatchString(line) {
		return true
	}
	cols := splitMultiSpace(line)
	if len(cols) >= 3 {
		return true
	}
	numeric := numericToken.FindAllString(line, -1)
	alpha := alphaToken.FindAllString(line, -1)
	return len(numeric) >= 2 && len(alpha) >= 1
}

func splitMultiSpace(line string) []string {
	var out []string
	for _, c := range multiSpace.Split(line, -1) {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func splitRow(line string) []string {
	switch {
	case strings.Contains(line, "|"):
		var out []string
		for _, c := range strings.Split(line, "|") {
			c = strings.TrimSpace(c)
			if c != "" {
				out = append(out, c)
			}
		}
		return out
	case !colonURLGuard.MatchString(line) && strings.Contains(line, ":"):
		parts := strings.SplitN(line, ":", 2)
		return []string{strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])}
	default:
		cols := splitMultiSpace(line)
		if len(cols) > 0 {
			return cols
		}
		return []string{line}
	}
}

func buildTable(group []string, pageNumber int, docID string, tableIndex int) chunk.ExtractedTable {
	rowCells := make([][]string, len(group))
	colonSplitCount := 0
	for i, line := range group {
		cells := splitRow(line)
		rowCells[i] = cells
		if len(cells) == 2 && !strings.Contains(line, "|") {
			colonSplitCount++
		}
	}

	isKeyValue := len(group) > 0 && float64(colonSplitCount)/float64(len(group)) >= 0.8

	var headers []string
	dataStart := 0
	if !isKeyValue && len(rowCells) > 0 {
		first := rowCells[0]
		nonNumericShort := 0
		for _, cell := range first {
			if !numericOnly(cell) && len(cell) < 30 {
				nonNumericShort++
			}
		}
		if len(first) > 0 && float64(nonNumericShort)/float64(len(first)) >= 0.5 {
			headers = first
			dataStart = 1
		}
	}

	var rows []chunk.ExtractedTableRow
	for i := dataStart; i < len(rowCells); i++ {
		cells := rowCells[i]
		units := make([]string, len(cells))
		for j, cell := range cells {
			if m := unitGroup.FindStringSubmatch(cell); m != nil {
				units[j] = m[1]
			}
		}
		rows = append(rows, chunk.NewExtractedTableRow(len(rows), headers, cells, units, group[i]))
	}

	if len(rows) == 0 {
		raw := strings.Join(group, "\n")
		rows = append(rows, chunk.NewExtractedTableRow(0, nil, []string{raw}, []string{""}, raw))
	}

	var tableID string
	if docID != "" {
		tableID = fmt.Sprintf("tbl_%s_%d_%03d", docID, pageNumber, tableIndex)
	} else {
		tableID = fmt.Sprintf("table-p%04d-%03d", pageNumber, tableIndex)
	}

	return chunk.ExtractedTable{
		TableID:    tableID,
		PageNumber: pageNumber,
		Rows:       rows,
	}
}

func numericOnly(s string) bool {
	if s == "" {
		return false
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	return numericToken.FindString(trimmed) == trimmed
}
