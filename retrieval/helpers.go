package retrieval

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

var foldCaser = cases.Fold()

// lowerFold case-folds a string for matching purposes, using a Unicode
// case folder rather than a byte-wise ToLower so accented equipment
// terminology normalizes correctly.
func lowerFold(s string) string {
	return foldCaser.String(s)
}

var tableTerms = []string{"table", "spec", "specification", "torque", "clearance", "value", "dimension", "rating"}
var diagramTerms = []string{"diagram", "figure", "schematic", "wiring", "drawing", "layout", "terminal", "connector"}

// detectIntent classifies a query as table, diagram, or general by lowercase
// substring matching against fixed term sets, per spec.md §4.G step 3.
func detectIntent(query string) string {
	lower := lowerFold(query)
	tableHits, diagramHits := 0, 0
	for _, t := range tableTerms {
		if strings.Contains(lower, t) {
			tableHits++
		}
	}
	for _, t := range diagramTerms {
		if strings.Contains(lower, t) {
			diagramHits++
		}
	}
	switch {
	case tableHits > 0 && tableHits >= diagramHits:
		return "table"
	case diagramHits > 0:
		return "diagram"
	default:
		return "general"
	}
}

var aliasMap = map[string]string{
	"vs":        "versus",
	"mean":      "description",
	"meaning":   "description",
	"parameter": "setting",
	"parameters": "settings",
}

// expandQuery lowercases and tokenizes the query, applies the alias map, and
// appends comparison terms for comparison-shaped queries, per §4.G step 4.
func expandQuery(query string) []string {
	lower := lowerFold(query)
	words := strings.Fields(lower)

	seen := map[string]bool{}
	var out []string
	add := func(w string) {
		if w == "" || seen[w] {
			return
		}
		seen[w] = true
		out = append(out, w)
	}
	for _, w := range words {
		add(w)
		if alias, ok := aliasMap[w]; ok {
			add(alias)
		}
	}
	if isComparisonQuery(lower) {
		add("difference")
		add("comparison")
	}
	return out
}

// isComparisonQuery reports whether the query looks like a comparison.
func isComparisonQuery(lower string) bool {
	return strings.Contains(lower, "compare") ||
		strings.Contains(lower, " vs ") ||
		strings.Contains(lower, "difference")
}

var anchorStopWords = map[string]bool{
	"what": true, "how": true, "compare": true, "mode": true,
	"the": true, "and": true, "for": true, "are": true, "with": true,
	"this": true, "that": true, "does": true, "which": true, "when": true,
	"where": true, "why": true, "can": true, "should": true, "would": true,
}

// anchorTerms extracts word tokens of length >= 3, singularizes them, and
// filters stop words, per §4.G step 5.
func anchorTerms(query string) []string {
	words := tokenize(query)
	seen := map[string]bool{}
	var out []string
	for _, w := range words {
		if len(w) < 3 || anchorStopWords[w] {
			continue
		}
		s := singularize(w)
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// singularize strips a trailing "s" when the word is long enough that
// doing so is unlikely to mangle a genuinely singular word.
func singularize(w string) string {
	if len(w) > 4 && strings.HasSuffix(w, "s") {
		return w[:len(w)-1]
	}
	return w
}

var tokenSplitter = func(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
}

func tokenize(s string) []string {
	lower := lowerFold(s)
	return strings.FieldsFunc(lower, tokenSplitter)
}

// anchorCoverage returns |anchors ∩ tokens(text)| / |anchors|, or 1.0 when
// there are no anchors, per §4.G step 8.
func anchorCoverage(anchors []string, text string) float64 {
	if len(anchors) == 0 {
		return 1.0
	}
	tokenSet := map[string]bool{}
	for _, t := range tokenize(text) {
		tokenSet[singularize(t)] = true
	}
	hit := 0
	for _, a := range anchors {
		if tokenSet[a] {
			hit++
		}
	}
	return float64(hit) / float64(len(anchors))
}

// minMaxNormalize scales scores into [0,1]. A constant input maps every
// entry to 1.0, per §4.G step 7 / §8 invariant.
func minMaxNormalize(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return scores
	}
	min, max := minMax(scores)
	out := make(map[string]float64, len(scores))
	if max == min {
		for k := range scores {
			out[k] = 1.0
		}
		return out
	}
	for k, v := range scores {
		out[k] = (v - min) / (max - min)
	}
	return out
}

func minMax(scores map[string]float64) (float64, float64) {
	first := true
	var min, max float64
	for _, v := range scores {
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func round6(v float64) float64 {
	return roundN(v, 1000000)
}

func roundN(v, n float64) float64 {
	if v >= 0 {
		return float64(int64(v*n+0.5)) / n
	}
	return float64(int64(v*n-0.5)) / n
}
