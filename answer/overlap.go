package answer

import (
	"strings"
	"unicode"
)

var stopWords = map[string]bool{
	"what": true, "how": true, "why": true, "when": true, "where": true,
	"which": true, "who": true, "the": true, "and": true, "for": true,
	"are": true, "with": true, "this": true, "that": true, "does": true,
	"can": true, "should": true, "would": true, "will": true, "not": true,
	"a": true, "an": true, "of": true, "to": true, "in": true, "on": true,
	"is": true, "it": true, "my": true, "i": true,
}

var aliasMap = map[string]string{
	"vs":        "versus",
	"mean":      "description",
	"meaning":   "description",
	"parameter": "setting", "parameters": "settings",
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func singularize(w string) string {
	if len(w) > 4 && strings.HasSuffix(w, "s") {
		return w[:len(w)-1]
	}
	return w
}

// contentTokens tokenizes, stop-filters, alias-normalizes, and
// singularizes, per spec.md §4.J's overlap definition.
func contentTokens(s string) map[string]bool {
	out := map[string]bool{}
	for _, t := range tokenize(s) {
		if t == "" || stopWords[t] {
			continue
		}
		if alias, ok := aliasMap[t]; ok {
			t = alias
		}
		t = singularize(t)
		out[t] = true
	}
	return out
}

// jaccard returns the Jaccard similarity and intersection size of two
// token sets.
func jaccard(a, b map[string]bool) (float64, int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0, 0
	}
	return float64(inter) / float64(union), inter
}

func unionTokens(sets ...map[string]bool) map[string]bool {
	out := map[string]bool{}
	for _, s := range sets {
		for t := range s {
			out[t] = true
		}
	}
	return out
}
