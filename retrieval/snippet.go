package retrieval

import "strings"

const snippetMaxLen = 420

// buildSnippet collapses whitespace and truncates to snippetMaxLen
// characters with an ellipsis, per spec.md §3 EvidenceHit.snippet.
func buildSnippet(text string) string {
	collapsed := collapseWhitespace(text)
	r := []rune(collapsed)
	if len(r) <= snippetMaxLen {
		return collapsed
	}
	return string(r[:snippetMaxLen-1]) + "…"
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
