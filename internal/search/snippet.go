package search

import "unicode"

// snippetRadius is the number of characters kept on either side of the
// earliest matched term before expanding to a word boundary.
const snippetRadius = 60

// BuildSnippet locates the earliest occurrence of any term in text
// (case-insensitive) and returns a window of ±snippetRadius characters
// around it, expanded outward to the nearest whitespace so a word is
// never split. All arithmetic works over Unicode scalars (runes), so it
// never panics on multi-byte text and never splits one. "..." is
// prepended/appended when the window doesn't reach the text's edges.
// Returns "" if no term occurs in text.
func BuildSnippet(text string, terms []string) string {
	runes := []rune(text)
	if len(runes) == 0 || len(terms) == 0 {
		return ""
	}

	lowerRunes := make([]rune, len(runes))
	for i, r := range runes {
		lowerRunes[i] = unicode.ToLower(r)
	}

	pos := -1
	matchLen := 0
	for _, term := range terms {
		termRunes := []rune(term)
		idx := indexRunes(lowerRunes, termRunes)
		if idx >= 0 && (pos == -1 || idx < pos) {
			pos = idx
			matchLen = len(termRunes)
		}
	}
	if pos == -1 {
		return ""
	}

	start := pos - snippetRadius
	end := pos + matchLen + snippetRadius
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}

	for start > 0 && !unicode.IsSpace(runes[start-1]) {
		start--
	}
	for end < len(runes) && !unicode.IsSpace(runes[end]) {
		end++
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}
	return snippet
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
