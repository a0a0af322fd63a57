package search

import "strings"

// Stop words to filter out when checking for verbatim matches
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "by": true, "from": true, "its": true, "our": true, "we": true,
	"or": true, "at": true, "this": true, "which": true, "were": true, "has": true,
}

// verbatimBoost is added to the similarity of a chunk containing every query keyword.
const verbatimBoost = 0.3

// tokenizeAndFilter splits text into lowercase words with punctuation and
// stop words removed. Currency and percent signs are trimmed so "$4.49B" and
// "4.49b" match.
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}$%"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// containsAllQueryWords reports whether every filtered query word appears in the chunk.
func containsAllQueryWords(chunk, query string) bool {
	queryWords := tokenizeAndFilter(query)
	if len(queryWords) == 0 {
		return false
	}

	chunkWords := make(map[string]bool)
	for _, word := range tokenizeAndFilter(chunk) {
		chunkWords[word] = true
	}

	for _, qWord := range queryWords {
		if !chunkWords[qWord] {
			return false
		}
	}
	return true
}
