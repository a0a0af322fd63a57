package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/finextract/core"
)

// ContextMode selects what document text accompanies the summary in the
// extraction prompt.
type ContextMode string

const (
	// ContextSummary sends the summary alone.
	ContextSummary ContextMode = "summary"
	// ContextChunks adds the document's leading chunks up to the context budget.
	ContextChunks ContextMode = "summary+chunks"
	// ContextSections adds the cover page and Items 1, 1A and 7 of a filing.
	// Regulations fall back to ContextChunks.
	ContextSections ContextMode = "summary+sections"
	// ContextRetrieval adds the chunks nearest to a field-oriented query.
	ContextRetrieval ContextMode = "summary+retrieval"
)

// ContextModes lists every supported mode.
var ContextModes = []ContextMode{ContextSummary, ContextChunks, ContextSections, ContextRetrieval}

// ParseContextMode converts user input into a ContextMode.
func ParseContextMode(s string) (ContextMode, error) {
	mode := ContextMode(strings.ToLower(strings.TrimSpace(s)))
	for _, m := range ContextModes {
		if m == mode {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidContextMode, s)
}

// Retriever finds the staged chunks of one document most similar to a query.
type Retriever interface {
	Retrieve(ctx context.Context, docType core.DocType, fileName, query string, k int) ([]core.IndexedText, error)
}

// retrievalQueries describe what the record needs; they steer similarity search.
var retrievalQueries = map[core.DocType]string{
	core.DocTypeFiling: "total revenue net income operating cash flow capital expenditures diluted earnings per share; " +
		"risk factors; competitors and competition; suppliers and partners; acquisitions and investments",
	core.DocTypeRegulation: "obligations and requirements; entry into force, deadlines and transition period; " +
		"scope and affected sectors; penalties and compliance costs",
}
