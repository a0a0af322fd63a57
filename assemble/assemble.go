// Package assemble rebuilds documents from their staged chunks.
//
// Rows are grouped by file name, ordered by chunk index and concatenated.
// Documents with missing or repeated indices are never silently accepted:
// each one produces an IntegrityIssue, and by default it is left out of the
// assembled set.
package assemble

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/storage"
)

// IntegrityIssue describes a document whose staged rows are not a dense,
// unique run of indices. It wraps core.ErrIncompleteDocument.
type IntegrityIssue struct {
	FileName   string
	Expected   int   // chunk count from the manifest, 0 when unknown
	Missing    []int // gaps, ascending
	Duplicates []int // indices staged more than once, ascending
}

func (i *IntegrityIssue) Error() string {
	var parts []string
	if len(i.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing chunks %v", i.Missing))
	}
	if len(i.Duplicates) > 0 {
		parts = append(parts, fmt.Sprintf("duplicate chunks %v", i.Duplicates))
	}
	return fmt.Sprintf("%s: %s: %s", core.ErrIncompleteDocument, i.FileName, strings.Join(parts, ", "))
}

func (i *IntegrityIssue) Unwrap() error { return core.ErrIncompleteDocument }

// Result is the outcome of an assembly.
type Result struct {
	Documents []*core.AssembledDocument // ordered by file name
	Issues    []*IntegrityIssue         // ordered by file name
}

// Document returns the assembled document for fileName, or nil.
func (r *Result) Document(fileName string) *core.AssembledDocument {
	for _, doc := range r.Documents {
		if doc.FileName == fileName {
			return doc
		}
	}
	return nil
}

type options struct {
	overlap    int
	incomplete bool
	expected   map[string]int
}

// Option configures Assemble.
type Option func(*options)

// WithOverlap removes up to n runes of text repeated between the end of one
// chunk and the start of the next. Use the chunker's effective overlap.
func WithOverlap(n int) Option {
	return func(o *options) {
		o.overlap = max(n, 0)
	}
}

// WithIncomplete keeps documents that have integrity issues in Documents,
// assembled from the rows that exist. The issues are still reported.
func WithIncomplete() Option {
	return func(o *options) {
		o.incomplete = true
	}
}

// WithExpectedCounts supplies each document's chunk count so trailing gaps
// are detected. Documents present in counts but without rows are reported as
// fully missing.
func WithExpectedCounts(counts map[string]int) Option {
	return func(o *options) {
		o.expected = counts
	}
}

// ExpectedCounts maps staged manifests to the form WithExpectedCounts takes.
func ExpectedCounts(manifests []*core.StagedManifest) map[string]int {
	counts := make(map[string]int, len(manifests))
	for _, m := range manifests {
		counts[m.FileName] = m.ChunkCount
	}
	return counts
}

// Assemble groups chunks into documents.
func Assemble(chunks []*core.Chunk, opts ...Option) *Result {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	groups := make(map[string][]*core.Chunk)
	for _, chunk := range chunks {
		if chunk == nil {
			continue
		}
		groups[chunk.FileName] = append(groups[chunk.FileName], chunk)
	}
	for name := range o.expected {
		if _, ok := groups[name]; !ok {
			groups[name] = nil
		}
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	slices.Sort(names)

	result := &Result{}
	for _, name := range names {
		doc, issue := assembleOne(name, groups[name], o)
		if issue != nil {
			result.Issues = append(result.Issues, issue)
			if !o.incomplete {
				continue
			}
		}
		if doc != nil {
			result.Documents = append(result.Documents, doc)
		}
	}
	return result
}

func assembleOne(name string, rows []*core.Chunk, o options) (*core.AssembledDocument, *IntegrityIssue) {
	slices.SortStableFunc(rows, func(a, b *core.Chunk) int {
		return a.ChunkIndex - b.ChunkIndex
	})

	issue := &IntegrityIssue{FileName: name, Expected: o.expected[name]}
	doc := &core.AssembledDocument{FileName: name}

	next := 0
	for _, row := range rows {
		if n := len(doc.Chunks); n > 0 && doc.Chunks[n-1].Index == row.ChunkIndex {
			if !slices.Contains(issue.Duplicates, row.ChunkIndex) {
				issue.Duplicates = append(issue.Duplicates, row.ChunkIndex)
			}
			continue
		}
		for ; next < row.ChunkIndex; next++ {
			issue.Missing = append(issue.Missing, next)
		}
		next = row.ChunkIndex + 1
		doc.Chunks = append(doc.Chunks, core.IndexedText{Index: row.ChunkIndex, Text: row.ChunkText})
	}
	for ; next < issue.Expected; next++ {
		issue.Missing = append(issue.Missing, next)
	}

	var sb strings.Builder
	prev := ""
	for _, chunk := range doc.Chunks {
		text := chunk.Text
		if o.overlap > 0 && prev != "" {
			text = trimOverlap(prev, text, o.overlap)
		}
		sb.WriteString(text)
		prev = chunk.Text
	}
	doc.FullText = sb.String()

	if len(doc.Chunks) == 0 {
		doc = nil
	}
	if len(issue.Missing) == 0 && len(issue.Duplicates) == 0 {
		return doc, nil
	}
	return doc, issue
}

// trimOverlap drops the longest prefix of next, up to n runes, that is also
// a suffix of prev.
func trimOverlap(prev, next string, n int) string {
	p := []rune(prev)
	q := []rune(next)
	limit := min(n, len(p), len(q))
	for k := limit; k > 0; k-- {
		if slices.Equal(p[len(p)-k:], q[:k]) {
			return string(q[k:])
		}
	}
	return next
}

// FromTable assembles every document in a staged table, using its manifests
// to detect trailing gaps.
func FromTable(ctx context.Context, table storage.StagedTable, opts ...Option) (*Result, error) {
	chunks, err := table.Chunks(ctx)
	if err != nil {
		return nil, err
	}
	manifests, err := table.Manifests(ctx)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithExpectedCounts(ExpectedCounts(manifests))}, opts...)
	return Assemble(chunks, opts...), nil
}
