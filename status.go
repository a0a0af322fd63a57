package finextract

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/poiesic/finextract/assemble"
	"github.com/poiesic/finextract/core"
)

// Status describes how far one document type has progressed through the
// pipeline.
type Status struct {
	DocType    core.DocType
	Chunks     int                        // rows in the staged table
	Staged     []string                   // files with a manifest, sorted
	Incomplete []*assemble.IntegrityIssue // staged files with gaps or duplicates
	Written    []string                   // files in the output table, sorted
	Pending    []string                   // staged and complete but not yet written
}

// Status inspects the staged and output tables of docType without calling
// any AI service.
func (w *Workspace) Status(ctx context.Context, docType core.DocType) (*Status, error) {
	staged, err := w.store.StagedTable(docType)
	if err != nil {
		return nil, err
	}
	output, err := w.store.OutputTable(docType)
	if err != nil {
		return nil, err
	}

	st := &Status{DocType: docType}
	if st.Chunks, err = staged.Count(ctx); err != nil {
		return nil, err
	}
	manifests, err := staged.Manifests(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range manifests {
		st.Staged = append(st.Staged, m.FileName)
	}
	slices.Sort(st.Staged)

	if st.Written, err = output.FileNames(ctx); err != nil {
		return nil, err
	}
	slices.Sort(st.Written)

	assembled, err := assemble.FromTable(ctx, staged)
	if err != nil {
		return nil, err
	}
	st.Incomplete = assembled.Issues
	for _, doc := range assembled.Documents {
		if _, found := slices.BinarySearch(st.Written, doc.FileName); !found {
			st.Pending = append(st.Pending, doc.FileName)
		}
	}
	return st, nil
}

// Print writes a short human-readable report.
func (s *Status) Print(w io.Writer) {
	fmt.Fprintf(w, "%s:\n", s.DocType.Plural())
	fmt.Fprintf(w, "  staged files:   %d (%d chunks)\n", len(s.Staged), s.Chunks)
	fmt.Fprintf(w, "  incomplete:     %d\n", len(s.Incomplete))
	fmt.Fprintf(w, "  written:        %d\n", len(s.Written))
	fmt.Fprintf(w, "  pending:        %d\n", len(s.Pending))
	for _, issue := range s.Incomplete {
		fmt.Fprintf(w, "    %s\n", issue.Error())
	}
	for _, name := range s.Pending {
		fmt.Fprintf(w, "    pending: %s\n", name)
	}
}
