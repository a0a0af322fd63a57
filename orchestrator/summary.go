package orchestrator

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/finextract/assemble"
	"github.com/poiesic/finextract/core"
)

// Failure is a document that ended in StateFailed.
type Failure struct {
	FileName string
	State    State // state the document was in when it failed
	Err      error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s (while %s): %v", f.FileName, f.State, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// RunSummary reports one extraction run.
type RunSummary struct {
	RunID   uuid.UUID
	DocType core.DocType

	Documents  int      // documents assembled from the staged table
	Written    []string // records appended in this run, in completion order
	Skipped    []string // records already present before this run
	Failed     []Failure
	Incomplete []*assemble.IntegrityIssue
	Degraded   []string // written with a degraded summary or sentinel record
	Warnings   int      // schema parse warnings across written records

	Duration time.Duration
}

func newRunSummary(docType core.DocType) *RunSummary {
	return &RunSummary{RunID: uuid.New(), DocType: docType}
}

// Err joins every document failure, or returns nil.
func (s *RunSummary) Err() error {
	errs := make([]error, 0, len(s.Failed))
	for _, f := range s.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

func (s *RunSummary) sort() {
	slices.Sort(s.Skipped)
	slices.Sort(s.Degraded)
	slices.SortFunc(s.Failed, func(a, b Failure) int {
		return strings.Compare(a.FileName, b.FileName)
	})
}

// Print writes a human readable summary.
func (s *RunSummary) Print(w io.Writer) {
	fmt.Fprintf(w, "Extraction run %s (%s): %d documents in %s\n",
		s.RunID, s.DocType.Plural(), s.Documents, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  written:           %d\n", len(s.Written))
	fmt.Fprintf(w, "  already written:   %d\n", len(s.Skipped))
	fmt.Fprintf(w, "  failed:            %d\n", len(s.Failed))
	fmt.Fprintf(w, "  incomplete:        %d\n", len(s.Incomplete))
	fmt.Fprintf(w, "  degraded:          %d\n", len(s.Degraded))
	fmt.Fprintf(w, "  field warnings:    %d\n", s.Warnings)
	for _, issue := range s.Incomplete {
		fmt.Fprintf(w, "    incomplete: %s\n", issue.Error())
	}
	for _, name := range s.Degraded {
		fmt.Fprintf(w, "    degraded: %s\n", name)
	}
	for _, f := range s.Failed {
		fmt.Fprintf(w, "    failed: %s\n", f.Error())
	}
}
