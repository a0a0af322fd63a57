package staging

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/finextract/core"
)

// ChunkFailure is a chunk that could not be staged.
type ChunkFailure struct {
	FileName   string
	ChunkIndex int
	Err        error
}

func (f ChunkFailure) Error() string {
	return fmt.Sprintf("%s chunk %d: %v", f.FileName, f.ChunkIndex, f.Err)
}

func (f ChunkFailure) Unwrap() error { return f.Err }

// DocumentIssue is a document skipped as a whole.
type DocumentIssue struct {
	FileName string
	Err      error
}

func (d DocumentIssue) Error() string { return d.FileName + ": " + d.Err.Error() }

func (d DocumentIssue) Unwrap() error { return d.Err }

// Report summarizes one staging run.
type Report struct {
	DocType   core.DocType
	Documents int // documents considered

	Staged   int      // chunks appended in this run
	Complete []string // documents fully staged after this run
	Skipped  []string // documents already fully staged before this run
	Partial  []string // documents with at least one chunk still missing

	Empty      []DocumentIssue
	Stale      []DocumentIssue
	Unreadable []DocumentIssue
	Failed     []ChunkFailure

	Duration time.Duration
}

// Err joins every per-document and per-chunk problem, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, issue := range r.Unreadable {
		errs = append(errs, issue)
	}
	for _, issue := range r.Empty {
		errs = append(errs, issue)
	}
	for _, issue := range r.Stale {
		errs = append(errs, issue)
	}
	for _, failure := range r.Failed {
		errs = append(errs, failure)
	}
	return errors.Join(errs...)
}

// Print writes a human readable summary.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Staged %s: %d documents in %s\n", r.DocType.Plural(), r.Documents, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  chunks appended:   %d\n", r.Staged)
	fmt.Fprintf(w, "  complete:          %d\n", len(r.Complete))
	fmt.Fprintf(w, "  already staged:    %d\n", len(r.Skipped))
	fmt.Fprintf(w, "  partial:           %d\n", len(r.Partial))
	fmt.Fprintf(w, "  empty:             %d\n", len(r.Empty))
	fmt.Fprintf(w, "  stale:             %d\n", len(r.Stale))
	fmt.Fprintf(w, "  unreadable:        %d\n", len(r.Unreadable))
	fmt.Fprintf(w, "  failed chunks:     %d\n", len(r.Failed))
	for _, issue := range r.Stale {
		fmt.Fprintf(w, "    stale: %s\n", issue.FileName)
	}
	for _, failure := range r.Failed {
		fmt.Fprintf(w, "    failed: %s\n", failure.Error())
	}
}
