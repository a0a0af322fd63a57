package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/finextract/assemble"
	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/extract"
	"github.com/poiesic/finextract/progress"
	"github.com/poiesic/finextract/retry"
	"github.com/poiesic/finextract/storage"
)

// DefaultPoolSize is the number of documents processed concurrently.
const DefaultPoolSize = 4

// Summarizer condenses one assembled document. *summarize.Summarizer
// satisfies it.
type Summarizer interface {
	DocType() core.DocType
	Summarize(ctx context.Context, doc *core.AssembledDocument) (*core.DocumentSummary, error)
}

// Extractor produces a record from a summary. *extract.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, req *extract.Request) (*extract.Result, error)
}

// HintFunc returns reference data for a file name, or nil.
type HintFunc func(fileName string) *extract.Hint

// Orchestrator runs the extraction state machine for one document type.
type Orchestrator struct {
	store      storage.Store
	summarizer Summarizer
	extractor  Extractor
	pool       *ants.Pool
	policy     retry.Policy
	hints      HintFunc
	overlap    int
	incomplete bool
	progress   io.Writer
	logger     *slog.Logger

	writeMu sync.Mutex

	stateMu sync.Mutex
	states  map[string]State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithPoolSize sets how many documents are processed at once.
// Default is DefaultPoolSize.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			return fmt.Errorf("pool size must be positive, got %d", size)
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if o.pool != nil {
			o.pool.Release()
		}
		o.pool = pool
		return nil
	}
}

// WithRetryPolicy sets the policy applied to extraction calls.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(o *Orchestrator) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		o.policy = policy
		return nil
	}
}

// WithHints attaches reference data to each extraction request.
func WithHints(fn HintFunc) Option {
	return func(o *Orchestrator) error {
		o.hints = fn
		return nil
	}
}

// WithOverlap tells the assembler how many runes adjacent chunks share.
func WithOverlap(runes int) Option {
	return func(o *Orchestrator) error {
		if runes < 0 {
			return fmt.Errorf("overlap must not be negative, got %d", runes)
		}
		o.overlap = runes
		return nil
	}
}

// WithIncomplete processes documents with staging gaps from the rows that
// exist instead of skipping them. They are still reported as incomplete.
func WithIncomplete(enabled bool) Option {
	return func(o *Orchestrator) error {
		o.incomplete = enabled
		return nil
	}
}

// WithProgress reports document progress to w. Nil disables reporting.
func WithProgress(w io.Writer) Option {
	return func(o *Orchestrator) error {
		o.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// New creates an Orchestrator for the summarizer's document type.
func New(store storage.Store, summarizer Summarizer, extractor Extractor, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if summarizer == nil {
		return nil, ErrSummarizerRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}

	o := &Orchestrator{
		store:      store,
		summarizer: summarizer,
		extractor:  extractor,
		policy:     retry.DefaultPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			o.Release()
			return nil, err
		}
	}
	if o.pool == nil {
		pool, err := ants.NewPool(DefaultPoolSize)
		if err != nil {
			return nil, err
		}
		o.pool = pool
	}
	o.logger = o.logger.With("component", "orchestrator", "doc_type", summarizer.DocType())
	return o, nil
}

// Release releases the worker pool. The Orchestrator must not be used afterwards.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}

// State returns the state of fileName in the current or last run.
func (o *Orchestrator) State(fileName string) (State, bool) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	s, ok := o.states[fileName]
	return s, ok
}

func (o *Orchestrator) setState(fileName string, s State) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	o.states[fileName] = s
}

// Run extracts every staged document not yet in the output table. The error
// is non-nil only for fatal conditions: an empty staged table, an unusable
// table or a cancelled context. Document failures are in the summary.
func (o *Orchestrator) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	docType := o.summarizer.DocType()

	staged, err := o.store.StagedTable(docType)
	if err != nil {
		return nil, err
	}
	count, err := staged.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %s", ErrStagedTableEmpty, docType)
	}
	output, err := o.store.OutputTable(docType)
	if err != nil {
		return nil, err
	}

	opts := []assemble.Option{assemble.WithOverlap(o.overlap)}
	if o.incomplete {
		opts = append(opts, assemble.WithIncomplete())
	}
	assembled, err := assemble.FromTable(ctx, staged, opts...)
	if err != nil {
		return nil, err
	}

	summary := newRunSummary(docType)
	summary.Documents = len(assembled.Documents)
	summary.Incomplete = assembled.Issues
	for _, issue := range assembled.Issues {
		o.logger.Warn("staged document is incomplete", "file", issue.FileName,
			"missing", issue.Missing, "duplicates", issue.Duplicates)
	}

	o.stateMu.Lock()
	o.states = make(map[string]State, len(assembled.Documents))
	o.stateMu.Unlock()

	var pending []*core.AssembledDocument
	for _, doc := range assembled.Documents {
		done, err := output.Contains(ctx, doc.FileName)
		if err != nil {
			return nil, err
		}
		if done {
			summary.Skipped = append(summary.Skipped, doc.FileName)
			continue
		}
		o.setState(doc.FileName, StatePending)
		pending = append(pending, doc)
	}

	o.logger.Info("extracting documents", "run_id", summary.RunID,
		"documents", summary.Documents, "pending", len(pending), "skipped", len(summary.Skipped))

	tracker := progress.New(o.progress, "Extracting "+docType.Plural(), len(pending), 1).WithUnit("documents")
	tracker.Start()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	record := func(out outcome) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case out.failure != nil:
			summary.Failed = append(summary.Failed, *out.failure)
		case out.duplicate:
			summary.Skipped = append(summary.Skipped, out.fileName)
		default:
			summary.Written = append(summary.Written, out.fileName)
			summary.Warnings += out.warnings
			if out.degraded {
				summary.Degraded = append(summary.Degraded, out.fileName)
			}
		}
	}

	for _, doc := range pending {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := o.pool.Submit(func() {
			defer wg.Done()
			defer tracker.Increment(1)
			record(o.process(ctx, output, doc))
		})
		if submitErr != nil {
			wg.Done()
			o.setState(doc.FileName, StateFailed)
			record(outcome{fileName: doc.FileName, failure: &Failure{FileName: doc.FileName, State: StatePending, Err: submitErr}})
		}
	}
	wg.Wait()
	tracker.Finish()

	summary.sort()
	summary.Duration = time.Since(start)
	o.logger.Info("extraction finished", "run_id", summary.RunID,
		"written", len(summary.Written),
		"failed", len(summary.Failed),
		"skipped", len(summary.Skipped),
		"degraded", len(summary.Degraded),
		"duration", summary.Duration)

	return summary, ctx.Err()
}

// outcome is the terminal result of one document.
type outcome struct {
	fileName  string
	failure   *Failure
	duplicate bool
	degraded  bool
	warnings  int
}

func (o *Orchestrator) fail(fileName string, state State, err error) outcome {
	o.setState(fileName, StateFailed)
	o.logger.Error("document failed", "file", fileName, "state", state, "err", err)
	return outcome{fileName: fileName, failure: &Failure{FileName: fileName, State: state, Err: err}}
}

// process runs one document from Pending to a terminal state.
func (o *Orchestrator) process(ctx context.Context, output storage.OutputTable, doc *core.AssembledDocument) outcome {
	name := doc.FileName
	if err := ctx.Err(); err != nil {
		return o.fail(name, StatePending, err)
	}

	o.setState(name, StateSummarizing)
	docSummary, err := o.summarizer.Summarize(ctx, doc)
	if err != nil {
		return o.fail(name, StateSummarizing, err)
	}

	o.setState(name, StateExtracting)
	req := &extract.Request{
		FileName: name,
		DocType:  docSummary.DocType,
		Summary:  docSummary,
		Document: doc,
	}
	if o.hints != nil {
		req.Hint = o.hints(name)
	}

	var result *extract.Result
	err = retry.Do(ctx, o.policy, func(ctx context.Context) error {
		res, err := o.extractor.Extract(ctx, req)
		if err != nil {
			if !errors.Is(err, core.ErrExtractionService) {
				return retry.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return o.fail(name, StateExtracting, err)
	}

	o.writeMu.Lock()
	err = output.AppendRecord(ctx, result.Record)
	o.writeMu.Unlock()
	if errors.Is(err, storage.ErrDuplicateKey) {
		o.logger.Info("record already written by another run", "file", name)
		o.setState(name, StateWritten)
		return outcome{fileName: name, duplicate: true}
	}
	if err != nil {
		return o.fail(name, StateExtracting, fmt.Errorf("write record: %w", err))
	}

	o.setState(name, StateWritten)
	o.logger.Debug("record written", "file", name, "attempts", result.Attempts, "warnings", len(result.Warnings))
	return outcome{
		fileName: name,
		degraded: docSummary.Degraded || result.Degraded,
		warnings: len(result.Warnings),
	}
}
