package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/finextract/ai"
	"github.com/poiesic/finextract/chunker"
	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/progress"
	"github.com/poiesic/finextract/retry"
	"github.com/poiesic/finextract/source"
	"github.com/poiesic/finextract/storage"
)

// DefaultPoolSize is the number of concurrent embedding calls.
const DefaultPoolSize = 5

// Stager chunks, embeds and appends documents to a staged table.
type Stager struct {
	store    storage.Store
	embedder ai.Embedder
	chunker  *chunker.Chunker
	loader   *source.Loader
	pool     *ants.Pool
	policy   retry.Policy
	progress io.Writer
	logger   *slog.Logger
}

// Option configures a Stager.
type Option func(*Stager) error

// WithPoolSize sets the number of concurrent embedding calls.
// Default is DefaultPoolSize.
func WithPoolSize(size int) Option {
	return func(s *Stager) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if s.pool != nil {
			s.pool.Release()
		}
		s.pool = pool
		return nil
	}
}

// WithChunker replaces the default chunker.
func WithChunker(c *chunker.Chunker) Option {
	return func(s *Stager) error {
		if c != nil {
			s.chunker = c
		}
		return nil
	}
}

// WithLoader replaces the loader used by StageDir.
func WithLoader(l *source.Loader) Option {
	return func(s *Stager) error {
		if l != nil {
			s.loader = l
		}
		return nil
	}
}

// WithRetryPolicy sets the policy applied to each embedding call.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(s *Stager) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		s.policy = policy
		return nil
	}
}

// WithProgress reports chunk progress to w. Nil disables reporting.
func WithProgress(w io.Writer) Option {
	return func(s *Stager) error {
		s.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stager) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a Stager writing to store's staged tables.
func New(store storage.Store, embedder ai.Embedder, opts ...Option) (*Stager, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	c, err := chunker.New()
	if err != nil {
		return nil, err
	}

	s := &Stager{
		store:    store,
		embedder: embedder,
		chunker:  c,
		policy:   retry.DefaultPolicy(),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(s); optErr != nil {
			s.Release()
			return nil, optErr
		}
	}

	if s.pool == nil {
		pool, err := ants.NewPool(DefaultPoolSize)
		if err != nil {
			return nil, err
		}
		s.pool = pool
	}
	if s.loader == nil {
		loader, err := source.NewLoader(source.WithLogger(s.logger))
		if err != nil {
			s.Release()
			return nil, err
		}
		s.loader = loader
	}
	s.logger = s.logger.With("component", "stager")
	return s, nil
}

// Release releases the worker pool. The Stager must not be used afterwards.
func (s *Stager) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// StageDir loads every supported file under root and stages it. Files that
// cannot be read are reported as unreadable; a missing root is fatal.
func (s *Stager) StageDir(ctx context.Context, docType core.DocType, root string) (*Report, error) {
	docs, loadErr := s.loader.LoadAll(ctx, root)
	if loadErr != nil && docs == nil {
		return nil, loadErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report, err := s.Stage(ctx, docType, docs)
	if report != nil && loadErr != nil {
		for _, e := range unjoin(loadErr) {
			name := root
			var loadFailure *source.LoadError
			if errors.As(e, &loadFailure) {
				name = loadFailure.FileName
			}
			report.Unreadable = append(report.Unreadable, DocumentIssue{FileName: name, Err: e})
		}
	}
	return report, err
}

func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// chunkTask is one chunk still missing from the staged table.
type chunkTask struct {
	fileName string
	index    int
	text     string
}

// docPlan tracks how many chunks of a document are still outstanding.
type docPlan struct {
	fileName string
	total    int
	missing  int
	failed   int
}

// Stage appends the missing chunks of docs to the docType staged table. The
// returned error is non-nil only for fatal conditions such as an unusable
// table or a cancelled context; per-document and per-chunk problems are in
// the report.
func (s *Stager) Stage(ctx context.Context, docType core.DocType, docs []core.Document) (*Report, error) {
	start := time.Now()
	table, err := s.store.StagedTable(docType)
	if err != nil {
		return nil, err
	}

	report := &Report{DocType: docType, Documents: len(docs)}
	tasks, plans, err := s.plan(ctx, table, docType, docs, report)
	if err != nil {
		return report, err
	}

	s.logger.Info("staging documents", "doc_type", docType, "documents", len(docs), "chunks", len(tasks))

	tracker := progress.New(s.progress, "Staging "+docType.Plural(), len(tasks), 10).WithUnit("chunks")
	tracker.Start()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	record := func(task chunkTask, err error) {
		mu.Lock()
		defer mu.Unlock()
		plan := plans[task.fileName]
		if err != nil {
			plan.failed++
			report.Failed = append(report.Failed, ChunkFailure{FileName: task.fileName, ChunkIndex: task.index, Err: err})
			return
		}
		plan.missing--
		report.Staged++
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := s.pool.Submit(func() {
			defer wg.Done()
			defer tracker.Increment(1)
			record(task, s.stageChunk(ctx, table, task))
		})
		if submitErr != nil {
			wg.Done()
			record(task, submitErr)
		}
	}
	wg.Wait()
	tracker.Finish()

	for _, plan := range sortedPlans(plans) {
		if plan.missing == 0 {
			report.Complete = append(report.Complete, plan.fileName)
		} else {
			report.Partial = append(report.Partial, plan.fileName)
		}
	}
	slices.SortFunc(report.Failed, func(a, b ChunkFailure) int {
		if a.FileName != b.FileName {
			if a.FileName < b.FileName {
				return -1
			}
			return 1
		}
		return a.ChunkIndex - b.ChunkIndex
	})
	report.Duration = time.Since(start)

	s.logger.Info("staging finished",
		"doc_type", docType,
		"staged", report.Staged,
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		"duration", report.Duration)

	return report, ctx.Err()
}

// plan chunks every document, records manifests and returns the chunks that
// still need staging.
func (s *Stager) plan(ctx context.Context, table storage.StagedTable, docType core.DocType, docs []core.Document, report *Report) ([]chunkTask, map[string]*docPlan, error) {
	var tasks []chunkTask
	plans := make(map[string]*docPlan)
	seen := make(map[string]bool, len(docs))

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if seen[doc.FileName] {
			s.logger.Warn("ignoring duplicate document", "file", doc.FileName)
			continue
		}
		seen[doc.FileName] = true

		chunks, err := s.chunker.Chunk(doc.Text)
		if errors.Is(err, core.ErrEmptyDocument) {
			s.logger.Warn("skipping empty document", "file", doc.FileName)
			report.Empty = append(report.Empty, DocumentIssue{FileName: doc.FileName, Err: err})
			continue
		}
		if err != nil {
			return nil, nil, err
		}

		manifest := &core.StagedManifest{
			DocType:    docType,
			FileName:   doc.FileName,
			ChunkCount: len(chunks),
			ContentID:  core.IDFromContent(doc.Text),
		}
		existing, err := table.Manifest(ctx, doc.FileName)
		if err != nil {
			return nil, nil, err
		}
		if existing != nil && (existing.ContentID != manifest.ContentID || existing.ChunkCount != manifest.ChunkCount) {
			s.logger.Warn("skipping stale document", "file", doc.FileName,
				"staged_chunks", existing.ChunkCount, "current_chunks", manifest.ChunkCount)
			report.Stale = append(report.Stale, DocumentIssue{
				FileName: doc.FileName,
				Err:      fmt.Errorf("%w: content changed since first staged", ErrStaleManifest),
			})
			continue
		}
		if existing == nil {
			if err := table.RecordManifest(ctx, manifest); err != nil {
				return nil, nil, err
			}
		}

		staged, err := table.ChunkIndexes(ctx, doc.FileName)
		if err != nil {
			return nil, nil, err
		}
		present := make(map[int]bool, len(staged))
		for _, idx := range staged {
			present[idx] = true
		}

		plan := &docPlan{fileName: doc.FileName, total: len(chunks)}
		for i, text := range chunks {
			if present[i] {
				continue
			}
			plan.missing++
			tasks = append(tasks, chunkTask{fileName: doc.FileName, index: i, text: text})
		}
		if plan.missing == 0 {
			s.logger.Debug("document already staged", "file", doc.FileName, "chunks", len(chunks))
			report.Skipped = append(report.Skipped, doc.FileName)
			continue
		}
		plans[doc.FileName] = plan
	}
	return tasks, plans, nil
}

// stageChunk embeds one chunk under the retry policy and appends its row.
func (s *Stager) stageChunk(ctx context.Context, table storage.StagedTable, task chunkTask) error {
	var embedding []float32
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		vec, err := s.embedder.EmbedText(ctx, task.text)
		if err != nil {
			return err
		}
		embedding = vec
		return nil
	})
	if err != nil {
		s.logger.Error("embedding failed", "file", task.fileName, "chunk", task.index, "err", err)
		return fmt.Errorf("%w: %w", core.ErrEmbeddingService, err)
	}

	err = table.AppendChunk(ctx, &core.Chunk{
		FileName:   task.fileName,
		ChunkIndex: task.index,
		ChunkText:  task.text,
		Embedding:  embedding,
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		// Another run staged it first.
		return nil
	}
	return err
}

func sortedPlans(plans map[string]*docPlan) []*docPlan {
	out := make([]*docPlan, 0, len(plans))
	for _, plan := range plans {
		out = append(out, plan)
	}
	slices.SortFunc(out, func(a, b *docPlan) int {
		switch {
		case a.fileName < b.fileName:
			return -1
		case a.fileName > b.fileName:
			return 1
		}
		return 0
	})
	return out
}
