package finextract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/poiesic/finextract/ai"
	"github.com/poiesic/finextract/ai/langchain"
	"github.com/poiesic/finextract/chunker"
	"github.com/poiesic/finextract/config"
	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/extract"
	"github.com/poiesic/finextract/orchestrator"
	"github.com/poiesic/finextract/roster"
	"github.com/poiesic/finextract/search"
	"github.com/poiesic/finextract/staging"
	"github.com/poiesic/finextract/storage"
	"github.com/poiesic/finextract/storage/badger"
	"github.com/poiesic/finextract/storage/csvfile"
	"github.com/poiesic/finextract/summarize"
)

// BadgerDirName is the database directory inside a workspace using the badger store.
const BadgerDirName = "finextract.db"

// Workspace is an opened store plus the AI provider the pipeline calls.
type Workspace struct {
	cfg      *config.Config
	store    storage.Store
	provider ai.AIProvider
	progress io.Writer
	logger   *slog.Logger
}

// WorkspaceOption configures a Workspace.
type WorkspaceOption func(*workspaceOptions)

type workspaceOptions struct {
	store    storage.Store
	provider ai.AIProvider
	progress io.Writer
}

// WithStore uses an already opened store instead of the configured one.
// The workspace takes ownership and closes it.
func WithStore(store storage.Store) WorkspaceOption {
	return func(o *workspaceOptions) {
		o.store = store
	}
}

// WithProvider uses the given AI provider instead of building one from the config.
func WithProvider(provider ai.AIProvider) WorkspaceOption {
	return func(o *workspaceOptions) {
		o.provider = provider
	}
}

// WithProgress reports staging and extraction progress to w.
func WithProgress(w io.Writer) WorkspaceOption {
	return func(o *workspaceOptions) {
		o.progress = w
	}
}

// OpenWorkspace validates cfg, opens its store and creates its AI provider.
func OpenWorkspace(cfg *config.Config, opts ...WorkspaceOption) (*Workspace, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &workspaceOptions{}
	for _, opt := range opts {
		opt(options)
	}

	store := options.store
	if store == nil {
		var err error
		if store, err = OpenStore(cfg); err != nil {
			return nil, err
		}
	}

	provider := options.provider
	if provider == nil {
		var err error
		if provider, err = langchain.NewProvider(cfg.AIConfig()); err != nil {
			store.Close()
			return nil, err
		}
	}

	return &Workspace{
		cfg:      cfg,
		store:    store,
		provider: provider,
		progress: options.progress,
		logger:   slog.Default().With("component", "workspace", "store", cfg.Store),
	}, nil
}

// OpenStore opens the store kind cfg names under cfg.Workspace.
func OpenStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreBadger:
		if err := os.MkdirAll(cfg.Workspace, 0o755); err != nil {
			return nil, err
		}
		return badger.Open(filepath.Join(cfg.Workspace, BadgerDirName))
	case config.StoreCSV, "":
		return csvfile.Open(cfg.Workspace)
	default:
		return nil, fmt.Errorf("%w: unknown store %q", config.ErrInvalidConfig, cfg.Store)
	}
}

// Close closes the provider and the store.
func (w *Workspace) Close() error {
	var errs []error
	if err := w.provider.Close(); err != nil {
		w.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := w.store.Close(); err != nil {
		w.logger.Error("error closing store", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (w *Workspace) Config() *config.Config { return w.cfg }

func (w *Workspace) Store() storage.Store { return w.store }

func (w *Workspace) Provider() ai.AIProvider { return w.provider }

func (w *Workspace) chunker() (*chunker.Chunker, error) {
	return chunker.New(
		chunker.WithMaxChunkSize(w.cfg.Staging.ChunkSize),
		chunker.WithOverlap(w.cfg.Staging.Overlap),
	)
}

// NewStager builds a stager from the staging config. Extra options are
// applied last. The caller must Release it.
func (w *Workspace) NewStager(opts ...staging.Option) (*staging.Stager, error) {
	c, err := w.chunker()
	if err != nil {
		return nil, err
	}
	base := []staging.Option{
		staging.WithChunker(c),
		staging.WithPoolSize(w.cfg.Staging.Workers),
		staging.WithRetryPolicy(w.cfg.RetryPolicy()),
		staging.WithProgress(w.progress),
	}
	return staging.New(w.store, w.provider.Embedder(), append(base, opts...)...)
}

// NewSummarizer builds a summarizer for docType that caches finished
// summaries when the store supports it.
func (w *Workspace) NewSummarizer(docType core.DocType) (*summarize.Summarizer, error) {
	opts := []summarize.Option{
		summarize.WithInputBudget(w.cfg.Summary.InputBudget),
		summarize.WithMaxSummaryRunes(w.cfg.Summary.MaxSummaryRunes),
		summarize.WithMaxTokens(w.cfg.Summary.MaxTokens),
		summarize.WithRetryPolicy(w.cfg.RetryPolicy()),
	}
	if cache := w.store.SummaryCache(); cache != nil {
		opts = append(opts, summarize.WithCache(cache))
	}
	return summarize.New(docType, w.provider.Generator(), opts...)
}

// NewExtractor builds an extractor from the extraction config. retriever is
// required only for the retrieval context mode.
func (w *Workspace) NewExtractor(retriever extract.Retriever) (*extract.Extractor, error) {
	mode, err := w.cfg.ContextMode()
	if err != nil {
		return nil, err
	}
	opts := []extract.Option{
		extract.WithContextMode(mode),
		extract.WithContextBudget(w.cfg.Extraction.ContextBudget),
		extract.WithTopK(w.cfg.Extraction.TopK),
		extract.WithParseAttempts(w.cfg.Extraction.ParseAttempts),
		extract.WithMaxTokens(w.cfg.Extraction.MaxTokens),
	}
	if retriever != nil {
		opts = append(opts, extract.WithRetriever(retriever))
	}
	return extract.New(w.provider.Generator(), opts...)
}

// NewIndex builds a vector index over the staged tables of docTypes, or of
// every document type when none is given.
func (w *Workspace) NewIndex(ctx context.Context, docTypes ...core.DocType) (*search.Index, error) {
	if len(docTypes) == 0 {
		docTypes = core.DocTypes
	}
	tables := make([]storage.StagedTable, 0, len(docTypes))
	for _, dt := range docTypes {
		table, err := w.store.StagedTable(dt)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	monitor := &search.LogMonitor{Logger: slog.Default().With("component", "search")}
	return search.BuildIndex(ctx, tables, w.provider.Embedder(), search.WithMonitor(monitor))
}

// NewOrchestrator builds the extraction orchestrator for docType. The vector
// index is built only for the retrieval context mode, and roster hints are
// attached to filings when the config names a roster. The caller must
// Release it.
func (w *Workspace) NewOrchestrator(ctx context.Context, docType core.DocType, opts ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	staged, err := w.store.StagedTable(docType)
	if err != nil {
		return nil, err
	}
	count, err := staged.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %s", orchestrator.ErrStagedTableEmpty, docType)
	}

	summarizer, err := w.NewSummarizer(docType)
	if err != nil {
		return nil, err
	}

	var retriever extract.Retriever
	if mode, _ := w.cfg.ContextMode(); mode == extract.ContextRetrieval {
		index, err := w.NewIndex(ctx, docType)
		if err != nil {
			return nil, err
		}
		retriever = index
	}
	extractor, err := w.NewExtractor(retriever)
	if err != nil {
		return nil, err
	}

	c, err := w.chunker()
	if err != nil {
		return nil, err
	}
	base := []orchestrator.Option{
		orchestrator.WithPoolSize(w.cfg.Extraction.Workers),
		orchestrator.WithRetryPolicy(w.cfg.RetryPolicy()),
		orchestrator.WithOverlap(c.Overlap()),
		orchestrator.WithIncomplete(w.cfg.Extraction.IncludeIncomplete),
		orchestrator.WithProgress(w.progress),
	}
	if w.cfg.Roster != "" && docType == core.DocTypeFiling {
		r, err := roster.Load(w.cfg.Roster)
		if err != nil {
			return nil, fmt.Errorf("load roster: %w", err)
		}
		w.logger.Info("using roster hints", "path", w.cfg.Roster, "companies", r.Len())
		base = append(base, orchestrator.WithHints(r.Hint))
	}
	return orchestrator.New(w.store, summarizer, extractor, append(base, opts...)...)
}
