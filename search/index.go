package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/finextract/ai"
	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/extract"
	"github.com/poiesic/finextract/storage"
)

const (
	metaFileName   = "file_name"
	metaChunkIndex = "chunk_index"

	// candidateFactor widens the semantic candidate set before verbatim reranking.
	candidateFactor = 3
)

// Hit is one ranked chunk.
type Hit struct {
	DocType    core.DocType
	FileName   string
	ChunkIndex int
	Text       string
	Similarity float32
	Score      float64
	Verbatim   bool
}

// Index is an in-memory vector index over staged chunks, one collection per
// document type. It is safe for concurrent queries once built.
type Index struct {
	db          *chromem.DB
	embedder    ai.Embedder
	concurrency int
	monitor     Monitor
	logger      *slog.Logger
}

var _ extract.Retriever = (*Index)(nil)

// Option is a functional option for configuring an Index.
type Option func(*Index) error

// WithConcurrency sets how many goroutines chromem uses when adding documents.
func WithConcurrency(n int) Option {
	return func(x *Index) error {
		if n < 1 {
			return fmt.Errorf("concurrency must be positive, got %d", n)
		}
		x.concurrency = n
		return nil
	}
}

// WithMonitor traces Search calls.
func WithMonitor(m Monitor) Option {
	return func(x *Index) error {
		if m == nil {
			m = &noopMonitor{}
		}
		x.monitor = m
		return nil
	}
}

// WithLogger sets a custom logger for the index.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		x.logger = logger.With("component", "search")
		return nil
	}
}

// NewIndex creates an empty index whose queries are embedded with embedder.
func NewIndex(embedder ai.Embedder, opts ...Option) (*Index, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	x := &Index{
		db:          chromem.NewDB(),
		embedder:    embedder,
		concurrency: runtime.NumCPU(),
		monitor:     &noopMonitor{},
		logger:      slog.Default().With("component", "search"),
	}
	for _, opt := range opts {
		if err := opt(x); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// BuildIndex creates an index and loads every table into it concurrently.
func BuildIndex(ctx context.Context, tables []storage.StagedTable, embedder ai.Embedder, opts ...Option) (*Index, error) {
	if len(tables) == 0 {
		return nil, ErrTableRequired
	}
	x, err := NewIndex(embedder, opts...)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, table := range tables {
		if table == nil {
			return nil, ErrTableRequired
		}
		g.Go(func() error {
			return x.Load(gctx, table)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return x, nil
}

// embeddingFunc embeds through the index's embedder. chromem only calls it
// for documents added without an embedding.
func (x *Index) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vec, err := x.embedder.EmbedText(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingService, err)
		}
		return vec, nil
	}
}

// Load adds every chunk of table to the collection for its document type.
// Loading the same chunk twice replaces it.
func (x *Index) Load(ctx context.Context, table storage.StagedTable) error {
	docType := table.DocType()
	chunks, err := table.Chunks(ctx)
	if err != nil {
		return fmt.Errorf("load %s chunks: %w", docType, err)
	}
	collection, err := x.db.GetOrCreateCollection(docType.Plural(), nil, x.embeddingFunc())
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		x.logger.Info("staged table is empty", "doc_type", docType)
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID: documentID(c.FileName, c.ChunkIndex),
			Metadata: map[string]string{
				metaFileName:   c.FileName,
				metaChunkIndex: strconv.Itoa(c.ChunkIndex),
			},
			Embedding: c.Embedding,
			Content:   c.ChunkText,
		})
	}
	if err := collection.AddDocuments(ctx, docs, x.concurrency); err != nil {
		return fmt.Errorf("index %s chunks: %w", docType, err)
	}
	x.logger.Info("indexed staged chunks", "doc_type", docType, "chunks", len(docs))
	return nil
}

func documentID(fileName string, index int) string {
	return core.IDFromContent(fileName + "#" + strconv.Itoa(index)).String()
}

// Count returns the number of chunks indexed for docType.
func (x *Index) Count(docType core.DocType) int {
	collection := x.db.GetCollection(docType.Plural(), nil)
	if collection == nil {
		return 0
	}
	return collection.Count()
}

func (x *Index) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	vec, err := x.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingService, err)
	}
	return vec, nil
}

// query runs a nearest-neighbour search, clamping n to the collection size.
func (x *Index) query(ctx context.Context, docType core.DocType, vec []float32, n int, where map[string]string) ([]chromem.Result, error) {
	collection := x.db.GetCollection(docType.Plural(), nil)
	if collection == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, docType)
	}
	if count := collection.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}
	return collection.QueryEmbedding(ctx, vec, n, where, nil)
}

// Retrieve returns up to k chunks of one document nearest to query, in
// ascending chunk order.
func (x *Index) Retrieve(ctx context.Context, docType core.DocType, fileName, query string, k int) ([]core.IndexedText, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := x.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := x.query(ctx, docType, vec, k, map[string]string{metaFileName: fileName})
	if err != nil {
		return nil, err
	}

	out := make([]core.IndexedText, 0, len(results))
	for _, r := range results {
		idx, err := strconv.Atoi(r.Metadata[metaChunkIndex])
		if err != nil {
			return nil, fmt.Errorf("chunk %s: bad index metadata: %w", r.ID, err)
		}
		out = append(out, core.IndexedText{Index: idx, Text: r.Content})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Search ranks chunks across docTypes by similarity to query and returns the
// top maxHits. A chunk containing every query keyword scores an extra 0.3.
// Document types that were never indexed are skipped.
func (x *Index) Search(ctx context.Context, query string, maxHits int, docTypes ...core.DocType) ([]*Hit, error) {
	if maxHits <= 0 {
		return nil, nil
	}
	if len(docTypes) == 0 {
		docTypes = core.DocTypes
	}
	x.monitor.Start(query, len(docTypes))

	vec, err := x.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	var hits []*Hit
	for _, docType := range docTypes {
		results, err := x.query(ctx, docType, vec, maxHits*candidateFactor, nil)
		if errors.Is(err, ErrNotIndexed) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", docType, err)
		}
		for _, r := range results {
			idx, _ := strconv.Atoi(r.Metadata[metaChunkIndex])
			hits = append(hits, &Hit{
				DocType:    docType,
				FileName:   r.Metadata[metaFileName],
				ChunkIndex: idx,
				Text:       r.Content,
				Similarity: r.Similarity,
				Score:      float64(r.Similarity),
			})
		}
	}
	x.monitor.AfterSemanticSearch(len(hits))

	for _, hit := range hits {
		if containsAllQueryWords(hit.Text, query) {
			hit.Score += verbatimBoost
			hit.Verbatim = true
			x.monitor.VerbatimHit(hit)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].FileName != hits[j].FileName {
			return hits[i].FileName < hits[j].FileName
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
	if len(hits) > maxHits {
		hits = hits[:maxHits]
	}
	x.monitor.Finish(hits)
	return hits, nil
}
