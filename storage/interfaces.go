package storage

import (
	"context"

	"github.com/poiesic/finextract/core"
)

// StagedTable is the append-only table of embedded chunks for one document type.
// Implementations must be thread-safe.
type StagedTable interface {
	// DocType is the document type this table stores.
	DocType() core.DocType

	// RecordManifest stores a document's manifest. Recording an identical
	// manifest again is a no-op; a different one fails with ErrManifestConflict.
	RecordManifest(ctx context.Context, manifest *core.StagedManifest) error

	// Manifest returns the manifest for fileName, or nil, nil if none exists.
	Manifest(ctx context.Context, fileName string) (*core.StagedManifest, error)

	// Manifests returns every manifest in the table.
	Manifests(ctx context.Context) ([]*core.StagedManifest, error)

	// AppendChunk appends one row. A row with the same (file name, chunk index)
	// fails with ErrDuplicateKey; existing rows are never rewritten.
	AppendChunk(ctx context.Context, chunk *core.Chunk) error

	// ChunkIndexes returns the indices already staged for fileName, ascending.
	ChunkIndexes(ctx context.Context, fileName string) ([]int, error)

	// Chunks returns every row in the table.
	Chunks(ctx context.Context) ([]*core.Chunk, error)

	// Count returns the number of rows.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the table.
	Close() error
}

// OutputTable is the append-only table of structured records for one document type.
// Implementations must be thread-safe.
type OutputTable interface {
	// DocType is the document type this table stores.
	DocType() core.DocType

	// AppendRecord validates and appends one record. A record whose file name
	// is already present fails with ErrDuplicateKey.
	AppendRecord(ctx context.Context, record core.Record) error

	// Contains reports whether a record for fileName exists.
	Contains(ctx context.Context, fileName string) (bool, error)

	// FileNames returns the file names of every stored record.
	FileNames(ctx context.Context) ([]string, error)

	// Records returns every stored record.
	Records(ctx context.Context) ([]core.Record, error)

	// Close releases resources held by the table.
	Close() error
}

// SummaryCache stores finished document summaries keyed by (doc type, file name).
// Implementations must be thread-safe.
type SummaryCache interface {
	// GetSummary returns the cached summary, or nil, nil if none exists.
	GetSummary(ctx context.Context, docType core.DocType, fileName string) (*core.DocumentSummary, error)

	// PutSummary stores or replaces a summary.
	PutSummary(ctx context.Context, summary *core.DocumentSummary) error
}

// Store opens the tables of one workspace.
type Store interface {
	// StagedTable returns the staged table for docType, creating it if needed.
	StagedTable(docType core.DocType) (StagedTable, error)

	// OutputTable returns the output table for docType, creating it if needed.
	OutputTable(docType core.DocType) (OutputTable, error)

	// SummaryCache returns the store's summary cache, or nil if the backend has none.
	SummaryCache() SummaryCache

	// Close closes every table opened through the store.
	Close() error
}
