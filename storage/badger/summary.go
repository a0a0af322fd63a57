package badger

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/storage"
)

// SummaryCache implements storage.SummaryCache for BadgerDB.
type SummaryCache struct {
	backend *Backend
}

var _ storage.SummaryCache = (*SummaryCache)(nil)

// NewSummaryCache creates a summary cache on backend.
func NewSummaryCache(backend *Backend) *SummaryCache {
	return &SummaryCache{backend: backend}
}

// GetSummary returns the cached summary, or nil, nil if none exists.
func (c *SummaryCache) GetSummary(ctx context.Context, docType core.DocType, fileName string) (*core.DocumentSummary, error) {
	value, err := c.backend.get(makeSummaryKey(docType, fileName))
	if err != nil || value == nil {
		return nil, err
	}

	summary, err := storage.UnmarshalSummary(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return summary, nil
}

// PutSummary stores or replaces a summary.
func (c *SummaryCache) PutSummary(ctx context.Context, summary *core.DocumentSummary) error {
	value := storage.MarshalSummary(summary)
	return c.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeSummaryKey(summary.DocType, summary.FileName), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
