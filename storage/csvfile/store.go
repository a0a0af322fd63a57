// Package csvfile stores staged and output tables as CSV files.
//
// Layout under the store root:
//
//	staged_chunks/filings_staged.csv
//	staged_chunks/filings_staged.manifest.csv
//	staged_chunks/regulations_staged.csv
//	structured_data/filings_structured.csv
//	structured_data/regulations_structured.csv
//
// Each file is append-only. A mutex serializes appends and every row is
// flushed and synced before the append returns.
package csvfile

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/storage"
)

const (
	stagedDir = "staged_chunks"
	outputDir = "structured_data"
)

// StagedPath returns the staged table path for docType under root.
func StagedPath(root string, docType core.DocType) string {
	return filepath.Join(root, stagedDir, docType.Plural()+"_staged.csv")
}

// OutputPath returns the output table path for docType under root.
func OutputPath(root string, docType core.DocType) string {
	return filepath.Join(root, outputDir, docType.Plural()+"_structured.csv")
}

// Store implements storage.Store over a directory of CSV files. Tables are
// opened lazily and cached so every caller shares one writer per file.
type Store struct {
	root string

	mu     sync.Mutex
	staged map[core.DocType]*StagedTable
	output map[core.DocType]*OutputTable
	closed bool
}

var _ storage.Store = (*Store)(nil)

// Open returns a store rooted at root. Files are created on first use.
//
// Returns storage.Store interface to enforce abstraction.
func Open(root string) (storage.Store, error) {
	return newStore(root), nil
}

func newStore(root string) *Store {
	return &Store{
		root:   root,
		staged: make(map[core.DocType]*StagedTable),
		output: make(map[core.DocType]*OutputTable),
	}
}

// StagedTable opens the staged table for docType.
func (s *Store) StagedTable(docType core.DocType) (storage.StagedTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	if t, ok := s.staged[docType]; ok {
		return t, nil
	}
	t, err := OpenStagedTable(StagedPath(s.root, docType), docType)
	if err != nil {
		return nil, err
	}
	s.staged[docType] = t
	return t, nil
}

// OutputTable opens the output table for docType.
func (s *Store) OutputTable(docType core.DocType) (storage.OutputTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	if t, ok := s.output[docType]; ok {
		return t, nil
	}
	t, err := OpenOutputTable(OutputPath(s.root, docType), docType)
	if err != nil {
		return nil, err
	}
	s.output[docType] = t
	return t, nil
}

// SummaryCache returns nil; CSV stores do not cache summaries.
func (s *Store) SummaryCache() storage.SummaryCache {
	return nil
}

// Close closes every table opened through the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, t := range s.staged {
		errs = append(errs, t.Close())
	}
	for _, t := range s.output {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}
