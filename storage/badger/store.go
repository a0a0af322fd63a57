package badger

import (
	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/storage"
)

// Store implements storage.Store on a single BadgerDB database. Every table
// shares the backend; tables are distinguished by key prefix.
type Store struct {
	backend *Backend
	cache   *SummaryCache
}

var _ storage.Store = (*Store)(nil)

// Open opens or creates a Badger store at path.
//
// Returns storage.Store interface to enforce abstraction.
func Open(path string) (storage.Store, error) {
	return open(path, false)
}

func open(path string, inMemory bool) (*Store, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	return &Store{backend: backend, cache: NewSummaryCache(backend)}, nil
}

// StagedTable returns the staged table for docType.
func (s *Store) StagedTable(docType core.DocType) (storage.StagedTable, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	return NewStagedTable(s.backend, docType)
}

// OutputTable returns the output table for docType.
func (s *Store) OutputTable(docType core.DocType) (storage.OutputTable, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	return NewOutputTable(s.backend, docType)
}

// SummaryCache returns the summary cache backed by the same database.
func (s *Store) SummaryCache() storage.SummaryCache {
	return s.cache
}

// Close closes the database.
func (s *Store) Close() error {
	if s.backend.IsClosed() {
		return nil
	}
	return s.backend.Close()
}
