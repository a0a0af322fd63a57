package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/storage"
)

// OutputTable implements storage.OutputTable for BadgerDB.
// Records are stored as their column values in schema order.
type OutputTable struct {
	backend *Backend
	docType core.DocType
}

var _ storage.OutputTable = (*OutputTable)(nil)

// NewOutputTable creates an output table for docType on backend.
func NewOutputTable(backend *Backend, docType core.DocType) (*OutputTable, error) {
	if _, err := core.Columns(docType); err != nil {
		return nil, err
	}
	return &OutputTable{backend: backend, docType: docType}, nil
}

func (t *OutputTable) DocType() core.DocType { return t.docType }

// Close is a no-op; the backend is owned by the Store.
func (t *OutputTable) Close() error { return nil }

// AppendRecord validates and stores a record keyed by its file name.
func (t *OutputTable) AppendRecord(ctx context.Context, record core.Record) error {
	if err := core.ValidateRecord(record); err != nil {
		return err
	}
	if record.DocType() != t.docType {
		return fmt.Errorf("%w: %s table got %s record", storage.ErrDocTypeMismatch, t.docType, record.DocType())
	}

	value := storage.MarshalValues(record.Values())
	key := makeOutputKey(t.docType, record.SourceFile())
	err := t.backend.WithTx(func(tx *badger.Txn) error {
		found, err := exists(tx, key)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, record.SourceFile())
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, record.SourceFile())
	}
	return err
}

// Contains reports whether a record for fileName exists.
func (t *OutputTable) Contains(ctx context.Context, fileName string) (bool, error) {
	var found bool
	err := t.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		found, err = exists(tx, makeOutputKey(t.docType, fileName))
		return err
	}, false)
	return found, err
}

// FileNames returns the file names of every stored record, sorted.
func (t *OutputTable) FileNames(ctx context.Context) ([]string, error) {
	prefix := makeTablePrefix(outputRecordPrefix, t.docType)
	var names []string
	err := t.backend.scan(prefix, false, func(key, _ []byte) error {
		names = append(names, string(key[len(prefix):]))
		return nil
	})
	return names, err
}

// Records returns every stored record, ordered by file name.
func (t *OutputTable) Records(ctx context.Context) ([]core.Record, error) {
	var records []core.Record
	err := t.backend.scan(makeTablePrefix(outputRecordPrefix, t.docType), true, func(key, value []byte) error {
		values, err := storage.UnmarshalValues(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		record, err := core.RecordFromValues(t.docType, values)
		if err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	return records, err
}
