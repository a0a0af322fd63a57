package csvfile

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/storage"
)

// OutputTable implements storage.OutputTable as a CSV file whose header is
// the document type's schema columns.
type OutputTable struct {
	docType core.DocType
	file    *appendFile

	mu    sync.RWMutex
	names map[string]struct{}
	order []string
}

var _ storage.OutputTable = (*OutputTable)(nil)

// OpenOutputTable opens or creates the output table at path.
func OpenOutputTable(path string, docType core.DocType) (*OutputTable, error) {
	columns, err := core.Columns(docType)
	if err != nil {
		return nil, err
	}

	file, existing, err := openAppendFile(path, columns)
	if err != nil {
		return nil, err
	}

	t := &OutputTable{
		docType: docType,
		file:    file,
		names:   make(map[string]struct{}, len(existing)),
	}
	for _, row := range existing {
		t.names[row[0]] = struct{}{}
		t.order = append(t.order, row[0])
	}
	return t, nil
}

func (t *OutputTable) DocType() core.DocType { return t.docType }

// AppendRecord validates and appends a record, rejecting a known file name.
func (t *OutputTable) AppendRecord(ctx context.Context, record core.Record) error {
	if err := core.ValidateRecord(record); err != nil {
		return err
	}
	if record.DocType() != t.docType {
		return fmt.Errorf("%w: %s table got %s record", storage.ErrDocTypeMismatch, t.docType, record.DocType())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	name := record.SourceFile()
	if _, ok := t.names[name]; ok {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, name)
	}
	if err := t.file.append(record.Values(), nil); err != nil {
		return err
	}
	t.names[name] = struct{}{}
	t.order = append(t.order, name)
	return nil
}

// Contains reports whether a record for fileName exists.
func (t *OutputTable) Contains(ctx context.Context, fileName string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.names[fileName]
	return ok, nil
}

// FileNames returns the stored file names in append order.
func (t *OutputTable) FileNames(ctx context.Context) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.order), nil
}

// Records reads every record from disk in append order.
func (t *OutputTable) Records(ctx context.Context) ([]core.Record, error) {
	rows, err := t.file.rows()
	if err != nil {
		return nil, err
	}
	records := make([]core.Record, 0, len(rows))
	for _, row := range rows {
		record, err := core.RecordFromValues(t.docType, row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Close flushes and closes the file.
func (t *OutputTable) Close() error {
	return t.file.close()
}
