package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/poiesic/finextract/storage"
)

// appendFile is one append-only CSV file with a fixed header. Appends are
// serialized by mu and each row is flushed and synced before returning.
type appendFile struct {
	mu      sync.Mutex
	path    string
	columns []string
	file    *os.File
	writer  *csv.Writer
	closed  bool
}

// openAppendFile opens path for appending, writing the header if the file is
// new or empty, and returns the existing data rows. A torn final row, left
// by a write interrupted mid-flush, is truncated away.
func openAppendFile(path string, columns []string) (*appendFile, [][]string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}

	s, err := scanFile(path, columns)
	if err != nil {
		return nil, nil, err
	}
	if s.torn() {
		slog.Default().With("component", "csvfile").Warn("truncating torn final row",
			"path", path, "size", s.size, "kept", s.end)
		if err := os.Truncate(path, s.end); err != nil {
			return nil, nil, fmt.Errorf("truncate %s: %w", path, err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}

	f := &appendFile{
		path:    path,
		columns: columns,
		file:    file,
		writer:  csv.NewWriter(file),
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	if info.Size() == 0 {
		if err := f.writeLocked(columns); err != nil {
			file.Close()
			return nil, nil, err
		}
	}
	return f, s.rows, nil
}

// scan is the readable content of a table file.
type scan struct {
	rows [][]string
	end  int64 // offset just past the last complete row, or the header
	size int64
}

// torn reports whether bytes follow the last complete row.
func (s *scan) torn() bool { return s.end < s.size }

// scanFile reads every complete data row of an existing file. A missing or
// empty file has no rows. Only the final row may be incomplete: it is left
// out of rows, and damage anywhere else is ErrCorruptTable.
func scanFile(path string, columns []string) (*scan, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &scan{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	s := &scan{size: info.Size()}
	if s.size == 0 {
		return s, nil
	}
	lastByte := make([]byte, 1)
	if _, err := file.ReadAt(lastByte, s.size-1); err != nil {
		return nil, err
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(columns)

	// unterminated reports whether the record just read runs to the end of
	// the file without its newline. The writer terminates every record.
	unterminated := func() bool {
		return reader.InputOffset() == s.size && lastByte[0] != '\n'
	}

	header, err := reader.Read()
	if unterminated() {
		// The header itself was cut short; nothing else was ever written.
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrCorruptTable, path, err)
	}
	if !slices.Equal(header, columns) {
		return nil, fmt.Errorf("%w: %s: unexpected header %v", storage.ErrCorruptTable, path, header)
	}
	s.end = reader.InputOffset()

	for {
		row, err := reader.Read()
		if err == io.EOF {
			return s, nil
		}
		if err != nil {
			if tail, tailErr := atTail(reader); tailErr != nil || !tail {
				return nil, fmt.Errorf("%w: %s: %w", storage.ErrCorruptTable, path, err)
			}
			return s, nil
		}
		if unterminated() {
			return s, nil
		}
		s.rows = append(s.rows, row)
		s.end = reader.InputOffset()
	}
}

// atTail reads past a bad record and reports whether nothing readable
// follows it.
func atTail(reader *csv.Reader) (bool, error) {
	for {
		_, err := reader.Read()
		switch {
		case err == io.EOF:
			return true, nil
		case err == nil:
			return false, nil
		}
		var parseErr *csv.ParseError
		if !errors.As(err, &parseErr) {
			return false, err
		}
	}
}

// append writes one row. check runs under the lock before the write; a
// non-nil error from check aborts the append.
func (f *appendFile) append(row []string, check func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return storage.ErrStorageClosed
	}
	if check != nil {
		if err := check(); err != nil {
			return err
		}
	}
	return f.writeLocked(row)
}

func (f *appendFile) writeLocked(row []string) error {
	if err := f.writer.Write(row); err != nil {
		return err
	}
	f.writer.Flush()
	if err := f.writer.Error(); err != nil {
		return err
	}
	return f.file.Sync()
}

// rows re-reads the file from disk. Callers hold no lock, so a row still
// being flushed shows up as a torn tail and is skipped.
func (f *appendFile) rows() ([][]string, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, storage.ErrStorageClosed
	}
	s, err := scanFile(f.path, f.columns)
	if err != nil {
		return nil, err
	}
	return s.rows, nil
}

func (f *appendFile) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.writer.Flush()
	return errors.Join(f.writer.Error(), f.file.Close())
}
