package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/storage"
)

// StagedTable implements storage.StagedTable for BadgerDB.
type StagedTable struct {
	backend *Backend
	docType core.DocType
}

var _ storage.StagedTable = (*StagedTable)(nil)

// NewStagedTable creates a staged table for docType on backend.
func NewStagedTable(backend *Backend, docType core.DocType) (*StagedTable, error) {
	if _, err := core.Columns(docType); err != nil {
		return nil, err
	}
	return &StagedTable{backend: backend, docType: docType}, nil
}

func (t *StagedTable) DocType() core.DocType { return t.docType }

// Close is a no-op; the backend is owned by the Store.
func (t *StagedTable) Close() error { return nil }

// RecordManifest stores a manifest unless an identical one exists.
func (t *StagedTable) RecordManifest(ctx context.Context, manifest *core.StagedManifest) error {
	if err := core.ValidateManifest(manifest); err != nil {
		return err
	}
	if manifest.DocType != t.docType {
		return fmt.Errorf("%w: %s table got %s manifest", storage.ErrDocTypeMismatch, t.docType, manifest.DocType)
	}

	value := storage.MarshalManifest(manifest)
	key := makeManifestKey(t.docType, manifest.FileName)
	return t.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		switch {
		case err == nil:
			existing, err := t.readManifest(item, manifest.FileName)
			if err != nil {
				return err
			}
			if storage.ManifestsEqual(existing, manifest) {
				return nil
			}
			return fmt.Errorf("%w: %s", storage.ErrManifestConflict, manifest.FileName)
		case err != badger.ErrKeyNotFound:
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Manifest returns the manifest for fileName, or nil, nil if none exists.
func (t *StagedTable) Manifest(ctx context.Context, fileName string) (*core.StagedManifest, error) {
	var manifest *core.StagedManifest
	err := t.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeManifestKey(t.docType, fileName))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		manifest, err = t.readManifest(item, fileName)
		return err
	}, false)
	return manifest, err
}

// Manifests returns every manifest, ordered by file name.
func (t *StagedTable) Manifests(ctx context.Context) ([]*core.StagedManifest, error) {
	prefix := makeTablePrefix(stagedManifestPrefix, t.docType)
	var manifests []*core.StagedManifest
	err := t.backend.scan(prefix, true, func(key, value []byte) error {
		m, err := decodeManifest(t.docType, string(key[len(prefix):]), value)
		if err != nil {
			return err
		}
		manifests = append(manifests, m)
		return nil
	})
	return manifests, err
}

func (t *StagedTable) readManifest(item *badger.Item, fileName string) (*core.StagedManifest, error) {
	var manifest *core.StagedManifest
	err := item.Value(func(val []byte) error {
		var err error
		manifest, err = decodeManifest(t.docType, fileName, val)
		return err
	})
	return manifest, err
}

func decodeManifest(docType core.DocType, fileName string, value []byte) (*core.StagedManifest, error) {
	manifest, err := storage.UnmarshalManifest(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	if manifest.DocType != docType || manifest.FileName != fileName {
		return nil, fmt.Errorf("%w: manifest value for %s/%s stored under %s/%s", storage.ErrCorruptTable,
			manifest.DocType, manifest.FileName, docType, fileName)
	}
	return manifest, nil
}

// AppendChunk stores a chunk row. The existence check and the write share one
// transaction, so concurrent appends of the same key cannot both succeed.
func (t *StagedTable) AppendChunk(ctx context.Context, chunk *core.Chunk) error {
	if err := core.ValidateChunk(chunk); err != nil {
		return err
	}

	value := storage.MarshalChunk(chunk)
	key := makeStagedRowKey(t.docType, chunk.FileName, chunk.ChunkIndex)
	err := t.backend.WithTx(func(tx *badger.Txn) error {
		found, err := exists(tx, key)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: %s chunk %d", storage.ErrDuplicateKey, chunk.FileName, chunk.ChunkIndex)
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if errors.Is(err, badger.ErrConflict) {
		// A concurrent transaction wrote the same key first
		return fmt.Errorf("%w: %s chunk %d", storage.ErrDuplicateKey, chunk.FileName, chunk.ChunkIndex)
	}
	return err
}

// ChunkIndexes returns the staged indices of fileName, ascending.
func (t *StagedTable) ChunkIndexes(ctx context.Context, fileName string) ([]int, error) {
	var indexes []int
	err := t.backend.scan(makeStagedFilePrefix(t.docType, fileName), false, func(key, _ []byte) error {
		if _, index, ok := parseStagedRowKey(t.docType, key); ok {
			indexes = append(indexes, index)
		}
		return nil
	})
	return indexes, err
}

// Chunks returns every staged row, ordered by file name then index.
func (t *StagedTable) Chunks(ctx context.Context) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	err := t.backend.scan(makeTablePrefix(stagedRowPrefix, t.docType), true, func(key, value []byte) error {
		fileName, index, ok := parseStagedRowKey(t.docType, key)
		if !ok {
			return fmt.Errorf("%w: malformed staged key %q", storage.ErrCorruptTable, key)
		}
		chunk, err := storage.UnmarshalChunk(value)
		if err != nil {
			return fmt.Errorf("%s chunk %d: %w", fileName, index, err)
		}
		if chunk.FileName != fileName || chunk.ChunkIndex != index {
			return fmt.Errorf("%w: chunk %s/%d stored under %s/%d", storage.ErrCorruptTable,
				chunk.FileName, chunk.ChunkIndex, fileName, index)
		}
		chunks = append(chunks, chunk)
		return nil
	})
	return chunks, err
}

// Count returns the number of staged rows.
func (t *StagedTable) Count(ctx context.Context) (int, error) {
	count := 0
	err := t.backend.scan(makeTablePrefix(stagedRowPrefix, t.docType), false, func(_, _ []byte) error {
		count++
		return nil
	})
	return count, err
}
