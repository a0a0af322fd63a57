package csvfile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/storage"
)

type chunkKey struct {
	fileName string
	index    int
}

// StagedTable implements storage.StagedTable as a CSV file with the columns
// file_name, chunk_index, chunk_text, embedding and a manifest sidecar.
type StagedTable struct {
	docType   core.DocType
	rows      *appendFile
	manifests *appendFile

	mu        sync.RWMutex
	keys      map[chunkKey]struct{}
	byFile    map[string][]int
	manifestM map[string]*core.StagedManifest
}

var _ storage.StagedTable = (*StagedTable)(nil)

// OpenStagedTable opens or creates the staged table at path. The manifest
// sidecar lives next to it with a .manifest.csv suffix.
func OpenStagedTable(path string, docType core.DocType) (*StagedTable, error) {
	if _, err := core.Columns(docType); err != nil {
		return nil, err
	}

	rows, existing, err := openAppendFile(path, storage.StagedColumns)
	if err != nil {
		return nil, err
	}
	manifests, existingManifests, err := openAppendFile(manifestPath(path), storage.ManifestColumns)
	if err != nil {
		rows.close()
		return nil, err
	}

	t := &StagedTable{
		docType:   docType,
		rows:      rows,
		manifests: manifests,
		keys:      make(map[chunkKey]struct{}, len(existing)),
		byFile:    make(map[string][]int),
		manifestM: make(map[string]*core.StagedManifest, len(existingManifests)),
	}

	for _, row := range existing {
		chunk, err := storage.UnmarshalChunkRow(row)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("%w: %s: %w", storage.ErrCorruptTable, path, err)
		}
		t.index(chunk.FileName, chunk.ChunkIndex)
	}
	for _, row := range existingManifests {
		m, err := storage.UnmarshalManifestRow(row)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("%w: %s: %w", storage.ErrCorruptTable, manifestPath(path), err)
		}
		t.manifestM[m.FileName] = m
	}
	return t, nil
}

func manifestPath(path string) string {
	return strings.TrimSuffix(path, ".csv") + ".manifest.csv"
}

func (t *StagedTable) index(fileName string, idx int) {
	t.keys[chunkKey{fileName, idx}] = struct{}{}
	t.byFile[fileName] = append(t.byFile[fileName], idx)
}

func (t *StagedTable) DocType() core.DocType { return t.docType }

// RecordManifest appends a manifest unless an identical one exists.
func (t *StagedTable) RecordManifest(ctx context.Context, manifest *core.StagedManifest) error {
	if err := core.ValidateManifest(manifest); err != nil {
		return err
	}
	if manifest.DocType != t.docType {
		return fmt.Errorf("%w: %s table got %s manifest", storage.ErrDocTypeMismatch, t.docType, manifest.DocType)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.manifestM[manifest.FileName]; ok {
		if storage.ManifestsEqual(existing, manifest) {
			return nil
		}
		return fmt.Errorf("%w: %s", storage.ErrManifestConflict, manifest.FileName)
	}
	if err := t.manifests.append(storage.MarshalManifestRow(manifest), nil); err != nil {
		return err
	}
	stored := *manifest
	t.manifestM[manifest.FileName] = &stored
	return nil
}

// Manifest returns the manifest for fileName, or nil, nil if none exists.
func (t *StagedTable) Manifest(ctx context.Context, fileName string) (*core.StagedManifest, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.manifestM[fileName]
	if !ok {
		return nil, nil
	}
	out := *m
	return &out, nil
}

// Manifests returns every manifest, ordered by file name.
func (t *StagedTable) Manifests(ctx context.Context) ([]*core.StagedManifest, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*core.StagedManifest, 0, len(t.manifestM))
	for _, m := range t.manifestM {
		copied := *m
		out = append(out, &copied)
	}
	slices.SortFunc(out, func(a, b *core.StagedManifest) int {
		switch {
		case a.FileName < b.FileName:
			return -1
		case a.FileName > b.FileName:
			return 1
		}
		return 0
	})
	return out, nil
}

// AppendChunk appends a row, rejecting an existing (file name, chunk index).
func (t *StagedTable) AppendChunk(ctx context.Context, chunk *core.Chunk) error {
	if err := core.ValidateChunk(chunk); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := chunkKey{chunk.FileName, chunk.ChunkIndex}
	if _, ok := t.keys[key]; ok {
		return fmt.Errorf("%w: %s chunk %d", storage.ErrDuplicateKey, chunk.FileName, chunk.ChunkIndex)
	}
	if err := t.rows.append(storage.MarshalChunkRow(chunk), nil); err != nil {
		return err
	}
	t.index(chunk.FileName, chunk.ChunkIndex)
	return nil
}

// ChunkIndexes returns the staged indices of fileName, ascending.
func (t *StagedTable) ChunkIndexes(ctx context.Context, fileName string) ([]int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	indexes := slices.Clone(t.byFile[fileName])
	slices.Sort(indexes)
	return indexes, nil
}

// Chunks reads every row from disk in append order.
func (t *StagedTable) Chunks(ctx context.Context) ([]*core.Chunk, error) {
	rows, err := t.rows.rows()
	if err != nil {
		return nil, err
	}
	chunks := make([]*core.Chunk, 0, len(rows))
	for _, row := range rows {
		chunk, err := storage.UnmarshalChunkRow(row)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Count returns the number of rows.
func (t *StagedTable) Count(ctx context.Context) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.keys), nil
}

// Close flushes and closes both files.
func (t *StagedTable) Close() error {
	return errors.Join(t.rows.close(), t.manifests.close())
}
