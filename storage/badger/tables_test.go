package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStagedTable_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	table, err := store.StagedTable(core.DocTypeFiling)
	require.NoError(t, err)

	for i := 2; i >= 0; i-- {
		require.NoError(t, table.AppendChunk(ctx, &core.Chunk{
			FileName:   "aapl.htm",
			ChunkIndex: i,
			ChunkText:  fmt.Sprintf("chunk %d", i),
			Embedding:  []float32{float32(i), 1},
		}))
	}

	indexes, err := table.ChunkIndexes(ctx, "aapl.htm")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, indexes)

	chunks, err := table.Chunks(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "chunk 0", chunks[0].ChunkText)
	assert.Equal(t, []float32{2, 1}, chunks[2].Embedding)

	count, err := table.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestStagedTable_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	table, err := store.StagedTable(core.DocTypeFiling)
	require.NoError(t, err)

	chunk := &core.Chunk{FileName: "a.htm", ChunkIndex: 0, ChunkText: "x"}
	require.NoError(t, table.AppendChunk(ctx, chunk))

	err = table.AppendChunk(ctx, chunk)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	count, err := table.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStagedTable_ConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	table, err := store.StagedTable(core.DocTypeFiling)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := table.AppendChunk(ctx, &core.Chunk{FileName: "a.htm", ChunkIndex: 0, ChunkText: "x"})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestStagedTable_InvalidChunk(t *testing.T) {
	store := newTestStore(t)
	table, err := store.StagedTable(core.DocTypeFiling)
	require.NoError(t, err)

	err = table.AppendChunk(context.Background(), &core.Chunk{FileName: "", ChunkIndex: 0, ChunkText: "x"})
	assert.ErrorIs(t, err, core.ErrInvalidChunk)
}

func TestStagedTable_Manifests(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	table, err := store.StagedTable(core.DocTypeRegulation)
	require.NoError(t, err)

	m, err := table.Manifest(ctx, "gdpr.html")
	require.NoError(t, err)
	assert.Nil(t, m)

	manifest := &core.StagedManifest{
		DocType:    core.DocTypeRegulation,
		FileName:   "gdpr.html",
		ChunkCount: 4,
		ContentID:  core.IDFromContent("gdpr"),
	}
	require.NoError(t, table.RecordManifest(ctx, manifest))
	require.NoError(t, table.RecordManifest(ctx, manifest), "identical manifest should be a no-op")

	changed := *manifest
	changed.ChunkCount = 5
	assert.ErrorIs(t, table.RecordManifest(ctx, &changed), storage.ErrManifestConflict)

	wrongType := *manifest
	wrongType.DocType = core.DocTypeFiling
	assert.ErrorIs(t, table.RecordManifest(ctx, &wrongType), storage.ErrDocTypeMismatch)

	got, err := table.Manifest(ctx, "gdpr.html")
	require.NoError(t, err)
	assert.Equal(t, manifest, got)

	all, err := table.Manifests(ctx)
	require.NoError(t, err)
	assert.Equal(t, []*core.StagedManifest{manifest}, all)
}

func TestStagedTable_DocTypesIsolated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	filings, err := store.StagedTable(core.DocTypeFiling)
	require.NoError(t, err)
	regs, err := store.StagedTable(core.DocTypeRegulation)
	require.NoError(t, err)

	require.NoError(t, filings.AppendChunk(ctx, &core.Chunk{FileName: "a", ChunkIndex: 0, ChunkText: "x"}))

	count, err := regs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOutputTable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	table, err := store.OutputTable(core.DocTypeFiling)
	require.NoError(t, err)

	record := core.NewFilingRecord("aapl.htm")
	record.CompanyName = "Apple Inc."
	record.Revenue = 4490000000
	record.KeyRivals = []string{"Samsung", "Google"}

	found, err := table.Contains(ctx, "aapl.htm")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, table.AppendRecord(ctx, record))
	assert.ErrorIs(t, table.AppendRecord(ctx, record), storage.ErrDuplicateKey)

	found, err = table.Contains(ctx, "aapl.htm")
	require.NoError(t, err)
	assert.True(t, found)

	names, err := table.FileNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"aapl.htm"}, names)

	records, err := table.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.Values(), records[0].Values())

	err = table.AppendRecord(ctx, core.NewRegulationRecord("gdpr.html"))
	assert.ErrorIs(t, err, storage.ErrDocTypeMismatch)
}

func TestSummaryCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	cache := store.SummaryCache()
	require.NotNil(t, cache)

	got, err := cache.GetSummary(ctx, core.DocTypeFiling, "aapl.htm")
	require.NoError(t, err)
	assert.Nil(t, got)

	summary := &core.DocumentSummary{
		DocType:        core.DocTypeFiling,
		FileName:       "aapl.htm",
		Text:           "Apple designs phones.",
		Windows:        3,
		OmittedWindows: []int{1},
		Degraded:       true,
	}
	require.NoError(t, cache.PutSummary(ctx, summary))

	got, err = cache.GetSummary(ctx, core.DocTypeFiling, "aapl.htm")
	require.NoError(t, err)
	assert.Equal(t, summary, got)

	other, err := cache.GetSummary(ctx, core.DocTypeRegulation, "aapl.htm")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestStore_Closed(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "double close should be safe")

	_, err = store.StagedTable(core.DocTypeFiling)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestStore_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	table, err := store.StagedTable(core.DocTypeFiling)
	require.NoError(t, err)
	require.NoError(t, table.AppendChunk(ctx, &core.Chunk{FileName: "a", ChunkIndex: 0, ChunkText: "x"}))
	require.NoError(t, store.Close())

	store, err = Open(dir)
	require.NoError(t, err)
	defer store.Close()
	table, err = store.StagedTable(core.DocTypeFiling)
	require.NoError(t, err)

	count, err := table.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStagedTable_UndecodableValue(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	table, err := store.StagedTable(core.DocTypeFiling)
	require.NoError(t, err)

	require.NoError(t, store.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeStagedRowKey(core.DocTypeFiling, "a.htm", 0), []byte{0xff}); err != nil {
			return err
		}
		return tx.Commit()
	}, true))

	_, err = table.Chunks(ctx)
	assert.ErrorIs(t, err, storage.ErrSerializationFailed)

	count, err := table.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStagedTable_ValueUnderWrongKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	table, err := store.StagedTable(core.DocTypeFiling)
	require.NoError(t, err)

	value := storage.MarshalChunk(&core.Chunk{FileName: "b.htm", ChunkIndex: 4, ChunkText: "x"})
	require.NoError(t, store.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeStagedRowKey(core.DocTypeFiling, "a.htm", 0), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true))

	_, err = table.Chunks(ctx)
	assert.ErrorIs(t, err, storage.ErrCorruptTable)
}
