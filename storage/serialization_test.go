package storage

import (
	"testing"

	"github.com/poiesic/finextract/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingEncoding(t *testing.T) {
	assert.Equal(t, "[]", MarshalEmbedding(nil))
	assert.Equal(t, "[0.5,-1.25,3]", MarshalEmbedding([]float32{0.5, -1.25, 3}))

	vec := []float32{0.1, 0.2, 0.30000001, -0.000123}
	got, err := UnmarshalEmbedding(MarshalEmbedding(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = UnmarshalEmbedding("[0.1,")
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestChunkRow(t *testing.T) {
	chunk := &core.Chunk{FileName: "aapl.htm", ChunkIndex: 3, ChunkText: "Revenue, \"quoted\"\nnext", Embedding: []float32{1, 2}}

	row := MarshalChunkRow(chunk)
	assert.Equal(t, []string{"aapl.htm", "3", "Revenue, \"quoted\"\nnext", "[1,2]"}, row)

	got, err := UnmarshalChunkRow(row)
	require.NoError(t, err)
	assert.Equal(t, chunk, got)

	_, err = UnmarshalChunkRow([]string{"a", "x", "t", "[]"})
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalChunkRow([]string{"a"})
	assert.ErrorIs(t, err, core.ErrColumnMismatch)
}

func TestManifestRow(t *testing.T) {
	m := &core.StagedManifest{
		DocType:    core.DocTypeRegulation,
		FileName:   "eu/gdpr.html",
		ChunkCount: 12,
		ContentID:  core.IDFromContent("gdpr text"),
	}

	got, err := UnmarshalManifestRow(MarshalManifestRow(m))
	require.NoError(t, err)
	assert.True(t, ManifestsEqual(m, got))

	other := *m
	other.ChunkCount = 13
	assert.False(t, ManifestsEqual(m, &other))

	_, err = UnmarshalManifestRow([]string{"memo", "a", "1", "00"})
	assert.ErrorIs(t, err, core.ErrInvalidDocType)
}
