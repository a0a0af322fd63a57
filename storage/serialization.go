// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/poiesic/finextract/core"
)

// StagedColumns is the column order of a staged table.
var StagedColumns = []string{"file_name", "chunk_index", "chunk_text", "embedding"}

// ManifestColumns is the column order of a staged manifest table.
var ManifestColumns = []string{"doc_type", "file_name", "chunk_count", "content_id"}

// MarshalEmbedding renders an embedding as a JSON array.
func MarshalEmbedding(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.Grow(len(embedding) * 10)
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// UnmarshalEmbedding parses the form produced by MarshalEmbedding.
func UnmarshalEmbedding(s string) ([]float32, error) {
	var embedding []float32
	if err := json.Unmarshal([]byte(s), &embedding); err != nil {
		return nil, fmt.Errorf("%w: embedding: %w", ErrSerializationFailed, err)
	}
	return embedding, nil
}

// MarshalChunkRow renders a chunk in StagedColumns order.
func MarshalChunkRow(chunk *core.Chunk) []string {
	return []string{
		chunk.FileName,
		strconv.Itoa(chunk.ChunkIndex),
		chunk.ChunkText,
		MarshalEmbedding(chunk.Embedding),
	}
}

// UnmarshalChunkRow parses a row in StagedColumns order.
func UnmarshalChunkRow(row []string) (*core.Chunk, error) {
	if len(row) != len(StagedColumns) {
		return nil, fmt.Errorf("%w: %w: staged row has %d fields", ErrSerializationFailed, core.ErrColumnMismatch, len(row))
	}
	index, err := strconv.Atoi(row[1])
	if err != nil {
		return nil, fmt.Errorf("%w: chunk_index %q: %w", ErrSerializationFailed, row[1], err)
	}
	embedding, err := UnmarshalEmbedding(row[3])
	if err != nil {
		return nil, err
	}
	return &core.Chunk{
		FileName:   row[0],
		ChunkIndex: index,
		ChunkText:  row[2],
		Embedding:  embedding,
	}, nil
}

// MarshalManifestRow renders a manifest in ManifestColumns order.
func MarshalManifestRow(m *core.StagedManifest) []string {
	return []string{
		string(m.DocType),
		m.FileName,
		strconv.Itoa(m.ChunkCount),
		m.ContentID.String(),
	}
}

// UnmarshalManifestRow parses a row in ManifestColumns order.
func UnmarshalManifestRow(row []string) (*core.StagedManifest, error) {
	if len(row) != len(ManifestColumns) {
		return nil, fmt.Errorf("%w: %w: manifest row has %d fields", ErrSerializationFailed, core.ErrColumnMismatch, len(row))
	}
	docType, err := core.ParseDocType(row[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	count, err := strconv.Atoi(row[2])
	if err != nil {
		return nil, fmt.Errorf("%w: chunk_count %q: %w", ErrSerializationFailed, row[2], err)
	}
	id, err := core.ParseID(row[3])
	if err != nil {
		return nil, fmt.Errorf("%w: content_id %q: %w", ErrSerializationFailed, row[3], err)
	}
	return &core.StagedManifest{
		DocType:    docType,
		FileName:   row[1],
		ChunkCount: count,
		ContentID:  id,
	}, nil
}

// ManifestsEqual reports whether two manifests describe the same staging.
func ManifestsEqual(a, b *core.StagedManifest) bool {
	return a.DocType == b.DocType &&
		a.FileName == b.FileName &&
		a.ChunkCount == b.ChunkCount &&
		a.ContentID == b.ContentID
}
