package storage

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/finextract/core"
)

// Binary value encodings for key-value stores. Keys already carry the
// document type and file name, but values repeat them so a value can be
// decoded without its key.

var (
	embeddingMUS = ord.NewSliceSer[float32](raw.Float32)
	intsMUS      = ord.NewSliceSer[int](varint.Int)
	stringsMUS   = ord.NewSliceSer[string](ord.String)
)

// ChunkMUS encodes a staged chunk.
var ChunkMUS = chunkMUS{}

type chunkMUS struct{}

func (s chunkMUS) Marshal(v core.Chunk, bs []byte) (n int) {
	n = ord.String.Marshal(v.FileName, bs)
	n += varint.Int.Marshal(v.ChunkIndex, bs[n:])
	n += ord.String.Marshal(v.ChunkText, bs[n:])
	return n + embeddingMUS.Marshal(v.Embedding, bs[n:])
}

func (s chunkMUS) Unmarshal(bs []byte) (v core.Chunk, n int, err error) {
	v.FileName, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.ChunkIndex, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ChunkText, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Embedding, n1, err = embeddingMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (s chunkMUS) Size(v core.Chunk) (size int) {
	size = ord.String.Size(v.FileName)
	size += varint.Int.Size(v.ChunkIndex)
	size += ord.String.Size(v.ChunkText)
	return size + embeddingMUS.Size(v.Embedding)
}

// ManifestMUS encodes a staged manifest.
var ManifestMUS = manifestMUS{}

type manifestMUS struct{}

func (s manifestMUS) Marshal(v core.StagedManifest, bs []byte) (n int) {
	n = ord.String.Marshal(string(v.DocType), bs)
	n += ord.String.Marshal(v.FileName, bs[n:])
	n += varint.Int.Marshal(v.ChunkCount, bs[n:])
	return n + varint.Uint64.Marshal(uint64(v.ContentID), bs[n:])
}

func (s manifestMUS) Unmarshal(bs []byte) (v core.StagedManifest, n int, err error) {
	docType, n, err := ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	if v.DocType, err = core.ParseDocType(docType); err != nil {
		return
	}
	var n1 int
	v.FileName, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ChunkCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	id, n1, err := varint.Uint64.Unmarshal(bs[n:])
	n += n1
	v.ContentID = core.ID(id)
	return
}

func (s manifestMUS) Size(v core.StagedManifest) (size int) {
	size = ord.String.Size(string(v.DocType))
	size += ord.String.Size(v.FileName)
	size += varint.Int.Size(v.ChunkCount)
	return size + varint.Uint64.Size(uint64(v.ContentID))
}

// SummaryMUS encodes a document summary.
var SummaryMUS = summaryMUS{}

type summaryMUS struct{}

func (s summaryMUS) Marshal(v core.DocumentSummary, bs []byte) (n int) {
	n = ord.String.Marshal(string(v.DocType), bs)
	n += ord.String.Marshal(v.FileName, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += varint.Int.Marshal(v.Windows, bs[n:])
	n += intsMUS.Marshal(v.OmittedWindows, bs[n:])
	return n + ord.Bool.Marshal(v.Degraded, bs[n:])
}

func (s summaryMUS) Unmarshal(bs []byte) (v core.DocumentSummary, n int, err error) {
	docType, n, err := ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	if v.DocType, err = core.ParseDocType(docType); err != nil {
		return
	}
	var n1 int
	v.FileName, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Windows, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.OmittedWindows, n1, err = intsMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Degraded, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	return
}

func (s summaryMUS) Size(v core.DocumentSummary) (size int) {
	size = ord.String.Size(string(v.DocType))
	size += ord.String.Size(v.FileName)
	size += ord.String.Size(v.Text)
	size += varint.Int.Size(v.Windows)
	size += intsMUS.Size(v.OmittedWindows)
	return size + ord.Bool.Size(v.Degraded)
}

// MarshalChunk serializes a staged chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, ChunkMUS.Size(*chunk))
	ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a staged chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, _, err := ChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk: %w", ErrSerializationFailed, err)
	}
	return &chunk, nil
}

// MarshalManifest serializes a staged manifest to bytes.
func MarshalManifest(manifest *core.StagedManifest) []byte {
	buf := make([]byte, ManifestMUS.Size(*manifest))
	ManifestMUS.Marshal(*manifest, buf)
	return buf
}

// UnmarshalManifest deserializes a staged manifest from bytes.
func UnmarshalManifest(data []byte) (*core.StagedManifest, error) {
	manifest, _, err := ManifestMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", ErrSerializationFailed, err)
	}
	return &manifest, nil
}

// MarshalSummary serializes a document summary to bytes.
func MarshalSummary(summary *core.DocumentSummary) []byte {
	buf := make([]byte, SummaryMUS.Size(*summary))
	SummaryMUS.Marshal(*summary, buf)
	return buf
}

// UnmarshalSummary deserializes a document summary from bytes.
func UnmarshalSummary(data []byte) (*core.DocumentSummary, error) {
	summary, _, err := SummaryMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: summary: %w", ErrSerializationFailed, err)
	}
	return &summary, nil
}

// MarshalValues serializes a record's column values to bytes.
func MarshalValues(values []string) []byte {
	buf := make([]byte, stringsMUS.Size(values))
	stringsMUS.Marshal(values, buf)
	return buf
}

// UnmarshalValues deserializes record column values from bytes.
func UnmarshalValues(data []byte) ([]string, error) {
	values, _, err := stringsMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: values: %w", ErrSerializationFailed, err)
	}
	return values, nil
}
