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

package core

import "errors"

var (
	// ErrEmptyDocument indicates a document has no text to chunk.
	ErrEmptyDocument = errors.New("document is empty")

	// ErrEmbeddingService indicates the embedding collaborator failed.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrExtractionService indicates the language model collaborator failed
	// during summarization or extraction.
	ErrExtractionService = errors.New("extraction service error")

	// ErrIncompleteDocument indicates a staged document has gaps or duplicate chunk indices.
	ErrIncompleteDocument = errors.New("incomplete document")

	// ErrInvalidDocType indicates an unknown document type.
	ErrInvalidDocType = errors.New("invalid document type")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidManifest indicates a StagedManifest failed validation.
	ErrInvalidManifest = errors.New("invalid staged manifest")

	// ErrInvalidRecord indicates a structured record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrEmptyFileName indicates the file name field is empty.
	ErrEmptyFileName = errors.New("file name cannot be empty")

	// ErrNegativeChunkIndex indicates a chunk index below zero.
	ErrNegativeChunkIndex = errors.New("chunk index cannot be negative")

	// ErrColumnMismatch indicates a row does not have one value per schema column.
	ErrColumnMismatch = errors.New("column count mismatch")
)
