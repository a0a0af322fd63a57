package core

import (
	"fmt"
	"strings"
)

// ValidateChunk checks a chunk before it is appended to a staged table.
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if strings.TrimSpace(chunk.FileName) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyFileName)
	}

	if chunk.ChunkIndex < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrNegativeChunkIndex)
	}

	if chunk.ChunkText == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyDocument)
	}

	return nil
}

// ValidateManifest checks a staged manifest.
func ValidateManifest(manifest *StagedManifest) error {
	if manifest == nil {
		return fmt.Errorf("%w: manifest is nil", ErrInvalidManifest)
	}

	if strings.TrimSpace(manifest.FileName) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, ErrEmptyFileName)
	}

	if manifest.ChunkCount < 1 {
		return fmt.Errorf("%w: chunk count %d", ErrInvalidManifest, manifest.ChunkCount)
	}

	if _, err := Columns(manifest.DocType); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	return nil
}

// ValidateRecord checks that a record is complete: one non-empty value per column.
func ValidateRecord(record Record) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if strings.TrimSpace(record.SourceFile()) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyFileName)
	}

	columns, err := Columns(record.DocType())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	values := record.Values()
	if len(values) != len(columns) {
		return fmt.Errorf("%w: %w: expected %d values, got %d",
			ErrInvalidRecord, ErrColumnMismatch, len(columns), len(values))
	}

	for i, v := range values {
		if v == "" {
			return fmt.Errorf("%w: column %s is empty", ErrInvalidRecord, columns[i])
		}
	}

	return nil
}
