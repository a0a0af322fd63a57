// Package chunker splits document text into ordered, bounded-size chunks.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/poiesic/finextract/core"
)

// DefaultMaxChunkSize is the default chunk bound in runes.
const DefaultMaxChunkSize = 6500

var (
	ErrInvalidChunkSize = errors.New("max chunk size must be positive")
	ErrInvalidOverlap   = errors.New("overlap must not be negative")
)

// Chunker cuts text into chunks of at most MaxChunkSize runes. It is
// stateless after construction and safe for concurrent use.
type Chunker struct {
	maxSize int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithMaxChunkSize sets the chunk bound in runes.
func WithMaxChunkSize(n int) Option {
	return func(c *Chunker) error {
		if n < 1 {
			return fmt.Errorf("%w: %d", ErrInvalidChunkSize, n)
		}
		c.maxSize = n
		return nil
	}
}

// WithOverlap makes each chunk start with the final n runes of the previous
// one. The effective overlap is clamped to a quarter of the chunk size.
func WithOverlap(n int) Option {
	return func(c *Chunker) error {
		if n < 0 {
			return fmt.Errorf("%w: %d", ErrInvalidOverlap, n)
		}
		c.overlap = n
		return nil
	}
}

// New creates a Chunker. Without options it cuts at DefaultMaxChunkSize runes
// with no overlap.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{maxSize: DefaultMaxChunkSize}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MaxChunkSize returns the chunk bound in runes.
func (c *Chunker) MaxChunkSize() int { return c.maxSize }

// Overlap returns the effective overlap in runes after clamping.
func (c *Chunker) Overlap() int { return min(c.overlap, c.maxSize/4) }

// Chunk splits text into ordered chunks. Leading and trailing whitespace is
// trimmed first; every chunk is an exact substring of the trimmed text.
//
// Inside the window [start+max/2, start+max] a cut is placed after the last
// blank line, else after the last sentence end, else after the last
// whitespace, else at the hard bound.
func (c *Chunker) Chunk(text string) ([]string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, core.ErrEmptyDocument
	}

	runes := []rune(trimmed)
	if len(runes) <= c.maxSize {
		return []string{trimmed}, nil
	}

	overlap := c.Overlap()
	chunks := make([]string, 0, len(runes)/c.maxSize+1)
	start := 0
	for {
		if len(runes)-start <= c.maxSize {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		end := cutPoint(runes, start, c.maxSize)
		chunks = append(chunks, string(runes[start:end]))

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks, nil
}

// cutPoint returns the exclusive end of the chunk beginning at start.
// The result is always in (start, start+size].
func cutPoint(runes []rune, start, size int) int {
	limit := start + size
	lo := max(start+size/2, start+1)

	if p := lastCut(runes, start, lo, limit, isParagraphEnd); p > 0 {
		return p
	}
	if p := lastCut(runes, start, lo, limit, isSentenceEnd); p > 0 {
		return p
	}
	if p := lastCut(runes, start, lo, limit, isSpaceEnd); p > 0 {
		return p
	}
	return limit
}

func lastCut(runes []rune, start, lo, hi int, match func(runes []rune, start, p int) bool) int {
	for p := hi; p >= lo; p-- {
		if match(runes, start, p) {
			return p
		}
	}
	return 0
}

// isParagraphEnd reports whether runes[:p] ends with a blank line.
func isParagraphEnd(runes []rune, start, p int) bool {
	return p-2 >= start && runes[p-1] == '\n' && runes[p-2] == '\n'
}

// isSentenceEnd reports whether runes[:p] ends with terminal punctuation
// followed by one whitespace rune.
func isSentenceEnd(runes []rune, start, p int) bool {
	if p-2 < start || !unicode.IsSpace(runes[p-1]) {
		return false
	}
	switch runes[p-2] {
	case '.', '!', '?':
		return true
	}
	return false
}

func isSpaceEnd(runes []rune, start, p int) bool {
	return p-1 > start && unicode.IsSpace(runes[p-1])
}
