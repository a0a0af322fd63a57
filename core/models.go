package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// ID is a 64-bit content identifier.
type ID uint64

// IDFromContent derives a stable ID from text using a 64-bit blake2b digest.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID as fixed-width hex.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ParseID parses the hex form produced by String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// DocType selects the record schema a document is extracted into.
type DocType string

const (
	// DocTypeFiling is an annual company filing such as a 10-K.
	DocTypeFiling DocType = "filing"
	// DocTypeRegulation is a law, directive or regulatory text.
	DocTypeRegulation DocType = "regulation"
)

// DocTypes lists every supported document type.
var DocTypes = []DocType{DocTypeFiling, DocTypeRegulation}

// ParseDocType converts user input into a DocType.
func ParseDocType(s string) (DocType, error) {
	switch DocType(strings.ToLower(strings.TrimSpace(s))) {
	case DocTypeFiling:
		return DocTypeFiling, nil
	case DocTypeRegulation:
		return DocTypeRegulation, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDocType, s)
	}
}

// Plural returns the plural form used in table file names.
func (d DocType) Plural() string {
	return string(d) + "s"
}

// Document is a raw document after text normalization.
type Document struct {
	FileName string
	Text     string
}

// Chunk is one staged row: a bounded slice of a document plus its embedding.
type Chunk struct {
	FileName   string
	ChunkIndex int
	ChunkText  string
	Embedding  []float32
}

// StagedManifest records how many chunks a document was split into when
// its staging began, so later runs can tell complete documents from partial ones.
type StagedManifest struct {
	DocType    DocType
	FileName   string
	ChunkCount int
	ContentID  ID // IDFromContent of the normalized text
}

// IndexedText is a chunk's text paired with its index.
type IndexedText struct {
	Index int
	Text  string
}

// AssembledDocument is a document rebuilt from its staged chunks.
// It is derived on demand and never persisted.
type AssembledDocument struct {
	FileName string
	Chunks   []IndexedText // ascending by Index
	FullText string
}

// DocumentSummary is the bounded context shared with the extractor.
type DocumentSummary struct {
	DocType        DocType
	FileName       string
	Text           string
	Windows        int   // number of windows summarized; 1 for single-call summaries
	OmittedWindows []int // windows dropped after retry exhaustion
	Degraded       bool
}
