package badger

import (
	"bytes"
	"encoding/binary"

	"github.com/poiesic/finextract/core"
)

// Key prefixes for different data types
const (
	stagedRowPrefix      = "stgrow"
	stagedManifestPrefix = "stgdoc"
	outputRecordPrefix   = "out"
	summaryPrefix        = "sum"
)

// File names may contain ':' or '/', so they are terminated with a NUL byte
// wherever another component follows.
const fileNameTerminator = 0x00

// makeTablePrefix generates the prefix shared by every key of one table.
// Format: prefix:docType:
func makeTablePrefix(prefix string, docType core.DocType) []byte {
	return []byte(prefix + ":" + string(docType) + ":")
}

// makeStagedRowKey generates a composite key for a staged chunk.
// Format: stgrow:docType:fileName\x00index
func makeStagedRowKey(docType core.DocType, fileName string, index int) []byte {
	buf := makeStagedFilePrefix(docType, fileName)
	// BigEndian so rows of one file sort by index
	return binary.BigEndian.AppendUint64(buf, uint64(index))
}

// makeStagedFilePrefix generates the prefix of every staged row of one file.
func makeStagedFilePrefix(docType core.DocType, fileName string) []byte {
	buf := makeTablePrefix(stagedRowPrefix, docType)
	buf = append(buf, fileName...)
	return append(buf, fileNameTerminator)
}

// parseStagedRowKey splits a staged row key into file name and index.
func parseStagedRowKey(docType core.DocType, key []byte) (string, int, bool) {
	rest := bytes.TrimPrefix(key, makeTablePrefix(stagedRowPrefix, docType))
	sep := bytes.LastIndexByte(rest, fileNameTerminator)
	if sep < 0 || len(rest)-sep-1 != 8 {
		return "", 0, false
	}
	return string(rest[:sep]), int(binary.BigEndian.Uint64(rest[sep+1:])), true
}

// makeManifestKey generates the key for a document's staged manifest.
func makeManifestKey(docType core.DocType, fileName string) []byte {
	return append(makeTablePrefix(stagedManifestPrefix, docType), fileName...)
}

// makeOutputKey generates the key for a document's structured record.
func makeOutputKey(docType core.DocType, fileName string) []byte {
	return append(makeTablePrefix(outputRecordPrefix, docType), fileName...)
}

// makeSummaryKey generates the key for a cached document summary.
func makeSummaryKey(docType core.DocType, fileName string) []byte {
	return append(makeTablePrefix(summaryPrefix, docType), fileName...)
}
