// Package extract turns a document summary into one structured record.
//
// The Extractor builds a single prompt from the summary, optional document
// context and an optional roster hint, asks the generator for a JSON object
// and parses every schema field with a typed parser. A field that is missing
// or malformed gets its sentinel value and a core.SchemaParseWarning; it
// never fails the record.
//
// Generator failures are returned wrapped in core.ErrExtractionService and
// are not retried here.
package extract
