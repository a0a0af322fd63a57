// Package staging chunks and embeds documents into a staged table.
//
// The Stager plans every document first: it chunks the text, records a
// StagedManifest and works out which chunk indices are still missing. The
// missing chunks are then embedded concurrently on a worker pool and each row
// is appended as soon as its embedding succeeds, so an interrupted run
// resumes where it stopped.
//
// Failures are contained:
//   - An empty document is reported and skipped.
//   - A chunk whose embedding fails after retries is reported and skipped;
//     its document stays partial until a later run fills the gap.
//   - A document whose text no longer matches its manifest is reported as
//     stale and left untouched.
package staging
