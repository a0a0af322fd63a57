// Package summarize condenses an assembled document into a bounded summary
// that the extractor uses as global context.
//
// Documents that fit the input budget are summarized in one call. Longer
// documents are cut into windows with the chunker, each window is summarized
// on its own, and the window summaries are folded into one by further calls
// until a single summary remains. Service failures degrade the summary
// instead of failing it; only an empty document or a cancelled context is an
// error.
package summarize
