package search

import "log/slog"

// Monitor observes a Search call. Implement it to trace ranking decisions.
type Monitor interface {
	Start(query string, docTypes int)
	AfterSemanticSearch(candidates int)
	VerbatimHit(hit *Hit)
	Finish(hits []*Hit)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int)      {}
func (n *noopMonitor) AfterSemanticSearch(_ int) {}
func (n *noopMonitor) VerbatimHit(_ *Hit)        {}
func (n *noopMonitor) Finish(_ []*Hit)           {}

// LogMonitor writes each search stage to a logger at debug level.
type LogMonitor struct {
	Logger *slog.Logger
}

var _ Monitor = (*LogMonitor)(nil)

func (m *LogMonitor) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *LogMonitor) Start(query string, docTypes int) {
	m.logger().Debug("search started", "query", query, "doc_types", docTypes)
}

func (m *LogMonitor) AfterSemanticSearch(candidates int) {
	m.logger().Debug("semantic candidates", "count", candidates)
}

func (m *LogMonitor) VerbatimHit(hit *Hit) {
	m.logger().Debug("verbatim match", "file_name", hit.FileName, "chunk_index", hit.ChunkIndex)
}

func (m *LogMonitor) Finish(hits []*Hit) {
	m.logger().Debug("search finished", "hits", len(hits))
}
