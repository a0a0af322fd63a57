package orchestrator

// State is a document's position in the extraction state machine.
type State int

const (
	StatePending State = iota
	StateSummarizing
	StateExtracting
	StateWritten
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSummarizing:
		return "summarizing"
	case StateExtracting:
		return "extracting"
	case StateWritten:
		return "written"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateWritten || s == StateFailed
}
