package summarize

import "errors"

var (
	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrInvalidBudget indicates a non-positive or inconsistent rune budget.
	ErrInvalidBudget = errors.New("invalid summary budget")
)
