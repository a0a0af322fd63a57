package ai

import "errors"

var (
	// ErrInvalidConfig is wrapped by every Config.Validate failure.
	ErrInvalidConfig = errors.New("ai config")

	// ErrUnknownBackend is returned for a backend name other than openai or ollama.
	ErrUnknownBackend = errors.New("unknown ai backend")

	// ErrEmptyResponse is returned when a backend answers with no choices.
	ErrEmptyResponse = errors.New("model returned no choices")
)
