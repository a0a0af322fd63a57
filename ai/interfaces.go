package ai

import "context"

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Prompt is a single-turn request to a Generator.
type Prompt struct {
	// System is the system instruction. May be empty.
	System string

	// User is the user message.
	User string

	// JSONMode asks the backend to constrain output to a JSON object.
	JSONMode bool

	// MaxTokens caps the response length. Zero leaves the backend default.
	MaxTokens int
}

// Generator produces text completions.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Generate runs a single completion and returns the first choice's text.
	// Transport and backend failures are returned as errors; an empty
	// completion is not an error.
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generator returns the text generation service.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	Close() error
}
