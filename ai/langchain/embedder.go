package langchain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/finextract/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder on a langchaingo embeddings client.
type Embedder struct {
	embedder embeddings.Embedder
	limiter  *limiter
	logger   *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config, lim *limiter) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := newEmbedderClient(config)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return newEmbedderFromClient(embedder, lim), nil
}

func newEmbedderFromClient(embedder embeddings.Embedder, lim *limiter) *Embedder {
	return &Embedder{
		embedder: embedder,
		limiter:  lim,
		logger:   slog.Default().With("component", "langchain-embedder"),
	}
}

func newEmbedderClient(config *ai.Config) (embeddings.EmbedderClient, error) {
	switch config.Backend {
	case ai.BackendOllama:
		return ollama.New(
			ollama.WithServerURL(config.EmbeddingHost),
			ollama.WithModel(config.EmbeddingModel),
		)
	default:
		return openai.New(
			openai.WithBaseURL(config.EmbeddingHost),
			openai.WithToken(token(config)),
			openai.WithEmbeddingModel(config.EmbeddingModel),
		)
	}
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config, newLimiter(config.RequestsPerSecond, config.Burst))
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no embedding for text", ai.ErrEmptyResponse)
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.wait(ctx); err != nil {
		return nil, err
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ai.ErrEmptyResponse, len(texts), len(vectors))
	}
	return vectors, nil
}

func token(config *ai.Config) string {
	if config.Token == "" {
		// Local OpenAI-compatible services ignore the token but the client requires one
		return "none"
	}
	return config.Token
}
