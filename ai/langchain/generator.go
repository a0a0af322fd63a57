package langchain

import (
	"context"
	"log/slog"

	"github.com/poiesic/finextract/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using langchaingo chat models.
type Generator struct {
	client  llms.Model
	limiter *limiter
	logger  *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

// newGenerator is an internal constructor that returns the concrete type.
func newGenerator(config *ai.Config, lim *limiter) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		client llms.Model
		err    error
	)
	switch config.Backend {
	case ai.BackendOllama:
		client, err = ollama.New(
			ollama.WithServerURL(config.GeneratorHost),
			ollama.WithModel(config.GeneratorModel),
		)
	default:
		client, err = openai.New(
			openai.WithBaseURL(config.GeneratorHost),
			openai.WithToken(token(config)),
			openai.WithModel(config.GeneratorModel),
		)
	}
	if err != nil {
		return nil, err
	}

	return newGeneratorFromModel(client, lim), nil
}

func newGeneratorFromModel(client llms.Model, lim *limiter) *Generator {
	return &Generator{
		client:  client,
		limiter: lim,
		logger:  slog.Default().With("component", "langchain-generator"),
	}
}

// NewGenerator creates a new generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config, newLimiter(config.RequestsPerSecond, config.Burst))
}

// NewGeneratorFromModel wraps an existing langchaingo model. Used to plug in
// llms/fake in tests and any other llms.Model a caller already has.
func NewGeneratorFromModel(client llms.Model) ai.Generator {
	return newGeneratorFromModel(client, nil)
}

// Generate runs one chat completion at temperature 0.
func (g *Generator) Generate(ctx context.Context, prompt ai.Prompt) (string, error) {
	if err := g.limiter.wait(ctx); err != nil {
		return "", err
	}

	content := make([]llms.MessageContent, 0, 2)
	if prompt.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, prompt.System))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, prompt.User))

	opts := []llms.CallOption{llms.WithTemperature(0.0)}
	if prompt.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}
	if prompt.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(prompt.MaxTokens))
	}

	g.logger.Debug("generating content",
		"promptLength", len(prompt.User),
		"json", prompt.JSONMode)

	response, err := g.client.GenerateContent(ctx, content, opts...)
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		g.logger.Debug("no choices returned from model")
		return "", ai.ErrEmptyResponse
	}
	return response.Choices[0].Content, nil
}
