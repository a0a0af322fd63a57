package langchain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/finextract/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
)

// recordingModel captures the messages and options passed to GenerateContent.
type recordingModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	response *llms.ContentResponse
	err      error
}

func (m *recordingModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, opt := range options {
		opt(&m.opts)
	}
	return m.response, m.err
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestGenerator_FakeModel(t *testing.T) {
	gen := NewGeneratorFromModel(fake.NewFakeLLM([]string{"first", "second"}))

	out, err := gen.Generate(context.Background(), ai.Prompt{User: "summarize"})
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	out, err = gen.Generate(context.Background(), ai.Prompt{User: "summarize again"})
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestGenerator_BuildsMessagesAndOptions(t *testing.T) {
	model := &recordingModel{response: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: `{"revenue": 1}`}},
	}}
	gen := NewGeneratorFromModel(model)

	out, err := gen.Generate(context.Background(), ai.Prompt{
		System:    "You are a financial analyst.",
		User:      "Extract the fields.",
		JSONMode:  true,
		MaxTokens: 512,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"revenue": 1}`, out)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.True(t, model.opts.JSONMode)
	assert.Equal(t, 512, model.opts.MaxTokens)
	assert.Equal(t, 0.0, model.opts.Temperature)
}

func TestGenerator_NoSystemPrompt(t *testing.T) {
	model := &recordingModel{response: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "ok"}},
	}}
	gen := NewGeneratorFromModel(model)

	_, err := gen.Generate(context.Background(), ai.Prompt{User: "hello"})
	require.NoError(t, err)
	require.Len(t, model.messages, 1)
	assert.False(t, model.opts.JSONMode)
}

func TestGenerator_Errors(t *testing.T) {
	t.Run("model error is returned", func(t *testing.T) {
		boom := errors.New("connection refused")
		gen := NewGeneratorFromModel(&recordingModel{err: boom})

		_, err := gen.Generate(context.Background(), ai.Prompt{User: "x"})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("no choices", func(t *testing.T) {
		gen := NewGeneratorFromModel(&recordingModel{response: &llms.ContentResponse{}})

		_, err := gen.Generate(context.Background(), ai.Prompt{User: "x"})
		assert.ErrorIs(t, err, ai.ErrEmptyResponse)
	})

	t.Run("fake with no responses", func(t *testing.T) {
		gen := NewGeneratorFromModel(fake.NewFakeLLM(nil))

		_, err := gen.Generate(context.Background(), ai.Prompt{User: "x"})
		assert.Error(t, err)
	})
}

func TestGenerator_RateLimited(t *testing.T) {
	gen := newGeneratorFromModel(fake.NewFakeLLM([]string{"ok"}), newLimiter(1, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// First call consumes the only token
	_, err := gen.Generate(ctx, ai.Prompt{User: "x"})
	require.NoError(t, err)

	// Second call would wait ~1s, longer than the deadline
	_, err = gen.Generate(ctx, ai.Prompt{User: "x"})
	assert.Error(t, err)
}
