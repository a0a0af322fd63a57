package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, BackendOpenAI, cfg.Backend)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "http://localhost:11434/v1", cfg.GeneratorHost)
	assert.Equal(t, "embeddinggemma", cfg.EmbeddingModel)
	assert.Equal(t, "qwen2.5:7b", cfg.GeneratorModel)
	assert.Zero(t, cfg.RequestsPerSecond)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()

		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://localhost:11434/v1", cfg.GeneratorHost)
	})

	t.Run("with custom host", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://custom:8080/v1"))

		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.GeneratorHost)
	})

	t.Run("with separate hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://embed:8080/v1"),
			WithGeneratorHost("http://generate:9090/v1"),
		)

		assert.Equal(t, "http://embed:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://generate:9090/v1", cfg.GeneratorHost)
	})

	t.Run("with multiple options", func(t *testing.T) {
		cfg := NewConfig(
			WithBackend(BackendOllama),
			WithEmbeddingModel("nomic-embed-text"),
			WithGeneratorModel("llama3.1:8b"),
			WithToken("secret"),
			WithRateLimit(2.5, 3),
		)

		assert.Equal(t, BackendOllama, cfg.Backend)
		assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
		assert.Equal(t, "llama3.1:8b", cfg.GeneratorModel)
		assert.Equal(t, "secret", cfg.Token)
		assert.Equal(t, 2.5, cfg.RequestsPerSecond)
		assert.Equal(t, 3, cfg.Burst)
	})
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("OLLAMA")
	require.NoError(t, err)
	assert.Equal(t, BackendOllama, b)

	b, err = ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendOpenAI, b)

	_, err = ParseBackend("bedrock")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name              string
		backend           Backend
		embeddingHost     string
		generatorHost     string
		expectedEmbedding string
		expectedGenerator string
	}{
		{
			name:              "already has /v1",
			backend:           BackendOpenAI,
			embeddingHost:     "http://localhost:11434/v1",
			generatorHost:     "http://localhost:11434/v1",
			expectedEmbedding: "http://localhost:11434/v1",
			expectedGenerator: "http://localhost:11434/v1",
		},
		{
			name:              "missing /v1",
			backend:           BackendOpenAI,
			embeddingHost:     "http://localhost:11434",
			generatorHost:     "http://localhost:11434",
			expectedEmbedding: "http://localhost:11434/v1",
			expectedGenerator: "http://localhost:11434/v1",
		},
		{
			name:              "has trailing slash",
			backend:           BackendOpenAI,
			embeddingHost:     "http://localhost:11434/",
			generatorHost:     "http://localhost:11434/v1/",
			expectedEmbedding: "http://localhost:11434/v1",
			expectedGenerator: "http://localhost:11434/v1",
		},
		{
			name:              "empty hosts",
			backend:           BackendOpenAI,
			expectedEmbedding: "",
			expectedGenerator: "",
		},
		{
			name:              "ollama strips /v1",
			backend:           BackendOllama,
			embeddingHost:     "http://localhost:11434/v1",
			generatorHost:     "http://localhost:11434/",
			expectedEmbedding: "http://localhost:11434",
			expectedGenerator: "http://localhost:11434",
		},
		{
			name:              "empty backend defaults to openai",
			embeddingHost:     "http://embed:8080",
			generatorHost:     "http://generate:9090/v1",
			expectedEmbedding: "http://embed:8080/v1",
			expectedGenerator: "http://generate:9090/v1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Backend:       tt.backend,
				EmbeddingHost: tt.embeddingHost,
				GeneratorHost: tt.generatorHost,
			}

			cfg.Normalize()

			assert.Equal(t, tt.expectedEmbedding, cfg.EmbeddingHost)
			assert.Equal(t, tt.expectedGenerator, cfg.GeneratorHost)
			assert.Equal(t, 1, cfg.Burst)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			EmbeddingHost:  "http://localhost:11434",
			GeneratorHost:  "http://localhost:11434",
			EmbeddingModel: "embeddinggemma",
			GeneratorModel: "qwen2.5:7b",
		}
	}

	t.Run("valid config", func(t *testing.T) {
		cfg := valid()
		require.NoError(t, cfg.Validate())

		// Should also normalize
		assert.Equal(t, BackendOpenAI, cfg.Backend)
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing embedding host", func(c *Config) { c.EmbeddingHost = "" }, "EmbeddingHost"},
		{"missing generator host", func(c *Config) { c.GeneratorHost = "" }, "GeneratorHost"},
		{"missing embedding model", func(c *Config) { c.EmbeddingModel = "" }, "EmbeddingModel"},
		{"missing generator model", func(c *Config) { c.GeneratorModel = "" }, "GeneratorModel"},
		{"negative rate", func(c *Config) { c.RequestsPerSecond = -1 }, "RequestsPerSecond"},
		{"unknown backend", func(c *Config) { c.Backend = "bedrock" }, "bedrock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfigValidate_Integration(t *testing.T) {
	require.NoError(t, NewConfig().Validate())
	require.NoError(t, DefaultConfig().Validate())
}
