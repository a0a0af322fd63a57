// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"fmt"
	"strings"
)

// Backend selects the wire protocol used to reach the model server.
type Backend string

const (
	// BackendOpenAI speaks the OpenAI-compatible REST API (Ollama /v1, vLLM, LocalAI, OpenAI).
	BackendOpenAI Backend = "openai"

	// BackendOllama speaks Ollama's native API.
	BackendOllama Backend = "ollama"
)

// ParseBackend converts a flag or config value into a Backend.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case BackendOpenAI, "":
		return BackendOpenAI, nil
	case BackendOllama:
		return BackendOllama, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// Config holds configuration for AI service providers.
type Config struct {
	// Backend selects the client implementation. Default: openai.
	Backend Backend

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for a local OpenAI-compatible server
	EmbeddingHost string

	// GeneratorHost is the base URL for the summarize/extract completion API.
	GeneratorHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// GeneratorModel is the model identifier used for summaries and extraction.
	// Example: "qwen2.5:7b", "gpt-4o-mini"
	GeneratorModel string

	// Token is passed through to the provider as a bearer token.
	// Local servers accept any value; "none" is used when empty.
	Token string

	// RequestsPerSecond throttles generator and embedder calls with a token bucket.
	// Zero disables throttling.
	RequestsPerSecond float64

	// Burst is the token bucket size when RequestsPerSecond > 0. Default: 1
	Burst int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithBackend sets the client backend.
func WithBackend(b Backend) ConfigOption {
	return func(c *Config) {
		c.Backend = b
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithGeneratorHost sets the generator service host URL.
func WithGeneratorHost(host string) ConfigOption {
	return func(c *Config) {
		c.GeneratorHost = host
	}
}

// WithHost sets both embedding and generator hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.GeneratorHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithGeneratorModel sets the generator model identifier.
func WithGeneratorModel(model string) ConfigOption {
	return func(c *Config) {
		c.GeneratorModel = model
	}
}

// WithToken sets the provider token.
func WithToken(token string) ConfigOption {
	return func(c *Config) {
		c.Token = token
	}
}

// WithRateLimit throttles provider calls to rps requests per second.
func WithRateLimit(rps float64, burst int) ConfigOption {
	return func(c *Config) {
		c.RequestsPerSecond = rps
		c.Burst = burst
	}
}

// DefaultConfig returns a Config with sensible defaults for a local Ollama
// server reached through its OpenAI-compatible endpoint.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		Backend:        BackendOpenAI,
		EmbeddingHost:  defaultHost,
		GeneratorHost:  defaultHost,
		EmbeddingModel: "embeddinggemma",
		GeneratorModel: "qwen2.5:7b",
		Burst:          1,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434"),
//	    WithGeneratorModel("llama3.1:8b"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// For the openai backend it adds the /v1 suffix to hosts if missing, which is
// required by OpenAI-compatible servers. The native ollama backend wants the
// bare server URL, so /v1 is stripped instead.
func (c *Config) Normalize() {
	if c.Backend == "" {
		c.Backend = BackendOpenAI
	}
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost, c.Backend)
	c.GeneratorHost = normalizeHost(c.GeneratorHost, c.Backend)
	if c.Burst < 1 {
		c.Burst = 1
	}
}

func normalizeHost(host string, backend Backend) string {
	if host == "" {
		return ""
	}
	host = strings.TrimSuffix(host, "/")
	if backend == BackendOllama {
		return strings.TrimSuffix(host, "/v1")
	}
	if !strings.HasSuffix(host, "/v1") {
		host += "/v1"
	}
	return host
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.EmbeddingHost == "" {
		return fmt.Errorf("%w: EmbeddingHost is required", ErrInvalidConfig)
	}
	if c.GeneratorHost == "" {
		return fmt.Errorf("%w: GeneratorHost is required", ErrInvalidConfig)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: EmbeddingModel is required", ErrInvalidConfig)
	}
	if c.GeneratorModel == "" {
		return fmt.Errorf("%w: GeneratorModel is required", ErrInvalidConfig)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: RequestsPerSecond must not be negative", ErrInvalidConfig)
	}
	return nil
}
