// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Generator,
// and ai.AIProvider for use in unit tests. The mocks are safe for concurrent
// use so they can sit behind worker pools.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	vec, err := mockProvider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	gen := mock.NewMockGenerator().
//	    WithGenerateFunc(func(ctx context.Context, p ai.Prompt) (string, error) {
//	        return `{"revenue": "4490000000"}`, nil
//	    })
//
//	// Check call counts
//	count := gen.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic vectors based on text hash
//   - MockGenerator: Returns "{}" for JSON prompts, otherwise a prefix of the prompt
//   - MockProvider: Aggregates mock embedder and generator
package mock
