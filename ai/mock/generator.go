package mock

import (
	"context"
	"sync"

	"github.com/poiesic/finextract/ai"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	mu sync.Mutex

	// GenerateFunc is called by Generate if set.
	GenerateFunc func(ctx context.Context, prompt ai.Prompt) (string, error)

	prompts   []ai.Prompt
	callCount int
}

var _ ai.Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a mock generator with default behavior.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// WithGenerateFunc sets GenerateFunc and returns the mock for chaining.
func (m *MockGenerator) WithGenerateFunc(fn func(ctx context.Context, prompt ai.Prompt) (string, error)) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateFunc = fn
	return m
}

// WithResponses makes Generate return the given responses in order, repeating
// the last one once exhausted.
func (m *MockGenerator) WithResponses(responses ...string) *MockGenerator {
	var (
		mu sync.Mutex
		i  int
	)
	return m.WithGenerateFunc(func(context.Context, ai.Prompt) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(responses) == 0 {
			return "", nil
		}
		r := responses[min(i, len(responses)-1)]
		i++
		return r, nil
	})
}

// Generate records the prompt and returns the injected or default response.
// Default: "{}" for JSON prompts, otherwise the first 200 bytes of the prompt.
func (m *MockGenerator) Generate(ctx context.Context, prompt ai.Prompt) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.prompts = append(m.prompts, prompt)
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt)
	}
	if prompt.JSONMode {
		return "{}", nil
	}
	out := prompt.User
	if len(out) > 200 {
		out = out[:200]
	}
	return out, nil
}

// CallCount returns the number of times Generate was called.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Prompts returns a copy of every prompt received, in call order.
func (m *MockGenerator) Prompts() []ai.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ai.Prompt, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// Reset clears recorded calls and injected behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.prompts = nil
	m.GenerateFunc = nil
}
