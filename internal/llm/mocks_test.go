package llm

import (
	"context"
	"sync/atomic"

	"obra/internal/types"
)

// mockClient is a scriptable types.LLMClient for wrapper tests.
type mockClient struct {
	GenerateFunc func(ctx context.Context, prompt string, opts types.GenerateOptions) (string, error)
	info         types.ModelInfo
	calls        atomic.Int64
}

func newMockClient() *mockClient {
	return &mockClient{
		info: types.ModelInfo{Name: "mock-model", Provider: "mock", ContextWindow: 8192},
	}
}

func (m *mockClient) Generate(ctx context.Context, prompt string, opts types.GenerateOptions) (string, error) {
	m.calls.Add(1)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, opts)
	}
	return "response to: " + prompt, nil
}

func (m *mockClient) GenerateStream(ctx context.Context, prompt string, opts types.GenerateOptions) (<-chan string, error) {
	out, err := m.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	ch := make(chan string, 1)
	ch <- out
	close(ch)
	return ch, nil
}

func (m *mockClient) EstimateTokens(text string) int { return EstimateTokens(text) }

func (m *mockClient) Available(ctx context.Context) bool { return true }

func (m *mockClient) ModelInfo() types.ModelInfo { return m.info }
