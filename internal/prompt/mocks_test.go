package prompt

import (
	"context"
	"fmt"
	"unicode/utf8"

	"obra/internal/types"
)

// mockLLM estimates tokens the same way the real clients do and answers
// summarize calls with a short canned line.
type mockLLM struct {
	contextWindow int
	generateCalls int
	GenerateFunc  func(ctx context.Context, prompt string, opts types.GenerateOptions) (string, error)
}

func newMockLLM(window int) *mockLLM {
	return &mockLLM{contextWindow: window}
}

func (m *mockLLM) Generate(ctx context.Context, prompt string, opts types.GenerateOptions) (string, error) {
	m.generateCalls++
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, opts)
	}
	return "summary: decisions and file paths kept", nil
}

func (m *mockLLM) GenerateStream(ctx context.Context, prompt string, opts types.GenerateOptions) (<-chan string, error) {
	out, err := m.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	ch := make(chan string, 1)
	ch <- out
	close(ch)
	return ch, nil
}

func (m *mockLLM) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}

func (m *mockLLM) Available(ctx context.Context) bool { return true }

func (m *mockLLM) ModelInfo() types.ModelInfo {
	return types.ModelInfo{Name: "mock", Provider: "mock", ContextWindow: m.contextWindow}
}

func testItem() *types.WorkItem {
	return &types.WorkItem{
		ID:          7,
		Kind:        types.KindTask,
		Title:       "Add tolerant parsing mode",
		Description: "The loader should survive trailing commas.",
		Status:      types.StatusInProgress,
		MaxRetries:  3,
	}
}

func interactionFixture(iter int, decision types.Action) *types.Interaction {
	return &types.Interaction{
		WorkItemID:      7,
		Iteration:       iter,
		Response:        fmt.Sprintf("response body of iteration %d", iter),
		Decision:        decision,
		QualityScore:    0.5,
		ConfidenceScore: 0.6,
	}
}
