package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"obra/internal/types"
)

// mockLLM answers quality evaluations with a fixed verdict and everything
// else with a short summary.
type mockLLM struct {
	mu          sync.Mutex
	qualityJSON string
	calls       int
}

func newMockLLM() *mockLLM {
	return &mockLLM{qualityJSON: `{"score": 1.0, "issues": []}`}
}

func (m *mockLLM) Generate(_ context.Context, prompt string, _ types.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.calls++
	verdict := m.qualityJSON
	m.mu.Unlock()
	if strings.Contains(prompt, "You are evaluating") {
		return verdict, nil
	}
	return "summary of prior work", nil
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
	return (len([]rune(text)) + 3) / 4
}

func (m *mockLLM) Available(context.Context) bool { return true }

func (m *mockLLM) ModelInfo() types.ModelInfo {
	return types.ModelInfo{Name: "mock-model", Provider: "mock", ContextWindow: 128000}
}

// scriptedAgent pops one scripted step per Send; the last step repeats.
// A step is either an output or an error.
type agentStep struct {
	output string
	err    error
}

type scriptedAgent struct {
	mu      sync.Mutex
	steps   []agentStep
	prompts []string
	healthy bool
}

func newScriptedAgent(steps ...agentStep) *scriptedAgent {
	return &scriptedAgent{steps: steps, healthy: true}
}

func (a *scriptedAgent) Send(_ context.Context, prompt string, _ time.Time) (*types.AgentResponse, error) {
	a.mu.Lock()
	a.prompts = append(a.prompts, prompt)
	step := a.steps[0]
	if len(a.steps) > 1 {
		a.steps = a.steps[1:]
	}
	a.mu.Unlock()
	if step.err != nil {
		return nil, step.err
	}
	return &types.AgentResponse{Output: step.output, ExitCode: 0, Duration: 5 * time.Millisecond}, nil
}

func (a *scriptedAgent) Healthy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.healthy
}

func (a *scriptedAgent) Cleanup() error { return nil }

func (a *scriptedAgent) sentPrompts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.prompts...)
}

// goodOutput satisfies the default task response rules.
const goodOutput = `# SUMMARY
Implemented the requested behavior end to end and tidied the call sites
that depended on the old shape.

# CHANGES
Reworked the loader to resolve settings lazily and added a regression
guard around the empty-input path.

# VERIFICATION
Ran the package test suite locally; every case passes, including the new
regression guard.
`

// badOutput is too short and carries none of the required sections.
const badOutput = "done"
