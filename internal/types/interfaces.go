package types

import (
	"context"
	"time"
)

// GenerateOptions tunes a single LLM generation. Only fields that affect
// the output participate in cache keys.
type GenerateOptions struct {
	Temperature   float64
	MaxTokens     int
	StopSequences []string

	// CacheKey is a stable hint; when empty the client derives a key from
	// the prompt and output-affecting options.
	CacheKey string

	// NoCache bypasses the response cache for this call.
	NoCache bool
}

// ModelInfo describes the model behind an LLM client.
type ModelInfo struct {
	Name          string
	Provider      string
	ContextWindow int
}

// LLMClient is the plugin contract for the Supervisor LLM. Implementations
// perform their own bounded retries on transient transport errors and
// return classified *types.Error values.
type LLMClient interface {
	// Generate blocks until the full completion is available or ctx ends.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateStream returns a finite, non-restartable chunk sequence. The
	// channel is closed when generation finishes or fails.
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan string, error)

	// EstimateTokens is a fast local approximation used only for budgeting.
	EstimateTokens(text string) int

	// Available is a health probe and must return within one second.
	Available(ctx context.Context) bool

	ModelInfo() ModelInfo
}

// AgentResponse is the outcome of one executor invocation.
type AgentResponse struct {
	Output    string
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// AgentSession is the plugin contract for the code-editing executor. Each
// Send spawns a fresh child process; continuity between iterations is the
// prompt builder's job, never the session's.
type AgentSession interface {
	// Send runs exactly one prompt against a fresh invocation and returns
	// when the child declares completion or the deadline elapses.
	Send(ctx context.Context, prompt string, deadline time.Time) (*AgentResponse, error)

	// Healthy is a fast liveness probe of the executor binary.
	Healthy() bool

	// Cleanup terminates residual children and removes ephemeral files.
	// It must be safe to call from any exit path, including panics.
	Cleanup() error
}

// AgentConstructor builds an agent session from a free-form provider
// configuration mapping.
type AgentConstructor func(cfg map[string]any) (AgentSession, error)

// LLMConstructor builds an LLM client from a free-form provider
// configuration mapping.
type LLMConstructor func(cfg map[string]any) (LLMClient, error)

// CompletionEvent is emitted to hooks when a work item reaches a terminal
// outcome.
type CompletionEvent struct {
	WorkItemID int64
	ProjectID  int64
	Outcome    WorkItemStatus
	Summary    string
}

// CompletionHook is an independent post-completion consumer. Failures are
// isolated: they are logged and counted but never affect the item's status.
type CompletionHook interface {
	Name() string
	OnCompletion(ctx context.Context, ev CompletionEvent) error
}
