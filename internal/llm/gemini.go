package llm

import (
	"context"
	"strings"
	"time"

	"google.golang.org/genai"

	"obra/internal/logging"
	"obra/internal/types"
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey        string
	Model         string
	Timeout       time.Duration
	Temperature   float64
	MaxTokens     int
	ContextWindow int
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:        apiKey,
		Model:         "gemini-2.0-flash",
		Timeout:       2 * time.Minute,
		Temperature:   0.1,
		MaxTokens:     4096,
		ContextWindow: 1048576,
	}
}

// GeminiClient implements the Supervisor LLM through the official genai SDK.
type GeminiClient struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiClient creates a Gemini client from config.
func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, types.Errorf(types.KindLLMUnavailable, "llm.NewGeminiClient", "API key not configured")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, types.NewError(types.KindLLMUnavailable, "llm.NewGeminiClient", err)
	}
	return &GeminiClient{client: client, cfg: cfg}, nil
}

func (c *GeminiClient) generateConfig(opts types.GenerateOptions) *genai.GenerateContentConfig {
	temp := c.cfg.Temperature
	if opts.Temperature > 0 {
		temp = opts.Temperature
	}
	maxTokens := c.cfg.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temp)),
		MaxOutputTokens: int32(maxTokens),
		StopSequences:   opts.StopSequences,
	}
}

// classifyGeminiErr maps SDK failures onto the error taxonomy.
func classifyGeminiErr(op string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return types.NewError(types.KindRateLimited, op, err)
	case strings.Contains(msg, "404") || strings.Contains(msg, "NOT_FOUND"):
		return types.NewError(types.KindModelMissing, op, err)
	case strings.Contains(msg, "deadline") || strings.Contains(msg, "context canceled"):
		return types.NewError(types.KindLLMTimeout, op, err)
	}
	return types.NewError(types.KindLLMUnavailable, op, err)
}

// Generate blocks until the full completion is available.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, opts types.GenerateOptions) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	logging.LLMDebug("[Gemini] Generate: model=%s prompt_len=%d", c.cfg.Model, len(prompt))

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, genai.Text(prompt), c.generateConfig(opts))
	if err != nil {
		return "", classifyGeminiErr("llm.Generate", err)
	}
	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", types.Errorf(types.KindLLMProtocol, "llm.Generate", "no completion returned")
	}
	logging.LLM("[Gemini] Generate: completed in %v response_len=%d", time.Since(start), len(out))
	return out, nil
}

// GenerateStream streams the completion as incremental content deltas.
func (c *GeminiClient) GenerateStream(ctx context.Context, prompt string, opts types.GenerateOptions) (<-chan string, error) {
	cancel := context.CancelFunc(func() {})
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
	}

	out := make(chan string, 100)
	go func() {
		defer cancel()
		defer close(out)
		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.cfg.Model, genai.Text(prompt), c.generateConfig(opts)) {
			if err != nil {
				logging.LLM("[Gemini] GenerateStream: error mid-stream: %v", err)
				return
			}
			chunk := resp.Text()
			if chunk == "" {
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// EstimateTokens approximates locally; never hits the network.
func (c *GeminiClient) EstimateTokens(text string) int { return EstimateTokens(text) }

// Available probes the model with a minimal request and a one-second budget.
func (c *GeminiClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err := c.client.Models.CountTokens(ctx, c.cfg.Model, genai.Text("ping"), nil)
	return err == nil
}

// ModelInfo reports the configured model.
func (c *GeminiClient) ModelInfo() types.ModelInfo {
	return types.ModelInfo{
		Name:          c.cfg.Model,
		Provider:      "gemini",
		ContextWindow: c.cfg.ContextWindow,
	}
}
