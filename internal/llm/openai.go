package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"obra/internal/logging"
	"obra/internal/types"
)

// OpenAIConfig configures a client for any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	// ContextWindow is advisory; used only for prompt budgeting.
	ContextWindow int
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:        apiKey,
		BaseURL:       "https://api.openai.com/v1",
		Model:         "gpt-4o-mini",
		Timeout:       2 * time.Minute,
		Temperature:   0.1,
		MaxTokens:     4096,
		ContextWindow: 128000,
	}
}

// OpenAIClient implements the Supervisor LLM over any OpenAI-compatible
// /chat/completions endpoint.
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewOpenAIClient creates a client from config.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, types.Errorf(types.KindLLMUnavailable, "llm.NewOpenAIClient", "API key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// throttle spaces requests at least 100ms apart.
func (c *OpenAIClient) throttle() {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}

func (c *OpenAIClient) request(prompt string, opts types.GenerateOptions, stream bool) openAIRequest {
	temp := c.cfg.Temperature
	if opts.Temperature > 0 {
		temp = opts.Temperature
	}
	maxTokens := c.cfg.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	req := openAIRequest{
		Model:       c.cfg.Model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temp,
		Stop:        opts.StopSequences,
	}
	if stream {
		req.Stream = true
		req.StreamOptions = &openAIStreamOptions{IncludeUsage: true}
	}
	return req
}

// Generate blocks until the full completion is available.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts types.GenerateOptions) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	logging.LLMDebug("[OpenAI] Generate: model=%s prompt_len=%d", c.cfg.Model, len(prompt))

	c.throttle()
	reqBody := c.request(prompt, opts, false)

	// Bounded retry on rate limits and transport failures.
	maxRetries := 3
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", types.NewError(types.KindLLMTimeout, "llm.Generate", ctx.Err())
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			}
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", types.NewError(types.KindLLMInternal, "llm.Generate", err)
		}
		req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return "", types.NewError(types.KindLLMInternal, "llm.Generate", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", types.NewError(types.KindLLMTimeout, "llm.Generate", ctx.Err())
			}
			lastErr = types.NewError(types.KindLLMUnavailable, "llm.Generate", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = types.NewError(types.KindLLMUnavailable, "llm.Generate", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = types.Errorf(types.KindRateLimited, "llm.Generate", "rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode == http.StatusNotFound {
			return "", types.Errorf(types.KindModelMissing, "llm.Generate",
				"model %q not found: %s", c.cfg.Model, strings.TrimSpace(string(body)))
		}
		if resp.StatusCode != http.StatusOK {
			return "", types.Errorf(types.KindLLMProtocol, "llm.Generate",
				"API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var parsed openAIResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", types.NewError(types.KindLLMProtocol, "llm.Generate", err)
		}
		if parsed.Error != nil {
			return "", types.Errorf(types.KindLLMProtocol, "llm.Generate", "API error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return "", types.Errorf(types.KindLLMProtocol, "llm.Generate", "no completion returned")
		}

		out := strings.TrimSpace(parsed.Choices[0].Message.Content)
		logging.LLM("[OpenAI] Generate: completed in %v response_len=%d", time.Since(start), len(out))
		return out, nil
	}

	logging.LLM("[OpenAI] Generate: max retries exceeded after %v: %v", time.Since(start), lastErr)
	return "", lastErr
}

// GenerateStream streams the completion as incremental content deltas.
func (c *OpenAIClient) GenerateStream(ctx context.Context, prompt string, opts types.GenerateOptions) (<-chan string, error) {
	cancel := context.CancelFunc(func() {})
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
	}

	c.throttle()
	reqBody := c.request(prompt, opts, true)
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		cancel()
		return nil, types.NewError(types.KindLLMInternal, "llm.GenerateStream", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		cancel()
		return nil, types.NewError(types.KindLLMInternal, "llm.GenerateStream", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, types.NewError(types.KindLLMUnavailable, "llm.GenerateStream", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, types.Errorf(types.KindRateLimited, "llm.GenerateStream",
			"rate limit exceeded (429): %s", strings.TrimSpace(string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, types.Errorf(types.KindLLMProtocol, "llm.GenerateStream",
			"API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	out := make(chan string, 100)
	go func() {
		defer cancel()
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var chunk openAIStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				logging.LLMDebug("[OpenAI] GenerateStream: skipping malformed frame: %v", err)
				continue
			}
			if chunk.Error != nil {
				logging.LLM("[OpenAI] GenerateStream: API error mid-stream: %s", chunk.Error.Message)
				return
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				select {
				case out <- choice.Delta.Content:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// EstimateTokens approximates locally; never hits the network.
func (c *OpenAIClient) EstimateTokens(text string) int { return EstimateTokens(text) }

// Available probes the models endpoint with a one-second budget.
func (c *OpenAIClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ModelInfo reports the configured model.
func (c *OpenAIClient) ModelInfo() types.ModelInfo {
	return types.ModelInfo{
		Name:          c.cfg.Model,
		Provider:      "openai",
		ContextWindow: c.cfg.ContextWindow,
	}
}
