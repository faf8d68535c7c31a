package config

import "time"

// LLMConfig configures the Supervisor LLM client.
type LLMConfig struct {
	Type           string  `yaml:"type"` // openai, gemini, mock
	Model          string  `yaml:"model"`
	Endpoint       string  `yaml:"endpoint"`
	APIKey         string  `yaml:"api_key"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	CacheSize      int     `yaml:"cache_size"`
	ContextWindow  int     `yaml:"context_window"`
}

// DefaultLLMConfig returns sensible defaults.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Type:           "openai",
		Model:          "gpt-4o-mini",
		Endpoint:       "https://api.openai.com/v1",
		Temperature:    0.1,
		MaxTokens:      4096,
		TimeoutSeconds: 120,
		CacheSize:      256,
		ContextWindow:  128000,
	}
}

// Timeout returns the per-call timeout as a duration.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Settings flattens the config into the free-form mapping the plugin
// registry constructors accept.
func (c LLMConfig) Settings() map[string]any {
	return map[string]any{
		"model":           c.Model,
		"endpoint":        c.Endpoint,
		"api_key":         c.APIKey,
		"temperature":     c.Temperature,
		"max_tokens":      c.MaxTokens,
		"timeout_seconds": c.TimeoutSeconds,
		"cache_size":      c.CacheSize,
		"context_window":  c.ContextWindow,
	}
}
