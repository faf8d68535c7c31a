package llm

import (
	"time"

	"obra/internal/registry"
	"obra/internal/types"
)

// settings reads the free-form constructor config with typed fallbacks.
type settings map[string]any

func (s settings) str(key, def string) string {
	if v, ok := s[key].(string); ok && v != "" {
		return v
	}
	return def
}

func (s settings) num(key string, def float64) float64 {
	switch v := s[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func (s settings) integer(key string, def int) int {
	switch v := s[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// RegisterDefaults installs the built-in providers. Each constructor wraps
// its client in a fresh response cache, so swapping provider or model at
// construction time always starts cold.
func RegisterDefaults(reg *registry.LLMRegistry) {
	reg.Register("openai", func(cfg map[string]any) (types.LLMClient, error) {
		s := settings(cfg)
		oc := DefaultOpenAIConfig(s.str("api_key", ""))
		oc.BaseURL = s.str("endpoint", oc.BaseURL)
		oc.Model = s.str("model", oc.Model)
		oc.Temperature = s.num("temperature", oc.Temperature)
		oc.MaxTokens = s.integer("max_tokens", oc.MaxTokens)
		oc.ContextWindow = s.integer("context_window", oc.ContextWindow)
		if secs := s.integer("timeout_seconds", 0); secs > 0 {
			oc.Timeout = time.Duration(secs) * time.Second
		}
		client, err := NewOpenAIClient(oc)
		if err != nil {
			return nil, err
		}
		return NewCachingClient(client, s.integer("cache_size", 256)), nil
	})

	reg.Register("gemini", func(cfg map[string]any) (types.LLMClient, error) {
		s := settings(cfg)
		gc := DefaultGeminiConfig(s.str("api_key", ""))
		gc.Model = s.str("model", gc.Model)
		gc.Temperature = s.num("temperature", gc.Temperature)
		gc.MaxTokens = s.integer("max_tokens", gc.MaxTokens)
		gc.ContextWindow = s.integer("context_window", gc.ContextWindow)
		if secs := s.integer("timeout_seconds", 0); secs > 0 {
			gc.Timeout = time.Duration(secs) * time.Second
		}
		client, err := NewGeminiClient(gc)
		if err != nil {
			return nil, err
		}
		return NewCachingClient(client, s.integer("cache_size", 256)), nil
	})
}
