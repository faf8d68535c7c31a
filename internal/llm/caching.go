package llm

import (
	"context"

	"obra/internal/logging"
	"obra/internal/types"
)

// CachingClient wraps another client with an LRU response cache. Streaming
// calls bypass the cache entirely; only full Generate results are stored.
type CachingClient struct {
	inner types.LLMClient
	cache *lruCache
}

// NewCachingClient wraps inner with a response cache of the given size.
func NewCachingClient(inner types.LLMClient, size int) *CachingClient {
	return &CachingClient{inner: inner, cache: newLRUCache(size)}
}

// Generate serves from cache when possible, delegating misses to the
// wrapped client. Failed generations are never cached.
func (c *CachingClient) Generate(ctx context.Context, prompt string, opts types.GenerateOptions) (string, error) {
	if opts.NoCache {
		return c.inner.Generate(ctx, prompt, opts)
	}
	key := cacheKey(c.inner.ModelInfo(), prompt, opts)
	if val, ok := c.cache.get(key); ok {
		logging.LLMDebug("[cache] hit key=%.12s", key)
		return val, nil
	}
	out, err := c.inner.Generate(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	c.cache.put(key, out)
	return out, nil
}

// GenerateStream passes through; chunk sequences are not cached.
func (c *CachingClient) GenerateStream(ctx context.Context, prompt string, opts types.GenerateOptions) (<-chan string, error) {
	return c.inner.GenerateStream(ctx, prompt, opts)
}

// EstimateTokens delegates.
func (c *CachingClient) EstimateTokens(text string) int { return c.inner.EstimateTokens(text) }

// Available delegates.
func (c *CachingClient) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

// ModelInfo delegates.
func (c *CachingClient) ModelInfo() types.ModelInfo { return c.inner.ModelInfo() }

// Clear drops every cached response. Call when the underlying model or
// provider changes.
func (c *CachingClient) Clear() { c.cache.clear() }

// CacheStats reports hit/miss counters and the current entry count.
func (c *CachingClient) CacheStats() (hits, misses int64, size int) { return c.cache.stats() }
