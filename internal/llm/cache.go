package llm

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"obra/internal/types"
)

// lruCache is a fixed-capacity LRU of completed responses. Entries are
// keyed by a digest of the prompt plus every output-affecting option.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element

	hits   int64
	misses int64
}

type cacheEntry struct {
	key   string
	value string
}

func newLRUCache(capacity int) *lruCache {
	if capacity <= 0 {
		capacity = 128
	}
	return &lruCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

func (c *lruCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return "", false
	}
	c.order.MoveToFront(el)
	c.hits++
	return el.Value.(*cacheEntry).value, true
}

func (c *lruCache) put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).value = value
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, value: value})
	c.entries[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *lruCache) clear() {
	c.mu.Lock()
	c.order.Init()
	c.entries = make(map[string]*list.Element, c.capacity)
	c.mu.Unlock()
}

func (c *lruCache) stats() (hits, misses int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.order.Len()
}

// cacheKey derives the cache key for a generation. The model identity is
// baked in so a cache never serves responses across model swaps.
func cacheKey(info types.ModelInfo, prompt string, opts types.GenerateOptions) string {
	if opts.CacheKey != "" {
		return opts.CacheKey
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s/%s\x00%.3f\x00%d\x00%s\x00",
		info.Provider, info.Name, opts.Temperature, opts.MaxTokens,
		strings.Join(opts.StopSequences, "\x1f"))
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}
