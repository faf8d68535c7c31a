package llm

import (
	"fmt"
	"testing"

	"obra/internal/types"
)

func TestLRUEvictsOldest(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", "1")
	c.put("b", "2")
	c.put("c", "3") // evicts a

	if _, ok := c.get("a"); ok {
		t.Error("oldest entry should be evicted")
	}
	if v, ok := c.get("b"); !ok || v != "2" {
		t.Errorf("b = %q ok=%v", v, ok)
	}
	if v, ok := c.get("c"); !ok || v != "3" {
		t.Errorf("c = %q ok=%v", v, ok)
	}
}

func TestLRUGetRefreshesRecency(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", "1")
	c.put("b", "2")
	c.get("a")      // a is now most recent
	c.put("c", "3") // should evict b, not a

	if _, ok := c.get("a"); !ok {
		t.Error("recently-used entry was evicted")
	}
	if _, ok := c.get("b"); ok {
		t.Error("least-recently-used entry survived")
	}
}

func TestLRUUpdateExistingKey(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", "1")
	c.put("a", "2")
	if v, _ := c.get("a"); v != "2" {
		t.Errorf("a = %q, want updated value", v)
	}
	if _, _, size := c.stats(); size != 1 {
		t.Errorf("size = %d, want 1", size)
	}
}

func TestLRUStats(t *testing.T) {
	c := newLRUCache(4)
	c.put("a", "1")
	c.get("a")
	c.get("a")
	c.get("missing")

	hits, misses, size := c.stats()
	if hits != 2 || misses != 1 || size != 1 {
		t.Errorf("stats = (%d, %d, %d), want (2, 1, 1)", hits, misses, size)
	}
}

func TestLRUClear(t *testing.T) {
	c := newLRUCache(4)
	for i := 0; i < 4; i++ {
		c.put(fmt.Sprintf("k%d", i), "v")
	}
	c.clear()
	if _, _, size := c.stats(); size != 0 {
		t.Errorf("size after clear = %d", size)
	}
	if _, ok := c.get("k0"); ok {
		t.Error("entry survived clear")
	}
}

func TestLRUDefaultCapacity(t *testing.T) {
	c := newLRUCache(0)
	if c.capacity != 128 {
		t.Errorf("capacity = %d, want default 128", c.capacity)
	}
}

func TestCacheKeySensitivity(t *testing.T) {
	info := types.ModelInfo{Name: "m", Provider: "p", ContextWindow: 1000}
	base := cacheKey(info, "prompt", types.GenerateOptions{Temperature: 0.1, MaxTokens: 100})

	variants := []struct {
		name string
		key  string
	}{
		{"prompt", cacheKey(info, "other prompt", types.GenerateOptions{Temperature: 0.1, MaxTokens: 100})},
		{"temperature", cacheKey(info, "prompt", types.GenerateOptions{Temperature: 0.2, MaxTokens: 100})},
		{"max tokens", cacheKey(info, "prompt", types.GenerateOptions{Temperature: 0.1, MaxTokens: 200})},
		{"stop sequences", cacheKey(info, "prompt", types.GenerateOptions{Temperature: 0.1, MaxTokens: 100, StopSequences: []string{"END"}})},
		{"model", cacheKey(types.ModelInfo{Name: "m2", Provider: "p"}, "prompt", types.GenerateOptions{Temperature: 0.1, MaxTokens: 100})},
		{"provider", cacheKey(types.ModelInfo{Name: "m", Provider: "p2"}, "prompt", types.GenerateOptions{Temperature: 0.1, MaxTokens: 100})},
	}
	for _, v := range variants {
		if v.key == base {
			t.Errorf("changing %s did not change the cache key", v.name)
		}
	}

	again := cacheKey(info, "prompt", types.GenerateOptions{Temperature: 0.1, MaxTokens: 100})
	if again != base {
		t.Error("identical inputs must produce identical keys")
	}
}

func TestCacheKeyExplicitOverride(t *testing.T) {
	info := types.ModelInfo{Name: "m", Provider: "p"}
	key := cacheKey(info, "anything", types.GenerateOptions{CacheKey: "stable"})
	if key != "stable" {
		t.Errorf("explicit CacheKey ignored, got %q", key)
	}
}
