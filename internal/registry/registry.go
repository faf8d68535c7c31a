// Package registry holds the name -> constructor maps that make LLM and
// agent providers swappable from configuration. Registries are populated
// by static registration at process start; lookups after that are
// read-only.
package registry

import (
	"sort"
	"sync"

	"obra/internal/types"
)

// AgentRegistry maps provider names to agent-session constructors.
type AgentRegistry struct {
	mu           sync.RWMutex
	constructors map[string]types.AgentConstructor
}

// NewAgentRegistry returns an empty agent registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{constructors: make(map[string]types.AgentConstructor)}
}

// Register installs a constructor under name, replacing any previous one.
func (r *AgentRegistry) Register(name string, ctor types.AgentConstructor) {
	r.mu.Lock()
	r.constructors[name] = ctor
	r.mu.Unlock()
}

// Create builds a session from the named provider.
func (r *AgentRegistry) Create(name string, cfg map[string]any) (types.AgentSession, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, types.Errorf(types.KindNotFound, "registry.Agent",
			"unknown agent provider %q (available: %v)", name, r.Names())
	}
	return ctor(cfg)
}

// Names lists registered providers, sorted.
func (r *AgentRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LLMRegistry maps provider names to LLM-client constructors.
type LLMRegistry struct {
	mu           sync.RWMutex
	constructors map[string]types.LLMConstructor
}

// NewLLMRegistry returns an empty LLM registry.
func NewLLMRegistry() *LLMRegistry {
	return &LLMRegistry{constructors: make(map[string]types.LLMConstructor)}
}

// Register installs a constructor under name, replacing any previous one.
func (r *LLMRegistry) Register(name string, ctor types.LLMConstructor) {
	r.mu.Lock()
	r.constructors[name] = ctor
	r.mu.Unlock()
}

// Create builds a client from the named provider.
func (r *LLMRegistry) Create(name string, cfg map[string]any) (types.LLMClient, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, types.Errorf(types.KindNotFound, "registry.LLM",
			"unknown LLM provider %q (available: %v)", name, r.Names())
	}
	return ctor(cfg)
}

// Names lists registered providers, sorted.
func (r *LLMRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
