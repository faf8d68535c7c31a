package main

import (
	"path/filepath"

	"obra/internal/agent"
	"obra/internal/llm"
	"obra/internal/registry"
	"obra/internal/state"
	"obra/internal/store"
	"obra/internal/types"
)

// openState opens the store and wraps it in a StateManager. The caller
// closes via the returned store.
func openState() (*store.Store, *state.Manager, error) {
	path := cfg.Database.URL
	if path != ":memory:" && !filepath.IsAbs(path) {
		path = filepath.Join(resolveWorkspace(), path)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return st, state.New(st, cfg.Dependencies), nil
}

// buildLLM constructs the configured Supervisor LLM client through the
// plugin registry.
func buildLLM() (types.LLMClient, error) {
	reg := registry.NewLLMRegistry()
	llm.RegisterDefaults(reg)
	return reg.Create(cfg.LLM.Type, cfg.LLM.Settings())
}

// buildAgent constructs the configured executor session through the
// plugin registry.
func buildAgent() (types.AgentSession, error) {
	reg := registry.NewAgentRegistry()
	agent.RegisterDefaults(reg)
	settings := cfg.Agent.Settings()
	settings["workspace"] = resolveWorkspace()
	return reg.Create(cfg.Agent.Type, settings)
}
