package config

import "time"

// AgentConfig configures the executor agent session.
type AgentConfig struct {
	Type                   string   `yaml:"type"` // headless, script
	Workspace              string   `yaml:"workspace"`
	Binary                 string   `yaml:"binary"`
	Args                   []string `yaml:"args"`
	ResponseTimeoutSeconds int      `yaml:"response_timeout_seconds"`
	BypassPermissions      bool     `yaml:"bypass_permissions"`
}

// DefaultAgentConfig returns sensible defaults. The workspace must be set
// by the project before a session can be created.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Type:                   "headless",
		ResponseTimeoutSeconds: 300,
		BypassPermissions:      true,
	}
}

// ResponseTimeout returns the per-Send deadline as a duration.
func (c AgentConfig) ResponseTimeout() time.Duration {
	if c.ResponseTimeoutSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.ResponseTimeoutSeconds) * time.Second
}

// Settings flattens the config for the plugin registry constructors.
func (c AgentConfig) Settings() map[string]any {
	return map[string]any{
		"workspace":                c.Workspace,
		"binary":                   c.Binary,
		"args":                     c.Args,
		"response_timeout_seconds": c.ResponseTimeoutSeconds,
		"bypass_permissions":       c.BypassPermissions,
	}
}
