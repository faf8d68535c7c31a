// Package config holds all Obra configuration. A single hierarchical
// document is merged from, in precedence order: environment overrides,
// user-provided file, project file, bundled defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Agent         AgentConfig         `yaml:"agent"`
	LLM           LLMConfig           `yaml:"llm"`
	Orchestration OrchestrationConfig `yaml:"orchestration"`
	Retry         RetryConfig         `yaml:"retry"`
	Decision      DecisionConfig      `yaml:"decision"`
	Dependencies  DependenciesConfig  `yaml:"dependencies"`
	Database      DatabaseConfig      `yaml:"database"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// Default returns the bundled defaults.
func Default() *Config {
	return &Config{
		Name:          "obra",
		Version:       "0.1.0",
		Agent:         DefaultAgentConfig(),
		LLM:           DefaultLLMConfig(),
		Orchestration: DefaultOrchestrationConfig(),
		Retry:         DefaultRetryConfig(),
		Decision:      DefaultDecisionConfig(),
		Dependencies:  DefaultDependenciesConfig(),
		Database:      DefaultDatabaseConfig(),
		Logging:       DefaultLoggingConfig(),
	}
}

// Load builds the effective config. projectPath and userPath may be empty
// or point at missing files; both cases fall through to the next layer.
func Load(projectPath, userPath string) (*Config, error) {
	cfg := Default()

	for _, path := range []string{projectPath, userPath} {
		if path == "" {
			continue
		}
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays one YAML file onto cfg. Missing files are skipped.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies OBRA_* environment variables, the highest
// precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OBRA_AGENT_TYPE"); v != "" {
		c.Agent.Type = v
	}
	if v := os.Getenv("OBRA_AGENT_WORKSPACE"); v != "" {
		c.Agent.Workspace = v
	}
	if v := os.Getenv("OBRA_AGENT_BINARY"); v != "" {
		c.Agent.Binary = v
	}
	if v := os.Getenv("OBRA_LLM_TYPE"); v != "" {
		c.LLM.Type = v
	}
	if v := os.Getenv("OBRA_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("OBRA_LLM_ENDPOINT"); v != "" {
		c.LLM.Endpoint = v
	}
	if v := os.Getenv("OBRA_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("OBRA_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("OBRA_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Orchestration.MaxIterations = n
		}
	}
	if v := os.Getenv("OBRA_CONCURRENT_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Orchestration.ConcurrentItems = n
		}
	}
	if v := os.Getenv("OBRA_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
	// Fall back to common provider keys when no explicit key is set.
	if c.LLM.APIKey == "" {
		for _, name := range []string{"GEMINI_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY"} {
			if v := os.Getenv(name); v != "" {
				c.LLM.APIKey = v
				break
			}
		}
	}
}

// Validate enforces the cross-field constraints the rest of the system
// assumes.
func (c *Config) Validate() error {
	if c.Dependencies.AllowCycles {
		return fmt.Errorf("dependencies.allow_cycles must be false")
	}
	if c.Agent.Workspace != "" && !filepath.IsAbs(c.Agent.Workspace) {
		return fmt.Errorf("agent.workspace must be an absolute path, got %q", c.Agent.Workspace)
	}
	if c.Orchestration.MaxIterations <= 0 {
		return fmt.Errorf("orchestration.max_iterations must be positive")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1")
	}
	if c.Decision.HighConfidence < c.Decision.MediumConfidence {
		return fmt.Errorf("decision.high_confidence must be >= decision.medium_confidence")
	}
	return nil
}

// Save writes the config to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
