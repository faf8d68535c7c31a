package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "openai", cfg.LLM.Type)
	assert.Equal(t, 10, cfg.Orchestration.MaxIterations)
	assert.Equal(t, 1, cfg.Orchestration.ConcurrentItems)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 0.85, cfg.Decision.HighConfidence)
	assert.Equal(t, 0.65, cfg.Decision.MediumConfidence)
	assert.False(t, cfg.Dependencies.AllowCycles)
	assert.False(t, cfg.Logging.DebugMode, "logging defaults off")
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	d := DefaultDecisionConfig()
	sum := d.ValidatorWeight + d.QualityWeight + d.AgentHealthWeight + d.IterationWeight + d.HistoryWeight
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestLoadMissingFilesFallsThrough(t *testing.T) {
	cfg, err := Load("/nonexistent/project.yaml", "/nonexistent/user.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default().Orchestration, cfg.Orchestration)
}

func TestLoadProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
orchestration:
  max_iterations: 25
llm:
  type: gemini
  model: gemini-2.0-flash
decision:
  retry_cap: 5
`), 0644))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Orchestration.MaxIterations)
	assert.Equal(t, "gemini", cfg.LLM.Type)
	assert.Equal(t, 5, cfg.Decision.RetryCap)
	// Untouched fields keep defaults.
	assert.Equal(t, 600, cfg.Orchestration.IterationTimeoutSeconds)
}

func TestLoadUserFileOverridesProject(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "project.yaml")
	user := filepath.Join(dir, "user.yaml")
	require.NoError(t, os.WriteFile(project, []byte("orchestration:\n  max_iterations: 25\n"), 0644))
	require.NoError(t, os.WriteFile(user, []byte("orchestration:\n  max_iterations: 7\n"), 0644))

	cfg, err := Load(project, user)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Orchestration.MaxIterations)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - ["), 0644))

	_, err := Load(path, "")
	assert.Error(t, err)
}

func TestEnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("orchestration:\n  max_iterations: 25\nllm:\n  model: from-file\n"), 0644))

	t.Setenv("OBRA_MAX_ITERATIONS", "3")
	t.Setenv("OBRA_LLM_MODEL", "from-env")
	t.Setenv("OBRA_DEBUG", "true")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Orchestration.MaxIterations)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.True(t, cfg.Logging.DebugMode)
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("OBRA_MAX_ITERATIONS", "not-a-number")
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Orchestration.MaxIterations)
}

func TestAPIKeyFallbackFromProviderEnv(t *testing.T) {
	t.Setenv("OBRA_LLM_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gk-123")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "gk-123", cfg.LLM.APIKey)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"cycles allowed", func(c *Config) { c.Dependencies.AllowCycles = true }},
		{"relative workspace", func(c *Config) { c.Agent.Workspace = "relative/path" }},
		{"zero iterations", func(c *Config) { c.Orchestration.MaxIterations = 0 }},
		{"shrinking backoff", func(c *Config) { c.Retry.Multiplier = 0.5 }},
		{"inverted thresholds", func(c *Config) {
			c.Decision.HighConfidence = 0.5
			c.Decision.MediumConfidence = 0.9
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := Default()
	cfg.Orchestration.MaxIterations = 42
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Orchestration.MaxIterations)
}

func TestSettingsFlattening(t *testing.T) {
	llm := DefaultLLMConfig()
	s := llm.Settings()
	assert.Equal(t, llm.Model, s["model"])
	assert.Equal(t, llm.MaxTokens, s["max_tokens"])

	agent := DefaultAgentConfig()
	agent.Workspace = "/tmp/ws"
	as := agent.Settings()
	assert.Equal(t, "/tmp/ws", as["workspace"])
	assert.Equal(t, true, as["bypass_permissions"])
}

func TestTimeoutHelpers(t *testing.T) {
	assert.Equal(t, DefaultLLMConfig().Timeout().Seconds(), 120.0)
	assert.Equal(t, DefaultAgentConfig().ResponseTimeout().Seconds(), 300.0)

	o := DefaultOrchestrationConfig()
	assert.Equal(t, 600.0, o.IterationTimeout().Seconds())
	assert.Equal(t, 3600.0, o.WorkItemTimeout().Seconds())
}
