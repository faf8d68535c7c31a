package config

import "time"

// OrchestrationConfig bounds the iteration driver and the scheduler.
type OrchestrationConfig struct {
	MaxIterations           int `yaml:"max_iterations"`
	IterationTimeoutSeconds int `yaml:"iteration_timeout_seconds"`
	WorkItemTimeoutSeconds  int `yaml:"work_item_timeout_seconds"`
	ConcurrentItems         int `yaml:"concurrent_items"`
}

// DefaultOrchestrationConfig returns sensible defaults: serial execution,
// ten iterations per item.
func DefaultOrchestrationConfig() OrchestrationConfig {
	return OrchestrationConfig{
		MaxIterations:           10,
		IterationTimeoutSeconds: 600,
		WorkItemTimeoutSeconds:  3600,
		ConcurrentItems:         1,
	}
}

// IterationTimeout returns the per-iteration deadline.
func (c OrchestrationConfig) IterationTimeout() time.Duration {
	return time.Duration(c.IterationTimeoutSeconds) * time.Second
}

// WorkItemTimeout returns the whole-item deadline.
func (c OrchestrationConfig) WorkItemTimeout() time.Duration {
	return time.Duration(c.WorkItemTimeoutSeconds) * time.Second
}

// RetryConfig drives the Retry Manager's backoff schedule.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts"`
	BaseDelaySeconds float64 `yaml:"base_delay_seconds"`
	MaxDelaySeconds  float64 `yaml:"max_delay_seconds"`
	Multiplier       float64 `yaml:"multiplier"`
	JitterSeconds    float64 `yaml:"jitter_seconds"`
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:      3,
		BaseDelaySeconds: 1,
		MaxDelaySeconds:  30,
		Multiplier:       2,
		JitterSeconds:    0.5,
	}
}

// BaseDelay returns the base delay as a duration.
func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelaySeconds * float64(time.Second))
}

// MaxDelay returns the delay cap as a duration.
func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySeconds * float64(time.Second))
}

// Jitter returns the uniform jitter bound as a duration.
func (c RetryConfig) Jitter() time.Duration {
	return time.Duration(c.JitterSeconds * float64(time.Second))
}

// DecisionConfig carries the Decision Engine thresholds and the confidence
// ensemble weights.
type DecisionConfig struct {
	HighConfidence   float64 `yaml:"high_confidence"`
	MediumConfidence float64 `yaml:"medium_confidence"`
	AcceptQuality    float64 `yaml:"accept_quality"`
	RetryCap         int     `yaml:"retry_cap"`

	// Confidence ensemble weights; normalized by the scorer.
	ValidatorWeight   float64 `yaml:"validator_weight"`
	QualityWeight     float64 `yaml:"quality_weight"`
	AgentHealthWeight float64 `yaml:"agent_health_weight"`
	IterationWeight   float64 `yaml:"iteration_weight"`
	HistoryWeight     float64 `yaml:"history_weight"`
}

// DefaultDecisionConfig returns the documented safe defaults.
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		HighConfidence:    0.85,
		MediumConfidence:  0.65,
		AcceptQuality:     0.7,
		RetryCap:          3,
		ValidatorWeight:   0.30,
		QualityWeight:     0.40,
		AgentHealthWeight: 0.10,
		IterationWeight:   0.10,
		HistoryWeight:     0.10,
	}
}

// DependenciesConfig bounds the work-item dependency graph.
type DependenciesConfig struct {
	MaxDepth    int  `yaml:"max_depth"`
	AllowCycles bool `yaml:"allow_cycles"` // must remain false
}

// DefaultDependenciesConfig returns sensible defaults.
func DefaultDependenciesConfig() DependenciesConfig {
	return DependenciesConfig{MaxDepth: 10, AllowCycles: false}
}

// DatabaseConfig locates the persistence store.
type DatabaseConfig struct {
	// URL is a stable URI identifying the store. For SQLite this is a
	// filesystem path or ":memory:".
	URL string `yaml:"url"`
}

// DefaultDatabaseConfig returns sensible defaults.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{URL: ".obra/obra.db"}
}
