// Package confidence combines the pipeline's signals into one calibrated
// value. The decomposition is kept alongside the score so later
// calibration analysis can see which signal drove each decision.
package confidence

import (
	"obra/internal/config"
	"obra/internal/logging"
)

// Signals are the raw inputs to one scoring.
type Signals struct {
	ValidatorPassed bool
	QualityScore    float64
	AgentHealthy    bool
	// Iteration is the 1-based iteration counter.
	Iteration     int
	MaxIterations int
	// PriorFailures counts failed or escalated outcomes in this item's
	// interaction history.
	PriorFailures int
	PriorTotal    int
}

// Decomposition is the per-signal contribution, persisted with the
// Interaction for calibration analysis.
type Decomposition struct {
	Validator   float64 `json:"validator"`
	Quality     float64 `json:"quality"`
	AgentHealth float64 `json:"agent_health"`
	Iteration   float64 `json:"iteration"`
	History     float64 `json:"history"`
	Score       float64 `json:"score"`
}

// Components flattens the decomposition into the shape persisted on each
// Interaction for calibration analysis.
func (d Decomposition) Components() map[string]float64 {
	return map[string]float64{
		"validator":    d.Validator,
		"quality":      d.Quality,
		"agent_health": d.AgentHealth,
		"iteration":    d.Iteration,
		"history":      d.History,
	}
}

// Scorer computes the weighted ensemble.
type Scorer struct {
	cfg config.DecisionConfig
}

// New creates a scorer from the decision configuration.
func New(cfg config.DecisionConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score combines the signals into [0,1] plus its decomposition.
func (s *Scorer) Score(sig Signals) Decomposition {
	d := Decomposition{}

	if sig.ValidatorPassed {
		d.Validator = 1.0
	}
	d.Quality = clamp(sig.QualityScore)
	if sig.AgentHealthy {
		d.AgentHealth = 1.0
	}

	// Later iterations mean less confidence: linear decay from 1 at the
	// first iteration to 0 at the cap.
	d.Iteration = 1.0
	if sig.MaxIterations > 1 && sig.Iteration > 1 {
		d.Iteration = 1.0 - float64(sig.Iteration-1)/float64(sig.MaxIterations-1)
		d.Iteration = clamp(d.Iteration)
	}

	// Prior failures of the same item drag history down proportionally.
	d.History = 1.0
	if sig.PriorTotal > 0 {
		d.History = 1.0 - float64(sig.PriorFailures)/float64(sig.PriorTotal)
		d.History = clamp(d.History)
	}

	d.Score = clamp(s.cfg.ValidatorWeight*d.Validator +
		s.cfg.QualityWeight*d.Quality +
		s.cfg.AgentHealthWeight*d.AgentHealth +
		s.cfg.IterationWeight*d.Iteration +
		s.cfg.HistoryWeight*d.History)

	logging.Get(logging.CategoryValidation).Debug(
		"Confidence: score=%.3f (validator=%.2f quality=%.2f health=%.2f iter=%.2f history=%.2f)",
		d.Score, d.Validator, d.Quality, d.AgentHealth, d.Iteration, d.History)
	return d
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
