// Package decision is the final pipeline stage: a pure mapping from the
// scores and loop state to one of {accept, retry, clarify, escalate,
// stop}. All state it consults is passed in; the engine itself holds only
// configuration.
package decision

import (
	"fmt"

	"obra/internal/config"
	"obra/internal/logging"
	"obra/internal/types"
)

// Inputs is everything one decision may depend on. The engine is a pure
// function of this struct; identical inputs always produce identical
// outcomes.
type Inputs struct {
	ValidatorPassed     bool
	ValidatorViolations []string
	QualityScore        float64
	QualityIssues       []string
	Confidence          float64

	// Iteration is 1-based; MaxIterations is the loop bound.
	Iteration     int
	MaxIterations int
	// ConsecutiveRetries counts validator-driven retries without an
	// intervening pass.
	ConsecutiveRetries int

	// StopRequested is set when a stop command is pending at decision time.
	StopRequested bool
	// Override replaces the computed action for this iteration only; nil
	// means no override.
	Override *types.Action
}

// Outcome is the chosen action with its reason and any feedback destined
// for the next prompt.
type Outcome struct {
	Action   types.Action
	Reason   string
	Feedback []string
	// Overridden marks outcomes replaced by an interactive command.
	Overridden bool
}

// Engine applies the ordered decision rules.
type Engine struct {
	cfg config.DecisionConfig
}

// New creates an engine from the decision configuration.
func New(cfg config.DecisionConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Decide applies the rules in order; the first match wins.
func (e *Engine) Decide(in Inputs) Outcome {
	out := e.decide(in)
	if in.Override != nil && types.ValidAction(string(*in.Override)) {
		out = Outcome{
			Action:     *in.Override,
			Reason:     fmt.Sprintf("user override (computed: %s)", out.Action),
			Feedback:   out.Feedback,
			Overridden: true,
		}
	}
	logging.Get(logging.CategoryDecision).Info("Decision: %s (%s) iter=%d/%d conf=%.2f quality=%.2f",
		out.Action, out.Reason, in.Iteration, in.MaxIterations, in.Confidence, in.QualityScore)
	return out
}

func (e *Engine) decide(in Inputs) Outcome {
	if in.StopRequested {
		return Outcome{Action: types.ActionStop, Reason: "stop requested"}
	}
	if in.Iteration >= in.MaxIterations {
		return Outcome{Action: types.ActionEscalate, Reason: "max iterations"}
	}
	if !in.ValidatorPassed {
		if in.ConsecutiveRetries >= e.cfg.RetryCap {
			return Outcome{
				Action: types.ActionEscalate,
				Reason: fmt.Sprintf("validator rejected %d consecutive responses", in.ConsecutiveRetries),
			}
		}
		return Outcome{
			Action:   types.ActionRetry,
			Reason:   "validator rejected response",
			Feedback: in.ValidatorViolations,
		}
	}
	if in.Confidence >= e.cfg.HighConfidence && in.QualityScore >= e.cfg.AcceptQuality {
		return Outcome{Action: types.ActionAccept, Reason: "high confidence, acceptable quality"}
	}
	if in.Confidence >= e.cfg.MediumConfidence {
		return Outcome{
			Action:   types.ActionClarify,
			Reason:   "medium confidence",
			Feedback: in.QualityIssues,
		}
	}
	return Outcome{Action: types.ActionEscalate, Reason: fmt.Sprintf("confidence %.2f below floor", in.Confidence)}
}
