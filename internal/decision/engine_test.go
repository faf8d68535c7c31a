package decision

import (
	"testing"

	"obra/internal/config"
	"obra/internal/types"
)

func newTestEngine() *Engine {
	return New(config.DefaultDecisionConfig())
}

// passing inputs that clear every threshold.
func passingInputs() Inputs {
	return Inputs{
		ValidatorPassed: true,
		QualityScore:    0.9,
		Confidence:      0.9,
		Iteration:       1,
		MaxIterations:   10,
	}
}

func TestDecideAcceptOnHighConfidence(t *testing.T) {
	out := newTestEngine().Decide(passingInputs())
	if out.Action != types.ActionAccept {
		t.Fatalf("expected accept, got %s (%s)", out.Action, out.Reason)
	}
	if out.Overridden {
		t.Error("no override was supplied")
	}
}

func TestDecideStopWinsOverEverything(t *testing.T) {
	in := passingInputs()
	in.StopRequested = true
	out := newTestEngine().Decide(in)
	if out.Action != types.ActionStop {
		t.Fatalf("stop request must preempt accept, got %s", out.Action)
	}
}

func TestDecideEscalateAtIterationCap(t *testing.T) {
	in := passingInputs()
	in.Iteration = 10
	in.MaxIterations = 10
	out := newTestEngine().Decide(in)
	if out.Action != types.ActionEscalate {
		t.Fatalf("iteration cap must escalate, got %s", out.Action)
	}
}

func TestDecideRetryOnValidatorFailure(t *testing.T) {
	in := passingInputs()
	in.ValidatorPassed = false
	in.ValidatorViolations = []string{"missing required section \"SUMMARY\""}
	out := newTestEngine().Decide(in)
	if out.Action != types.ActionRetry {
		t.Fatalf("expected retry, got %s", out.Action)
	}
	if len(out.Feedback) != 1 || out.Feedback[0] != in.ValidatorViolations[0] {
		t.Errorf("violations must flow into feedback, got %v", out.Feedback)
	}
}

func TestDecideEscalateAfterConsecutiveValidatorFailures(t *testing.T) {
	in := passingInputs()
	in.ValidatorPassed = false
	in.ConsecutiveRetries = config.DefaultDecisionConfig().RetryCap
	out := newTestEngine().Decide(in)
	if out.Action != types.ActionEscalate {
		t.Fatalf("retry cap must escalate, got %s", out.Action)
	}
}

func TestDecideValidatorFailureBeatsHighConfidence(t *testing.T) {
	// A malformed response never gets accepted no matter how confident
	// the scorer is.
	in := passingInputs()
	in.ValidatorPassed = false
	in.Confidence = 1.0
	in.QualityScore = 1.0
	out := newTestEngine().Decide(in)
	if out.Action == types.ActionAccept {
		t.Fatal("accepted a response the validator rejected")
	}
}

func TestDecideClarifyOnMediumConfidence(t *testing.T) {
	in := passingInputs()
	in.Confidence = 0.7
	in.QualityIssues = []string{"tests not mentioned"}
	out := newTestEngine().Decide(in)
	if out.Action != types.ActionClarify {
		t.Fatalf("expected clarify, got %s", out.Action)
	}
	if len(out.Feedback) == 0 {
		t.Error("quality issues must flow into clarify feedback")
	}
}

func TestDecideClarifyWhenQualityBlocksAccept(t *testing.T) {
	// High confidence but quality below the accept bar falls through to
	// the medium-confidence rule.
	in := passingInputs()
	in.Confidence = 0.9
	in.QualityScore = 0.5
	out := newTestEngine().Decide(in)
	if out.Action != types.ActionClarify {
		t.Fatalf("expected clarify, got %s", out.Action)
	}
}

func TestDecideEscalateBelowConfidenceFloor(t *testing.T) {
	in := passingInputs()
	in.Confidence = 0.4
	out := newTestEngine().Decide(in)
	if out.Action != types.ActionEscalate {
		t.Fatalf("expected escalate, got %s", out.Action)
	}
}

func TestDecideOverrideReplacesComputedAction(t *testing.T) {
	in := passingInputs()
	override := types.ActionRetry
	in.Override = &override
	out := newTestEngine().Decide(in)
	if out.Action != types.ActionRetry {
		t.Fatalf("override not applied, got %s", out.Action)
	}
	if !out.Overridden {
		t.Error("Overridden flag not set")
	}
}

func TestDecideInvalidOverrideIgnored(t *testing.T) {
	in := passingInputs()
	override := types.Action("ship-it")
	in.Override = &override
	out := newTestEngine().Decide(in)
	if out.Action != types.ActionAccept || out.Overridden {
		t.Fatalf("invalid override must be ignored, got %s overridden=%v", out.Action, out.Overridden)
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	e := newTestEngine()
	in := passingInputs()
	in.Confidence = 0.7
	first := e.Decide(in)
	for i := 0; i < 5; i++ {
		if got := e.Decide(in); got.Action != first.Action || got.Reason != first.Reason {
			t.Fatalf("run %d diverged: %v vs %v", i, got, first)
		}
	}
}
