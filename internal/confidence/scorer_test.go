package confidence

import (
	"math"
	"testing"

	"obra/internal/config"
)

func newTestScorer() *Scorer {
	return New(config.DefaultDecisionConfig())
}

func bestSignals() Signals {
	return Signals{
		ValidatorPassed: true,
		QualityScore:    1.0,
		AgentHealthy:    true,
		Iteration:       1,
		MaxIterations:   10,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScorePerfectSignals(t *testing.T) {
	d := newTestScorer().Score(bestSignals())
	// Default weights sum to 1, so every signal at 1.0 scores 1.0.
	if !almostEqual(d.Score, 1.0) {
		t.Fatalf("perfect signals should score 1.0, got %.4f", d.Score)
	}
}

func TestScoreStaysInUnitInterval(t *testing.T) {
	cases := []Signals{
		{},
		{QualityScore: -3},
		{QualityScore: 42, ValidatorPassed: true, AgentHealthy: true},
		{Iteration: 100, MaxIterations: 10},
		{PriorFailures: 50, PriorTotal: 10},
	}
	s := newTestScorer()
	for i, sig := range cases {
		d := s.Score(sig)
		if d.Score < 0 || d.Score > 1 {
			t.Errorf("case %d: score %.4f out of [0,1]", i, d.Score)
		}
	}
}

func TestScoreIterationDecay(t *testing.T) {
	s := newTestScorer()
	sig := bestSignals()

	prev := s.Score(sig).Iteration
	if !almostEqual(prev, 1.0) {
		t.Fatalf("first iteration decay should be 1.0, got %.4f", prev)
	}
	for iter := 2; iter <= sig.MaxIterations; iter++ {
		sig.Iteration = iter
		cur := s.Score(sig).Iteration
		if cur >= prev {
			t.Fatalf("iteration component must decrease: iter=%d %.4f >= %.4f", iter, cur, prev)
		}
		prev = cur
	}
	if !almostEqual(prev, 0.0) {
		t.Errorf("decay at the cap should reach 0, got %.4f", prev)
	}
}

func TestScoreHistoryPenalty(t *testing.T) {
	s := newTestScorer()

	clean := bestSignals()
	clean.PriorTotal = 4
	tainted := clean
	tainted.PriorFailures = 2

	if s.Score(tainted).Score >= s.Score(clean).Score {
		t.Fatal("prior failures must lower the score")
	}
	if got := s.Score(tainted).History; !almostEqual(got, 0.5) {
		t.Errorf("2/4 failures should give history 0.5, got %.4f", got)
	}
}

func TestScoreEmptyHistoryIsNeutral(t *testing.T) {
	d := newTestScorer().Score(bestSignals())
	if !almostEqual(d.History, 1.0) {
		t.Errorf("no prior interactions should leave history at 1.0, got %.4f", d.History)
	}
}

func TestScoreValidatorDominatesWhenWeighted(t *testing.T) {
	cfg := config.DefaultDecisionConfig()
	s := New(cfg)

	passed := bestSignals()
	failed := passed
	failed.ValidatorPassed = false

	gap := s.Score(passed).Score - s.Score(failed).Score
	if !almostEqual(gap, cfg.ValidatorWeight) {
		t.Errorf("validator flip should move the score by its weight %.2f, moved %.4f", cfg.ValidatorWeight, gap)
	}
}

func TestScoreDecompositionSumsToScore(t *testing.T) {
	cfg := config.DefaultDecisionConfig()
	s := New(cfg)
	sig := Signals{
		ValidatorPassed: true,
		QualityScore:    0.6,
		AgentHealthy:    true,
		Iteration:       3,
		MaxIterations:   10,
		PriorFailures:   1,
		PriorTotal:      2,
	}
	d := s.Score(sig)
	want := cfg.ValidatorWeight*d.Validator +
		cfg.QualityWeight*d.Quality +
		cfg.AgentHealthWeight*d.AgentHealth +
		cfg.IterationWeight*d.Iteration +
		cfg.HistoryWeight*d.History
	if !almostEqual(d.Score, want) {
		t.Errorf("score %.6f does not match weighted components %.6f", d.Score, want)
	}
}

func TestComponentsMirrorDecomposition(t *testing.T) {
	d := Decomposition{Validator: 1, Quality: 0.6, AgentHealth: 1, Iteration: 0.75, History: 0.5, Score: 0.81}
	got := d.Components()
	want := map[string]float64{
		"validator": 1, "quality": 0.6, "agent_health": 1, "iteration": 0.75, "history": 0.5,
	}
	if len(got) != len(want) {
		t.Fatalf("components = %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("component %s = %v, want %v", k, got[k], v)
		}
	}
}
