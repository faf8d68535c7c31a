package command

import (
	"strings"
	"testing"

	"obra/internal/types"
)

func TestParseBareVerbs(t *testing.T) {
	for _, verb := range []string{"pause", "resume", "stop"} {
		cmd, err := Parse(verb)
		if err != nil {
			t.Fatalf("Parse(%q): %v", verb, err)
		}
		if cmd.Kind != Kind(verb) {
			t.Errorf("Parse(%q) kind = %s", verb, cmd.Kind)
		}
	}
}

func TestParseBareVerbsRejectArguments(t *testing.T) {
	for _, line := range []string{"pause now", "resume please", "stop 3"} {
		if _, err := Parse(line); err == nil {
			t.Errorf("Parse(%q) should fail", line)
		}
	}
}

func TestParseToExecutorKeepsPayloadVerbatim(t *testing.T) {
	cmd, err := Parse("to-executor use table-driven tests,  not asserts")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != KindToExecutor {
		t.Fatalf("kind = %s", cmd.Kind)
	}
	if cmd.Text != "use table-driven tests,  not asserts" {
		t.Errorf("payload mangled: %q", cmd.Text)
	}
}

func TestParseToExecutorRequiresText(t *testing.T) {
	if _, err := Parse("to-executor"); err == nil {
		t.Fatal("bare to-executor should fail")
	}
}

func TestParseToSupervisorClassification(t *testing.T) {
	cases := []struct {
		text string
		want SupervisorClass
	}{
		{"to-supervisor require a VERIFICATION section", ClassValidationGuidance},
		{"to-supervisor check the imports compile", ClassValidationGuidance},
		{"to-supervisor lean toward retry on this one", ClassDecisionHint},
		{"to-supervisor accept if tests pass", ClassDecisionHint},
		{"to-supervisor what is the current plan?", ClassFeedbackRequest},
	}
	for _, tc := range cases {
		cmd, err := Parse(tc.text)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.text, err)
		}
		if cmd.Class != tc.want {
			t.Errorf("Parse(%q) class = %s, want %s", tc.text, cmd.Class, tc.want)
		}
	}
}

func TestParseOverrideDecision(t *testing.T) {
	cmd, err := Parse("override-decision escalate")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != KindOverrideDecision || cmd.Action != types.ActionEscalate {
		t.Errorf("got kind=%s action=%s", cmd.Kind, cmd.Action)
	}
}

func TestParseOverrideDecisionRejectsUnknownAction(t *testing.T) {
	for _, line := range []string{"override-decision", "override-decision ship", "override-decision accept now"} {
		if _, err := Parse(line); err == nil {
			t.Errorf("Parse(%q) should fail", line)
		}
	}
}

func TestParseUnknownVerb(t *testing.T) {
	_, err := Parse("reboot")
	if err == nil {
		t.Fatal("unknown verb should fail")
	}
	if types.KindOf(err) != types.KindInvariantViolation {
		t.Errorf("error kind = %s", types.KindOf(err))
	}
}

func TestParseEmptyLine(t *testing.T) {
	for _, line := range []string{"", "   ", "\t\n"} {
		if _, err := Parse(line); err == nil {
			t.Errorf("Parse(%q) should fail", line)
		}
	}
}

func TestCommandStringRoundTrip(t *testing.T) {
	lines := []string{
		"pause",
		"stop",
		"to-executor focus on the parser",
		"override-decision accept",
	}
	for _, line := range lines {
		cmd, err := Parse(line)
		if err != nil {
			t.Fatal(err)
		}
		re, err := Parse(cmd.String())
		if err != nil {
			t.Fatalf("re-parse of %q: %v", cmd.String(), err)
		}
		if re.Kind != cmd.Kind || re.Text != cmd.Text || re.Action != cmd.Action {
			t.Errorf("round trip of %q lost information: %+v vs %+v", line, re, cmd)
		}
	}
}

func TestQueueDrainPreservesArrivalOrder(t *testing.T) {
	q := NewQueue(8)
	inputs := []string{"pause", "to-executor a", "to-executor b", "resume"}
	for _, in := range inputs {
		if err := q.Submit(in); err != nil {
			t.Fatal(err)
		}
	}
	drained := q.Drain()
	if len(drained) != len(inputs) {
		t.Fatalf("drained %d, want %d", len(drained), len(inputs))
	}
	for i, cmd := range drained {
		if !strings.HasPrefix(inputs[i], string(cmd.Kind)) {
			t.Errorf("position %d: got %s, want prefix of %q", i, cmd.Kind, inputs[i])
		}
	}
	if q.Len() != 0 {
		t.Errorf("queue not empty after drain: %d", q.Len())
	}
}

func TestQueueRejectsWhenFull(t *testing.T) {
	q := NewQueue(2)
	if err := q.Submit("pause"); err != nil {
		t.Fatal(err)
	}
	if err := q.Submit("resume"); err != nil {
		t.Fatal(err)
	}
	err := q.Submit("stop")
	if err == nil {
		t.Fatal("full queue must reject, not block")
	}
	if types.KindOf(err) != types.KindConflict {
		t.Errorf("error kind = %s", types.KindOf(err))
	}
}

func TestQueueSubmitRejectsMalformedWithoutEnqueue(t *testing.T) {
	q := NewQueue(4)
	if err := q.Submit("garbage line"); err == nil {
		t.Fatal("malformed input should fail")
	}
	if q.Len() != 0 {
		t.Errorf("malformed input must not enqueue, len=%d", q.Len())
	}
}

func TestDrainEmptyQueueDoesNotBlock(t *testing.T) {
	q := NewQueue(0)
	if got := q.Drain(); len(got) != 0 {
		t.Errorf("expected nothing, got %v", got)
	}
}
