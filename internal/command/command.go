// Package command is the interactive plane between the user and a
// running iteration driver. Input arrives asynchronously on a bounded
// queue; the driver drains it at six fixed checkpoints per iteration.
package command

import (
	"fmt"
	"strings"

	"obra/internal/types"
)

// Kind enumerates the command grammar.
type Kind string

const (
	KindPause            Kind = "pause"
	KindResume           Kind = "resume"
	KindStop             Kind = "stop"
	KindToExecutor       Kind = "to-executor"
	KindToSupervisor     Kind = "to-supervisor"
	KindOverrideDecision Kind = "override-decision"
)

// SupervisorClass buckets to-supervisor guidance by what stage consumes it.
type SupervisorClass string

const (
	ClassValidationGuidance SupervisorClass = "validation-guidance"
	ClassDecisionHint       SupervisorClass = "decision-hint"
	ClassFeedbackRequest    SupervisorClass = "feedback-request"
)

// Command is one parsed user instruction.
type Command struct {
	Kind Kind
	// Text carries the payload of to-executor and to-supervisor.
	Text string
	// Class is set for to-supervisor commands.
	Class SupervisorClass
	// Action is set for override-decision commands.
	Action types.Action
}

// Parse turns one input line into a Command. Unknown verbs and malformed
// payloads return a typed error; the caller surfaces it without aborting
// the iteration.
func Parse(line string) (Command, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return Command{}, types.Errorf(types.KindInvariantViolation, "command.Parse", "empty command")
	}
	verb, rest := fields[0], strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch Kind(verb) {
	case KindPause, KindResume, KindStop:
		if rest != "" {
			return Command{}, types.Errorf(types.KindInvariantViolation, "command.Parse",
				"%s takes no arguments", verb)
		}
		return Command{Kind: Kind(verb)}, nil

	case KindToExecutor:
		if rest == "" {
			return Command{}, types.Errorf(types.KindInvariantViolation, "command.Parse",
				"to-executor requires text")
		}
		return Command{Kind: KindToExecutor, Text: rest}, nil

	case KindToSupervisor:
		if rest == "" {
			return Command{}, types.Errorf(types.KindInvariantViolation, "command.Parse",
				"to-supervisor requires text")
		}
		return Command{Kind: KindToSupervisor, Text: rest, Class: classify(rest)}, nil

	case KindOverrideDecision:
		action := types.Action(rest)
		if !types.ValidAction(rest) {
			return Command{}, types.Errorf(types.KindInvariantViolation, "command.Parse",
				"override-decision requires one of accept, retry, clarify, escalate, stop; got %q", rest)
		}
		return Command{Kind: KindOverrideDecision, Action: action}, nil
	}

	return Command{}, types.Errorf(types.KindInvariantViolation, "command.Parse",
		"unknown command %q", verb)
}

// classify buckets supervisor guidance by keyword; feedback-request is
// the default since a bare question is usually asking for information.
func classify(text string) SupervisorClass {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "valid") || strings.Contains(lower, "check") || strings.Contains(lower, "require"):
		return ClassValidationGuidance
	case strings.Contains(lower, "accept") || strings.Contains(lower, "retry") ||
		strings.Contains(lower, "escalate") || strings.Contains(lower, "decision"):
		return ClassDecisionHint
	}
	return ClassFeedbackRequest
}

// String renders the command back in grammar form.
func (c Command) String() string {
	switch c.Kind {
	case KindToExecutor, KindToSupervisor:
		return fmt.Sprintf("%s %s", c.Kind, c.Text)
	case KindOverrideDecision:
		return fmt.Sprintf("%s %s", c.Kind, c.Action)
	}
	return string(c.Kind)
}
