package prompt

import (
	"fmt"
	"strings"

	"obra/internal/types"
)

// Rules names the mechanical checks a response must satisfy. The builder
// writes them into the structured header; the validator reads the same
// struct back, so the contract is stated exactly once.
type Rules struct {
	RequiredSections []string
	SchemaFields     []string
	MinLength        int
}

// DefaultRules returns the per-kind response contract.
func DefaultRules(kind types.WorkItemKind) Rules {
	switch kind {
	case types.KindEpic, types.KindStory:
		return Rules{
			RequiredSections: []string{"PLAN", "BREAKDOWN"},
			MinLength:        200,
		}
	default:
		return Rules{
			RequiredSections: []string{"SUMMARY", "CHANGES", "VERIFICATION"},
			MinLength:        100,
		}
	}
}

// Builder produces the hybrid prompt: a key/value metadata header the
// validator can parse mechanically, then prose instructions.
type Builder struct{}

// NewBuilder creates a prompt builder.
func NewBuilder() *Builder { return &Builder{} }

// Input carries everything one prompt needs.
type Input struct {
	Item      *types.WorkItem
	Iteration int
	Context   string
	// Feedback is validator violations or quality issues from the prior
	// iteration, re-injected as correction guidance.
	Feedback []string
	Rules    Rules
}

// Build renders the hybrid prompt.
func (b *Builder) Build(in Input) string {
	var sb strings.Builder

	sb.WriteString("=== TASK METADATA ===\n")
	fmt.Fprintf(&sb, "task_id: %d\n", in.Item.ID)
	fmt.Fprintf(&sb, "kind: %s\n", in.Item.Kind)
	fmt.Fprintf(&sb, "iteration: %d\n", in.Iteration)
	fmt.Fprintf(&sb, "required_sections: %s\n", strings.Join(in.Rules.RequiredSections, ","))
	if len(in.Rules.SchemaFields) > 0 {
		fmt.Fprintf(&sb, "schema_fields: %s\n", strings.Join(in.Rules.SchemaFields, ","))
	}
	fmt.Fprintf(&sb, "min_length: %d\n", in.Rules.MinLength)
	sb.WriteString("=== END METADATA ===\n\n")

	if in.Context != "" {
		sb.WriteString(in.Context)
		sb.WriteString("\n")
	}

	sb.WriteString("## instructions\n")
	fmt.Fprintf(&sb, "Complete the work item above. Structure your answer with the sections %s, each as a markdown heading.\n",
		strings.Join(in.Rules.RequiredSections, ", "))
	sb.WriteString("Report every file you create or modify. If you cannot finish, say exactly what is missing and why.\n")

	if len(in.Feedback) > 0 {
		sb.WriteString("\n## corrections from the previous attempt\n")
		for _, f := range in.Feedback {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
		sb.WriteString("Address every correction before anything else.\n")
	}
	return sb.String()
}
