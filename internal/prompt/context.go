// Package prompt assembles what the executor sees each iteration: a
// context window built from persisted state, then a hybrid prompt with a
// machine-readable header and prose instructions. Continuity between
// iterations lives here, not in the agent session.
package prompt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"obra/internal/logging"
	"obra/internal/types"
)

// Section priorities, highest first. When the budget is exceeded the
// lowest-priority remaining section is dropped first.
const (
	PriorityHeader = iota
	PriorityConstraints
	PriorityGuidance
	PriorityLatestInteraction
	PriorityPriorOutcomes
	PriorityLineage
	PriorityGlossary
)

// Section is one candidate block of the assembled context.
type Section struct {
	Name     string
	Priority int
	Content  string
	// MustPersist marks sections whose decisions survive as a one-line
	// summary instead of being dropped outright.
	MustPersist bool
}

// ContextInput is everything the builder may draw on for one iteration.
type ContextInput struct {
	Item         *types.WorkItem
	Epic         *types.WorkItem
	Story        *types.WorkItem
	Interactions []*types.Interaction
	SystemPrompt string
	Glossary     string
	// Guidance is user text injected through a checkpoint command.
	Guidance string
}

// ContextBuilder composes per-iteration context under a token budget.
// For a fixed budget and input set composition is deterministic;
// LLM-produced summaries are cached so repeats are reproducible.
type ContextBuilder struct {
	client             types.LLMClient
	reserveForResponse int
	safetyMargin       int

	mu        sync.Mutex
	summaries map[string]string
}

// NewContextBuilder creates a builder over the Supervisor LLM client.
func NewContextBuilder(client types.LLMClient) *ContextBuilder {
	return &ContextBuilder{
		client:             client,
		reserveForResponse: 4096,
		safetyMargin:       1024,
		summaries:          make(map[string]string),
	}
}

// Budget returns the token budget for assembled context.
func (b *ContextBuilder) Budget() int {
	budget := b.client.ModelInfo().ContextWindow - b.reserveForResponse - b.safetyMargin
	if budget < 1024 {
		budget = 1024
	}
	return budget
}

func itemHeader(in ContextInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Work item #%d [%s] %s\n", in.Item.ID, in.Item.Kind, in.Item.Title)
	fmt.Fprintf(&sb, "Status: %s  Retries so far: %d/%d\n", in.Item.Status, in.Item.RetryCount, in.Item.MaxRetries)
	if in.Item.Description != "" {
		sb.WriteString(in.Item.Description)
		sb.WriteString("\n")
	}
	return sb.String()
}

func lineageSection(in ContextInput) string {
	var sb strings.Builder
	if in.Epic != nil {
		fmt.Fprintf(&sb, "Epic #%d: %s - %s\n", in.Epic.ID, in.Epic.Title, firstLine(in.Epic.Description))
	}
	if in.Story != nil {
		fmt.Fprintf(&sb, "Story #%d: %s - %s\n", in.Story.ID, in.Story.Title, firstLine(in.Story.Description))
	}
	return sb.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func interactionLine(in *types.Interaction) string {
	return fmt.Sprintf("iter %d: decision=%s quality=%.2f confidence=%.2f", in.Iteration, in.Decision, in.QualityScore, in.ConfidenceScore)
}

// sections builds the candidate list in priority order.
func (b *ContextBuilder) sections(in ContextInput) []Section {
	out := []Section{{Name: "work_item", Priority: PriorityHeader, Content: itemHeader(in), MustPersist: true}}
	if in.SystemPrompt != "" {
		out = append(out, Section{Name: "constraints", Priority: PriorityConstraints, Content: in.SystemPrompt, MustPersist: true})
	}
	if in.Guidance != "" {
		out = append(out, Section{Name: "user_guidance", Priority: PriorityGuidance, Content: in.Guidance, MustPersist: true})
	}
	if n := len(in.Interactions); n > 0 {
		latest := in.Interactions[n-1]
		out = append(out, Section{
			Name:     "latest_interaction",
			Priority: PriorityLatestInteraction,
			Content:  fmt.Sprintf("%s\nResponse excerpt:\n%s", interactionLine(latest), latest.Response),
		})
		if n > 1 {
			var sb strings.Builder
			// Most recent first, latest excluded.
			for i := n - 2; i >= 0; i-- {
				sb.WriteString(interactionLine(in.Interactions[i]))
				sb.WriteString("\n")
			}
			out = append(out, Section{Name: "prior_outcomes", Priority: PriorityPriorOutcomes, Content: sb.String()})
		}
	}
	if lineage := lineageSection(in); lineage != "" {
		out = append(out, Section{Name: "lineage", Priority: PriorityLineage, Content: lineage})
	}
	if in.Glossary != "" {
		out = append(out, Section{Name: "glossary", Priority: PriorityGlossary, Content: in.Glossary})
	}
	return out
}

// Build assembles the context string for one iteration.
func (b *ContextBuilder) Build(ctx context.Context, in ContextInput) (string, error) {
	budget := b.Budget()
	sections := b.sections(in)

	// A single over-budget section is summarized down before the drop
	// loop so it competes at a fair size.
	for i := range sections {
		if b.client.EstimateTokens(sections[i].Content) > budget {
			summary, err := b.summarize(ctx, sections[i].Content, budget/4)
			if err != nil {
				return "", err
			}
			sections[i].Content = summary
		}
	}

	for b.estimate(sections) > budget && len(sections) > 1 {
		// Drop the lowest-priority remaining section; persist a one-line
		// summary when it carries decisions.
		idx := 0
		for i, s := range sections {
			if s.Priority > sections[idx].Priority {
				idx = i
			}
		}
		victim := sections[idx]
		if victim.MustPersist {
			line, err := b.summarize(ctx, victim.Content, 32)
			if err != nil {
				return "", err
			}
			sections[idx].Content = line
			sections[idx].MustPersist = false
			continue
		}
		logging.Get(logging.CategoryPrompt).Debug("Dropping context section %q (over budget)", victim.Name)
		sections = append(sections[:idx], sections[idx+1:]...)
	}

	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Priority < sections[j].Priority })
	var sb strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&sb, "## %s\n%s\n", s.Name, strings.TrimRight(s.Content, "\n"))
	}
	return sb.String(), nil
}

func (b *ContextBuilder) estimate(sections []Section) int {
	total := 0
	for _, s := range sections {
		total += b.client.EstimateTokens(s.Content)
	}
	return total
}

// summarize asks the Supervisor LLM to compress text to roughly target
// tokens, caching by content digest so repeats are stable.
func (b *ContextBuilder) summarize(ctx context.Context, text string, targetTokens int) (string, error) {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s", targetTokens, text)))
	key := hex.EncodeToString(sum[:])

	b.mu.Lock()
	if cached, ok := b.summaries[key]; ok {
		b.mu.Unlock()
		return cached, nil
	}
	b.mu.Unlock()

	p := fmt.Sprintf(
		"Summarize the following in at most %d tokens. Keep every decision, constraint, and file path; drop narration.\n\n%s",
		targetTokens, text)
	out, err := b.client.Generate(ctx, p, types.GenerateOptions{MaxTokens: targetTokens * 2})
	if err != nil {
		return "", err
	}
	if b.client.EstimateTokens(out) > targetTokens*2 {
		out = truncateTokens(out, targetTokens*2)
	}

	b.mu.Lock()
	b.summaries[key] = out
	b.mu.Unlock()
	return out, nil
}

// truncateTokens clips text to approximately n tokens.
func truncateTokens(text string, n int) string {
	max := n * 4
	if len(text) <= max {
		return text
	}
	return text[:max]
}
