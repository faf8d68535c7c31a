// Package quality is the second pipeline stage: an LLM-assisted judgment
// of whether the executor's response actually solves the work item. A
// failed evaluation call is itself a signal, not a crash.
package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"obra/internal/logging"
	"obra/internal/types"
)

// ScoreFloor is assigned when the evaluation LLM call fails; low enough
// that the decision engine will not accept on it, high enough to avoid an
// instant escalation on a single flaky call.
const ScoreFloor = 0.3

// Evaluation is the controller's output.
type Evaluation struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues,omitempty"`
	// LLMFailed records that the score is the failure floor, not a
	// genuine judgment.
	LLMFailed bool `json:"llm_failed,omitempty"`
}

// FileChangeLister supplies the workspace audit trail for expected-file
// checks; satisfied by the StateManager.
type FileChangeLister interface {
	ListFileChanges(ctx context.Context, workItemID int64) ([]*types.FileChange, error)
}

// Controller scores responses with the Supervisor LLM plus local checks.
type Controller struct {
	client  types.LLMClient
	changes FileChangeLister
}

// New creates a controller. changes may be nil to skip file checks.
func New(client types.LLMClient, changes FileChangeLister) *Controller {
	return &Controller{client: client, changes: changes}
}

// evalResponse is the JSON shape the evaluation prompt asks for.
type evalResponse struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues"`
}

// Evaluate scores the response for the work item in [0,1].
func (c *Controller) Evaluate(ctx context.Context, item *types.WorkItem, response string) Evaluation {
	log := logging.Get(logging.CategoryValidation)

	ev := c.evaluateLLM(ctx, item, response)

	// Local check: files the response claims to have touched must appear
	// in the change log.
	if c.changes != nil {
		if missing := c.missingClaimedFiles(ctx, item, response); len(missing) > 0 {
			for _, f := range missing {
				ev.Issues = append(ev.Issues, fmt.Sprintf("response claims to modify %q but no such change was observed", f))
			}
			if ev.Score > 0.5 {
				ev.Score = 0.5
			}
		}
	}

	log.Debug("Quality: item=%d score=%.2f issues=%d llm_failed=%v", item.ID, ev.Score, len(ev.Issues), ev.LLMFailed)
	return ev
}

func (c *Controller) evaluateLLM(ctx context.Context, item *types.WorkItem, response string) Evaluation {
	prompt := fmt.Sprintf(`You are evaluating whether a coding agent's response completes a work item.

Work item: %s
%s

Agent response:
%s

Reply with only a JSON object: {"score": <0..1>, "issues": ["..."]}.
Score 1.0 means the response fully and correctly completes the work item.
List every concrete deficiency as an issue; an empty list means none.`,
		item.Title, item.Description, response)

	out, err := c.client.Generate(ctx, prompt, types.GenerateOptions{MaxTokens: 1024})
	if err != nil {
		logging.Get(logging.CategoryValidation).Warn("Quality evaluation call failed, applying score floor: %v", err)
		return Evaluation{Score: ScoreFloor, Issues: []string{"quality evaluation unavailable"}, LLMFailed: true}
	}

	parsed, err := parseEval(out)
	if err != nil {
		logging.Get(logging.CategoryValidation).Warn("Quality evaluation unparseable, applying score floor: %v", err)
		return Evaluation{Score: ScoreFloor, Issues: []string{"quality evaluation unparseable"}, LLMFailed: true}
	}
	return Evaluation{Score: clamp(parsed.Score), Issues: parsed.Issues}
}

// parseEval tolerates code fences and prose around the JSON object.
func parseEval(out string) (*evalResponse, error) {
	s := strings.TrimSpace(out)
	if start := strings.IndexByte(s, '{'); start >= 0 {
		if end := strings.LastIndexByte(s, '}'); end > start {
			s = s[start : end+1]
		}
	}
	var ev evalResponse
	if err := json.Unmarshal([]byte(s), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// missingClaimedFiles compares file paths named in CHANGES-style sections
// against the observed change log.
func (c *Controller) missingClaimedFiles(ctx context.Context, item *types.WorkItem, response string) []string {
	claimed := claimedFiles(response)
	if len(claimed) == 0 {
		return nil
	}
	observed, err := c.changes.ListFileChanges(ctx, item.ID)
	if err != nil {
		// Storage trouble is not the executor's fault.
		return nil
	}
	seen := make(map[string]bool, len(observed))
	for _, fc := range observed {
		seen[fc.Path] = true
	}
	var missing []string
	for _, f := range claimed {
		if !seen[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

// claimedFiles extracts backticked paths that look like files.
func claimedFiles(response string) []string {
	var files []string
	rest := response
	for {
		start := strings.IndexByte(rest, '`')
		if start < 0 {
			break
		}
		rest = rest[start+1:]
		end := strings.IndexByte(rest, '`')
		if end < 0 {
			break
		}
		candidate := rest[:end]
		rest = rest[end+1:]
		if strings.ContainsAny(candidate, " \n") || !strings.Contains(candidate, ".") {
			continue
		}
		if strings.Contains(candidate, "/") {
			files = append(files, candidate)
		}
	}
	return files
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
