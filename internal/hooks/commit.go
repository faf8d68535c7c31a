package hooks

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"obra/internal/logging"
	"obra/internal/types"
)

// CommitWriter commits the workspace after a completed work item so every
// accepted iteration leaves a restorable point in history. Non-git
// workspaces and clean trees are both no-ops.
type CommitWriter struct {
	workspace string
}

// NewCommitWriter creates the hook for a workspace.
func NewCommitWriter(workspace string) *CommitWriter {
	return &CommitWriter{workspace: workspace}
}

// Name implements CompletionHook.
func (c *CommitWriter) Name() string { return "commit-writer" }

// OnCompletion stages and commits outstanding changes for completed items.
func (c *CommitWriter) OnCompletion(ctx context.Context, ev types.CompletionEvent) error {
	if ev.Outcome != types.StatusCompleted {
		return nil
	}
	if out, err := c.git(ctx, "rev-parse", "--is-inside-work-tree"); err != nil || strings.TrimSpace(out) != "true" {
		return nil
	}
	status, err := c.git(ctx, "status", "--porcelain")
	if err != nil {
		return fmt.Errorf("git status: %w", err)
	}
	if strings.TrimSpace(status) == "" {
		return nil
	}
	if _, err := c.git(ctx, "add", "-A"); err != nil {
		return fmt.Errorf("git add: %w", err)
	}
	msg := fmt.Sprintf("Complete work item #%d", ev.WorkItemID)
	if ev.Summary != "" {
		msg = fmt.Sprintf("%s: %s", msg, firstLine(ev.Summary))
	}
	if _, err := c.git(ctx, "commit", "-m", msg); err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	logging.Get(logging.CategoryHooks).Info("Committed workspace for item %d", ev.WorkItemID)
	return nil
}

func (c *CommitWriter) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.workspace
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
