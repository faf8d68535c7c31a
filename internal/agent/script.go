package agent

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	"obra/internal/types"
)

// ScriptSession runs an arbitrary script per Send, prompt on stdin and
// answer on stdout, with no stop-hook protocol. Intended for integration
// tests and for wiring non-agent tools into the loop.
type ScriptSession struct {
	binary    string
	args      []string
	workspace string
	timeout   time.Duration
}

// NewScriptSession validates the script path and workspace.
func NewScriptSession(binary string, args []string, workspace string, timeout time.Duration) (*ScriptSession, error) {
	if _, err := exec.LookPath(binary); err != nil {
		return nil, types.Errorf(types.KindWorkspaceInvalid, "agent.NewScriptSession",
			"script %q not found: %v", binary, err)
	}
	if info, err := os.Stat(workspace); err != nil || !info.IsDir() {
		return nil, types.Errorf(types.KindWorkspaceInvalid, "agent.NewScriptSession",
			"workspace %q is not a directory", workspace)
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &ScriptSession{binary: binary, args: args, workspace: workspace, timeout: timeout}, nil
}

// Send runs the script once.
func (s *ScriptSession) Send(ctx context.Context, prompt string, deadline time.Time) (*types.AgentResponse, error) {
	start := time.Now()
	var cancel context.CancelFunc
	if !deadline.IsZero() {
		ctx, cancel = context.WithDeadline(ctx, deadline)
	} else {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(ctx, s.binary, s.args...)
	cmd.Dir = s.workspace
	cmd.Stdin = bytes.NewReader([]byte(prompt))

	out, err := cmd.Output()
	if ctx.Err() != nil {
		return nil, types.Errorf(types.KindDeadlineExceeded, "agent.Send",
			"script exceeded deadline after %v", time.Since(start))
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, types.NewError(types.KindSpawnFailed, "agent.Send", err)
		}
		if len(out) == 0 {
			return nil, types.Errorf(types.KindChildDiedEarly, "agent.Send", "script exited with no output: %v", err)
		}
	}
	return &types.AgentResponse{
		Output:   string(out),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}, nil
}

// Healthy reports whether the script is still invocable.
func (s *ScriptSession) Healthy() bool {
	_, err := exec.LookPath(s.binary)
	return err == nil
}

// Cleanup is a no-op; CommandContext reaps the child.
func (s *ScriptSession) Cleanup() error { return nil }
