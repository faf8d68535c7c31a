// Package agent implements the executor side of the loop: spawning a
// headless CLI coding agent as a child process, feeding it one prompt,
// and collecting its final answer. Every Send is a fresh invocation;
// long-lived child sessions deadlock in practice, fresh spawns do not.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"obra/internal/logging"
	"obra/internal/types"
)

const (
	// drainWindow is how long Send keeps reading output after the child's
	// stop hook writes the completion marker.
	drainWindow = 500 * time.Millisecond

	// signalPollInterval is how often Send checks for the marker file.
	signalPollInterval = 100 * time.Millisecond

	// maxOutputBytes caps captured stdout; anything past the cap sets the
	// Truncated flag on the response.
	maxOutputBytes = 4 << 20
)

// HeadlessConfig configures the headless CLI executor.
type HeadlessConfig struct {
	Binary            string
	Workspace         string
	Args              []string
	ResponseTimeout   time.Duration
	BypassPermissions bool
}

// HeadlessSession runs a headless CLI agent, one fresh child per Send.
type HeadlessSession struct {
	cfg       HeadlessConfig
	signalDir string
	seq       atomic.Int64

	mu      sync.Mutex
	current *exec.Cmd // non-nil while a child is running
}

// NewHeadlessSession validates the workspace and binary and prepares the
// invocation template.
func NewHeadlessSession(cfg HeadlessConfig) (*HeadlessSession, error) {
	if cfg.Binary == "" {
		return nil, types.Errorf(types.KindWorkspaceInvalid, "agent.NewHeadlessSession", "executor binary not configured")
	}
	if _, err := exec.LookPath(cfg.Binary); err != nil {
		return nil, types.Errorf(types.KindWorkspaceInvalid, "agent.NewHeadlessSession",
			"executor binary %q not found: %v", cfg.Binary, err)
	}
	info, err := os.Stat(cfg.Workspace)
	if err != nil || !info.IsDir() {
		return nil, types.Errorf(types.KindWorkspaceInvalid, "agent.NewHeadlessSession",
			"workspace %q is not a directory", cfg.Workspace)
	}
	signalDir := filepath.Join(cfg.Workspace, ".obra", "agent")
	if err := os.MkdirAll(signalDir, 0o755); err != nil {
		return nil, types.Errorf(types.KindWorkspaceInvalid, "agent.NewHeadlessSession",
			"workspace not writable: %v", err)
	}
	if err := writeStopHook(signalDir); err != nil {
		return nil, types.Errorf(types.KindWorkspaceInvalid, "agent.NewHeadlessSession",
			"cannot register stop hook: %v", err)
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 5 * time.Minute
	}
	return &HeadlessSession{cfg: cfg, signalDir: signalDir}, nil
}

// stopHookFile is the workspace-local hook registration the executor CLI
// loads on startup. Its stop hook touches the signal file named in the
// child's environment, which is the completion marker Send polls for.
const stopHookFile = "hooks.yaml"

func writeStopHook(signalDir string) error {
	settings := map[string]any{
		"hooks": map[string]any{
			"stop": []map[string]string{
				{"command": `touch "$OBRA_STOP_SIGNAL_FILE"`},
			},
		},
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(signalDir, stopHookFile), data, 0o644)
}

// limitWriter captures up to max bytes, counting but discarding the rest.
type limitWriter struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if remain := w.max - w.buf.Len(); remain > 0 {
		if len(p) > remain {
			w.buf.Write(p[:remain])
			w.truncated = true
		} else {
			w.buf.Write(p)
		}
	} else if len(p) > 0 {
		w.truncated = true
	}
	return len(p), nil
}

// Send runs exactly one prompt against a fresh child and returns when the
// child declares completion or the deadline elapses. The prompt travels on
// stdin; the answer is whatever the child wrote to stdout.
func (s *HeadlessSession) Send(ctx context.Context, prompt string, deadline time.Time) (*types.AgentResponse, error) {
	start := time.Now()
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	} else {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ResponseTimeout)
		defer cancel()
	}

	signalPath := filepath.Join(s.signalDir, fmt.Sprintf("stop-%d-%d.signal", os.Getpid(), s.seq.Add(1)))
	os.Remove(signalPath)
	defer os.Remove(signalPath)

	args := append([]string(nil), s.cfg.Args...)
	if s.cfg.BypassPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}

	cmd := exec.Command(s.cfg.Binary, args...)
	cmd.Dir = s.cfg.Workspace
	cmd.Env = append(os.Environ(), "OBRA_STOP_SIGNAL_FILE="+signalPath)
	cmd.Stdin = bytes.NewReader([]byte(prompt))

	stdout := &limitWriter{max: maxOutputBytes}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = io.Writer(&stderr)
	setProcessGroup(cmd)

	logging.AgentDebug("Spawning %s (args=%d prompt_len=%d signal=%s)", s.cfg.Binary, len(args), len(prompt), filepath.Base(signalPath))
	if err := cmd.Start(); err != nil {
		return nil, types.NewError(types.KindSpawnFailed, "agent.Send", err)
	}

	s.mu.Lock()
	s.current = cmd
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	ticker := time.NewTicker(signalPollInterval)
	defer ticker.Stop()

	finish := func(exitErr error) (*types.AgentResponse, error) {
		resp := &types.AgentResponse{
			Output:    stdout.buf.String(),
			ExitCode:  cmd.ProcessState.ExitCode(),
			Duration:  time.Since(start),
			Truncated: stdout.truncated,
		}
		if exitErr != nil && resp.Output == "" {
			return nil, types.Errorf(types.KindChildDiedEarly, "agent.Send",
				"executor exited %d with no output: %s", resp.ExitCode, bytes.TrimSpace(stderr.Bytes()))
		}
		logging.Agent("Executor finished in %v (exit=%d output_len=%d truncated=%v)",
			resp.Duration, resp.ExitCode, len(resp.Output), resp.Truncated)
		return resp, nil
	}

	for {
		select {
		case err := <-waitCh:
			// Clean exit path: stdout is fully consumed once Wait returns.
			return finish(err)

		case <-ticker.C:
			if _, err := os.Stat(signalPath); err != nil {
				continue
			}
			// Stop hook fired. Give the child the drain window to flush,
			// then shut it down if it has not exited on its own.
			logging.AgentDebug("Stop marker observed, draining %v", drainWindow)
			select {
			case err := <-waitCh:
				return finish(err)
			case <-time.After(drainWindow):
			}
			// The stop hook already marked completion; the child's exit
			// status after a forced shutdown is not an error.
			s.terminate(cmd, waitCh)
			return finish(nil)

		case <-ctx.Done():
			s.terminate(cmd, waitCh)
			return nil, types.Errorf(types.KindDeadlineExceeded, "agent.Send",
				"executor exceeded deadline after %v", time.Since(start))
		}
	}
}

// Healthy reports whether the executor binary is still invocable and the
// workspace still exists.
func (s *HeadlessSession) Healthy() bool {
	if _, err := exec.LookPath(s.cfg.Binary); err != nil {
		return false
	}
	info, err := os.Stat(s.cfg.Workspace)
	return err == nil && info.IsDir()
}

// Cleanup terminates any residual child and removes ephemeral signal files.
// Safe to call from any exit path.
func (s *HeadlessSession) Cleanup() error {
	s.mu.Lock()
	cmd := s.current
	s.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		// The Send that spawned this child owns Wait; here we only make
		// sure nothing outlives us.
		killGroup(cmd)
	}
	matches, _ := filepath.Glob(filepath.Join(s.signalDir, "stop-*.signal"))
	for _, m := range matches {
		os.Remove(m)
	}
	return nil
}
