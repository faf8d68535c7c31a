//go:build unix

package agent

import (
	"context"
	"testing"
	"time"

	"obra/internal/types"
)

func TestScriptSessionEchoesPrompt(t *testing.T) {
	ws := t.TempDir()
	script := writeScript(t, ws, "echo.sh", "cat")

	s, err := NewScriptSession(script, nil, ws, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := s.Send(context.Background(), "hello", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Output != "hello" || resp.ExitCode != 0 {
		t.Errorf("resp = %+v", resp)
	}
	if !s.Healthy() {
		t.Error("script session unhealthy")
	}
}

func TestScriptSessionNonZeroExitWithOutput(t *testing.T) {
	ws := t.TempDir()
	script := writeScript(t, ws, "warn.sh", "echo partial; exit 1")

	s, err := NewScriptSession(script, nil, ws, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := s.Send(context.Background(), "p", time.Time{})
	if err != nil {
		t.Fatalf("output-bearing failures must surface the output: %v", err)
	}
	if resp.ExitCode != 1 || resp.Output != "partial\n" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestScriptSessionSilentFailure(t *testing.T) {
	ws := t.TempDir()
	script := writeScript(t, ws, "die.sh", "exit 2")

	s, err := NewScriptSession(script, nil, ws, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Send(context.Background(), "p", time.Time{})
	if types.KindOf(err) != types.KindChildDiedEarly {
		t.Errorf("kind = %s", types.KindOf(err))
	}
}

func TestScriptSessionDeadline(t *testing.T) {
	ws := t.TempDir()
	script := writeScript(t, ws, "hang.sh", "sleep 60")

	s, err := NewScriptSession(script, nil, ws, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Send(context.Background(), "p", time.Now().Add(200*time.Millisecond))
	if types.KindOf(err) != types.KindDeadlineExceeded {
		t.Errorf("kind = %s", types.KindOf(err))
	}
}

func TestScriptSessionValidation(t *testing.T) {
	ws := t.TempDir()
	if _, err := NewScriptSession("no-such-script-xyz", nil, ws, 0); types.KindOf(err) != types.KindWorkspaceInvalid {
		t.Errorf("missing script: kind = %s", types.KindOf(err))
	}
	script := writeScript(t, ws, "ok.sh", "cat")
	if _, err := NewScriptSession(script, nil, "/nonexistent", 0); types.KindOf(err) != types.KindWorkspaceInvalid {
		t.Errorf("missing workspace: kind = %s", types.KindOf(err))
	}
}
