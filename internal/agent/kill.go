//go:build unix

package agent

import (
	"os/exec"
	"syscall"
	"time"

	"obra/internal/logging"
)

// setProcessGroup puts the child in its own process group so signals
// reach the whole tree, not just the immediate child.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup delivers sig to the child's process group.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		cmd.Process.Signal(sig)
		return
	}
	syscall.Kill(-pgid, sig)
}

// killGroup hard-kills the child's process group.
func killGroup(cmd *exec.Cmd) {
	signalGroup(cmd, syscall.SIGKILL)
}

// terminate shuts the child down with a three-step escalation: interrupt,
// terminate, kill, each step waiting up to one second for exit. The whole
// escalation therefore completes within three seconds. Returns the child's
// wait error once it has been reaped.
func (s *HeadlessSession) terminate(cmd *exec.Cmd, waitCh <-chan error) error {
	steps := []syscall.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGKILL}
	for _, sig := range steps {
		signalGroup(cmd, sig)
		select {
		case err := <-waitCh:
			return err
		case <-time.After(time.Second):
			logging.AgentDebug("Executor ignored %v, escalating", sig)
		}
	}
	// SIGKILL cannot be ignored.
	return <-waitCh
}
