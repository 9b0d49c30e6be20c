//go:build !windows

package supervisor

import (
	"errors"
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// GroupCommand runs cmd as the leader of a new process group. Cancelling
// the context of cmd sends SIGTERM to the whole group instead of only the
// leader; exec's WaitDelay then escalates to a kill.
func GroupCommand(cmd *exec.Cmd) {
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return signalGroup(cmd.Process.Pid, syscall.SIGTERM)
	}
}

// KillProcessGroup kills whatever is left of the group led by pid.
func KillProcessGroup(pid int) error {
	return signalGroup(pid, syscall.SIGKILL)
}

// The child is its own group leader, so its pid is the group id.

func terminateGroup(h *Handle) error {
	return signalGroup(h.PID, syscall.SIGTERM)
}

func killGroup(h *Handle) error {
	return signalGroup(h.PID, syscall.SIGKILL)
}

func signalGroup(pgid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
