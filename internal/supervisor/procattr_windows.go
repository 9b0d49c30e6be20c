//go:build windows

package supervisor

import (
	"os/exec"
	"strconv"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// GroupCommand runs cmd in a new process group. Cancelling the context of
// cmd kills the whole process tree.
func GroupCommand(cmd *exec.Cmd) {
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return exec.Command("taskkill", "/PID", strconv.Itoa(cmd.Process.Pid), "/T", "/F").Run()
	}
}

// KillProcessGroup is a no-op on Windows: the tree is killed by the
// cancel function of GroupCommand, and cannot be found once its root is
// gone.
func KillProcessGroup(pid int) error {
	return nil
}

// taskkill /T walks the process tree, which is the closest Windows has to
// signalling a group.

func terminateGroup(h *Handle) error {
	return exec.Command("taskkill", "/PID", strconv.Itoa(h.PID), "/T").Run()
}

func killGroup(h *Handle) error {
	select {
	case <-h.done:
		// The tree is gone with its root; taskkill would fail to find it.
		return nil
	default:
	}
	return exec.Command("taskkill", "/PID", strconv.Itoa(h.PID), "/T", "/F").Run()
}
