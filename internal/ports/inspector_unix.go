//go:build !windows

package ports

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"devctl/pkg/logging"
)

// NewInspector returns the inspector for the current platform.
func NewInspector() Inspector {
	return &posixInspector{}
}

// posixInspector asks lsof first and falls back to ss.
type posixInspector struct{}

func (p *posixInspector) ListeningPIDs(ctx context.Context, port int) ([]int, error) {
	// -t prints pids only; lsof exits 1 when nothing matches, which is
	// indistinguishable from a failure, so fall through to ss either way.
	out, err := runCommand(ctx, "lsof", "-nP", fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN", "-t")
	if err == nil {
		if pids := ParseLsof(out); len(pids) > 0 {
			return pids, nil
		}
	} else {
		logging.Debug("Ports", "lsof for port %d failed: %v", port, err)
	}

	out, err = runCommand(ctx, "ss", "-ltnp")
	if err != nil {
		logging.Debug("Ports", "ss for port %d failed: %v", port, err)
		return nil, ErrNoInspectorOutput
	}
	pids := ParseSS(out, port)
	if len(pids) == 0 {
		return nil, ErrNoInspectorOutput
	}
	return pids, nil
}

func (p *posixInspector) Terminate(_ context.Context, pid int) error {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	return nil
}
