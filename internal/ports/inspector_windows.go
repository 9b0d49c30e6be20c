//go:build windows

package ports

import (
	"context"
	"fmt"
	"strconv"
)

// NewInspector returns the inspector for the current platform.
func NewInspector() Inspector {
	return &windowsInspector{}
}

// windowsInspector parses netstat and kills with taskkill.
type windowsInspector struct{}

func (w *windowsInspector) ListeningPIDs(ctx context.Context, port int) ([]int, error) {
	out, err := runCommand(ctx, "netstat", "-ano")
	if err != nil {
		return nil, ErrNoInspectorOutput
	}
	pids := ParseNetstat(out, port)
	if len(pids) == 0 {
		return nil, ErrNoInspectorOutput
	}
	return pids, nil
}

func (w *windowsInspector) Terminate(ctx context.Context, pid int) error {
	if _, err := runCommand(ctx, "taskkill", "/PID", strconv.Itoa(pid), "/T", "/F"); err != nil {
		return fmt.Errorf("taskkill %d: %w", pid, err)
	}
	return nil
}
