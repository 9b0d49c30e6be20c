package ports

import (
	"context"
	"errors"
	"os/exec"
)

// ErrNoInspectorOutput means none of the platform tools produced usable
// output. The Resolver treats it as "no owners found".
var ErrNoInspectorOutput = errors.New("no usable output from port inspection tools")

// Inspector discovers and terminates the processes listening on a port.
// There is one implementation per platform family; see NewInspector.
type Inspector interface {
	// ListeningPIDs returns the pids listening on port, sorted and
	// de-duplicated.
	ListeningPIDs(ctx context.Context, port int) ([]int, error)
	// Terminate asks pid to exit. On Windows the whole process tree is
	// killed.
	Terminate(ctx context.Context, pid int) error
}

// runCommand runs a diagnostic tool and returns its stdout. Swapped in
// tests.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
