// Package buildrunner runs the one-shot commands of a devctl run: dependency
// installation, builds and data migrations. Each command runs to completion
// in the foreground; its output is forwarded line by line as process log
// events under the step name.
package buildrunner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"devctl/internal/errdefs"
	"devctl/internal/reporting"
	"devctl/internal/supervisor"
	"devctl/internal/toolchain"
	"devctl/pkg/logging"
)

// Step is a single command to run.
type Step struct {
	Name    string
	Command []string
	Dir     string            // relative to the runner's root unless absolute
	Env     map[string]string // merged over the inherited environment
	// Sensitive hides the arguments in logs and errors, e.g. credentials.
	Sensitive bool
}

// display is the command as it may appear in logs.
func (s Step) display() []string {
	if s.Sensitive && len(s.Command) > 1 {
		return []string{s.Command[0], "..."}
	}
	return s.Command
}

// Runner executes one-shot steps. exitCode is meaningful only when err is
// nil or a *errdefs.StepFailedError.
type Runner interface {
	Run(ctx context.Context, step Step) (exitCode int, err error)
}

// ExecRunner runs steps as child processes.
type ExecRunner struct {
	tools   *toolchain.Toolchain
	emitter *reporting.Emitter
	root    string

	// WaitDelay bounds output copying after the command exits or is
	// cancelled.
	WaitDelay time.Duration
}

// NewExecRunner returns a runner resolving commands through tools and
// running them relative to root.
func NewExecRunner(tools *toolchain.Toolchain, emitter *reporting.Emitter, root string) *ExecRunner {
	return &ExecRunner{
		tools:     tools,
		emitter:   emitter,
		root:      root,
		WaitDelay: supervisor.DefaultWaitDelay,
	}
}

// Run executes step and waits for it. The step runs in its own process
// group, so cancelling ctx also ends everything it started. A non-zero exit yields
// *errdefs.StepFailedError, a binary that cannot be resolved yields
// *errdefs.ToolMissingError, and a cancelled ctx yields ctx.Err().
func (r *ExecRunner) Run(ctx context.Context, step Step) (int, error) {
	argv, err := r.tools.Command(step.Command)
	if err != nil {
		return -1, err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.dir(step.Dir)
	cmd.Env = supervisor.MergeEnv(os.Environ(), step.Env)
	cmd.WaitDelay = r.WaitDelay
	supervisor.GroupCommand(cmd)

	sink := func(l supervisor.Line) {
		r.emitter.Log(step.Name, string(l.Stream), l.Text)
	}
	stdout := supervisor.NewOutputWriter(step.Name, supervisor.Stdout, sink)
	stderr := supervisor.NewOutputWriter(step.Name, supervisor.Stderr, sink)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logging.Info("BuildRunner", "Running %s: %v (in %s)", step.Name, step.display(), cmd.Dir)
	started := time.Now()
	err = cmd.Run()
	stdout.Flush()
	stderr.Flush()

	if ctx.Err() != nil {
		if cmd.Process != nil {
			if kerr := supervisor.KillProcessGroup(cmd.Process.Pid); kerr != nil {
				logging.Warn("BuildRunner", "Failed to kill what is left of %s: %v", step.Name, kerr)
			}
		}
		return -1, ctx.Err()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		logging.Debug("BuildRunner", "%s finished in %s", step.Name, time.Since(started).Round(time.Millisecond))
		return 0, nil
	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		return code, &errdefs.StepFailedError{Step: step.Name, Command: step.display(), ExitCode: code}
	case errors.Is(err, exec.ErrNotFound):
		return -1, &errdefs.ToolMissingError{Tool: step.Command[0]}
	default:
		return -1, &errdefs.SpawnError{Name: step.Name, Err: err}
	}
}

func (r *ExecRunner) dir(d string) string {
	switch {
	case d == "":
		return r.root
	case filepath.IsAbs(d):
		return d
	default:
		return filepath.Join(r.root, d)
	}
}
