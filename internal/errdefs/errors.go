// Package errdefs defines the error taxonomy of devctl.
//
// Each failure class has a sentinel, usable with errors.Is, and a struct
// type carrying context, usable with errors.As. The struct types unwrap to
// their sentinel so callers rarely need both.
//
//	var pc *errdefs.PortConflictError
//	if errors.As(err, &pc) {
//	    fmt.Println("owners:", pc.PIDs)
//	}
//	if errdefs.IsFatal(err) { ... }
package errdefs

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Sentinel errors, one per failure class.
var (
	ErrToolMissing        = errors.New("required tool missing")
	ErrPortConflict       = errors.New("port conflict unresolved")
	ErrHealthCheckTimeout = errors.New("health check timed out")
	ErrChildExited        = errors.New("child process exited")
	ErrConfigPatch        = errors.New("config patch failed")
	ErrStepFailed         = errors.New("step failed")
	ErrSpawn              = errors.New("spawn failed")
	ErrProjectRoot        = errors.New("not a project root")
)

// ToolMissingError reports a binary that could not be resolved on PATH.
type ToolMissingError struct {
	Tool string
	Hint string // install command, e.g. "npm i -g pnpm"
}

func (e *ToolMissingError) Error() string {
	return fmt.Sprintf("required tool %q not found in PATH", e.Tool)
}

func (e *ToolMissingError) Unwrap() error { return ErrToolMissing }

// PortConflictError reports a port that is bound and could not be freed.
type PortConflictError struct {
	Port   int
	PIDs   []int
	Reason string
}

func (e *PortConflictError) Error() string {
	if len(e.PIDs) == 0 {
		return fmt.Sprintf("port %d is in use and cannot be freed: %s", e.Port, e.Reason)
	}
	return fmt.Sprintf("port %d is in use by pid(s) %v and cannot be freed: %s", e.Port, e.PIDs, e.Reason)
}

func (e *PortConflictError) Unwrap() error { return ErrPortConflict }

// HealthCheckTimeoutError reports a probe that never observed readiness.
type HealthCheckTimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *HealthCheckTimeoutError) Error() string {
	return fmt.Sprintf("%s did not report ready within %s", e.URL, e.Timeout)
}

func (e *HealthCheckTimeoutError) Unwrap() error { return ErrHealthCheckTimeout }

// ChildExitedError reports a supervised process that ended outside an
// orchestrated stop.
type ChildExitedError struct {
	Name     string
	ExitCode int
}

func (e *ChildExitedError) Error() string {
	return fmt.Sprintf("process %s exited unexpectedly (exit code %d)", e.Name, e.ExitCode)
}

func (e *ChildExitedError) Unwrap() error { return ErrChildExited }

// ConfigPatchError reports a configuration file that could not be patched.
type ConfigPatchError struct {
	Path   string
	Reason string
}

func (e *ConfigPatchError) Error() string {
	return fmt.Sprintf("cannot patch %s: %s", e.Path, e.Reason)
}

func (e *ConfigPatchError) Unwrap() error { return ErrConfigPatch }

// StepFailedError reports a one-shot command (install, build, migrate) that
// exited non-zero.
type StepFailedError struct {
	Step     string
	Command  []string
	ExitCode int
	Hint     string // manual fix, replaces the re-run suggestion
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("step %s failed: %s (exit %d)", e.Step, strings.Join(e.Command, " "), e.ExitCode)
}

func (e *StepFailedError) Unwrap() error { return ErrStepFailed }

// SpawnError reports a process that could not be started for a reason other
// than a missing binary.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() []error { return []error{ErrSpawn, e.Err} }

// ProjectRootError reports a working directory without the project marker.
type ProjectRootError struct {
	Dir    string
	Marker string
}

func (e *ProjectRootError) Error() string {
	return fmt.Sprintf("%s does not contain %s; run devctl from the repository root", e.Dir, e.Marker)
}

func (e *ProjectRootError) Unwrap() error { return ErrProjectRoot }

// IsFatal reports whether err must end the run. Health timeouts and config
// patch failures are warnings; everything else is fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrHealthCheckTimeout) || errors.Is(err, ErrConfigPatch) {
		return false
	}
	return true
}

// Remediation returns the one-line suggestion printed under a fatal error,
// or "" when there is nothing specific to suggest.
func Remediation(err error) string {
	var tm *ToolMissingError
	if errors.As(err, &tm) {
		if tm.Hint != "" {
			return "install it with: " + tm.Hint
		}
		return fmt.Sprintf("install %s and make sure it is on PATH", tm.Tool)
	}

	var pc *PortConflictError
	if errors.As(err, &pc) {
		if runtime.GOOS == "windows" {
			return fmt.Sprintf("find the owner with: netstat -ano | findstr :%d", pc.Port)
		}
		return fmt.Sprintf("find the owner with: lsof -nP -iTCP:%d -sTCP:LISTEN", pc.Port)
	}

	var sf *StepFailedError
	if errors.As(err, &sf) {
		if sf.Hint != "" {
			return "fix it manually, then retry: " + sf.Hint
		}
		return "re-run it manually to see the full output: " + strings.Join(sf.Command, " ")
	}

	var pr *ProjectRootError
	if errors.As(err, &pr) {
		return "cd into the directory containing " + pr.Marker
	}
	return ""
}

// ExitCode maps a run result to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
