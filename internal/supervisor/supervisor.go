// Package supervisor spawns, watches and terminates the long-running child
// processes of a devctl run.
//
// Every child is started in its own process group so that a stop reaches
// the grandchildren a dev server forks. Output is delivered line by line to
// a LineSink. A single waiter goroutine per child reaps it exactly once and
// publishes an ExitEvent.
//
// Typical use:
//
//	sup := supervisor.New(tools, sink)
//	h, err := sup.Spawn(supervisor.ManagedProcess{Name: "worker", Command: argv})
//	...
//	for ev := range sup.Exits() { ... }
//	_ = sup.Stop(h, 10*time.Second)
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"devctl/internal/errdefs"
	"devctl/internal/toolchain"
	"devctl/pkg/logging"
)

const (
	// DefaultWaitDelay bounds how long output copying may outlive the
	// child, e.g. when a grandchild keeps the pipe open.
	DefaultWaitDelay = 2 * time.Second
	// killWait bounds the wait after a forced kill.
	killWait = 5 * time.Second

	exitBuffer = 32
)

// Stream identifies stdout or stderr.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Line is one line of child output.
type Line struct {
	Process string
	Stream  Stream
	Text    string
	Time    time.Time
}

// LineSink receives output lines. It is called from the output copying
// goroutines and must not block.
type LineSink func(Line)

// ManagedProcess describes a child to spawn.
type ManagedProcess struct {
	Name    string
	Command []string
	Dir     string
	Env     map[string]string // merged over the inherited environment
}

// ExitEvent is published once per child when it has been reaped.
type ExitEvent struct {
	Name     string
	PID      int
	ExitCode int
	// Expected is true when the exit was caused by Stop.
	Expected bool
	Err      error
}

// Handle refers to a spawned child.
type Handle struct {
	Name      string
	PID       int
	StartedAt time.Time
	Command   []string

	cmd      *exec.Cmd
	done     chan struct{}
	exitCode int
	stopping atomic.Bool
	outputs  []*lineWriter
}

// ExitCode returns the exit code once the process has been reaped. A child
// killed by a signal reports -1.
func (h *Handle) ExitCode() (int, bool) {
	select {
	case <-h.done:
		return h.exitCode, true
	default:
		return 0, false
	}
}

// Done is closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Supervisor owns the set of live children in start order.
type Supervisor struct {
	tools     *toolchain.Toolchain
	sink      LineSink
	exits     chan ExitEvent
	WaitDelay time.Duration

	mu   sync.Mutex
	live []*Handle
}

// New returns a supervisor resolving commands through tools and sending
// child output to sink.
func New(tools *toolchain.Toolchain, sink LineSink) *Supervisor {
	return &Supervisor{
		tools:     tools,
		sink:      sink,
		exits:     make(chan ExitEvent, exitBuffer),
		WaitDelay: DefaultWaitDelay,
	}
}

// Exits delivers an event for every child that ends, whether stopped or
// not.
func (s *Supervisor) Exits() <-chan ExitEvent {
	return s.exits
}

// Live returns the handles not yet released, in start order.
func (s *Supervisor) Live() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Handle(nil), s.live...)
}

// Spawn starts mp in its own process group. A binary that cannot be found
// yields *errdefs.ToolMissingError; any other start failure yields
// *errdefs.SpawnError. Spawns are never retried.
func (s *Supervisor) Spawn(mp ManagedProcess) (*Handle, error) {
	argv, err := s.tools.Command(mp.Command)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = mp.Dir
	cmd.Env = MergeEnv(os.Environ(), mp.Env)
	setProcessGroup(cmd)
	cmd.WaitDelay = s.WaitDelay

	stdout := newLineWriter(mp.Name, Stdout, s.sink)
	stderr := newLineWriter(mp.Name, Stderr, s.sink)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, &errdefs.ToolMissingError{Tool: mp.Command[0]}
		}
		return nil, &errdefs.SpawnError{Name: mp.Name, Err: err}
	}

	h := &Handle{
		Name:      mp.Name,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
		Command:   argv,
		cmd:       cmd,
		done:      make(chan struct{}),
		outputs:   []*lineWriter{stdout, stderr},
	}

	s.mu.Lock()
	s.live = append(s.live, h)
	s.mu.Unlock()

	logging.Info("Supervisor", "Started %s (pid %d): %v", h.Name, h.PID, mp.Command)
	go s.wait(h)
	return h, nil
}

// wait reaps h exactly once.
func (s *Supervisor) wait(h *Handle) {
	err := h.cmd.Wait()
	for _, w := range h.outputs {
		w.Flush()
	}

	code := -1
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	}
	h.exitCode = code
	close(h.done)

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = nil // the exit code carries it
	}
	ev := ExitEvent{Name: h.Name, PID: h.PID, ExitCode: code, Expected: h.stopping.Load(), Err: err}
	logging.Debug("Supervisor", "%s (pid %d) exited with code %d (expected=%t)", h.Name, h.PID, code, ev.Expected)

	select {
	case s.exits <- ev:
	default:
		// The coordinator also polls IsAlive, so a dropped event is only
		// a delay.
		logging.Warn("Supervisor", "Exit event for %s dropped, buffer full", h.Name)
	}
}

// IsAlive reports whether h has not exited yet. It never blocks.
func (s *Supervisor) IsAlive(h *Handle) bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Stop terminates the process group of h: a graceful signal first, then a
// forced kill once grace has elapsed. Stopping an exited handle only
// releases it. The returned error reports a child that could not be
// confirmed dead; it is never fatal for the caller.
func (s *Supervisor) Stop(h *Handle, grace time.Duration) error {
	if h == nil {
		return nil
	}
	defer s.release(h)
	h.stopping.Store(true)

	select {
	case <-h.done:
		// Grandchildren may outlive the leader.
		_ = killGroup(h)
		return nil
	default:
	}

	logging.Info("Supervisor", "Stopping %s (pid %d)", h.Name, h.PID)
	if err := terminateGroup(h); err != nil {
		logging.Debug("Supervisor", "Graceful stop of %s: %v", h.Name, err)
	}

	select {
	case <-h.done:
		_ = killGroup(h)
		return nil
	case <-time.After(grace):
	}

	logging.Warn("Supervisor", "%s did not exit within %s, killing", h.Name, grace)
	if err := killGroup(h); err != nil {
		logging.Debug("Supervisor", "Kill of %s: %v", h.Name, err)
	}
	select {
	case <-h.done:
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("%s (pid %d) still running after kill", h.Name, h.PID)
	}
}

func (s *Supervisor) release(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.live {
		if l == h {
			s.live = append(s.live[:i], s.live[i+1:]...)
			return
		}
	}
}

// MergeEnv overlays overrides on base. Keys are applied in sorted order so
// the result is deterministic.
func MergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(keys))
	for _, kv := range base {
		name := kv
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' && i > 0 {
				name = kv[:i]
				break
			}
		}
		if _, ok := overrides[name]; ok {
			continue
		}
		env = append(env, kv)
	}
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
