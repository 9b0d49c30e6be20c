package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"devctl/internal/buildrunner"
	"devctl/internal/config"
	"devctl/internal/errdefs"
	"devctl/internal/health"
	"devctl/internal/ports"
	"devctl/internal/reporting"
	"devctl/internal/supervisor"
	"devctl/internal/tunnel"
	"devctl/pkg/logging"
)

// ProcessSupervisor spawns and stops supervised children.
type ProcessSupervisor interface {
	Spawn(mp supervisor.ManagedProcess) (*supervisor.Handle, error)
	IsAlive(h *supervisor.Handle) bool
	Stop(h *supervisor.Handle, grace time.Duration) error
	Exits() <-chan supervisor.ExitEvent
}

// PortFreer inspects and frees ports.
type PortFreer interface {
	Inspect(ctx context.Context, port int) ports.Binding
	Free(ctx context.Context, port int, maxWait time.Duration) (bool, error)
}

// HealthProber runs health probes.
type HealthProber interface {
	Probe(ctx context.Context, spec health.Spec) bool
}

// TunnelStarter starts the public tunnel.
type TunnelStarter interface {
	Start(ctx context.Context, cfg tunnel.Config) (*supervisor.Handle, tunnel.PublicAddress, error)
}

// BrowserOpener opens url after delay unless ctx ends first.
type BrowserOpener func(ctx context.Context, delay time.Duration, url string) error

// Dependencies are the collaborators of a Controller. Runner, Supervisor,
// Ports and Prober are required; Tunnel and OpenBrowser only when the plan
// has such steps.
type Dependencies struct {
	Runner      buildrunner.Runner
	Supervisor  ProcessSupervisor
	Ports       PortFreer
	Prober      HealthProber
	Tunnel      TunnelStarter
	OpenBrowser BrowserOpener
	Emitter     *reporting.Emitter
	// LookupEnv resolves ${VAR} references and DATABASE_URL; defaults to
	// os.LookupEnv.
	LookupEnv config.LookupFunc
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
)

type command struct {
	kind commandKind
	plan Plan
}

// ErrAlreadyStarted is returned by Start when a plan was already submitted.
var ErrAlreadyStarted = errors.New("a run is already in progress")

// child is a spawned process owned by the coordinator.
type child struct {
	handle   *supervisor.Handle
	reported bool // exit already published
}

// probeResult is closed once the probe has an outcome.
type probeResult struct {
	done chan struct{}
	ok   bool
}

// Controller runs a Plan. All run state is owned by the goroutine executing
// Run; Start, Stop and State may be called from anywhere.
type Controller struct {
	deps     Dependencies
	emitter  *reporting.Emitter
	commands chan command

	startOnce sync.Once
	stopOnce  sync.Once

	mu    sync.RWMutex
	state State

	// coordinator-owned
	children []*child
	probes   map[string]*probeResult
	probeWG  sync.WaitGroup
	dbURL    string
}

// New creates a controller in state Idle.
func New(deps Dependencies) *Controller {
	if deps.LookupEnv == nil {
		deps.LookupEnv = os.LookupEnv
	}
	return &Controller{
		deps:     deps,
		emitter:  deps.Emitter,
		commands: make(chan command, 2),
		state:    StateIdle,
		probes:   make(map[string]*probeResult),
	}
}

// Start submits plan. Only the first call is accepted.
func (c *Controller) Start(plan Plan) error {
	accepted := false
	c.startOnce.Do(func() {
		accepted = true
		c.commands <- command{kind: cmdStart, plan: plan}
	})
	if !accepted {
		return ErrAlreadyStarted
	}
	return nil
}

// Stop asks the controller to shut down. It never blocks and may be called
// any number of times.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.commands <- command{kind: cmdStop}
	})
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	from := c.state
	if from == s || from.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	logging.Info("Controller", "%s -> %s", from, s)
	c.emitter.State(string(from), string(s))
}

// Run waits for a Start command and executes the plan until it ends. It
// returns nil when the run ended by interrupt or Stop, and the fatal error
// otherwise. When Run returns the state is Stopped and every process the
// run spawned has been stopped.
func (c *Controller) Run(ctx context.Context) error {
	var plan Plan
	select {
	case <-ctx.Done():
		c.setState(StateStopped)
		return nil
	case cmd := <-c.commands:
		if cmd.kind == cmdStop {
			c.setState(StateStopped)
			return nil
		}
		plan = cmd.plan
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.watchCommands(runCtx, cancel)

	err := c.startup(runCtx, plan)
	if err == nil && runCtx.Err() == nil {
		c.setState(StateRunning)
		err = c.supervise(runCtx, plan)
	}
	if runCtx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		// interrupt or Stop
		err = nil
	}
	if err != nil {
		logging.Error("Controller", err, "Run failed")
	}

	cancel()
	c.probeWG.Wait()
	if len(c.children) > 0 {
		c.setState(StateShuttingDown)
		c.teardown(plan.GracePeriod)
	}
	c.setState(StateStopped)
	return err
}

func (c *Controller) watchCommands(ctx context.Context, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.commands:
			if cmd.kind == cmdStop {
				logging.Info("Controller", "Stop requested")
				cancel()
				return
			}
		}
	}
}

// startup executes the plan steps in order. A nil return with a cancelled
// ctx means the run was interrupted.
func (c *Controller) startup(ctx context.Context, plan Plan) error {
	if err := checkProjectRoot(plan); err != nil {
		return err
	}
	for _, step := range plan.Steps {
		if ctx.Err() != nil {
			return nil
		}
		// A step of an earlier phase runs within the current one.
		if step.Phase != "" && step.Phase.Rank() >= c.State().Rank() {
			c.setState(step.Phase)
		}
		if err := c.execute(ctx, plan, step); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	// Running includes the outcome of every probe.
	for name, p := range c.probes {
		if err := c.waitFor(ctx, plan, p.done); err != nil {
			return err
		}
		logging.Debug("Controller", "Probe %s resolved (ok=%t)", name, p.ok)
	}
	return nil
}

func checkProjectRoot(plan Plan) error {
	if plan.Marker == "" {
		return nil
	}
	if _, err := os.Stat(filepath.Join(plan.Root, plan.Marker)); err != nil {
		return &errdefs.ProjectRootError{Dir: plan.Root, Marker: plan.Marker}
	}
	return nil
}

func (c *Controller) execute(ctx context.Context, plan Plan, step Step) error {
	switch step.Kind {
	case KindCommand:
		return c.runCommand(ctx, plan, step)
	case KindCheck:
		return c.runCheck(ctx, plan, step)
	case KindPatch:
		c.applyPatch(step)
		return nil
	case KindFreePorts:
		return c.freePorts(ctx, plan, step)
	case KindSpawn:
		return c.spawn(ctx, plan, step)
	case KindProbe:
		c.startProbe(ctx, step)
		return nil
	case KindTunnel:
		return c.startTunnel(ctx, step)
	case KindOpenBrowser:
		c.openBrowser(ctx, step)
		return nil
	default:
		return fmt.Errorf("step %s: unknown kind %q", step.Name, step.Kind)
	}
}

func (c *Controller) runCommand(ctx context.Context, plan Plan, step Step) error {
	if step.SkipIfExists != "" && !plan.ForceInstall {
		if _, err := os.Stat(plan.abs(step.SkipIfExists)); err == nil {
			c.emitter.StepSkipped(step.Name, string(step.Kind), step.SkipIfExists+" exists")
			return nil
		}
	}

	env := config.ExpandEnvMap(step.Env, c.deps.LookupEnv)
	if step.NeedsDatabaseURL {
		url, err := c.databaseURL(plan)
		if err != nil {
			return err
		}
		if env == nil {
			env = make(map[string]string, 1)
		}
		env["DATABASE_URL"] = url
	}

	c.emitter.StepStarted(step.Name, string(step.Kind))
	started := time.Now()
	_, err := c.deps.Runner.Run(ctx, buildrunner.Step{
		Name:    step.Name,
		Command: step.Command,
		Dir:     step.Dir,
		Env:     env,
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && step.Optional {
		c.emitter.Warning(step.Name, "optional step "+step.Name+" failed", err)
		c.emitter.StepFinished(step.Name, string(step.Kind), time.Since(started), nil)
		return nil
	}
	c.emitter.StepFinished(step.Name, string(step.Kind), time.Since(started), err)
	return err
}

// runCheck runs the check command. On failure the repair steps run and the
// check is tried once more; a second failure is fatal and carries the
// manual remediation.
func (c *Controller) runCheck(ctx context.Context, plan Plan, step Step) error {
	c.emitter.StepStarted(step.Name, string(step.Kind))
	started := time.Now()
	check := buildrunner.Step{Name: step.Name, Command: step.Command, Dir: step.Dir}

	_, err := c.deps.Runner.Run(ctx, check)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, errdefs.ErrStepFailed) {
		logging.Warn("Controller", "%s failed, running %d repair step(s)", step.Name, len(step.Repair))
		c.emitter.Warning(step.Name, step.Name+" failed, trying to repair", err)
		for _, r := range step.Repair {
			if err := c.runCommand(ctx, plan, r); err != nil {
				c.emitter.StepFinished(step.Name, string(step.Kind), time.Since(started), err)
				return err
			}
		}
		_, err = c.deps.Runner.Run(ctx, check)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var sf *errdefs.StepFailedError
		if errors.As(err, &sf) && step.Remediation != "" {
			err = &errdefs.StepFailedError{Step: sf.Step, Command: sf.Command, ExitCode: sf.ExitCode, Hint: step.Remediation}
		}
	}
	c.emitter.StepFinished(step.Name, string(step.Kind), time.Since(started), err)
	return err
}

// databaseURL resolves DATABASE_URL once per run.
func (c *Controller) databaseURL(plan Plan) (string, error) {
	if c.dbURL != "" {
		return c.dbURL, nil
	}
	url, err := plan.Migrate.ResolveDatabaseURL(plan.Root, c.deps.LookupEnv)
	if err != nil {
		return "", err
	}
	c.dbURL = url
	return url, nil
}

func (c *Controller) applyPatch(step Step) {
	c.emitter.StepStarted(step.Name, string(step.Kind))
	started := time.Now()
	changed, err := step.Patch.Apply()
	if err != nil {
		c.emitter.Warning(step.Name, "proxy configuration left unchanged", err)
	} else if !changed {
		c.emitter.StepSkipped(step.Name, string(step.Kind), "already configured")
		return
	}
	c.emitter.StepFinished(step.Name, string(step.Kind), time.Since(started), err)
}

func (c *Controller) freePorts(ctx context.Context, plan Plan, step Step) error {
	c.emitter.StepStarted(step.Name, string(step.Kind))
	started := time.Now()
	for _, port := range step.Ports {
		b := c.deps.Ports.Inspect(ctx, port)
		if !b.Bound {
			continue
		}
		if !plan.AutoFree {
			err := &errdefs.PortConflictError{Port: port, PIDs: b.PIDs, Reason: "automatic freeing is disabled"}
			c.emitter.PortConflict(port, b.PIDs, err)
			c.emitter.StepFinished(step.Name, string(step.Kind), time.Since(started), err)
			return err
		}
		ok, err := c.deps.Ports.Free(ctx, port, plan.FreeWait)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !ok {
			if err == nil {
				err = &errdefs.PortConflictError{Port: port, PIDs: b.PIDs, Reason: "still bound"}
			}
			c.emitter.PortConflict(port, b.PIDs, err)
			c.emitter.StepFinished(step.Name, string(step.Kind), time.Since(started), err)
			return err
		}
		c.emitter.PortFreed(port, b.PIDs)
	}
	c.emitter.StepFinished(step.Name, string(step.Kind), time.Since(started), nil)
	return nil
}

func (c *Controller) spawn(ctx context.Context, plan Plan, step Step) error {
	if step.AwaitProbe != "" {
		if p, ok := c.probes[step.AwaitProbe]; ok {
			logging.Debug("Controller", "%s waits for %s", step.Name, step.AwaitProbe)
			if err := c.waitFor(ctx, plan, p.done); err != nil {
				return err
			}
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	def := step.Process
	env := config.ExpandEnvMap(def.Env, c.deps.LookupEnv)
	if def.PortEnv != "" && def.Port > 0 {
		if env == nil {
			env = make(map[string]string, 1)
		}
		env[def.PortEnv] = strconv.Itoa(def.Port)
	}
	dir := plan.Root
	if def.Dir != "" {
		dir = plan.abs(def.Dir)
	}

	h, err := c.deps.Supervisor.Spawn(supervisor.ManagedProcess{
		Name:    def.Name,
		Command: def.Command,
		Dir:     dir,
		Env:     env,
	})
	if err != nil {
		return err
	}
	c.children = append(c.children, &child{handle: h})
	c.emitter.ProcessStarted(def.Name, h.PID, def.Port, def.Command)
	return nil
}

func (c *Controller) startProbe(ctx context.Context, step Step) {
	p := &probeResult{done: make(chan struct{})}
	c.probes[step.Name] = p
	spec := *step.Probe

	c.probeWG.Add(1)
	go func() {
		defer c.probeWG.Done()
		defer close(p.done)

		started := time.Now()
		p.ok = c.deps.Prober.Probe(ctx, spec)
		elapsed := time.Since(started)
		switch {
		case p.ok:
			logging.Info("Controller", "%s is healthy after %s", step.Target, elapsed.Round(time.Millisecond))
			c.emitter.HealthReady(step.Target, spec.URL, elapsed)
		case ctx.Err() != nil:
			// interrupted, not a timeout
		default:
			err := &errdefs.HealthCheckTimeoutError{URL: spec.URL, Timeout: spec.Timeout}
			logging.Warn("Controller", "%v", err)
			c.emitter.HealthTimeout(step.Target, spec.URL, elapsed)
			c.emitter.Warning(step.Target, "health check timed out, continuing", err)
		}
	}()
}

func (c *Controller) startTunnel(ctx context.Context, step Step) error {
	if c.deps.Tunnel == nil {
		return errors.New("tunnel requested but no tunnel manager configured")
	}
	c.emitter.StepStarted(step.Name, string(step.Kind))
	started := time.Now()
	h, addr, err := c.deps.Tunnel.Start(ctx, *step.Tunnel)
	if err != nil {
		c.emitter.StepFinished(step.Name, string(step.Kind), time.Since(started), err)
		return err
	}
	c.children = append(c.children, &child{handle: h})
	c.emitter.ProcessStarted(h.Name, h.PID, step.Tunnel.LocalPort, h.Command)
	c.emitter.TunnelAddress(addr.URL, addr.Determinate, addr.Note)
	c.emitter.StepFinished(step.Name, string(step.Kind), time.Since(started), nil)
	return nil
}

func (c *Controller) openBrowser(ctx context.Context, step Step) {
	if c.deps.OpenBrowser == nil {
		return
	}
	open := c.deps.OpenBrowser
	emitter := c.emitter
	go func() {
		if err := open(ctx, step.Delay, step.URL); err != nil && ctx.Err() == nil {
			emitter.Warning(step.Name, "could not open a browser at "+step.URL, err)
		}
	}()
}

// waitFor blocks until ch is closed while watching the children. A child
// exiting on its own ends the wait with *errdefs.ChildExitedError.
func (c *Controller) waitFor(ctx context.Context, plan Plan, ch <-chan struct{}) error {
	interval := plan.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.deps.Supervisor.Exits():
			if err := c.onExit(ev); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.pollChildren(); err != nil {
				return err
			}
		}
	}
}

// supervise is the Running state: it returns on the first unexpected exit
// or when ctx ends.
func (c *Controller) supervise(ctx context.Context, plan Plan) error {
	logging.Info("Controller", "All processes started: %v", plan.Spawned())
	return c.waitFor(ctx, plan, nil)
}

func (c *Controller) find(pid int) *child {
	for _, ch := range c.children {
		if ch.handle.PID == pid {
			return ch
		}
	}
	return nil
}

func (c *Controller) onExit(ev supervisor.ExitEvent) error {
	ch := c.find(ev.PID)
	if ch == nil || ch.reported || ev.Expected {
		return nil
	}
	ch.reported = true
	c.emitter.ProcessExited(ev.Name, ev.PID, ev.ExitCode, false)
	return &errdefs.ChildExitedError{Name: ev.Name, ExitCode: ev.ExitCode}
}

func (c *Controller) pollChildren() error {
	for _, ch := range c.children {
		if ch.reported || c.deps.Supervisor.IsAlive(ch.handle) {
			continue
		}
		code, _ := ch.handle.ExitCode()
		ch.reported = true
		c.emitter.ProcessExited(ch.handle.Name, ch.handle.PID, code, false)
		return &errdefs.ChildExitedError{Name: ch.handle.Name, ExitCode: code}
	}
	return nil
}

// teardown stops every child in reverse start order. It never fails; a
// child that cannot be confirmed dead is logged.
func (c *Controller) teardown(grace time.Duration) {
	for i := len(c.children) - 1; i >= 0; i-- {
		ch := c.children[i]
		h := ch.handle
		if err := c.deps.Supervisor.Stop(h, grace); err != nil {
			logging.Error("Controller", err, "Failed to stop %s", h.Name)
			c.emitter.Warning(h.Name, "process may still be running", err)
		}
		if !ch.reported {
			ch.reported = true
			code, _ := h.ExitCode()
			c.emitter.ProcessExited(h.Name, h.PID, code, true)
		}
	}
	c.children = nil
}
