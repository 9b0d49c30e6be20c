package orchestrator

import (
	"fmt"
	"path/filepath"
	"time"

	"devctl/internal/config"
	"devctl/internal/health"
	"devctl/internal/patcher"
	"devctl/internal/tunnel"
)

// StepKind tells the controller how to execute a step.
type StepKind string

const (
	KindCommand     StepKind = "command"      // one-shot command through the build runner
	KindCheck       StepKind = "check"        // command retried once after its Repair steps
	KindPatch       StepKind = "patch"        // config patch, failure is a warning
	KindFreePorts   StepKind = "free-ports"   // free every port in Ports
	KindSpawn       StepKind = "spawn"        // supervised long-running process
	KindProbe       StepKind = "probe"        // health probe, runs concurrently
	KindTunnel      StepKind = "tunnel"       // public tunnel
	KindOpenBrowser StepKind = "open-browser" // open URL after Delay, failure is a warning
)

// ConfigPatch is an idempotent edit of a configuration file.
type ConfigPatch interface {
	Apply() (changed bool, err error)
}

// Step is one entry of a Plan. Which fields matter depends on Kind.
type Step struct {
	Name  string
	Kind  StepKind
	Phase State // state entered when the step starts

	// command
	Command      []string
	Dir          string
	Env          map[string]string
	Optional     bool   // failure is a warning
	SkipIfExists string // skip when this path exists, relative to the root
	// NeedsDatabaseURL exports DATABASE_URL resolved from Plan.Migrate.
	NeedsDatabaseURL bool

	// check
	Repair      []Step
	Remediation string

	// patch
	Patch ConfigPatch

	// free-ports
	Ports []int

	// spawn
	Process *config.ProcessDefinition
	// AwaitProbe names a probe step whose result must be known before
	// this process is spawned.
	AwaitProbe string

	// probe
	Probe  *health.Spec
	Target string // process the probe belongs to

	// tunnel
	Tunnel *tunnel.Config

	// open-browser
	URL   string
	Delay time.Duration
}

// Plan is the ordered list of steps of one run plus the settings that
// govern it.
type Plan struct {
	Root   string
	Marker string // file that must exist in Root, "" disables the check
	Steps  []Step

	Migrate      config.MigrateConfig
	ForceInstall bool // ignore SkipIfExists

	AutoFree     bool
	FreeWait     time.Duration
	GracePeriod  time.Duration
	PollInterval time.Duration
}

// Spawned returns the names of the processes the plan starts, in order.
func (p Plan) Spawned() []string {
	var names []string
	for _, s := range p.Steps {
		switch s.Kind {
		case KindSpawn:
			names = append(names, s.Process.Name)
		case KindTunnel:
			names = append(names, tunnel.ProcessName)
		}
	}
	return names
}

// PlanOptions are the per-run switches of devctl up.
type PlanOptions struct {
	SkipInstall  bool
	SkipBuild    bool
	SkipDB       bool
	ForceInstall bool
	NoPatchProxy bool
	NoOpen       bool
}

// BuildPlan derives the plan of a run from configuration.
func BuildPlan(cfg config.DevctlConfig, opts PlanOptions) Plan {
	p := Plan{
		Root:         cfg.Project.Root,
		Marker:       cfg.Project.Marker,
		Migrate:      cfg.Migrate,
		ForceInstall: opts.ForceInstall,
		AutoFree:     cfg.Ports.AutoFree,
		FreeWait:     cfg.Ports.FreeWait,
		GracePeriod:  cfg.Shutdown.GracePeriod,
		PollInterval: cfg.Shutdown.PollInterval,
	}
	if p.PollInterval <= 0 {
		p.PollInterval = time.Second
	}
	if p.GracePeriod <= 0 {
		p.GracePeriod = 10 * time.Second
	}

	if !opts.SkipInstall {
		p.addCommands(StateInstalling, cfg.Install, false)
	}
	if !opts.SkipBuild {
		p.addCommands(StateBuilding, cfg.Build, false)
	}
	if !opts.SkipDB {
		if check := cfg.Migrate.Check; check.Enabled() {
			p.Steps = append(p.Steps, Step{
				Name:        check.Name,
				Kind:        KindCheck,
				Phase:       StateMigrating,
				Command:     check.Command,
				Repair:      commandSteps(StateMigrating, check.Repair, false),
				Remediation: check.Remediation,
			})
		}
		p.addCommands(StateMigrating, cfg.Migrate.Steps, true)
	}

	if cfg.Proxy.Enabled && !opts.NoPatchProxy && cfg.Proxy.File != "" {
		p.Steps = append(p.Steps, Step{
			Name:  "patch-proxy",
			Kind:  KindPatch,
			Phase: StatePatchingConfig,
			Patch: patcher.ViteProxy{
				Path:   p.abs(cfg.Proxy.File),
				Target: cfg.Backend.BaseURL(),
				Paths:  cfg.Proxy.Paths,
			},
		})
	}

	if ports := planPorts(cfg); len(ports) > 0 {
		p.Steps = append(p.Steps, Step{Name: "free-ports", Kind: KindFreePorts, Phase: StateFreeingPorts, Ports: ports})
	}

	backend := cfg.Backend
	p.Steps = append(p.Steps, Step{Name: backend.Name, Kind: KindSpawn, Phase: StateStartingBackend, Process: &backend})
	backendProbe := ""
	if spec, ok := probeSpec(backend); ok {
		backendProbe = "probe-" + backend.Name
		p.Steps = append(p.Steps, Step{Name: backendProbe, Kind: KindProbe, Phase: StateProbingBackend, Probe: &spec, Target: backend.Name})
	}

	frontend := cfg.Frontend
	if frontend.Name != "" && len(frontend.Command) > 0 {
		step := Step{Name: frontend.Name, Kind: KindSpawn, Phase: StateStartingFrontend, Process: &frontend}
		if frontend.AwaitBackendHealth {
			step.AwaitProbe = backendProbe
		}
		p.Steps = append(p.Steps, step)
		if spec, ok := probeSpec(frontend); ok {
			p.Steps = append(p.Steps, Step{Name: "probe-" + frontend.Name, Kind: KindProbe, Phase: StateStartingFrontend, Probe: &spec, Target: frontend.Name})
		}
	}

	if cfg.Tunnel.Mode == config.TunnelOn {
		tc := tunnel.FromConfig(cfg.Tunnel, frontend.Port)
		p.Steps = append(p.Steps, Step{Name: tunnel.ProcessName, Kind: KindTunnel, Phase: StateStartingTunnel, Tunnel: &tc})
	}

	if cfg.Browser.Open && !opts.NoOpen && frontend.Port > 0 {
		url := cfg.Browser.URL
		if url == "" {
			url = fmt.Sprintf("http://localhost:%d", frontend.Port)
		}
		p.Steps = append(p.Steps, Step{Name: "open-browser", Kind: KindOpenBrowser, URL: url, Delay: cfg.Browser.Delay})
	}
	return p
}

func (p *Plan) addCommands(phase State, steps []config.CommandStep, needsDB bool) {
	p.Steps = append(p.Steps, commandSteps(phase, steps, needsDB)...)
}

func commandSteps(phase State, steps []config.CommandStep, needsDB bool) []Step {
	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		out = append(out, Step{
			Name:             s.Name,
			Kind:             KindCommand,
			Phase:            phase,
			Command:          s.Command,
			Dir:              s.Dir,
			Env:              s.Env,
			Optional:         s.Optional,
			SkipIfExists:     s.SkipIfExists,
			NeedsDatabaseURL: needsDB,
		})
	}
	return out
}

func (p Plan) abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Root, path)
}

// planPorts lists the ports to free: backend, frontend, then extras, each
// once.
func planPorts(cfg config.DevctlConfig) []int {
	seen := make(map[int]bool)
	var ports []int
	add := func(port int) {
		if port > 0 && !seen[port] {
			seen[port] = true
			ports = append(ports, port)
		}
	}
	add(cfg.Backend.Port)
	if cfg.Frontend.Name != "" {
		add(cfg.Frontend.Port)
	}
	for _, port := range cfg.Ports.Extra {
		add(port)
	}
	return ports
}

func probeSpec(p config.ProcessDefinition) (health.Spec, bool) {
	url := p.HealthURL()
	if url == "" {
		return health.Spec{}, false
	}
	spec := health.Spec{
		URL:      url,
		Timeout:  p.Health.Timeout,
		Interval: p.Health.Interval,
	}
	if spec.Timeout <= 0 {
		spec.Timeout = 30 * time.Second
	}
	if p.Health.ReadyField != "" {
		spec.Ready = health.ReadyField(p.Health.ReadyField)
	}
	return spec, true
}
