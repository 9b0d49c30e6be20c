package app

import (
	"fmt"

	"devctl/internal/browser"
	"devctl/internal/buildrunner"
	"devctl/internal/config"
	"devctl/internal/health"
	"devctl/internal/orchestrator"
	"devctl/internal/ports"
	"devctl/internal/reporting"
	"devctl/internal/supervisor"
	"devctl/internal/toolchain"
	"devctl/internal/tunnel"
	"devctl/pkg/logging"
)

// Services holds the wired components of one run.
type Services struct {
	Bus     reporting.EventBus
	Emitter *reporting.Emitter
	Store   *reporting.StateStore
	Tail    *reporting.LogTail

	Tools      *toolchain.Toolchain
	Supervisor *supervisor.Supervisor
	Ports      *ports.Resolver
	Watcher    *tunnel.AddressWatcher
	Controller *orchestrator.Controller

	Plan orchestrator.Plan
}

// InitializeServices resolves the toolchain and creates every component
// around a fresh event bus.
func InitializeServices(cfg *Config) (*Services, error) {
	dc := cfg.DevctlConfig

	tools, err := toolchain.Resolve(requirements(*dc)...)
	if err != nil {
		logging.Error("Bootstrap", err, "Required tool missing")
		return nil, err
	}

	bus := reporting.NewEventBus()
	emitter := reporting.NewEmitter(bus, reporting.NewRunID())
	watcher := tunnel.NewAddressWatcher(emitter, dc.Tunnel.CopyURL)

	sink := func(l supervisor.Line) {
		emitter.Log(l.Process, string(l.Stream), l.Text)
		watcher.Observe(l)
	}
	sup := supervisor.New(tools, sink)
	runner := buildrunner.NewExecRunner(tools, emitter, dc.Project.Root)

	resolver := ports.NewResolver()
	resolver.BeforeTerminate = func(port int, pids []int) {
		emitter.PortConflict(port, pids, nil)
	}

	ctrl := orchestrator.New(orchestrator.Dependencies{
		Runner:      runner,
		Supervisor:  sup,
		Ports:       resolver,
		Prober:      health.NewProber(),
		Tunnel:      tunnel.NewManager(sup, tools, runner, emitter),
		OpenBrowser: browser.OpenAfter,
		Emitter:     emitter,
	})

	logging.Debug("Bootstrap", "Run %s initialized", emitter.RunID())
	return &Services{
		Bus:        bus,
		Emitter:    emitter,
		Store:      reporting.NewStateStore(),
		Tail:       reporting.NewLogTail(reporting.DefaultTailLines),
		Tools:      tools,
		Supervisor: sup,
		Ports:      resolver,
		Watcher:    watcher,
		Controller: ctrl,
		Plan:       orchestrator.BuildPlan(*dc, cfg.Plan),
	}, nil
}

// requirements lists the binaries resolved up front: the configured tools
// and the tunnel binary when the tunnel is on.
func requirements(dc config.DevctlConfig) []toolchain.Requirement {
	var reqs []toolchain.Requirement
	for _, t := range dc.Tools {
		reqs = append(reqs, toolchain.Requirement{Name: t.Name, Hint: t.Hint})
	}
	if dc.Tunnel.Mode == config.TunnelOn {
		tc := tunnel.FromConfig(dc.Tunnel, dc.Frontend.Port)
		hint := tc.Hint
		if hint == "" {
			hint = fmt.Sprintf("install %s", tc.Binary)
		}
		reqs = append(reqs, toolchain.Requirement{Name: tc.Binary, Hint: hint})
	}
	return reqs
}

// processNames are the names printed in the console prefix column.
func processNames(dc config.DevctlConfig) []string {
	names := []string{dc.Backend.Name}
	if dc.Frontend.Name != "" {
		names = append(names, dc.Frontend.Name)
	}
	if dc.Tunnel.Mode == config.TunnelOn {
		names = append(names, tunnel.ProcessName)
	}
	return names
}
