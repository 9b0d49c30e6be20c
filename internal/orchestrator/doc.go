// Package orchestrator provides the lifecycle controller of devctl.
//
// The controller brings a local development stack up in a fixed order,
// supervises it while it runs and tears it down in reverse order when the
// run ends, whatever ended it.
//
// # Lifecycle
//
// A run moves through these states:
//
//	Idle → Installing → Building → Migrating → PatchingConfig → FreeingPorts
//	     → StartingBackend → ProbingBackend → StartingFrontend
//	     → (StartingTunnel) → Running → ShuttingDown → Stopped
//
// Phases without steps are skipped. One-shot commands (install, build,
// migrate) run through a buildrunner.Runner; a failure there ends the run
// before anything was spawned. Ports declared by the plan are freed before
// the first spawn. The backend health probe runs concurrently with the
// rest of the plan; a spawn that awaits it waits until the probe has either
// succeeded or timed out, and every probe is resolved before Running.
//
// # Commands and events
//
// The controller is driven by two commands, Start(plan) and Stop(), and
// reports everything it does as events on a reporting.EventBus. It knows
// nothing about how commands are produced or events are displayed:
//
//	ctrl := orchestrator.New(deps)
//	go func() { _ = ctrl.Start(orchestrator.BuildPlan(cfg, opts)) }()
//	err := ctrl.Run(ctx) // returns after Stopped
//
// # Failure handling
//
// Fatal errors (missing tools, unresolved port conflicts, failed steps,
// spawn failures, a child exiting on its own) end the run with that error
// after tearing down whatever was spawned. Health timeouts and config patch
// failures are reported as warnings and the run continues. An interrupt,
// either ctx cancellation or Stop, ends the run cleanly with a nil error.
package orchestrator
