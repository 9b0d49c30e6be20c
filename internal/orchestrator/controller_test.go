package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devctl/internal/config"
	"devctl/internal/errdefs"
	"devctl/internal/health"
	"devctl/internal/ports"
	"devctl/internal/reporting"
	"devctl/internal/tunnel"
)

// readyAfter serves {"ok": false} until delay has passed, then {"ok": true}.
func readyAfter(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	start := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if time.Since(start) < delay {
			_, _ = w.Write([]byte(`{"ok": false}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func probeStep(target, url string, timeout time.Duration) Step {
	return Step{
		Name:   "probe-" + target,
		Kind:   KindProbe,
		Phase:  StateProbingBackend,
		Target: target,
		Probe:  &health.Spec{URL: url, Timeout: timeout, Interval: 100 * time.Millisecond, Ready: health.ReadyField("ok")},
	}
}

func TestRun_HealthyBackendReachesRunning(t *testing.T) {
	h := newHarness(t)
	srv := readyAfter(t, time.Second)

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{
		{Name: "free-ports", Kind: KindFreePorts, Phase: StateFreeingPorts, Ports: []int{8787, 5173}},
		spawnStep("worker", StateStartingBackend, "sleep 30"),
		probeStep("worker", srv.URL+"/health", 10*time.Second),
		spawnStep("web", StateStartingFrontend, "sleep 30"),
	}
	plan.Steps[3].AwaitProbe = "probe-worker"

	started := time.Now()
	h.start(context.Background(), plan)
	require.Eventually(t, func() bool { return h.ctrl.State() == StateRunning }, 5*time.Second, 20*time.Millisecond)
	assert.Less(t, time.Since(started), 5*time.Second)

	live := h.sup.Live()
	require.Len(t, live, 2)
	assert.Equal(t, "worker", live[0].Name)
	assert.Equal(t, "web", live[1].Name)

	h.ctrl.Stop()
	require.NoError(t, h.wait(10*time.Second))
	assert.Equal(t, StateStopped, h.ctrl.State())
	for _, hd := range live {
		assert.False(t, h.sup.IsAlive(hd), "%s still alive", hd.Name)
	}
	assert.Empty(t, h.sup.Live())

	ready := h.indexOf(reporting.EventTypeHealthReady, "worker")
	webStarted := h.indexOf(reporting.EventTypeProcessStarted, "web")
	require.GreaterOrEqual(t, ready, 0)
	assert.Greater(t, webStarted, ready, "frontend must start after the backend probe resolved")

	assert.Equal(t, []string{
		"FreeingPorts", "StartingBackend", "ProbingBackend", "StartingFrontend",
		"Running", "ShuttingDown", "Stopped",
	}, h.states())
}

func TestRun_UnfreeablePortIsFatal(t *testing.T) {
	h := newHarness(t)
	_, port := listenLocal(t)
	h.deps.Ports = &ports.Resolver{Inspector: stubbornInspector{}, Host: "127.0.0.1", PollInterval: 50 * time.Millisecond}

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{
		{Name: "free-ports", Kind: KindFreePorts, Phase: StateFreeingPorts, Ports: []int{port}},
		spawnStep("worker", StateStartingBackend, "sleep 30"),
		spawnStep("web", StateStartingFrontend, "sleep 30"),
	}

	started := time.Now()
	h.start(context.Background(), plan)
	err := h.wait(5 * time.Second)

	require.ErrorIs(t, err, errdefs.ErrPortConflict)
	assert.GreaterOrEqual(t, time.Since(started), plan.FreeWait)
	assert.Equal(t, 1, errdefs.ExitCode(err))
	assert.Empty(t, h.processEvents(reporting.EventTypeProcessStarted))
	assert.Equal(t, []string{"FreeingPorts", "Stopped"}, h.states())
}

func TestRun_AutoFreeDisabledReportsConflict(t *testing.T) {
	h := newHarness(t)
	h.ports.bound[8787] = []int{99}

	plan := testPlan(t.TempDir())
	plan.AutoFree = false
	plan.Steps = []Step{
		{Name: "free-ports", Kind: KindFreePorts, Phase: StateFreeingPorts, Ports: []int{8787}},
		spawnStep("worker", StateStartingBackend, "sleep 30"),
	}

	h.start(context.Background(), plan)
	err := h.wait(5 * time.Second)

	var pc *errdefs.PortConflictError
	require.True(t, errors.As(err, &pc))
	assert.Equal(t, []int{99}, pc.PIDs)
	assert.Empty(t, h.ports.freed)
	assert.Empty(t, h.processEvents(reporting.EventTypeProcessStarted))
}

func TestRun_FreesBoundPorts(t *testing.T) {
	h := newHarness(t)
	h.ports.bound[8787] = []int{7, 8}

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{
		{Name: "free-ports", Kind: KindFreePorts, Phase: StateFreeingPorts, Ports: []int{8787, 5173}},
		spawnStep("worker", StateStartingBackend, "sleep 30"),
	}

	h.start(context.Background(), plan)
	require.Eventually(t, func() bool { return h.ctrl.State() == StateRunning }, 5*time.Second, 20*time.Millisecond)
	h.ctrl.Stop()
	require.NoError(t, h.wait(10*time.Second))

	assert.Equal(t, []int{8787}, h.ports.freed)
	var freed []reporting.PortEvent
	for _, ev := range h.events {
		if pe, ok := ev.(reporting.PortEvent); ok && ev.Type() == reporting.EventTypePortFreed {
			freed = append(freed, pe)
		}
	}
	require.Len(t, freed, 1)
	assert.Equal(t, []int{7, 8}, freed[0].PIDs)
}

func TestRun_TeardownInReverseOrder(t *testing.T) {
	h := newHarness(t)

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{
		spawnStep("worker", StateStartingBackend, "sleep 30"),
		spawnStep("web", StateStartingFrontend, "sleep 30"),
		{Name: "tunnel", Kind: KindTunnel, Phase: StateStartingTunnel, Tunnel: &tunnel.Config{Mode: config.TunnelOn, LocalPort: 5173}},
	}

	h.start(context.Background(), plan)
	require.Eventually(t, func() bool { return h.ctrl.State() == StateRunning }, 5*time.Second, 20*time.Millisecond)
	h.ctrl.Stop()
	require.NoError(t, h.wait(10*time.Second))

	var order []string
	for _, pe := range h.processEvents(reporting.EventTypeProcessExited) {
		order = append(order, pe.Process)
		assert.True(t, pe.Expected)
	}
	assert.Equal(t, []string{"tunnel", "web", "worker"}, order)

	var addr []reporting.TunnelEvent
	for _, ev := range h.events {
		if te, ok := ev.(reporting.TunnelEvent); ok {
			addr = append(addr, te)
		}
	}
	require.Len(t, addr, 1)
	assert.Equal(t, tunnel.Placeholder, addr[0].URL)
	assert.False(t, addr[0].Determinate)
}

func TestRun_ChildExitTriggersTeardown(t *testing.T) {
	h := newHarness(t)

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{
		spawnStep("worker", StateStartingBackend, "sleep 30"),
		spawnStep("web", StateStartingFrontend, "sleep 0.3; exit 3"),
	}

	h.start(context.Background(), plan)
	err := h.wait(10 * time.Second)

	var ce *errdefs.ChildExitedError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "web", ce.Name)
	assert.Equal(t, 3, ce.ExitCode)
	assert.Empty(t, h.sup.Live())
	assert.Contains(t, h.states(), "ShuttingDown")
	assert.Equal(t, "Stopped", h.states()[len(h.states())-1])

	exits := h.processEvents(reporting.EventTypeProcessExited)
	require.Len(t, exits, 2)
	assert.Equal(t, "web", exits[0].Process)
	assert.False(t, exits[0].Expected)
	assert.Equal(t, "worker", exits[1].Process)
	assert.True(t, exits[1].Expected)
}

func TestRun_InterruptIsClean(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{spawnStep("worker", StateStartingBackend, "sleep 30")}

	h.start(ctx, plan)
	require.Eventually(t, func() bool { return h.ctrl.State() == StateRunning }, 5*time.Second, 20*time.Millisecond)
	live := h.sup.Live()
	require.Len(t, live, 1)

	cancel()
	require.NoError(t, h.wait(5*time.Second))
	assert.False(t, h.sup.IsAlive(live[0]))
	assert.Equal(t, 0, errdefs.ExitCode(nil))
}

func TestRun_StepFailureStopsBeforeSpawning(t *testing.T) {
	h := newHarness(t)
	h.runner.fail["install"] = 1

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{
		{Name: "install", Kind: KindCommand, Phase: StateInstalling, Command: []string{"pnpm", "install"}},
		{Name: "build", Kind: KindCommand, Phase: StateBuilding, Command: []string{"pnpm", "build"}},
		spawnStep("worker", StateStartingBackend, "sleep 30"),
	}

	h.start(context.Background(), plan)
	err := h.wait(5 * time.Second)

	assert.ErrorIs(t, err, errdefs.ErrStepFailed)
	assert.Equal(t, []string{"install"}, h.runner.names())
	assert.Equal(t, []string{"Installing", "Stopped"}, h.states())
	assert.Empty(t, h.processEvents(reporting.EventTypeProcessStarted))
}

func TestRun_OptionalStepFailureWarns(t *testing.T) {
	h := newHarness(t)
	h.runner.fail["approve-builds"] = 1

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{
		{Name: "approve-builds", Kind: KindCommand, Phase: StateInstalling, Command: []string{"pnpm", "approve-builds"}, Optional: true},
		{Name: "install", Kind: KindCommand, Phase: StateInstalling, Command: []string{"pnpm", "install"}},
	}

	h.start(context.Background(), plan)
	require.Eventually(t, func() bool { return h.ctrl.State() == StateRunning }, 5*time.Second, 20*time.Millisecond)
	h.ctrl.Stop()
	require.NoError(t, h.wait(5*time.Second))

	assert.Equal(t, []string{"approve-builds", "install"}, h.runner.names())
	assert.GreaterOrEqual(t, h.indexOf(reporting.EventTypeWarning, "approve-builds"), 0)
}

func TestRun_SkipIfExists(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
	step := Step{Name: "install", Kind: KindCommand, Phase: StateInstalling, Command: []string{"pnpm", "install"}, SkipIfExists: "node_modules"}

	h := newHarness(t)
	plan := testPlan(root)
	plan.Steps = []Step{step}
	h.start(context.Background(), plan)
	require.Eventually(t, func() bool { return h.ctrl.State() == StateRunning }, 5*time.Second, 20*time.Millisecond)
	h.ctrl.Stop()
	require.NoError(t, h.wait(5*time.Second))
	assert.Empty(t, h.runner.names())

	forced := newHarness(t)
	plan.ForceInstall = true
	forced.start(context.Background(), plan)
	require.Eventually(t, func() bool { return forced.ctrl.State() == StateRunning }, 5*time.Second, 20*time.Millisecond)
	forced.ctrl.Stop()
	require.NoError(t, forced.wait(5*time.Second))
	assert.Equal(t, []string{"install"}, forced.runner.names())
}

func TestRun_MigrationGetsDatabaseURL(t *testing.T) {
	h := newHarness(t)
	h.deps.LookupEnv = func(k string) (string, bool) {
		if k == "DATABASE_URL" {
			return "postgres://localhost/dev", true
		}
		return "", false
	}

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{
		{Name: "migrate", Kind: KindCommand, Phase: StateMigrating, Command: []string{"prisma", "migrate", "deploy"}, NeedsDatabaseURL: true},
	}
	h.start(context.Background(), plan)
	require.Eventually(t, func() bool { return h.ctrl.State() == StateRunning }, 5*time.Second, 20*time.Millisecond)
	h.ctrl.Stop()
	require.NoError(t, h.wait(5*time.Second))

	require.Len(t, h.runner.steps, 1)
	assert.Equal(t, "postgres://localhost/dev", h.runner.steps[0].Env["DATABASE_URL"])
}

func prismaCheck() Step {
	return Step{
		Name:    "prisma-cli",
		Kind:    KindCheck,
		Phase:   StateMigrating,
		Command: []string{"pnpm", "exec", "prisma", "-v"},
		Repair: []Step{
			{Name: "approve-builds", Kind: KindCommand, Command: []string{"pnpm", "approve-builds"}, Optional: true},
			{Name: "install", Kind: KindCommand, Command: []string{"pnpm", "install"}},
		},
		Remediation: "pnpm --yes approve-builds prisma",
	}
}

func TestRun_CheckRepairsAndRetries(t *testing.T) {
	h := newHarness(t)
	h.runner.flaky["prisma-cli"] = 1

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{prismaCheck()}
	h.start(context.Background(), plan)
	require.Eventually(t, func() bool { return h.ctrl.State() == StateRunning }, 5*time.Second, 20*time.Millisecond)
	h.ctrl.Stop()
	require.NoError(t, h.wait(5*time.Second))

	assert.Equal(t, []string{"prisma-cli", "approve-builds", "install", "prisma-cli"}, h.runner.names())
	assert.GreaterOrEqual(t, h.indexOf(reporting.EventTypeWarning, "prisma-cli"), 0)
}

func TestRun_CheckPassingSkipsRepair(t *testing.T) {
	h := newHarness(t)

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{prismaCheck()}
	h.start(context.Background(), plan)
	require.Eventually(t, func() bool { return h.ctrl.State() == StateRunning }, 5*time.Second, 20*time.Millisecond)
	h.ctrl.Stop()
	require.NoError(t, h.wait(5*time.Second))

	assert.Equal(t, []string{"prisma-cli"}, h.runner.names())
}

func TestRun_CheckFailingAfterRepairIsFatal(t *testing.T) {
	h := newHarness(t)
	h.runner.fail["prisma-cli"] = 1

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{
		prismaCheck(),
		{Name: "migrate", Kind: KindCommand, Phase: StateMigrating, Command: []string{"prisma", "migrate", "deploy"}},
	}
	h.start(context.Background(), plan)
	err := h.wait(5 * time.Second)

	require.ErrorIs(t, err, errdefs.ErrStepFailed)
	assert.Equal(t, "fix it manually, then retry: pnpm --yes approve-builds prisma", errdefs.Remediation(err))
	assert.Equal(t, []string{"prisma-cli", "approve-builds", "install", "prisma-cli"}, h.runner.names())
	assert.Equal(t, []string{"Migrating", "Stopped"}, h.states())
}

func TestRun_StateNeverMovesBackwards(t *testing.T) {
	h := newHarness(t)

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{
		{Name: "build", Kind: KindCommand, Phase: StateBuilding, Command: []string{"pnpm", "build"}},
		{Name: "install", Kind: KindCommand, Phase: StateInstalling, Command: []string{"pnpm", "install"}},
	}
	h.start(context.Background(), plan)
	require.Eventually(t, func() bool { return h.ctrl.State() == StateRunning }, 5*time.Second, 20*time.Millisecond)
	h.ctrl.Stop()
	require.NoError(t, h.wait(5*time.Second))

	assert.Equal(t, []string{"build", "install"}, h.runner.names())
	assert.Equal(t, []string{"Building", "Running", "Stopped"}, h.states())
}

func TestRun_MissingDatabaseURLIsFatal(t *testing.T) {
	h := newHarness(t)

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{
		{Name: "migrate", Kind: KindCommand, Phase: StateMigrating, Command: []string{"prisma"}, NeedsDatabaseURL: true},
	}
	h.start(context.Background(), plan)
	err := h.wait(5 * time.Second)
	assert.ErrorContains(t, err, "DATABASE_URL")
	assert.Empty(t, h.runner.names())
}

func TestRun_HealthTimeoutIsWarning(t *testing.T) {
	h := newHarness(t)
	srv := readyAfter(t, time.Hour)

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{
		spawnStep("worker", StateStartingBackend, "sleep 30"),
		probeStep("worker", srv.URL, 300*time.Millisecond),
		spawnStep("web", StateStartingFrontend, "sleep 30"),
	}
	plan.Steps[2].AwaitProbe = "probe-worker"

	h.start(context.Background(), plan)
	require.Eventually(t, func() bool { return h.ctrl.State() == StateRunning }, 5*time.Second, 20*time.Millisecond)
	h.ctrl.Stop()
	require.NoError(t, h.wait(10*time.Second))

	timeout := h.indexOf(reporting.EventTypeHealthTimeout, "worker")
	require.GreaterOrEqual(t, timeout, 0)
	assert.Greater(t, h.indexOf(reporting.EventTypeProcessStarted, "web"), timeout)

	var warned bool
	for _, ev := range h.events {
		if we, ok := ev.(reporting.WarningEvent); ok && errors.Is(we.Err, errdefs.ErrHealthCheckTimeout) {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRun_ProjectMarkerRequired(t *testing.T) {
	h := newHarness(t)
	plan := testPlan(t.TempDir())
	plan.Marker = "pnpm-workspace.yaml"
	plan.Steps = []Step{spawnStep("worker", StateStartingBackend, "sleep 30")}

	h.start(context.Background(), plan)
	err := h.wait(5 * time.Second)
	assert.ErrorIs(t, err, errdefs.ErrProjectRoot)
	assert.Empty(t, h.processEvents(reporting.EventTypeProcessStarted))
}

func TestRun_PatchFailureIsWarning(t *testing.T) {
	h := newHarness(t)
	var applied atomic.Int32
	plan := testPlan(t.TempDir())
	plan.Steps = []Step{
		{Name: "patch-proxy", Kind: KindPatch, Phase: StatePatchingConfig, Patch: patchFunc(func() (bool, error) {
			applied.Add(1)
			return false, &errdefs.ConfigPatchError{Path: "vite.config.ts", Reason: "file not found"}
		})},
		spawnStep("worker", StateStartingBackend, "sleep 30"),
	}

	h.start(context.Background(), plan)
	require.Eventually(t, func() bool { return h.ctrl.State() == StateRunning }, 5*time.Second, 20*time.Millisecond)
	h.ctrl.Stop()
	require.NoError(t, h.wait(5*time.Second))

	assert.Equal(t, int32(1), applied.Load())
	assert.GreaterOrEqual(t, h.indexOf(reporting.EventTypeWarning, "patch-proxy"), 0)
}

func TestRun_StopBeforeStart(t *testing.T) {
	h := newHarness(t)
	h.ctrl = New(h.deps)
	h.ctrl.Stop()
	h.ctrl.Stop()
	assert.NoError(t, h.ctrl.Run(context.Background()))
	assert.Equal(t, StateStopped, h.ctrl.State())
}

func TestStart_OnlyOnce(t *testing.T) {
	c := New(Dependencies{})
	require.NoError(t, c.Start(Plan{}))
	assert.ErrorIs(t, c.Start(Plan{}), ErrAlreadyStarted)
}

func TestRun_BrowserOpenedAfterSpawn(t *testing.T) {
	h := newHarness(t)
	opened := make(chan string, 1)
	h.deps.OpenBrowser = func(_ context.Context, _ time.Duration, url string) error {
		opened <- url
		return nil
	}

	plan := testPlan(t.TempDir())
	plan.Steps = []Step{
		spawnStep("web", StateStartingFrontend, "sleep 30"),
		{Name: "open-browser", Kind: KindOpenBrowser, URL: "http://localhost:5173"},
	}
	h.start(context.Background(), plan)

	select {
	case url := <-opened:
		assert.Equal(t, "http://localhost:5173", url)
	case <-time.After(5 * time.Second):
		t.Fatal("browser not opened")
	}
	h.ctrl.Stop()
	require.NoError(t, h.wait(5*time.Second))
}

type patchFunc func() (bool, error)

func (f patchFunc) Apply() (bool, error) { return f() }
