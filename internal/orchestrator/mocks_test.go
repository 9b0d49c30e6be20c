package orchestrator

import (
	"context"
	"net"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"devctl/internal/buildrunner"
	"devctl/internal/config"
	"devctl/internal/errdefs"
	"devctl/internal/health"
	"devctl/internal/ports"
	"devctl/internal/reporting"
	"devctl/internal/supervisor"
	"devctl/internal/toolchain"
	"devctl/internal/tunnel"
)

// mockRunner records one-shot steps. Steps listed in fail always fail with
// the given code; steps listed in flaky fail that many times first.
type mockRunner struct {
	mu    sync.Mutex
	steps []buildrunner.Step
	fail  map[string]int
	flaky map[string]int
}

func (m *mockRunner) Run(_ context.Context, s buildrunner.Step) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, s)
	if m.flaky[s.Name] > 0 {
		m.flaky[s.Name]--
		return 1, &errdefs.StepFailedError{Step: s.Name, Command: s.Command, ExitCode: 1}
	}
	if code, ok := m.fail[s.Name]; ok {
		return code, &errdefs.StepFailedError{Step: s.Name, Command: s.Command, ExitCode: code}
	}
	return 0, nil
}

func (m *mockRunner) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.steps {
		out = append(out, s.Name)
	}
	return out
}

// mockPorts reports ports as bound and frees them on request.
type mockPorts struct {
	mu     sync.Mutex
	bound  map[int][]int
	freed  []int
	freeOK bool
}

func (m *mockPorts) Inspect(_ context.Context, port int) ports.Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	pids, ok := m.bound[port]
	return ports.Binding{Port: port, Bound: ok, PIDs: pids}
}

func (m *mockPorts) Free(_ context.Context, port int, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freed = append(m.freed, port)
	if !m.freeOK {
		return false, &errdefs.PortConflictError{Port: port, Reason: "still bound"}
	}
	delete(m.bound, port)
	return true, nil
}

// stubbornInspector finds an owner but cannot terminate it.
type stubbornInspector struct{}

func (stubbornInspector) ListeningPIDs(context.Context, int) ([]int, error) { return []int{4242}, nil }
func (stubbornInspector) Terminate(context.Context, int) error             { return nil }

// mockTunnel spawns a sleeping stand-in for the tunnel client.
type mockTunnel struct {
	sup *supervisor.Supervisor
}

func (m *mockTunnel) Start(_ context.Context, cfg tunnel.Config) (*supervisor.Handle, tunnel.PublicAddress, error) {
	h, err := m.sup.Spawn(supervisor.ManagedProcess{Name: tunnel.ProcessName, Command: []string{"sh", "-c", "sleep 30"}})
	if err != nil {
		return nil, tunnel.PublicAddress{}, err
	}
	return h, cfg.Address(), nil
}

type harness struct {
	t      *testing.T
	ctrl   *Controller
	sup    *supervisor.Supervisor
	runner *mockRunner
	ports  *mockPorts
	bus    reporting.EventBus
	sub    *reporting.EventSubscription
	deps   Dependencies
	done   chan error
	events []reporting.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("controller tests spawn sh")
	}
	tools, err := toolchain.Resolve(toolchain.Requirement{Name: "sh"})
	require.NoError(t, err)

	bus := reporting.NewEventBus()
	h := &harness{
		t:      t,
		sup:    supervisor.New(tools, nil),
		runner: &mockRunner{fail: map[string]int{}, flaky: map[string]int{}},
		ports:  &mockPorts{bound: map[int][]int{}, freeOK: true},
		bus:    bus,
		sub:    bus.SubscribeChannel(nil, 4096),
	}
	h.sup.WaitDelay = 200 * time.Millisecond
	h.deps = Dependencies{
		Runner:     h.runner,
		Supervisor: h.sup,
		Ports:      h.ports,
		Prober:     health.NewProber(),
		Tunnel:     &mockTunnel{sup: h.sup},
		Emitter:    reporting.NewEmitter(bus, "test-run"),
		LookupEnv:  func(string) (string, bool) { return "", false },
	}
	t.Cleanup(func() {
		for _, hd := range h.sup.Live() {
			_ = h.sup.Stop(hd, 100*time.Millisecond)
		}
	})
	return h
}

// start runs the controller in the background and submits plan.
func (h *harness) start(ctx context.Context, plan Plan) {
	h.ctrl = New(h.deps)
	h.done = make(chan error, 1)
	go func() { h.done <- h.ctrl.Run(ctx) }()
	require.NoError(h.t, h.ctrl.Start(plan))
}

// wait returns the result of Run and collects the published events.
func (h *harness) wait(timeout time.Duration) error {
	h.t.Helper()
	select {
	case err := <-h.done:
		h.bus.Close()
		for ev := range h.sub.Channel {
			h.events = append(h.events, ev)
		}
		return err
	case <-time.After(timeout):
		h.t.Fatalf("controller did not stop within %s (state %s)", timeout, h.ctrl.State())
		return nil
	}
}

func (h *harness) states() []string {
	var out []string
	for _, ev := range h.events {
		if se, ok := ev.(reporting.StateEvent); ok {
			out = append(out, se.To)
		}
	}
	return out
}

func (h *harness) processEvents(t reporting.EventType) []reporting.ProcessEvent {
	var out []reporting.ProcessEvent
	for _, ev := range h.events {
		if pe, ok := ev.(reporting.ProcessEvent); ok && ev.Type() == t {
			out = append(out, pe)
		}
	}
	return out
}

func (h *harness) indexOf(t reporting.EventType, source string) int {
	for i, ev := range h.events {
		if ev.Type() == t && ev.Source() == source {
			return i
		}
	}
	return -1
}

func testPlan(root string) Plan {
	return Plan{
		Root:         root,
		AutoFree:     true,
		FreeWait:     300 * time.Millisecond,
		GracePeriod:  time.Second,
		PollInterval: 50 * time.Millisecond,
	}
}

func spawnStep(name string, phase State, script string) Step {
	return Step{
		Name:    name,
		Kind:    KindSpawn,
		Phase:   phase,
		Process: &config.ProcessDefinition{Name: name, Command: []string{"sh", "-c", script}},
	}
}

func listenLocal(t *testing.T) (net.Listener, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, l.Addr().(*net.TCPAddr).Port
}
