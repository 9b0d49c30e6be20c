package tunnel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devctl/internal/buildrunner"
	"devctl/internal/config"
	"devctl/internal/errdefs"
	"devctl/internal/reporting"
	"devctl/internal/supervisor"
	"devctl/internal/toolchain"
)

type fakeRunner struct {
	mu    sync.Mutex
	steps []buildrunner.Step
	err   error
}

func (f *fakeRunner) Run(_ context.Context, s buildrunner.Step) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, s)
	if f.err != nil {
		return 1, f.err
	}
	return 0, nil
}

// fakeNgrok writes an executable script named ngrok and returns a
// toolchain resolving it.
func fakeNgrok(t *testing.T) *toolchain.Toolchain {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tunnel tests use sh scripts")
	}
	dir := t.TempDir()
	script := "#!/bin/sh\necho 't=1 lvl=info msg=\"started tunnel\" url=https://abc.ngrok-free.app'\nexec sleep 30\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ngrok"), []byte(script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	tools, err := toolchain.Resolve(toolchain.Requirement{Name: "ngrok"})
	require.NoError(t, err)
	return tools
}

func TestAddress(t *testing.T) {
	addr := Config{Mode: config.TunnelOn}.Address()
	assert.Equal(t, Placeholder, addr.URL)
	assert.False(t, addr.Determinate)
	assert.NotEmpty(t, addr.Note)

	addr = Config{Mode: config.TunnelOn, Domain: "dev.example.com"}.Address()
	assert.Equal(t, PublicAddress{URL: "https://dev.example.com", Determinate: true}, addr)
}

func TestArgs(t *testing.T) {
	c := FromConfig(config.TunnelConfig{Mode: config.TunnelOn, Domain: "d.example", Region: "eu"}, 5173)
	assert.Equal(t, []string{"ngrok", "http", "5173", "--log", "stdout", "--log-format", "logfmt", "--domain", "d.example", "--region", "eu"}, c.Args())

	c = FromConfig(config.TunnelConfig{Mode: config.TunnelOn, Binary: "ngrok3", LocalPort: 8787}, 5173)
	assert.Equal(t, []string{"ngrok3", "http", "8787", "--log", "stdout", "--log-format", "logfmt"}, c.Args())
}

func TestStart_Disabled(t *testing.T) {
	m := NewManager(nil, nil, &fakeRunner{}, nil)
	_, _, err := m.Start(context.Background(), Config{Mode: config.TunnelOff})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestStart_MissingBinary(t *testing.T) {
	tools, err := toolchain.Resolve()
	require.NoError(t, err)
	m := NewManager(supervisor.New(tools, nil), tools, &fakeRunner{}, nil)

	_, _, err = m.Start(context.Background(), Config{Mode: config.TunnelOn, Hint: "https://ngrok.com/download", LocalPort: 5173})
	var tm *errdefs.ToolMissingError
	require.True(t, errors.As(err, &tm))
	assert.Equal(t, "ngrok", tm.Tool)
	assert.Equal(t, "https://ngrok.com/download", tm.Hint)
}

func TestStart_NoDomainReturnsPlaceholder(t *testing.T) {
	tools := fakeNgrok(t)
	bus := reporting.NewEventBus()
	em := reporting.NewEmitter(bus, "run")
	sub := bus.SubscribeChannel(reporting.FilterByType(reporting.EventTypeTunnelAddress), 4)
	watcher := NewAddressWatcher(em, false)
	sup := supervisor.New(tools, watcher.Observe)
	runner := &fakeRunner{err: errors.New("bad token")}
	m := NewManager(sup, tools, runner, em)

	h, addr, err := m.Start(context.Background(), Config{Mode: config.TunnelOn, LocalPort: 5173, AuthToken: "tok"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop(h, time.Second) })

	assert.Equal(t, Placeholder, addr.URL)
	assert.False(t, addr.Determinate)
	assert.Equal(t, ProcessName, h.Name)

	require.Len(t, runner.steps, 1)
	assert.Equal(t, []string{"ngrok", "config", "add-authtoken", "tok"}, runner.steps[0].Command)
	assert.True(t, runner.steps[0].Sensitive)

	select {
	case ev := <-sub.Channel:
		te := ev.(reporting.TunnelEvent)
		assert.Equal(t, "https://abc.ngrok-free.app", te.URL)
	case <-time.After(5 * time.Second):
		t.Fatal("tunnel address not observed")
	}

	require.NoError(t, m.Stop(h, time.Second))
	assert.False(t, sup.IsAlive(h))
}

func TestAddressWatcher(t *testing.T) {
	var copied []string
	orig := writeClipboard
	writeClipboard = func(s string) error {
		copied = append(copied, s)
		return nil
	}
	t.Cleanup(func() { writeClipboard = orig })

	bus := reporting.NewEventBus()
	sub := bus.SubscribeChannel(nil, 8)
	w := NewAddressWatcher(reporting.NewEmitter(bus, "run"), true)

	w.Observe(supervisor.Line{Process: "web", Text: "url=https://ignored.example"})
	w.Observe(supervisor.Line{Process: ProcessName, Text: "msg=\"tunnel session started\""})
	w.Observe(supervisor.Line{Process: ProcessName, Text: `lvl=info msg="started tunnel" obj=tunnels name=command_line addr=http://localhost:5173 url=https://a1b2.ngrok-free.app`})
	w.Observe(supervisor.Line{Process: ProcessName, Text: "url=https://second.example"})

	assert.Equal(t, "https://a1b2.ngrok-free.app", w.URL())
	assert.Equal(t, []string{"https://a1b2.ngrok-free.app"}, copied)

	bus.Close()
	var events []reporting.TunnelEvent
	for ev := range sub.Channel {
		events = append(events, ev.(reporting.TunnelEvent))
	}
	require.Len(t, events, 1)
	assert.Equal(t, "copied to clipboard", events[0].Note)
	assert.True(t, events[0].Determinate)
}
