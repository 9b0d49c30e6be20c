package reporting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore_FoldsEvents(t *testing.T) {
	bus := NewEventBus()
	store := NewStateStore()
	sub := bus.SubscribeChannel(nil, 64)
	em := NewEmitter(bus, "run-42")

	em.State("Idle", "StartingBackend")
	em.ProcessStarted("worker", 100, 8787, []string{"pnpm", "dev"})
	em.HealthReady("worker", "http://127.0.0.1:8787/health", time.Second)
	em.ProcessStarted("web", 101, 5173, nil)
	em.TunnelAddress("https://dev.example.com", true, "")
	em.PortFreed(8787, []int{55})
	em.Warning("patcher", "proxy not patched", nil)
	em.ProcessExited("web", 101, 1, false)
	em.State("StartingBackend", "ShuttingDown")
	em.ProcessExited("worker", 100, -1, true)

	bus.Close()
	for ev := range sub.Channel {
		store.Apply(ev)
	}

	snap := store.Snapshot()
	assert.Equal(t, "run-42", snap.RunID)
	assert.Equal(t, "ShuttingDown", snap.State)
	assert.Equal(t, "https://dev.example.com", snap.TunnelURL)
	assert.Equal(t, []int{55}, snap.FreedPorts[8787])
	assert.Equal(t, []string{"proxy not patched"}, snap.Warnings)
	assert.Equal(t, int64(10), snap.EventsSeen)

	require.Len(t, snap.Processes, 2)
	worker, web := snap.Processes[0], snap.Processes[1]
	assert.Equal(t, "worker", worker.Name)
	assert.Equal(t, ProcessStopped, worker.Status)
	require.NotNil(t, worker.Healthy)
	assert.True(t, *worker.Healthy)
	assert.Equal(t, 8787, worker.Port)

	assert.Equal(t, "web", web.Name)
	assert.Equal(t, ProcessExited, web.Status)
	assert.Equal(t, 1, web.ExitCode)
	assert.Nil(t, web.Healthy)
}

func TestLogTail(t *testing.T) {
	tail := NewLogTail(3)
	for _, l := range []string{"a", "b"} {
		tail.Add("web", l)
	}
	assert.Equal(t, []string{"a", "b"}, tail.Lines("web", 0))

	for _, l := range []string{"c", "d", "e"} {
		tail.Add("web", l)
	}
	assert.Equal(t, []string{"c", "d", "e"}, tail.Lines("web", 0))
	assert.Equal(t, []string{"d", "e"}, tail.Lines("web", 2))
	assert.Nil(t, tail.Lines("worker", 10))

	tail.Observe(LogEvent{BaseEvent: newBase(EventTypeProcessLog, "worker", SeverityInfo, "r"), Line: "up"})
	tail.Observe(StateEvent{BaseEvent: newBase(EventTypeStateChanged, "controller", SeverityInfo, "r")})
	assert.Equal(t, []string{"up"}, tail.Lines("worker", 0))
	assert.Equal(t, []string{"web", "worker"}, tail.Sources())

	assert.Equal(t, DefaultTailLines, NewLogTail(0).size)
}

func TestStoreEvents(t *testing.T) {
	f := StoreEvents()
	assert.True(t, f(LogEvent{BaseEvent: newBase(EventTypeProcessLog, "web", SeverityInfo, "r")}))
	assert.True(t, f(WarningEvent{BaseEvent: newBase(EventTypeWarning, "patcher", SeverityWarn, "r")}))
	assert.True(t, f(StateEvent{BaseEvent: newBase(EventTypeStateChanged, "controller", SeverityInfo, "r")}))
	assert.False(t, f(StepEvent{BaseEvent: newBase(EventTypeStepStarted, "install", SeverityDebug, "r"), Step: "install"}))
}
