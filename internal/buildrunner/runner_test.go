package buildrunner

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devctl/internal/errdefs"
	"devctl/internal/reporting"
	"devctl/internal/toolchain"
)

func newTestRunner(t *testing.T, root string) (*ExecRunner, *reporting.EventSubscription, reporting.EventBus) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("runner tests use sh")
	}
	tools, err := toolchain.Resolve(toolchain.Requirement{Name: "sh"})
	require.NoError(t, err)
	bus := reporting.NewEventBus()
	sub := bus.SubscribeChannel(reporting.FilterByType(reporting.EventTypeProcessLog), 100)
	r := NewExecRunner(tools, reporting.NewEmitter(bus, "test"), root)
	r.WaitDelay = 200 * time.Millisecond
	return r, sub, bus
}

func collect(bus reporting.EventBus, sub *reporting.EventSubscription) map[string][]string {
	bus.Close()
	out := map[string][]string{}
	for ev := range sub.Channel {
		le := ev.(reporting.LogEvent)
		out[le.Stream] = append(out[le.Stream], le.Source()+":"+le.Line)
	}
	return out
}

func TestRun_Success(t *testing.T) {
	root := t.TempDir()
	r, sub, bus := newTestRunner(t, root)

	code, err := r.Run(context.Background(), Step{
		Name:    "install",
		Command: []string{"sh", "-c", `echo "dir=$(pwd)"; echo "v=$DEVCTL_TEST"; echo oops >&2; printf tail`},
		Env:     map[string]string{"DEVCTL_TEST": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	lines := collect(bus, sub)
	require.Len(t, lines["stdout"], 3)
	assert.Contains(t, lines["stdout"][0], "install:dir=")
	assert.Equal(t, "install:v=42", lines["stdout"][1])
	assert.Equal(t, "install:tail", lines["stdout"][2])
	assert.Equal(t, []string{"install:oops"}, lines["stderr"])
}

func TestRun_NonZeroExit(t *testing.T) {
	r, _, _ := newTestRunner(t, t.TempDir())

	code, err := r.Run(context.Background(), Step{Name: "build", Command: []string{"sh", "-c", "exit 3"}})
	assert.Equal(t, 3, code)

	var sf *errdefs.StepFailedError
	require.True(t, errors.As(err, &sf))
	assert.Equal(t, "build", sf.Step)
	assert.Equal(t, 3, sf.ExitCode)
	assert.True(t, errdefs.IsFatal(err))
}

func TestRun_MissingTool(t *testing.T) {
	r, _, _ := newTestRunner(t, t.TempDir())

	_, err := r.Run(context.Background(), Step{Name: "x", Command: []string{"devctl-no-such-binary"}})
	assert.ErrorIs(t, err, errdefs.ErrToolMissing)

	_, err = r.Run(context.Background(), Step{Name: "x"})
	assert.ErrorIs(t, err, errdefs.ErrToolMissing)
}

func TestRun_Cancelled(t *testing.T) {
	r, _, _ := newTestRunner(t, t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := r.Run(ctx, Step{Name: "slow", Command: []string{"sh", "-c", "sleep 5"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRun_RelativeDir(t *testing.T) {
	root := t.TempDir()
	r, _, _ := newTestRunner(t, root)
	assert.Equal(t, root, r.dir(""))
	assert.Equal(t, root+"/apps/web", r.dir("apps/web"))
	assert.Equal(t, "/abs", r.dir("/abs"))

	_, err := r.Run(context.Background(), Step{Name: "x", Command: []string{"sh", "-c", "true"}, Dir: "missing"})
	assert.ErrorIs(t, err, errdefs.ErrSpawn)
}

func TestRun_SensitiveArgsHidden(t *testing.T) {
	r, _, _ := newTestRunner(t, t.TempDir())

	_, err := r.Run(context.Background(), Step{Name: "auth", Command: []string{"sh", "-c", "exit 1", "secret-token"}, Sensitive: true})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}
