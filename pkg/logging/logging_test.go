package logging

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCLIMode_WritesSubsystemAndError(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelDebug, &buf)
	defer InitForCLI(LevelInfo, os.Stderr)

	Error("Supervisor", errors.New("boom"), "process %s exited", "web")

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "subsystem=Supervisor")
	assert.Contains(t, out, "process web exited")
	assert.Contains(t, out, "error=boom")
}

func TestCLIMode_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelWarn, &buf)
	defer InitForCLI(LevelInfo, os.Stderr)

	Info("Ports", "not shown")
	Warn("Ports", "shown")

	assert.NotContains(t, buf.String(), "not shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestTUIMode_DropsWhenFull(t *testing.T) {
	ch := Initcommon("tui", LevelDebug, os.Stderr, 1)
	defer func() {
		CloseTUIChannel()
		InitForCLI(LevelInfo, os.Stderr)
	}()

	before := Dropped()
	Info("Test", "first")
	Info("Test", "second")

	entry := <-ch
	assert.Equal(t, "first", entry.Message)
	assert.Equal(t, "Test", entry.Subsystem)
	assert.Equal(t, before+1, Dropped())
}
