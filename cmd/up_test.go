package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devctl/internal/config"
	"devctl/internal/errdefs"
	"devctl/pkg/logging"
)

// parseUp parses args into a fresh up command.
func parseUp(t *testing.T, args ...string) (*cobra.Command, *upFlags) {
	t.Helper()
	f := &upFlags{}
	cmd := upCommand(f)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, f
}

func TestUpFlags_Defaults(t *testing.T) {
	cmd, f := parseUp(t)
	cfg, err := f.appConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, logging.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.TUI)
	assert.Zero(t, cfg.MCPPort)
	assert.Nil(t, cfg.Overrides.Port, "an unset flag must not override env or config")
	assert.Nil(t, cfg.Overrides.Tunnel)
	assert.Nil(t, cfg.Overrides.AutoFree)
	assert.Nil(t, cfg.Overrides.Grace)
}

func TestUpFlags_Overrides(t *testing.T) {
	cmd, f := parseUp(t,
		"--skip-install", "--skip-db", "--no-open", "--no-auto-free",
		"--tunnel", "on", "--tunnel-domain", "dev.example.com",
		"--port", "9000", "--mcp-port", "8090", "--log-level", "debug", "--grace", "3",
	)
	cfg, err := f.appConfig(cmd)
	require.NoError(t, err)

	assert.True(t, cfg.Plan.SkipInstall)
	assert.True(t, cfg.Plan.SkipDB)
	assert.True(t, cfg.Plan.NoOpen)
	assert.Equal(t, 8090, cfg.MCPPort)
	assert.Equal(t, logging.LevelDebug, cfg.LogLevel)

	dc := config.GetDefaultConfig()
	cfg.Overrides.Apply(&dc)
	assert.False(t, dc.Ports.AutoFree)
	assert.Equal(t, config.TunnelOn, dc.Tunnel.Mode)
	assert.Equal(t, "dev.example.com", dc.Tunnel.Domain)
	assert.Equal(t, 9000, dc.Backend.Port)
	assert.Equal(t, 3*time.Second, dc.Shutdown.GracePeriod)
}

func TestUpFlags_Invalid(t *testing.T) {
	for _, args := range [][]string{
		{"--tunnel", "maybe"},
		{"--log-level", "loud"},
		{"--grace", "soon"},
		{"--mcp-port", "70000"},
	} {
		cmd, f := parseUp(t, args...)
		_, err := f.appConfig(cmd)
		assert.Error(t, err, "%v", args)
	}
}

func TestParseGrace(t *testing.T) {
	d, err := parseGrace("5")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = parseGrace("1m30s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = parseGrace("-1")
	assert.Error(t, err)
}

func TestPrintFatal(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetErr(&buf)

	printFatal(cmd, &errdefs.ToolMissingError{Tool: "pnpm", Hint: "npm i -g pnpm"})
	assert.Equal(t, "Error: required tool \"pnpm\" not found in PATH\n  install it with: npm i -g pnpm\n", buf.String())

	buf.Reset()
	printFatal(cmd, errors.New("boom"))
	assert.Equal(t, "Error: boom\n", buf.String())
}
