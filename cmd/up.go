package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"devctl/internal/app"
	"devctl/internal/config"
	"devctl/pkg/logging"
)

// upFlags holds the raw flag values of devctl up.
type upFlags struct {
	skipInstall  bool
	skipBuild    bool
	skipDB       bool
	forceInstall bool
	noPatchProxy bool
	noOpen       bool
	noAutoFree   bool
	tunnel       string
	tunnelToken  string
	tunnelDomain string
	tunnelRegion string
	port         int
	configPath   string
	tui          bool
	mcpPort      int
	copyURL      bool
	logLevel     string
	grace        string
}

func newUpCmd() *cobra.Command {
	return upCommand(&upFlags{})
}

// upCommand binds the flags of devctl up to f.
func upCommand(f *upFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Install, migrate and run the development stack until interrupted",
		Long: `Runs the development workflow of the project in the current directory:

  1. install dependencies and run build steps
  2. apply database migrations and seed data
  3. patch the frontend dev server proxy to reach the backend
  4. free the backend and frontend ports
  5. start the backend and wait for its health check
  6. start the frontend, then the optional public tunnel

Press Ctrl+C (or q in the dashboard) to stop. Every process devctl started
is stopped before it exits. If any of them exits on its own, the others are
stopped as well and devctl exits with a non-zero status.

Configuration is read from ~/.config/devctl/config.yaml and
./.devctl/config.yaml (or --config). Flags take precedence over the
DEVCTL_PORT, DEVCTL_TUNNEL_TOKEN and DEVCTL_TUNNEL_DOMAIN variables.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runUp(cmd, f)
			if err != nil {
				printFatal(cmd, err)
			}
			return err
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&f.skipInstall, "skip-install", false, "Skip dependency installation")
	fl.BoolVar(&f.skipBuild, "skip-build", false, "Skip build steps")
	fl.BoolVar(&f.skipDB, "skip-db", false, "Skip database migrations and seeding")
	fl.BoolVar(&f.forceInstall, "force-install", false, "Install even when the install output already exists")
	fl.BoolVar(&f.noPatchProxy, "no-patch-proxy", false, "Do not patch the frontend dev server proxy")
	fl.BoolVar(&f.noOpen, "no-open", false, "Do not open the frontend in a browser")
	fl.BoolVar(&f.noAutoFree, "no-auto-free", false, "Fail instead of terminating processes that hold a required port")
	fl.StringVar(&f.tunnel, "tunnel", "off", "Public tunnel mode: off or on")
	fl.StringVar(&f.tunnelToken, "tunnel-token", "", "Tunnel auth token (env DEVCTL_TUNNEL_TOKEN)")
	fl.StringVar(&f.tunnelDomain, "tunnel-domain", "", "Reserved tunnel domain (env DEVCTL_TUNNEL_DOMAIN)")
	fl.StringVar(&f.tunnelRegion, "tunnel-region", "", "Tunnel region")
	fl.IntVar(&f.port, "port", 0, "Backend port (env DEVCTL_PORT)")
	fl.StringVar(&f.configPath, "config", "", "Project configuration file (default ./.devctl/config.yaml)")
	fl.BoolVar(&f.tui, "tui", false, "Show the interactive dashboard instead of plain output")
	fl.IntVar(&f.mcpPort, "mcp-port", 0, "Serve the MCP control server on this port (0 disables it)")
	fl.BoolVar(&f.copyURL, "copy-url", false, "Copy the public tunnel address to the clipboard")
	fl.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	fl.StringVar(&f.grace, "grace", "", "Grace period before stopped processes are killed, e.g. 10s")

	return cmd
}

// appConfig translates flags into the application configuration. Only
// flags given on the command line override loaded values.
func (f *upFlags) appConfig(cmd *cobra.Command) (*app.Config, error) {
	level, err := logging.ParseLevel(f.logLevel)
	if err != nil {
		return nil, err
	}

	cfg := &app.Config{
		ConfigPath: f.configPath,
		LogLevel:   level,
		TUI:        f.tui,
		MCPPort:    f.mcpPort,
		Version:    rootCmd.Version,
		Out:        cmd.OutOrStdout(),
	}
	cfg.Plan.SkipInstall = f.skipInstall
	cfg.Plan.SkipBuild = f.skipBuild
	cfg.Plan.SkipDB = f.skipDB
	cfg.Plan.ForceInstall = f.forceInstall
	cfg.Plan.NoPatchProxy = f.noPatchProxy
	cfg.Plan.NoOpen = f.noOpen

	changed := cmd.Flags().Changed
	o := &cfg.Overrides
	if changed("no-auto-free") {
		autoFree := !f.noAutoFree
		o.AutoFree = &autoFree
	}
	if changed("tunnel") {
		mode, err := config.ParseTunnelMode(f.tunnel)
		if err != nil {
			return nil, err
		}
		o.Tunnel = &mode
	}
	if changed("tunnel-token") {
		o.TunnelToken = &f.tunnelToken
	}
	if changed("tunnel-domain") {
		o.TunnelDomain = &f.tunnelDomain
	}
	if changed("tunnel-region") {
		o.TunnelRegion = &f.tunnelRegion
	}
	if changed("port") {
		o.Port = &f.port
	}
	if changed("copy-url") {
		o.CopyURL = &f.copyURL
	}
	if changed("grace") {
		d, err := parseGrace(f.grace)
		if err != nil {
			return nil, err
		}
		o.Grace = &d
	}
	if cfg.MCPPort < 0 || cfg.MCPPort > 65535 {
		return nil, fmt.Errorf("invalid --mcp-port %d", cfg.MCPPort)
	}
	return cfg, nil
}

func runUp(cmd *cobra.Command, f *upFlags) error {
	cfg, err := f.appConfig(cmd)
	if err != nil {
		return err
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}
