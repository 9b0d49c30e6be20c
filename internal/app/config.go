package app

import (
	"io"
	"time"

	"devctl/internal/config"
	"devctl/internal/orchestrator"
	"devctl/pkg/logging"
)

// Config holds the application configuration of one devctl up invocation.
type Config struct {
	// ConfigPath replaces ./.devctl/config.yaml when set
	ConfigPath string

	LogLevel logging.LogLevel

	// UI mode
	TUI bool

	// MCPPort enables the MCP control server when positive
	MCPPort int

	Version string

	Plan      orchestrator.PlanOptions
	Overrides Overrides

	// Out receives console output in CLI mode; defaults to os.Stdout
	Out io.Writer

	// Loaded configuration
	DevctlConfig *config.DevctlConfig
}

// Overrides are command line values. A nil field was not given on the
// command line and leaves the loaded configuration untouched.
type Overrides struct {
	AutoFree     *bool
	Tunnel       *config.TunnelMode
	TunnelToken  *string
	TunnelDomain *string
	TunnelRegion *string
	Port         *int
	CopyURL      *bool
	Grace        *time.Duration
}

// Apply writes the given overrides into cfg.
func (o Overrides) Apply(cfg *config.DevctlConfig) {
	if o.AutoFree != nil {
		cfg.Ports.AutoFree = *o.AutoFree
	}
	if o.Tunnel != nil {
		cfg.Tunnel.Mode = *o.Tunnel
	}
	if o.TunnelToken != nil {
		cfg.Tunnel.AuthToken = *o.TunnelToken
	}
	if o.TunnelDomain != nil {
		cfg.Tunnel.Domain = *o.TunnelDomain
	}
	if o.TunnelRegion != nil {
		cfg.Tunnel.Region = *o.TunnelRegion
	}
	if o.Port != nil {
		cfg.Backend.Port = *o.Port
	}
	if o.CopyURL != nil {
		cfg.Tunnel.CopyURL = *o.CopyURL
	}
	if o.Grace != nil {
		cfg.Shutdown.GracePeriod = *o.Grace
	}
}
