// Package tunnel runs the optional public tunnel (ngrok) that exposes the
// frontend dev server. The tunnel process is an ordinary supervised child
// named "tunnel" and is torn down with the rest of the stack.
package tunnel

import (
	"context"
	"errors"
	"strconv"
	"time"

	"devctl/internal/buildrunner"
	"devctl/internal/config"
	"devctl/internal/errdefs"
	"devctl/internal/reporting"
	"devctl/internal/supervisor"
	"devctl/internal/toolchain"
	"devctl/pkg/logging"
)

const (
	// ProcessName is the supervisor name of the tunnel process.
	ProcessName = "tunnel"
	// DefaultBinary is the tunnel client used when none is configured.
	DefaultBinary = "ngrok"
	// Placeholder stands in for an address only the tunnel output reveals.
	Placeholder = "pending"
)

// ErrDisabled is returned by Start when the tunnel mode is off.
var ErrDisabled = errors.New("tunnel disabled")

// Config describes the tunnel to open.
type Config struct {
	Mode      config.TunnelMode
	Binary    string
	Hint      string
	LocalPort int
	AuthToken string
	Domain    string
	Region    string
}

// FromConfig builds a tunnel Config, defaulting the local port to
// fallbackPort.
func FromConfig(tc config.TunnelConfig, fallbackPort int) Config {
	c := Config{
		Mode:      tc.Mode,
		Binary:    tc.Binary,
		Hint:      tc.Hint,
		LocalPort: tc.LocalPort,
		AuthToken: tc.AuthToken,
		Domain:    tc.Domain,
		Region:    tc.Region,
	}
	if c.Binary == "" {
		c.Binary = DefaultBinary
	}
	if c.LocalPort == 0 {
		c.LocalPort = fallbackPort
	}
	return c
}

// PublicAddress is the externally reachable address of the tunnel.
type PublicAddress struct {
	URL string
	// Determinate is false when URL is the Placeholder.
	Determinate bool
	Note        string
}

// Address returns the address known before the tunnel prints anything.
func (c Config) Address() PublicAddress {
	if c.Domain != "" {
		return PublicAddress{URL: "https://" + c.Domain, Determinate: true}
	}
	return PublicAddress{
		URL:  Placeholder,
		Note: "the public address appears in the tunnel output",
	}
}

// Args returns the tunnel command line.
func (c Config) Args() []string {
	args := []string{c.Binary, "http", strconv.Itoa(c.LocalPort), "--log", "stdout", "--log-format", "logfmt"}
	if c.Domain != "" {
		args = append(args, "--domain", c.Domain)
	}
	if c.Region != "" {
		args = append(args, "--region", c.Region)
	}
	return args
}

// Manager starts and stops the tunnel.
type Manager struct {
	sup     *supervisor.Supervisor
	tools   *toolchain.Toolchain
	runner  buildrunner.Runner
	emitter *reporting.Emitter
}

// NewManager returns a tunnel manager. runner executes the one-shot
// credential registration.
func NewManager(sup *supervisor.Supervisor, tools *toolchain.Toolchain, runner buildrunner.Runner, emitter *reporting.Emitter) *Manager {
	return &Manager{sup: sup, tools: tools, runner: runner, emitter: emitter}
}

// Start registers the auth token if one is configured, then spawns the
// tunnel. A failed registration is only a warning. A binary missing from
// the toolchain yields *errdefs.ToolMissingError.
func (m *Manager) Start(ctx context.Context, cfg Config) (*supervisor.Handle, PublicAddress, error) {
	if cfg.Mode != config.TunnelOn {
		return nil, PublicAddress{}, ErrDisabled
	}
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if !m.tools.Has(cfg.Binary) {
		return nil, PublicAddress{}, &errdefs.ToolMissingError{Tool: cfg.Binary, Hint: cfg.Hint}
	}

	if cfg.AuthToken != "" {
		step := buildrunner.Step{
			Name:      "tunnel-auth",
			Command:   []string{cfg.Binary, "config", "add-authtoken", cfg.AuthToken},
			Sensitive: true,
		}
		if _, err := m.runner.Run(ctx, step); err != nil {
			if ctx.Err() != nil {
				return nil, PublicAddress{}, ctx.Err()
			}
			logging.Warn("Tunnel", "Registering the auth token failed: %v", err)
			m.emitter.Warning(ProcessName, "could not register the tunnel auth token", err)
		}
	}

	h, err := m.sup.Spawn(supervisor.ManagedProcess{Name: ProcessName, Command: cfg.Args()})
	if err != nil {
		return nil, PublicAddress{}, err
	}
	addr := cfg.Address()
	logging.Info("Tunnel", "Tunnel to port %d started (pid %d), public address %s", cfg.LocalPort, h.PID, addr.URL)
	return h, addr, nil
}

// Stop terminates the tunnel process group.
func (m *Manager) Stop(h *supervisor.Handle, grace time.Duration) error {
	return m.sup.Stop(h, grace)
}
