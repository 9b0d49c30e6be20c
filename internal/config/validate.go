package config

import (
	"errors"
	"fmt"
)

// Validate checks the merged configuration. All problems are reported
// together.
func (c DevctlConfig) Validate() error {
	var errs []error

	checkPort := func(field string, port int, optional bool) {
		if optional && port == 0 {
			return
		}
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s: port %d out of range 1-65535", field, port))
		}
	}

	checkSteps := func(section string, steps []CommandStep) {
		for i, s := range steps {
			if s.Name == "" {
				errs = append(errs, fmt.Errorf("%s[%d]: name is required", section, i))
			}
			if len(s.Command) == 0 || s.Command[0] == "" {
				errs = append(errs, fmt.Errorf("%s[%d] (%s): command is empty", section, i, s.Name))
			}
		}
	}
	checkSteps("install", c.Install)
	checkSteps("build", c.Build)
	checkSteps("migrate.steps", c.Migrate.Steps)
	if check := c.Migrate.Check; check.Enabled() {
		if check.Name == "" {
			errs = append(errs, errors.New("migrate.check: name is required"))
		}
		checkSteps("migrate.check.repair", check.Repair)
	}

	names := map[string]bool{}
	for _, p := range []struct {
		field string
		def   ProcessDefinition
	}{{"backend", c.Backend}, {"frontend", c.Frontend}} {
		if p.def.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", p.field))
		} else if names[p.def.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate process name %q", p.field, p.def.Name))
		}
		names[p.def.Name] = true
		if len(p.def.Command) == 0 || p.def.Command[0] == "" {
			errs = append(errs, fmt.Errorf("%s: command is empty", p.field))
		}
		checkPort(p.field+".port", p.def.Port, false)
		if p.def.Health.Enabled() && p.def.Health.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("%s.health: timeout must be positive", p.field))
		}
	}

	if c.Proxy.Enabled && c.Proxy.File != "" && len(c.Proxy.Paths) == 0 {
		errs = append(errs, errors.New("proxy.paths must list at least one path when the proxy patch is enabled"))
	}

	if _, err := ParseTunnelMode(string(c.Tunnel.Mode)); err != nil {
		errs = append(errs, fmt.Errorf("tunnel.mode: %w", err))
	}
	if c.Tunnel.Mode == TunnelOn {
		if c.Tunnel.Binary == "" {
			errs = append(errs, errors.New("tunnel.binary is required when the tunnel is on"))
		}
		if names["tunnel"] {
			errs = append(errs, errors.New(`process name "tunnel" is reserved for the tunnel`))
		}
	}
	checkPort("tunnel.localPort", c.Tunnel.LocalPort, true)

	for i, p := range c.Ports.Extra {
		checkPort(fmt.Sprintf("ports.extra[%d]", i), p, false)
	}
	if c.Shutdown.GracePeriod < 0 {
		errs = append(errs, errors.New("shutdown.gracePeriod must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
