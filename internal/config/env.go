package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// Environment variables recognised as overrides. Each one only applies when
// the matching command line flag is absent; flags are applied after
// ApplyEnv by the cmd package.
const (
	EnvPort         = "DEVCTL_PORT"
	EnvTunnelToken  = "DEVCTL_TUNNEL_TOKEN"
	EnvTunnelDomain = "DEVCTL_TUNNEL_DOMAIN"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv applies the DEVCTL_* overrides to config.
func ApplyEnv(config *DevctlConfig, lookup LookupFunc) error {
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		config.Backend.Port = port
	}
	if v, ok := lookup(EnvTunnelToken); ok && v != "" {
		config.Tunnel.AuthToken = v
	}
	if v, ok := lookup(EnvTunnelDomain); ok && v != "" {
		config.Tunnel.Domain = v
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnvVars expands ${VAR} and ${VAR:-default} references. An unset or
// empty VAR without a default expands to the empty string.
func ExpandEnvVars(s string, lookup LookupFunc) string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := envVarPattern.FindStringSubmatch(m)
		if v, ok := lookup(parts[1]); ok && v != "" {
			return v
		}
		return parts[2]
	})
}

// ExpandEnvMap returns a copy of env with every value expanded.
func ExpandEnvMap(env map[string]string, lookup LookupFunc) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = ExpandEnvVars(v, lookup)
	}
	return out
}
