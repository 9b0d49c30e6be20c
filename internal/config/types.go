package config

import (
	"fmt"
	"time"
)

// TunnelMode selects whether the public tunnel is started.
type TunnelMode string

const (
	TunnelOff TunnelMode = "off"
	TunnelOn  TunnelMode = "on"
)

// ParseTunnelMode validates the --tunnel flag value.
func ParseTunnelMode(s string) (TunnelMode, error) {
	switch TunnelMode(s) {
	case TunnelOff, "":
		return TunnelOff, nil
	case TunnelOn:
		return TunnelOn, nil
	default:
		return TunnelOff, fmt.Errorf("unknown tunnel mode %q (expected off or on)", s)
	}
}

// DevctlConfig is the top-level configuration structure for devctl.
type DevctlConfig struct {
	Project  ProjectConfig     `yaml:"project"`
	Tools    []ToolRequirement `yaml:"tools,omitempty"`
	Install  []CommandStep     `yaml:"install,omitempty"`
	Build    []CommandStep     `yaml:"build,omitempty"`
	Migrate  MigrateConfig     `yaml:"migrate"`
	Proxy    ProxyConfig       `yaml:"proxy"`
	Backend  ProcessDefinition `yaml:"backend"`
	Frontend ProcessDefinition `yaml:"frontend"`
	Tunnel   TunnelConfig      `yaml:"tunnel"`
	Ports    PortsConfig       `yaml:"ports"`
	Shutdown ShutdownConfig    `yaml:"shutdown"`
	Browser  BrowserConfig     `yaml:"browser"`
}

// ProjectConfig locates the project the stack belongs to.
type ProjectConfig struct {
	Root   string `yaml:"root,omitempty"`   // defaults to the working directory
	Marker string `yaml:"marker,omitempty"` // file that must exist in Root, e.g. pnpm-workspace.yaml
}

// ToolRequirement is a binary that must be on PATH before anything runs.
type ToolRequirement struct {
	Name string `yaml:"name"`
	Hint string `yaml:"hint,omitempty"` // install command shown when missing
}

// CommandStep is a one-shot external command run to completion.
type CommandStep struct {
	Name         string            `yaml:"name"`
	Command      []string          `yaml:"command"`
	Dir          string            `yaml:"dir,omitempty"` // relative to the project root
	Env          map[string]string `yaml:"env,omitempty"`
	Optional     bool              `yaml:"optional,omitempty"`     // failure is a warning
	SkipIfExists string            `yaml:"skipIfExists,omitempty"` // skip when this path exists (relative to the project root)
}

// MigrateConfig describes the one-shot data migration commands.
type MigrateConfig struct {
	Steps []CommandStep `yaml:"steps,omitempty"`
	// DatabaseURLFile is a JSONC file whose vars.DATABASE_URL is exported
	// to the migration steps. The DATABASE_URL environment variable is the
	// fallback.
	DatabaseURLFile string `yaml:"databaseURLFile,omitempty"`
	DatabaseURLKey  string `yaml:"databaseURLKey,omitempty"` // dotted path, default vars.DATABASE_URL
	// Check verifies the migration tool works before the steps run.
	Check ToolCheck `yaml:"check,omitempty"`
}

// ToolCheck runs Command; when it fails, the Repair steps run and Command
// is tried once more. A second failure is fatal and Remediation is printed.
// An empty Command disables the check.
type ToolCheck struct {
	Name        string        `yaml:"name,omitempty"`
	Command     []string      `yaml:"command,omitempty"`
	Repair      []CommandStep `yaml:"repair,omitempty"`
	Remediation string        `yaml:"remediation,omitempty"`
}

// Enabled reports whether the check has a command to run.
func (t ToolCheck) Enabled() bool {
	return len(t.Command) > 0
}

// ProxyConfig describes the dev-server proxy block patched into the
// frontend configuration file.
type ProxyConfig struct {
	Enabled bool     `yaml:"enabled"`
	File    string   `yaml:"file,omitempty"`  // relative to the project root
	Paths   []string `yaml:"paths,omitempty"` // proxied to the backend, e.g. /api
}

// ProcessDefinition defines a long-running supervised process.
type ProcessDefinition struct {
	Name    string            `yaml:"name"`
	Command []string          `yaml:"command"`
	Dir     string            `yaml:"dir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Host    string            `yaml:"host,omitempty"`
	Port    int               `yaml:"port,omitempty"`
	// PortEnv, when set, exports the resolved port to the process under
	// this variable name.
	PortEnv string       `yaml:"portEnv,omitempty"`
	Health  HealthConfig `yaml:"health,omitempty"`
	// AwaitBackendHealth delays this process until the backend probe has
	// either succeeded or reported its timeout.
	AwaitBackendHealth bool `yaml:"awaitBackendHealth,omitempty"`
}

// HealthConfig configures the readiness probe of a process.
type HealthConfig struct {
	Path       string        `yaml:"path,omitempty"` // appended to http://host:port
	URL        string        `yaml:"url,omitempty"`  // overrides Path when set
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	Interval   time.Duration `yaml:"interval,omitempty"`
	ReadyField string        `yaml:"readyField,omitempty"`
}

// Enabled reports whether a probe is configured at all.
func (h HealthConfig) Enabled() bool {
	return h.Path != "" || h.URL != ""
}

// TunnelConfig configures the optional public tunnel.
type TunnelConfig struct {
	Mode      TunnelMode `yaml:"mode"`
	Binary    string     `yaml:"binary,omitempty"`
	Hint      string     `yaml:"hint,omitempty"`
	LocalPort int        `yaml:"localPort,omitempty"` // defaults to the frontend port
	AuthToken string     `yaml:"authToken,omitempty"`
	Domain    string     `yaml:"domain,omitempty"`
	Region    string     `yaml:"region,omitempty"`
	CopyURL   bool       `yaml:"copyURL,omitempty"`
}

// PortsConfig controls port conflict resolution.
type PortsConfig struct {
	AutoFree bool          `yaml:"autoFree"`
	FreeWait time.Duration `yaml:"freeWait,omitempty"`
	Extra    []int         `yaml:"extra,omitempty"` // additional ports to free before spawning
}

// ShutdownConfig bounds teardown and supervision.
type ShutdownConfig struct {
	GracePeriod  time.Duration `yaml:"gracePeriod,omitempty"`
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`
}

// BrowserConfig controls opening the frontend in a browser.
type BrowserConfig struct {
	Open  bool          `yaml:"open"`
	URL   string        `yaml:"url,omitempty"` // defaults to http://localhost:<frontend port>
	Delay time.Duration `yaml:"delay,omitempty"`
}

// HealthURL returns the probe URL of the process, or "" if none.
func (p ProcessDefinition) HealthURL() string {
	if p.Health.URL != "" {
		return p.Health.URL
	}
	if p.Health.Path == "" {
		return ""
	}
	host := p.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d%s", host, p.Port, p.Health.Path)
}

// BaseURL is the loopback URL the process serves on.
func (p ProcessDefinition) BaseURL() string {
	host := p.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, p.Port)
}
