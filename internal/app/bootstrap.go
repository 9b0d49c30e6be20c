package app

import (
	"context"
	"fmt"
	"os"

	"devctl/internal/config"
	"devctl/pkg/logging"
)

// Application is the main application structure that bootstraps and runs
// one devctl session.
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads configuration and wires every component. Nothing
// is started until Run.
func NewApplication(cfg *Config) (*Application, error) {
	// Initialize logging for CLI output (will be replaced for TUI mode)
	logging.InitForCLI(cfg.LogLevel, os.Stderr)

	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}

	devctlCfg, err := config.LoadConfig(config.LoadOptions{ProjectFile: cfg.ConfigPath})
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load devctl configuration")
		return nil, fmt.Errorf("failed to load devctl configuration: %w", err)
	}

	cfg.Overrides.Apply(&devctlCfg)
	if err := devctlCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.DevctlConfig = &devctlCfg
	logging.Debug("Bootstrap", "Project root %s", devctlCfg.Project.Root)

	services, err := InitializeServices(cfg)
	if err != nil {
		return nil, err
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Services exposes the wired components.
func (a *Application) Services() *Services {
	return a.services
}

// Run executes the session in the configured mode and returns the fatal
// error of the run, if any.
func (a *Application) Run(ctx context.Context) error {
	if a.config.TUI {
		return a.runTUIMode(ctx)
	}
	return a.runCLIMode(ctx)
}
