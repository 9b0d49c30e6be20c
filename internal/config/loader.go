package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"devctl/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd
var osLookupEnv = os.LookupEnv

const (
	userConfigDir    = ".config/devctl"
	projectConfigDir = ".devctl"
	configFileName   = "config.yaml"
)

// LoadOptions tunes LoadConfig.
type LoadOptions struct {
	// ProjectFile replaces ./.devctl/config.yaml. Unlike the implicit
	// project file it must exist.
	ProjectFile string
	// SkipEnv disables the DEVCTL_* overrides.
	SkipEnv bool
}

// LoadConfig loads the devctl configuration by layering default, user,
// project and environment settings. The result is validated.
func LoadConfig(opts LoadOptions) (DevctlConfig, error) {
	// 1. Start with the default configuration
	config := GetDefaultConfig()

	// 2. User-specific configuration
	userConfigPath, err := getUserConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine user config path: %v", err)
	} else if err := overlayFile(&config, userConfigPath, false); err != nil {
		return DevctlConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
	}

	// 3. Project-specific configuration
	projectConfigPath := opts.ProjectFile
	required := projectConfigPath != ""
	if !required {
		projectConfigPath, err = getProjectConfigPath()
		if err != nil {
			logging.Warn("Config", "Could not determine project config path: %v", err)
		}
	}
	if projectConfigPath != "" {
		if err := overlayFile(&config, projectConfigPath, required); err != nil {
			return DevctlConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
		}
	}

	// 4. Environment
	if !opts.SkipEnv {
		if err := ApplyEnv(&config, osLookupEnv); err != nil {
			return DevctlConfig{}, err
		}
	}

	if config.Project.Root == "" {
		if wd, err := osGetwd(); err == nil {
			config.Project.Root = wd
		}
	}

	if err := config.Validate(); err != nil {
		return DevctlConfig{}, err
	}
	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// overlayFile decodes the YAML file at path on top of config. A missing
// file is skipped unless required.
func overlayFile(config *DevctlConfig, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return err
	}
	if err := decodeInto(config, data); err != nil {
		return err
	}
	logging.Debug("Config", "Applied configuration layer %s", path)
	return nil
}

// decodeInto decodes a single YAML document onto an already populated
// config. Unknown keys are rejected so typos do not silently fall back to
// defaults.
func decodeInto(config *DevctlConfig, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
