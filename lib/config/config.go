// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the drop-in sync
// daemon.
//
// Configuration starts from built-in defaults, merges a single YAML
// file when one is given (APPRUN_DROPIN_CONFIG environment variable or
// --config flag), and finally applies APPRUN_* environment variable
// overrides. There is no automatic file discovery: the file path is
// explicit or absent, which keeps configuration deterministic and
// auditable.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from strings like "3s"
// in both YAML documents and environment variables.
type Duration time.Duration

// UnmarshalYAML decodes a YAML scalar like "3s" or "500ms".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(raw))
}

// UnmarshalText implements encoding.TextUnmarshaler, which the
// environment override parser uses for custom types.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the daemon configuration. It is fixed at startup; changing
// it requires a restart.
type Config struct {
	// MakeDirectories enables creation of missing per-user bundle
	// directories during scans, with ownership inherited from the
	// user's home.
	MakeDirectories bool `yaml:"make_directories" env:"APPRUN_MAKE_DIRECTORIES"`

	// BaseDirectory holds one subdirectory per user account.
	BaseDirectory string `yaml:"base_directory" env:"APPRUN_BASE_DIRECTORY"`

	// ApplicationsDirname is the name of the per-user bundle directory
	// under each user's home.
	ApplicationsDirname string `yaml:"applications_dirname" env:"APPRUN_APPLICATIONS_DIRNAME"`

	// PollInterval is the fixed sleep between passes for the polling
	// backend.
	PollInterval Duration `yaml:"poll_interval" env:"APPRUN_POLL_INTERVAL"`

	// DebounceInterval is the minimum spacing between passes for the
	// event-driven backend. Notifications arriving inside the window
	// are dropped.
	DebounceInterval Duration `yaml:"debounce_interval" env:"APPRUN_DEBOUNCE_INTERVAL"`

	// GlobalProbeTargets are the system-wide bundle directories probed
	// on every pass.
	GlobalProbeTargets []string `yaml:"global_probe_targets" env:"APPRUN_GLOBAL_PROBE_TARGETS" envSeparator:":"`

	// SystemApplicationsDir receives descriptors generated for global
	// bundles.
	SystemApplicationsDir string `yaml:"system_applications_dir" env:"APPRUN_SYSTEM_APPLICATIONS_DIR"`

	// RegistryDir and RegistryFile locate the persisted link registry.
	RegistryDir  string `yaml:"registry_dir" env:"APPRUN_REGISTRY_DIR"`
	RegistryFile string `yaml:"registry_file" env:"APPRUN_REGISTRY_FILE"`

	// ValidatorCommand is the external utility consulted to decide
	// whether a candidate directory is a launchable bundle.
	ValidatorCommand string `yaml:"validator_command" env:"APPRUN_VALIDATOR_COMMAND"`

	// ControlSocket is the unix socket path for the status endpoint.
	// Empty disables the control socket.
	ControlSocket string `yaml:"control_socket" env:"APPRUN_CONTROL_SOCKET"`
}

// Default returns the built-in configuration. The daemon runs with
// these values when no config file is given.
func Default() *Config {
	return &Config{
		MakeDirectories:     true,
		BaseDirectory:       "/home",
		ApplicationsDirname: "applications",
		PollInterval:        Duration(3 * time.Second),
		DebounceInterval:    Duration(2 * time.Second),
		GlobalProbeTargets: []string{
			"/applications",
			"/opt/applications",
			"/opt/aisp/sys/applications",
			"/opt/aisp/applications",
		},
		SystemApplicationsDir: "/usr/share/applications",
		RegistryDir:           "/var/lib/apprun",
		RegistryFile:          "desktop-links.json",
		ValidatorCommand:      "/usr/local/sbin/apprunutil.sh",
		ControlSocket:         "",
	}
}

// Load builds the configuration from defaults, the file named by the
// APPRUN_DROPIN_CONFIG environment variable (optional), and APPRUN_*
// environment overrides.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("APPRUN_DROPIN_CONFIG"))
}

// LoadFile builds the configuration from defaults, the given file
// (skipped when path is empty), and APPRUN_* environment overrides.
// Environment overrides win over file values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// RegistryPath returns the full path of the registry file.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.RegistryDir, c.RegistryFile)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.BaseDirectory == "" {
		errs = append(errs, fmt.Errorf("base_directory is required"))
	}
	if c.ApplicationsDirname == "" {
		errs = append(errs, fmt.Errorf("applications_dirname is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive"))
	}
	if c.DebounceInterval < 0 {
		errs = append(errs, fmt.Errorf("debounce_interval must not be negative"))
	}
	if c.SystemApplicationsDir == "" {
		errs = append(errs, fmt.Errorf("system_applications_dir is required"))
	}
	if c.RegistryDir == "" {
		errs = append(errs, fmt.Errorf("registry_dir is required"))
	}
	if c.RegistryFile == "" {
		errs = append(errs, fmt.Errorf("registry_file is required"))
	}
	if c.ValidatorCommand == "" {
		errs = append(errs, fmt.Errorf("validator_command is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	c.BaseDirectory = expandVars(c.BaseDirectory)
	c.SystemApplicationsDir = expandVars(c.SystemApplicationsDir)
	c.RegistryDir = expandVars(c.RegistryDir)
	c.ValidatorCommand = expandVars(c.ValidatorCommand)
	c.ControlSocket = expandVars(c.ControlSocket)
	for i, target := range c.GlobalProbeTargets {
		c.GlobalProbeTargets[i] = expandVars(target)
	}
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}
