// Package config loads optional user defaults from a YAML file,
// grounded on GandalftheGUI-grove/internal/daemon/project.go's
// yaml.Unmarshal-onto-a-struct loading (partial files overlay onto
// built-in defaults rather than replacing them wholesale).
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the defaults a spawn/waitfor/trace start invocation
// falls back to when the caller doesn't pass an explicit flag.
type Config struct {
	Cols           int    `yaml:"cols"`
	Rows           int    `yaml:"rows"`
	WaitforTimeout int    `yaml:"waitfor_timeout_ms"`
	TraceDir       string `yaml:"trace_dir"`
}

// Default returns the built-in defaults spec.md §4.3 names: 80x24,
// and a 5000 ms waitfor timeout.
func Default() Config {
	return Config{
		Cols:           80,
		Rows:           24,
		WaitforTimeout: 5000,
		TraceDir:       "",
	}
}

// WaitforTimeoutDuration converts the millisecond field to a
// time.Duration for callers that work with the stdlib timer API.
func (c Config) WaitforTimeoutDuration() time.Duration {
	return time.Duration(c.WaitforTimeout) * time.Millisecond
}

// Path returns the config file location: $XDG_CONFIG_HOME/tui-wright/config.yaml,
// falling back to ~/.config/tui-wright/config.yaml.
func Path() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tui-wright", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "tui-wright", "config.yaml")
}

// Load reads the config file at Path, overlaying any fields it sets
// onto Default(). A missing file is not an error: defaults are
// returned unchanged.
func Load() (Config, error) {
	cfg := Default()

	path := Path()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return cfg, err
	}

	if overlay.Cols > 0 {
		cfg.Cols = overlay.Cols
	}
	if overlay.Rows > 0 {
		cfg.Rows = overlay.Rows
	}
	if overlay.WaitforTimeout > 0 {
		cfg.WaitforTimeout = overlay.WaitforTimeout
	}
	if overlay.TraceDir != "" {
		cfg.TraceDir = overlay.TraceDir
	}

	return cfg, nil
}
