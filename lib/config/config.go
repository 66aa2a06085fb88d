// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted when no --config
// flag is given.
const EnvVar = "INTERTERM_CONFIG"

// Environment selects which override block applies.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the complete interterm configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Paths     PathsConfig     `yaml:"paths"`
	Session   SessionConfig   `yaml:"session"`
	Companion CompanionConfig `yaml:"companion"`
	Log       LogConfig       `yaml:"log"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the fields an environment block may replace.
type Overrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Companion *CompanionConfig `yaml:"companion,omitempty"`
	Log       *LogConfig       `yaml:"log,omitempty"`
}

// PathsConfig locates sockets and persistent state.
type PathsConfig struct {
	// Runtime holds the companion and system-command sockets.
	// Default: ${XDG_RUNTIME_DIR:-/tmp}/interterm
	Runtime string `yaml:"runtime"`

	// State holds the history database and session logs.
	// Default: ${HOME}/.local/state/interterm
	State string `yaml:"state"`
}

// CompanionSocket is the session protocol socket.
func (p PathsConfig) CompanionSocket() string {
	return filepath.Join(p.Runtime, "companion.sock")
}

// SystemSocket is the companion-local system-command socket.
func (p PathsConfig) SystemSocket() string {
	return filepath.Join(p.Runtime, "system.sock")
}

// SessionConfig configures the session-side binary.
type SessionConfig struct {
	// Shell overrides INTERTERM_SHELL and SHELL.
	Shell string `yaml:"shell"`

	// StartText is typed at the first prompt. INTERTERM_START_TEXT
	// takes precedence.
	StartText string `yaml:"start_text"`

	// EditBufferShells lists the shell names whose edit buffer is
	// reported to the companion.
	EditBufferShells []string `yaml:"edit_buffer_shells"`

	// InsertionLock is how long EditBuffer hooks are held back after
	// the companion inserts text, unless the screen catches up first.
	InsertionLock time.Duration `yaml:"insertion_lock"`

	// ReconnectMax caps the backoff between companion reconnects.
	ReconnectMax time.Duration `yaml:"reconnect_max"`
}

// CompanionConfig configures interterm-companion.
type CompanionConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"`

	// RequestTTL bounds how long an unanswered request stays in a
	// session's pending table.
	RequestTTL time.Duration `yaml:"request_ttl"`

	// NotifyListen is the host:port of the websocket notification
	// endpoint. Empty disables it.
	NotifyListen string `yaml:"notify_listen"`

	// HistoryPath is the SQLite history database. Empty disables
	// history.
	HistoryPath string `yaml:"history_path"`

	// KeybindingsFile is a JSONC map of action to key bindings.
	KeybindingsFile string `yaml:"keybindings_file"`

	// UpdateCommand is run by the self-update system command.
	UpdateCommand []string `yaml:"update_command"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`

	// SessionFile is the session binary's log file; its stderr is the
	// user's terminal. Default: <state>/session.log
	SessionFile string `yaml:"session_file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Runtime: "${XDG_RUNTIME_DIR:-/tmp}/interterm",
			State:   "${HOME}/.local/state/interterm",
		},
		Session: SessionConfig{
			EditBufferShells: []string{"bash", "zsh", "fish", "nu"},
			InsertionLock:    16 * time.Millisecond,
			ReconnectMax:     5 * time.Second,
		},
		Companion: CompanionConfig{
			PingInterval: 5 * time.Second,
			RequestTTL:   2 * time.Minute,
			HistoryPath:  "${INTERTERM_STATE}/history.db",
		},
		Log: LogConfig{
			Level:       "info",
			SessionFile: "${INTERTERM_STATE}/session.log",
		},
	}
}

// Load reads the file at path, or at $INTERTERM_CONFIG when path is
// empty. With neither, it returns the expanded defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, cfg.Validate()
	}
	return LoadFile(path)
}

// LoadFile reads one YAML file over the defaults, applies the
// matching environment block, expands variables, and validates.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Runtime != "" {
			c.Paths.Runtime = overrides.Paths.Runtime
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
	}

	if overrides.Companion != nil {
		o := overrides.Companion
		if o.PingInterval != 0 {
			c.Companion.PingInterval = o.PingInterval
		}
		if o.RequestTTL != 0 {
			c.Companion.RequestTTL = o.RequestTTL
		}
		if o.NotifyListen != "" {
			c.Companion.NotifyListen = o.NotifyListen
		}
		if o.HistoryPath != "" {
			c.Companion.HistoryPath = o.HistoryPath
		}
		if o.KeybindingsFile != "" {
			c.Companion.KeybindingsFile = o.KeybindingsFile
		}
		if len(o.UpdateCommand) > 0 {
			c.Companion.UpdateCommand = o.UpdateCommand
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.SessionFile != "" {
			c.Log.SessionFile = overrides.Log.SessionFile
		}
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}

	c.Paths.Runtime = expandVars(c.Paths.Runtime, vars)
	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["INTERTERM_STATE"] = c.Paths.State

	c.Companion.HistoryPath = expandVars(c.Companion.HistoryPath, vars)
	c.Companion.KeybindingsFile = expandVars(c.Companion.KeybindingsFile, vars)
	c.Log.SessionFile = expandVars(c.Log.SessionFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default}. vars take precedence
// over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, fallback := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}
	if c.Paths.Runtime == "" {
		errs = append(errs, errors.New("paths.runtime is required"))
	}
	if c.Companion.PingInterval <= 0 {
		errs = append(errs, errors.New("companion.ping_interval must be positive"))
	}
	if c.Companion.RequestTTL <= 0 {
		errs = append(errs, errors.New("companion.request_ttl must be positive"))
	}
	if c.Session.InsertionLock < 0 {
		errs = append(errs, errors.New("session.insertion_lock must not be negative"))
	}
	return errors.Join(errs...)
}

// EnsureDirectories creates the runtime (0700) and state directories.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.Runtime, 0o700); err != nil {
		return fmt.Errorf("creating runtime directory: %w", err)
	}
	if c.Paths.State != "" {
		if err := os.MkdirAll(c.Paths.State, 0o700); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
	}
	return nil
}
