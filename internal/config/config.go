// Package config handles dmail configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tOgg1/dmail/internal/dmail"
	"github.com/tOgg1/dmail/internal/logging"
)

// Config is the root configuration structure for dmail.
type Config struct {
	// Server describes the directory/history/send service and its push socket.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Session identifies the local user.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Notifications settings
	Notifications NotificationsConfig `yaml:"notifications" mapstructure:"notifications"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`

	// Serve configures the bundled reference server.
	Serve ServeConfig `yaml:"serve" mapstructure:"serve"`

	// ConfigDir is where config and context files live (default: ~/.config/dmail).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// ServerConfig contains API endpoints and credentials.
type ServerConfig struct {
	// BaseURL is the REST API root, e.g. http://localhost:5001/api.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// SocketURL is the websocket endpoint. Derived from BaseURL when empty.
	SocketURL string `yaml:"socket_url" mapstructure:"socket_url"`

	// Token is sent as a bearer token on every request.
	Token string `yaml:"token" mapstructure:"token"`

	// Timeout bounds each REST request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SessionConfig identifies the locally authenticated user.
type SessionConfig struct {
	// UserID is the local user's identifier; live events from it are ignored.
	UserID string `yaml:"user_id" mapstructure:"user_id"`
}

// NotificationsConfig controls the notification surface.
type NotificationsConfig struct {
	// Permission is granted, denied or undetermined.
	Permission string `yaml:"permission" mapstructure:"permission"`

	// Bell rings the terminal bell when a notification is shown.
	Bell bool `yaml:"bell" mapstructure:"bell"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path. The TUI always logs to a file.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// StaleGuard drops history responses for a conversation that is no longer open.
	StaleGuard bool `yaml:"stale_guard" mapstructure:"stale_guard"`

	// ShowTimestamps shows message times in the timeline.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`
}

// ServeConfig configures `dmail serve`.
type ServeConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr" mapstructure:"addr"`

	// Database is the SQLite file path. Defaults to ConfigDir/dmaild.db.
	Database string `yaml:"database" mapstructure:"database"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:5001/api",
			Timeout: 10 * time.Second,
		},
		Notifications: NotificationsConfig{
			Permission: string(dmail.PermissionUndetermined),
			Bell:       true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		TUI: TUIConfig{
			Theme:          "default",
			ShowTimestamps: true,
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:5001",
		},
		ConfigDir: filepath.Join(homeDir, ".config", "dmail"),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validateURL("server.base_url", c.Server.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.Server.SocketURL != "" {
		if err := validateURL("server.socket_url", c.Server.SocketURL, "ws", "wss", "http", "https"); err != nil {
			return err
		}
	}
	if c.Server.Timeout < 100*time.Millisecond {
		return fmt.Errorf("server.timeout must be at least 100ms")
	}

	switch dmail.Permission(c.Notifications.Permission) {
	case dmail.PermissionGranted, dmail.PermissionDenied, dmail.PermissionUndetermined:
	default:
		return fmt.Errorf("notifications.permission must be one of granted, denied, undetermined")
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json")
	}

	switch c.TUI.Theme {
	case "default", "high-contrast":
	default:
		return fmt.Errorf("tui.theme must be default or high-contrast")
	}

	if strings.TrimSpace(c.Serve.Addr) == "" {
		return fmt.Errorf("serve.addr is required")
	}
	return nil
}

func validateURL(key, raw string, schemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %s URL", key, strings.Join(schemes, "/"))
}

// SocketEndpoint returns the websocket URL, deriving it from the REST base
// (scheme swapped to ws/wss, path replaced by /socket) when not configured.
func (c *Config) SocketEndpoint() string {
	if c.Server.SocketURL != "" {
		return c.Server.SocketURL
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/socket"
	u.RawQuery = ""
	return u.String()
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.ConfigDir, err)
	}
	return nil
}

// DatabasePath returns the reference server's database path.
func (c *Config) DatabasePath() string {
	if c.Serve.Database != "" {
		return c.Serve.Database
	}
	return filepath.Join(c.ConfigDir, "dmaild.db")
}

// LogFilePath returns the log file, falling back to ConfigDir/dmail.log when
// a file is required (the TUI owns the terminal).
func (c *Config) LogFilePath(required bool) string {
	if c.Logging.File != "" || !required {
		return c.Logging.File
	}
	return filepath.Join(c.ConfigDir, "dmail.log")
}
