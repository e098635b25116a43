// Package config loads the panel configuration from a single yaml file.
// Flags override file values; the file overrides the built-in defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the panel configuration.
type Config struct {
	// ServerID identifies the server instance to clients. Generated when
	// empty.
	ServerID string `yaml:"server_id"`

	// ServerName is the display name announced to clients.
	// Default: Spinpanel
	ServerName string `yaml:"server_name"`

	// Port is the websocket listen port. 0 lets the listener pick.
	// Default: 8927
	Port int `yaml:"port"`

	// EnableDiscovery announces the server over mDNS and browses for
	// players on the LAN.
	// Default: true
	EnableDiscovery bool `yaml:"enable_discovery"`

	// LogFile is where the JSON debug log goes.
	// Default: spinpanel.log
	LogFile string `yaml:"log_file"`

	// LogLevel is the minimum level written to the log file.
	// One of debug, info, warn, error. Default: info
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ServerID:        "spin-" + uuid.NewString()[:8],
		ServerName:      "Spinpanel",
		Port:            8927,
		EnableDiscovery: true,
		LogFile:         "spinpanel.log",
		LogLevel:        "info",
	}
}

// Load reads the yaml file at path over the defaults. A missing file is not
// an error; flags may be the only configuration.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.ServerID == "" {
		cfg.ServerID = Default().ServerID
	}
	return cfg, nil
}

// Validate rejects values the rest of the program would choke on.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.ServerName == "" {
		return fmt.Errorf("server_name must not be empty")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
