package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGeneratesServerID(t *testing.T) {
	a := Default()
	b := Default()
	assert.NotEmpty(t, a.ServerID)
	assert.NotEqual(t, a.ServerID, b.ServerID)
	assert.NoError(t, a.Validate())
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Spinpanel", cfg.ServerName)
	assert.Equal(t, 8927, cfg.Port)
	assert.True(t, cfg.EnableDiscovery)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spinpanel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"server_id: kitchen-rig\n"+
			"server_name: Kitchen\n"+
			"port: 9000\n"+
			"enable_discovery: false\n"+
			"log_level: debug\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "kitchen-rig", cfg.ServerID)
	assert.Equal(t, "Kitchen", cfg.ServerName)
	assert.Equal(t, 9000, cfg.Port)
	assert.False(t, cfg.EnableDiscovery)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched keys keep their defaults.
	assert.Equal(t, "spinpanel.log", cfg.LogFile)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [not a port\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"port_zero_is_auto", func(c *Config) { c.Port = 0 }, true},
		{"port_too_big", func(c *Config) { c.Port = 70000 }, false},
		{"negative_port", func(c *Config) { c.Port = -1 }, false},
		{"empty_name", func(c *Config) { c.ServerName = "" }, false},
		{"bad_level", func(c *Config) { c.LogLevel = "loud" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
	}
	for _, tt := range tests {
		level, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, level, tt.in)
	}

	_, err := ParseLevel("silent")
	assert.Error(t, err)
}
