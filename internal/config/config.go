// Package config loads the application configuration and resolves the
// per-user data directory that holds the analytics documents.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/skyrelay/skyrelay/internal/json"
)

// TunnelConfig describes one Cloudflare tunnel to establish on serve.
type TunnelConfig struct {
	// ID identifies the tunnel in status updates.
	ID string `yaml:"id" json:"id"`

	// LocalPort is the local port the tunnel exposes (quick tunnel mode).
	LocalPort int `yaml:"local-port" json:"localPort"`

	// Token enables named-tunnel mode; ingress rules come from the
	// Cloudflare dashboard. Empty means quick tunnel.
	Token string `yaml:"token,omitempty" json:"token,omitempty"`
}

// Config is the application configuration, loaded from YAML.
type Config struct {
	// Port is the management API listen port.
	Port int `yaml:"port" json:"port"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// DataDir overrides the default per-user data directory.
	DataDir string `yaml:"data-dir,omitempty" json:"data-dir,omitempty"`

	// RequestLog is the path to the proxy request log to tail. Empty
	// disables ingestion (query-only mode).
	RequestLog string `yaml:"request-log,omitempty" json:"request-log,omitempty"`

	// LoggingToFile mirrors process logs into a rotated file under DataDir.
	LoggingToFile bool `yaml:"logging-to-file,omitempty" json:"logging-to-file,omitempty"`

	// ManagementKey protects the management API. Empty disables auth
	// (local-only deployments).
	ManagementKey string `yaml:"management-key,omitempty" json:"management-key,omitempty"`

	// Tunnels lists Cloudflare tunnels started alongside the server.
	Tunnels []TunnelConfig `yaml:"tunnels,omitempty" json:"tunnels,omitempty"`
}

// DefaultPort is the management API port when none is configured.
const DefaultPort = 8317

// DefaultDataDir resolves the per-user data directory, honoring
// XDG_CONFIG_HOME and falling back to ~/.config.
func DefaultDataDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: resolve home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "skyrelay"), nil
}

// Load reads the YAML config at path. A missing file yields defaults; a
// malformed file is an error since the user explicitly wrote it.
func Load(path string) (*Config, error) {
	cfg := &Config{Port: DefaultPort}
	data, err := os.ReadFile(expandPath(path))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	return cfg, nil
}

// ApplyLegacySettings overlays values from the desktop app's settings.json
// if one exists in dir. The file is hand-edited, so comments and trailing
// commas are tolerated via HuJSON standardization.
func (c *Config) ApplyLegacySettings(dir string) error {
	path := filepath.Join(dir, "settings.json")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	std, err := hujson.Standardize(raw)
	if err != nil {
		return fmt.Errorf("config: standardize %s: %w", path, err)
	}
	var legacy struct {
		Port       int            `json:"port"`
		RequestLog string         `json:"requestLog"`
		Tunnels    []TunnelConfig `json:"tunnels"`
	}
	if err := json.Unmarshal(std, &legacy); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if legacy.Port != 0 {
		c.Port = legacy.Port
	}
	if legacy.RequestLog != "" {
		c.RequestLog = legacy.RequestLog
	}
	if len(legacy.Tunnels) > 0 {
		c.Tunnels = legacy.Tunnels
	}
	return nil
}

// ResolveDataDir returns the effective data directory for this config,
// creating it if necessary.
func (c *Config) ResolveDataDir() (string, error) {
	dir := expandPath(c.DataDir)
	if dir == "" {
		var err error
		dir, err = DefaultDataDir()
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("config: create data directory: %w", err)
	}
	return dir, nil
}

// expandPath expands a leading "~" or "$XDG_CONFIG_HOME" in path.
func expandPath(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimLeft(path[1:], "/\\"))
		}
		return path
	}
	if strings.HasPrefix(path, "$XDG_CONFIG_HOME") {
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			if home, err := os.UserHomeDir(); err == nil {
				base = filepath.Join(home, ".config")
			}
		}
		return filepath.Join(base, strings.TrimLeft(strings.TrimPrefix(path, "$XDG_CONFIG_HOME"), "/\\"))
	}
	return filepath.Clean(path)
}
