// Package config loads client configuration from the config file and
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultServerURL is the backend endpoint used when nothing else is
// configured.
const DefaultServerURL = "http://127.0.0.1:8787"

// fileConfig mirrors config.toml. Every field is optional; the environment
// overrides whatever the file sets.
type fileConfig struct {
	ServerURL        string `toml:"server_url"`
	WorkspaceID      string `toml:"workspace_id"`
	Debug            bool   `toml:"debug"`
	RequestTimeoutMs int64  `toml:"request_timeout_ms"`
}

type Config struct {
	// ServerURL is the base URL of the ZaguanBlade backend.
	ServerURL string
	// WorkspaceID identifies the workspace this client attaches to.
	WorkspaceID string

	// BladeHome is the directory where the client stores local state.
	BladeHome string
	// AccessKey is the path to the access token file.
	AccessKey string

	// Debug enables verbose logging.
	Debug bool
	// RequestTimeout bounds correlated requests.
	RequestTimeout time.Duration
}

// Load loads configuration from ~/.zaguanblade/config.toml (when present),
// then applies environment overrides and defaults.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	bladeHome := os.Getenv("BLADE_HOME_DIR")
	if bladeHome == "" {
		bladeHome = filepath.Join(homeDir, ".zaguanblade")
	}
	if err := os.MkdirAll(bladeHome, 0700); err != nil {
		return nil, fmt.Errorf("failed to create blade home: %w", err)
	}

	var file fileConfig
	configPath := filepath.Join(bladeHome, "config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, &file); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	}

	cfg := &Config{
		ServerURL:   file.ServerURL,
		WorkspaceID: file.WorkspaceID,
		BladeHome:   bladeHome,
		AccessKey:   filepath.Join(bladeHome, "access.key"),
		Debug:       file.Debug,
	}
	if file.RequestTimeoutMs > 0 {
		cfg.RequestTimeout = time.Duration(file.RequestTimeoutMs) * time.Millisecond
	}

	if v := os.Getenv("BLADE_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	if v := os.Getenv("BLADE_WORKSPACE_ID"); v != "" {
		cfg.WorkspaceID = v
	}
	if v := os.Getenv("BLADE_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}
	if v := os.Getenv("BLADE_REQUEST_TIMEOUT_MS"); v != "" {
		var ms int64
		if _, err := fmt.Sscanf(v, "%d", &ms); err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid BLADE_REQUEST_TIMEOUT_MS %q", v)
		}
		cfg.RequestTimeout = time.Duration(ms) * time.Millisecond
	}

	return cfg, nil
}

// Save persists the overridable settings back to config.toml.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.BladeHome, 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(c.BladeHome, "config.toml"),
		os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(fileConfig{
		ServerURL:        c.ServerURL,
		WorkspaceID:      c.WorkspaceID,
		Debug:            c.Debug,
		RequestTimeoutMs: c.RequestTimeout.Milliseconds(),
	})
}
