/*
Package config loads server configuration.

PURPOSE:
  One TOML file overlays a complete set of defaults, so the server runs
  with zero configuration and a deployment only writes the keys it
  changes.
*/
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	Metrics MetricsConfig `toml:"metrics"`
}

type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	ShutdownTimeout string   `toml:"shutdown_timeout"` // Go duration string
	CORSOrigins     []string `toml:"cors_origins"`
}

type StoreConfig struct {
	// Path is the SQLite database file, or ":memory:" for an ephemeral
	// store.
	Path string `toml:"path"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the configuration the server runs with when no
// file is given.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: "10s",
			CORSOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Store: StoreConfig{
			Path: "payroll.db",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads the TOML file at path over the defaults. An empty path
// returns the defaults unchanged; a missing file is an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return cfg, fmt.Errorf("config file: %w", err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Addr returns the host:port the HTTP server binds.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
