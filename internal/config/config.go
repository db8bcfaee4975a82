// Package config loads the hub configuration: a JSON5 file overlaid with
// AGENTHUB_* environment variables on top of built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Config is the full runtime configuration.
type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Database DatabaseConfig `json:"database"`
	Dispatch DispatchConfig `json:"dispatch"`
	LogLevel string         `json:"log_level"`
}

// GatewayConfig configures the HTTP/WebSocket listener.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig configures persistence. An empty DSN selects the in-memory
// backend, which is the dev-mode default.
type DatabaseConfig struct {
	DSN            string `json:"dsn"`
	MigrationsPath string `json:"migrations_path"`
}

// DispatchConfig sizes the background queue that runs debounce checks and
// webhook deliveries.
type DispatchConfig struct {
	Workers int `json:"workers"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			MigrationsPath: "migrations",
		},
		Dispatch: DispatchConfig{
			Workers: 8,
		},
		LogLevel: "info",
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env takes precedence
// over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	envStr("AGENTHUB_HOST", &c.Gateway.Host)
	envInt("AGENTHUB_PORT", &c.Gateway.Port)
	envStr("AGENTHUB_POSTGRES_DSN", &c.Database.DSN)
	envStr("AGENTHUB_MIGRATIONS_PATH", &c.Database.MigrationsPath)
	envInt("AGENTHUB_DISPATCH_WORKERS", &c.Dispatch.Workers)
	envStr("AGENTHUB_LOG_LEVEL", &c.LogLevel)
}
