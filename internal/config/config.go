// Package config defines the daemon configuration and its validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Fields are populated from a TOML file and
// then optionally overridden by MARGIND_* environment variables.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Nats      NatsConfig      `toml:"nats"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	LogLevel  string          `toml:"log_level"`
}

// ServerConfig holds the WebSocket API listener parameters.
type ServerConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// DatabaseConfig holds the state store parameters.
type DatabaseConfig struct {
	// Dir is the on-disk database directory. Empty selects the in-memory
	// store, which does not survive a restart.
	Dir string `toml:"dir"`
}

// NatsConfig holds the event bus parameters.
type NatsConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           string   `toml:"url"`
	SubjectPrefix string   `toml:"subject_prefix"`
	MaxReconnects int      `toml:"max_reconnects"`
	ReconnectWait duration `toml:"reconnect_wait"`
}

// TelemetryConfig holds the metrics endpoint and vault broadcast parameters.
type TelemetryConfig struct {
	MetricsAddr   string   `toml:"metrics_addr"`
	VaultInterval duration `toml:"vault_interval"`

	// Vaults maps a display label to the hex address of a vault record to
	// broadcast share-price telemetry for.
	Vaults map[string]string `toml:"vaults"`
}

type duration struct {
	time.Duration
}

// UnmarshalText lets the TOML decoder parse duration strings like "5s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Enabled:    true,
			ListenAddr: ":8891",
		},
		Nats: NatsConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "margin",
			MaxReconnects: 10,
			ReconnectWait: duration{2 * time.Second},
		},
		Telemetry: TelemetryConfig{
			MetricsAddr:   ":9991",
			VaultInterval: duration{5 * time.Second},
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for operator mistakes.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: trace, debug, info, warn, error)", c.LogLevel))
	}
	if c.Server.Enabled && c.Server.ListenAddr == "" {
		errs = append(errs, "server: listen_addr must be set when the server is enabled")
	}
	if c.Nats.Enabled {
		if c.Nats.URL == "" {
			errs = append(errs, "nats: url must be set when the bus is enabled")
		}
		if c.Nats.SubjectPrefix == "" {
			errs = append(errs, "nats: subject_prefix must be set when the bus is enabled")
		}
	}
	if c.Telemetry.VaultInterval.Duration < 0 {
		errs = append(errs, "telemetry: vault_interval must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
