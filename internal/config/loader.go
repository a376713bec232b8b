package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARGIND_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults
// plus overrides. The caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARGIND_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators adjust a deployment without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setBool(&cfg.Server.Enabled, "MARGIND_SERVER_ENABLED")
	setStr(&cfg.Server.ListenAddr, "MARGIND_SERVER_LISTEN_ADDR")

	setStr(&cfg.Database.Dir, "MARGIND_DATABASE_DIR")

	setBool(&cfg.Nats.Enabled, "MARGIND_NATS_ENABLED")
	setStr(&cfg.Nats.URL, "MARGIND_NATS_URL")
	setStr(&cfg.Nats.SubjectPrefix, "MARGIND_NATS_SUBJECT_PREFIX")
	setInt(&cfg.Nats.MaxReconnects, "MARGIND_NATS_MAX_RECONNECTS")
	setDuration(&cfg.Nats.ReconnectWait, "MARGIND_NATS_RECONNECT_WAIT")

	setStr(&cfg.Telemetry.MetricsAddr, "MARGIND_TELEMETRY_METRICS_ADDR")
	setDuration(&cfg.Telemetry.VaultInterval, "MARGIND_TELEMETRY_VAULT_INTERVAL")

	setStr(&cfg.LogLevel, "MARGIND_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
