package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "margind.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[server]
enabled = true
listen_addr = ":9000"

[nats]
enabled = true
url = "nats://bus:4222"
subject_prefix = "margin.test"
reconnect_wait = "500ms"

[telemetry]
vault_interval = "1s"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, ":9000", cfg.Server.ListenAddr)
	require.Equal(t, "nats://bus:4222", cfg.Nats.URL)
	require.Equal(t, 500*time.Millisecond, cfg.Nats.ReconnectWait.Duration)
	require.Equal(t, time.Second, cfg.Telemetry.VaultInterval.Duration)

	// Fields the file omits keep their defaults.
	require.Equal(t, 10, cfg.Nats.MaxReconnects)
	require.Equal(t, ":9991", cfg.Telemetry.MetricsAddr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MARGIND_LOG_LEVEL", "warn")
	t.Setenv("MARGIND_SERVER_LISTEN_ADDR", ":7777")
	t.Setenv("MARGIND_NATS_MAX_RECONNECTS", "3")
	t.Setenv("MARGIND_TELEMETRY_VAULT_INTERVAL", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, ":7777", cfg.Server.ListenAddr)
	require.Equal(t, 3, cfg.Nats.MaxReconnects)
	require.Equal(t, 250*time.Millisecond, cfg.Telemetry.VaultInterval.Duration)
}

func TestValidateRejects(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Nats.Enabled = true
	cfg.Nats.URL = ""
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "log_level")
	require.Contains(t, err.Error(), "nats: url")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}
