package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Strategy.StopLossPct = 150
	cfg.Strategy.MaxPositions = 0
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "stop_loss_pct")
	assert.Contains(t, err.Error(), "max_positions")
	assert.Contains(t, err.Error(), "port")
}

func TestValidateLiveModeNeedsSigner(t *testing.T) {
	cfg := Defaults()
	cfg.Strategy.DryRun = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signer_url")
	assert.Contains(t, err.Error(), "wallet_public_key")

	cfg.Venue.SignerURL = "http://localhost:9100/sign"
	cfg.Venue.WalletPublicKey = "8f1...pub"
	require.NoError(t, cfg.Validate())
}

func TestValidateTelegramPair(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "token-only"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
log_level = "debug"

[postgres]
host = "db.internal"
password = "secret"

[strategy]
dry_run = false
max_positions = 8

[scheduler]
discovery_interval_secs = 600
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.False(t, cfg.Strategy.DryRun)
	assert.Equal(t, 8, cfg.Strategy.MaxPositions)
	assert.Equal(t, 600, cfg.Scheduler.DiscoveryIntervalSecs)

	// Untouched sections keep their defaults.
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("DEXBOT_POSTGRES_PASSWORD", "env-secret")
	t.Setenv("DEXBOT_STRATEGY_TAKE_PROFIT_PCT", "20")
	t.Setenv("DEXBOT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DEXBOT_SCHEDULER_AUTO_START", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Postgres.Password)
	assert.Equal(t, 20.0, cfg.Strategy.TakeProfitPct)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Scheduler.AutoStart)
}

func TestBaseParamsConversion(t *testing.T) {
	cfg := Defaults()
	cfg.Strategy.FailureCooldownSecs = 120
	cfg.Scheduler.ExitCheckIntervalSecs = 30

	params := cfg.BaseParams()
	assert.Equal(t, 2*time.Minute, params.FailureCooldown)
	assert.Equal(t, 30*time.Second, params.ExitCheckInterval)
	assert.Equal(t, cfg.Strategy.MaxPositions, params.MaxPositions)
	assert.True(t, params.DryRun)
}

func TestAccountingLocation(t *testing.T) {
	cfg := Defaults()

	// Empty timezone falls back to the host zone.
	loc, err := cfg.AccountingLocation()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.Strategy.Timezone = "America/New_York"
	require.NoError(t, cfg.Validate())
	loc, err = cfg.AccountingLocation()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())

	cfg.Strategy.Timezone = "Mars/Olympus_Mons"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
	_, err = cfg.AccountingLocation()
	assert.Error(t, err)
}
