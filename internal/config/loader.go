package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DEXBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults
// plus environment overrides. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEXBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DEXBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DEXBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEXBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEXBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEXBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEXBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEXBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DEXBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DEXBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DEXBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DEXBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEXBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEXBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEXBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEXBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEXBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DEXBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DEXBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DEXBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "DEXBOT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "DEXBOT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "DEXBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DEXBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DEXBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DEXBOT_S3_FORCE_PATH_STYLE")

	// ── Market ──
	setStr(&cfg.Market.BaseURL, "DEXBOT_MARKET_BASE_URL")
	setStr(&cfg.Market.Chain, "DEXBOT_MARKET_CHAIN")
	setStringSlice(&cfg.Market.ExcludedTokens, "DEXBOT_MARKET_EXCLUDED_TOKENS")

	// ── Safety ──
	setStr(&cfg.Safety.BaseURL, "DEXBOT_SAFETY_BASE_URL")

	// ── Venue ──
	setStr(&cfg.Venue.QuoteBaseURL, "DEXBOT_VENUE_QUOTE_BASE_URL")
	setStr(&cfg.Venue.TokenListURL, "DEXBOT_VENUE_TOKEN_LIST_URL")
	setStr(&cfg.Venue.SignerURL, "DEXBOT_VENUE_SIGNER_URL")
	setStr(&cfg.Venue.WalletPublicKey, "DEXBOT_VENUE_WALLET_PUBLIC_KEY")
	setInt(&cfg.Venue.SlippageBps, "DEXBOT_VENUE_SLIPPAGE_BPS")

	// ── Strategy ──
	setBool(&cfg.Strategy.DryRun, "DEXBOT_STRATEGY_DRY_RUN")
	setFloat64(&cfg.Strategy.PositionSizeUSD, "DEXBOT_STRATEGY_POSITION_SIZE_USD")
	setInt(&cfg.Strategy.MaxPositions, "DEXBOT_STRATEGY_MAX_POSITIONS")
	setInt(&cfg.Strategy.MaxNewPerCycle, "DEXBOT_STRATEGY_MAX_NEW_PER_CYCLE")
	setFloat64(&cfg.Strategy.TakeProfitPct, "DEXBOT_STRATEGY_TAKE_PROFIT_PCT")
	setFloat64(&cfg.Strategy.StopLossPct, "DEXBOT_STRATEGY_STOP_LOSS_PCT")
	setFloat64(&cfg.Strategy.TrailingStopPct, "DEXBOT_STRATEGY_TRAILING_STOP_PCT")
	setFloat64(&cfg.Strategy.TrailingActivationPct, "DEXBOT_STRATEGY_TRAILING_ACTIVATION_PCT")
	setFloat64(&cfg.Strategy.MaxHoldHours, "DEXBOT_STRATEGY_MAX_HOLD_HOURS")
	setFloat64(&cfg.Strategy.DailyLossLimitUSD, "DEXBOT_STRATEGY_DAILY_LOSS_LIMIT_USD")
	setInt(&cfg.Strategy.FailureCooldownSecs, "DEXBOT_STRATEGY_FAILURE_COOLDOWN_SECS")
	setInt(&cfg.Strategy.ReentryCooldownSecs, "DEXBOT_STRATEGY_REENTRY_COOLDOWN_SECS")
	setFloat64(&cfg.Strategy.MinVolumeUSD, "DEXBOT_STRATEGY_MIN_VOLUME_USD")
	setFloat64(&cfg.Strategy.MinLiquidityUSD, "DEXBOT_STRATEGY_MIN_LIQUIDITY_USD")
	setFloat64(&cfg.Strategy.MinScore, "DEXBOT_STRATEGY_MIN_SCORE")
	setStr(&cfg.Strategy.Timezone, "DEXBOT_STRATEGY_TIMEZONE")

	// ── Scheduler ──
	setBool(&cfg.Scheduler.AutoStart, "DEXBOT_SCHEDULER_AUTO_START")
	setInt(&cfg.Scheduler.DiscoveryIntervalSecs, "DEXBOT_SCHEDULER_DISCOVERY_INTERVAL_SECS")
	setInt(&cfg.Scheduler.ExitCheckIntervalSecs, "DEXBOT_SCHEDULER_EXIT_CHECK_INTERVAL_SECS")

	// ── Server ──
	setInt(&cfg.Server.Port, "DEXBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DEXBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DEXBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEXBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEXBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEXBOT_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "DEXBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
