// Package config defines the top-level configuration for the strategy engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/dexbot/internal/strategy"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DEXBOT_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Market    MarketConfig    `toml:"market"`
	Safety    SafetyConfig    `toml:"safety"`
	Venue     VenueConfig     `toml:"venue"`
	Strategy  StrategyConfig  `toml:"strategy"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for history
// archives. When Enabled is false, resets delete without exporting.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MarketConfig holds the market-data feed parameters.
type MarketConfig struct {
	BaseURL        string   `toml:"base_url"`
	Chain          string   `toml:"chain"`
	ExcludedTokens []string `toml:"excluded_tokens"`
}

// SafetyConfig holds the token safety-check parameters.
type SafetyConfig struct {
	BaseURL string `toml:"base_url"`
}

// VenueConfig holds the swap-venue parameters. SignerURL and WalletPublicKey
// are only required for live execution; dry-run mode never contacts the
// venue.
type VenueConfig struct {
	QuoteBaseURL    string `toml:"quote_base_url"`
	TokenListURL    string `toml:"token_list_url"`
	SignerURL       string `toml:"signer_url"`
	WalletPublicKey string `toml:"wallet_public_key"`
	SlippageBps     int    `toml:"slippage_bps"`
}

// StrategyConfig holds the base strategy parameters. Values persisted through
// the param store override these at startup.
type StrategyConfig struct {
	DryRun          bool    `toml:"dry_run"`
	PositionSizeUSD float64 `toml:"position_size_usd"`
	MaxPositions    int     `toml:"max_positions"`
	MaxNewPerCycle  int     `toml:"max_new_per_cycle"`

	TakeProfitPct         float64 `toml:"take_profit_pct"`
	StopLossPct           float64 `toml:"stop_loss_pct"`
	TrailingStopPct       float64 `toml:"trailing_stop_pct"`
	TrailingActivationPct float64 `toml:"trailing_activation_pct"`
	MaxHoldHours          float64 `toml:"max_hold_hours"`

	DailyLossLimitUSD   float64 `toml:"daily_loss_limit_usd"`
	FailureCooldownSecs int     `toml:"failure_cooldown_secs"`
	ReentryCooldownSecs int     `toml:"reentry_cooldown_secs"`

	MinVolumeUSD    float64 `toml:"min_volume_usd"`
	MinLiquidityUSD float64 `toml:"min_liquidity_usd"`
	MinScore        float64 `toml:"min_score"`

	// Timezone is the IANA zone for the daily-loss accounting day boundary.
	// Empty means the process-local zone.
	Timezone string `toml:"timezone"`
}

// AccountingLocation resolves the configured timezone. Call after Validate.
func (c *Config) AccountingLocation() (*time.Location, error) {
	if c.Strategy.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Strategy.Timezone)
}

// SchedulerConfig holds the cycle scheduler parameters.
type SchedulerConfig struct {
	AutoStart             bool `toml:"auto_start"`
	DiscoveryIntervalSecs int  `toml:"discovery_interval_secs"`
	ExitCheckIntervalSecs int  `toml:"exit_check_interval_secs"`
}

// ServerConfig holds the HTTP API server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials. Channels with empty
// credentials are not registered.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

// Defaults returns the built-in configuration, matching the shipped
// parameter set.
func Defaults() Config {
	base := strategy.DefaultParams()

	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dexbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "archives",
			UseSSL: true,
		},
		Market: MarketConfig{
			Chain: "solana",
		},
		Venue: VenueConfig{
			SlippageBps: 100,
		},
		Strategy: StrategyConfig{
			DryRun:                base.DryRun,
			PositionSizeUSD:       base.PositionSizeUSD,
			MaxPositions:          base.MaxPositions,
			MaxNewPerCycle:        base.MaxNewPerCycle,
			TakeProfitPct:         base.TakeProfitPct,
			StopLossPct:           base.StopLossPct,
			TrailingStopPct:       base.TrailingStopPct,
			TrailingActivationPct: base.TrailingActivationPct,
			MaxHoldHours:          base.MaxHoldHours,
			DailyLossLimitUSD:     base.DailyLossLimitUSD,
			FailureCooldownSecs:   int(base.FailureCooldown / time.Second),
			ReentryCooldownSecs:   int(base.ReentryCooldown / time.Second),
			MinVolumeUSD:          base.MinVolumeUSD,
			MinLiquidityUSD:       base.MinLiquidityUSD,
			MinScore:              base.MinScore,
		},
		Scheduler: SchedulerConfig{
			AutoStart:             true,
			DiscoveryIntervalSecs: int(base.DiscoveryInterval / time.Second),
			ExitCheckIntervalSecs: int(base.ExitCheckInterval / time.Second),
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		LogLevel: "info",
	}
}

// BaseParams converts the configured strategy section into the engine's
// parameter set.
func (c *Config) BaseParams() strategy.Params {
	return strategy.Params{
		DryRun:                c.Strategy.DryRun,
		PositionSizeUSD:       c.Strategy.PositionSizeUSD,
		MaxPositions:          c.Strategy.MaxPositions,
		MaxNewPerCycle:        c.Strategy.MaxNewPerCycle,
		TakeProfitPct:         c.Strategy.TakeProfitPct,
		StopLossPct:           c.Strategy.StopLossPct,
		TrailingStopPct:       c.Strategy.TrailingStopPct,
		TrailingActivationPct: c.Strategy.TrailingActivationPct,
		MaxHoldHours:          c.Strategy.MaxHoldHours,
		DailyLossLimitUSD:     c.Strategy.DailyLossLimitUSD,
		FailureCooldown:       time.Duration(c.Strategy.FailureCooldownSecs) * time.Second,
		ReentryCooldown:       time.Duration(c.Strategy.ReentryCooldownSecs) * time.Second,
		MinVolumeUSD:          c.Strategy.MinVolumeUSD,
		MinLiquidityUSD:       c.Strategy.MinLiquidityUSD,
		MinScore:              c.Strategy.MinScore,
		DiscoveryInterval:     time.Duration(c.Scheduler.DiscoveryIntervalSecs) * time.Second,
		ExitCheckInterval:     time.Duration(c.Scheduler.ExitCheckIntervalSecs) * time.Second,
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	// Market
	if c.Market.Chain == "" {
		errs = append(errs, "market: chain must not be empty")
	}

	// Venue — live execution needs a signer.
	if !c.Strategy.DryRun {
		if c.Venue.SignerURL == "" {
			errs = append(errs, "venue: signer_url is required when strategy.dry_run is false")
		}
		if c.Venue.WalletPublicKey == "" {
			errs = append(errs, "venue: wallet_public_key is required when strategy.dry_run is false")
		}
	}

	// Strategy
	if c.Strategy.PositionSizeUSD <= 0 {
		errs = append(errs, "strategy: position_size_usd must be > 0")
	}
	if c.Strategy.MaxPositions < 1 {
		errs = append(errs, "strategy: max_positions must be >= 1")
	}
	if c.Strategy.MaxNewPerCycle < 1 {
		errs = append(errs, "strategy: max_new_per_cycle must be >= 1")
	}
	if c.Strategy.TakeProfitPct <= 0 {
		errs = append(errs, "strategy: take_profit_pct must be > 0")
	}
	if c.Strategy.StopLossPct <= 0 || c.Strategy.StopLossPct >= 100 {
		errs = append(errs, "strategy: stop_loss_pct must be in (0, 100)")
	}
	if c.Strategy.TrailingStopPct <= 0 || c.Strategy.TrailingStopPct >= 100 {
		errs = append(errs, "strategy: trailing_stop_pct must be in (0, 100)")
	}
	if c.Strategy.TrailingActivationPct <= 0 {
		errs = append(errs, "strategy: trailing_activation_pct must be > 0")
	}
	if c.Strategy.MaxHoldHours < 0 {
		errs = append(errs, "strategy: max_hold_hours must be >= 0")
	}
	if c.Strategy.DailyLossLimitUSD < 0 {
		errs = append(errs, "strategy: daily_loss_limit_usd must be >= 0")
	}
	if c.Strategy.Timezone != "" {
		if _, err := time.LoadLocation(c.Strategy.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("strategy: unknown timezone %q", c.Strategy.Timezone))
		}
	}

	// Scheduler
	if c.Scheduler.DiscoveryIntervalSecs < 1 {
		errs = append(errs, "scheduler: discovery_interval_secs must be >= 1")
	}
	if c.Scheduler.ExitCheckIntervalSecs < 1 {
		errs = append(errs, "scheduler: exit_check_interval_secs must be >= 1")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	// Notify — Telegram needs both token and chat ID.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
