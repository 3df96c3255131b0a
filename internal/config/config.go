// Package config defines the top-level configuration for the arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/risk"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSCANNER_* environment variables.
type Config struct {
	Scanner   ScannerConfig          `toml:"scanner"`
	Risk      RiskConfig             `toml:"risk"`
	Slippage  SlippageConfig         `toml:"slippage"`
	Fees      FeesConfig             `toml:"fees"`
	Venues    map[string]VenueConfig `toml:"venues"`
	Reconnect ReconnectConfig        `toml:"reconnect"`
	Redis     RedisConfig            `toml:"redis"`
	Postgres  PostgresConfig         `toml:"postgres"`
	S3        S3Config               `toml:"s3"`
	Kafka     KafkaConfig            `toml:"kafka"`
	Notify    NotifyConfig           `toml:"notify"`
	Server    ServerConfig           `toml:"server"`
	Mode      string                 `toml:"mode"`
	LogLevel  string                 `toml:"log_level"`
}

// ScannerConfig holds the scan loop thresholds. Percentages are in percent
// units except MaxPositionPct, which is a fraction of available capital.
type ScannerConfig struct {
	MinProfitPct     float64  `toml:"min_profit_pct"`
	MaxPositionPct   float64  `toml:"max_position_pct"`
	MaxSlippagePct   float64  `toml:"max_slippage_pct"`
	ScanInterval     duration `toml:"scan_interval"`
	AvailableCapital float64  `toml:"available_capital"`
	MinPosition      float64  `toml:"min_position"`
	PurgeInterval    duration `toml:"purge_interval"`
	PendingTTL       duration `toml:"pending_ttl"`
	TopN             int      `toml:"top_n"`
	Streaming        bool     `toml:"streaming"`
}

// RiskConfig selects the weight preset and early-warning thresholds. The
// threshold keys sit directly under [risk].
type RiskConfig struct {
	Regime string `toml:"regime"`
	risk.Thresholds
}

// SlippageConfig tunes the volatility tracker and estimate caches.
type SlippageConfig struct {
	VolatilityThreshold float64  `toml:"volatility_threshold"`
	SpikeThreshold      float64  `toml:"spike_threshold"`
	LiquidHours         []int    `toml:"liquid_hours"`
	CacheTTL            duration `toml:"cache_ttl"`
	HistoryTTL          duration `toml:"history_ttl"`
}

// FeesConfig points at an optional YAML fee-tier file.
type FeesConfig struct {
	Path string `toml:"path"`
}

// VenueConfig configures one venue connector.
type VenueConfig struct {
	Enabled        bool     `toml:"enabled"`
	RESTURL        string   `toml:"rest_url"`
	WSURL          string   `toml:"ws_url"`
	RESTRPS        float64  `toml:"rest_rps"`
	ConnectTimeout duration `toml:"connect_timeout"`
	// FeeSchedule names the fee entry to use; empty means the venue name.
	FeeSchedule string `toml:"fee_schedule"`
}

// ReconnectConfig is the WebSocket reconnect policy shared by all venues.
type ReconnectConfig struct {
	Enabled      bool     `toml:"enabled"`
	InitialDelay duration `toml:"initial_delay"`
	MaxDelay     duration `toml:"max_delay"`
	MaxAttempts  int      `toml:"max_attempts"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	Channel      string   `toml:"channel"`
	StreamMaxLen int64    `toml:"stream_max_len"`
	MirrorTTL    duration `toml:"mirror_ttl"`
	LeaderLock   bool     `toml:"leader_lock"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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
	RetentionDays int    `toml:"retention_days"`
	// PruneCron deletes rows older than RetentionDays on this schedule when
	// no S3 archive runs. Empty disables pruning.
	PruneCron string `toml:"prune_cron"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	ArchiveCron    string `toml:"archive_cron"`
}

// KafkaConfig holds the opportunity event producer settings.
type KafkaConfig struct {
	Enabled  bool     `toml:"enabled"`
	Brokers  []string `toml:"brokers"`
	Topic    string   `toml:"topic"`
	ClientID string   `toml:"client_id"`
	Acks     string   `toml:"acks"`
	// All sends every ranked opportunity, not only viable ones.
	All bool `toml:"all"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	MinProfitPct      float64  `toml:"min_profit_pct"`
	Cooldown          duration `toml:"cooldown"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Known venue names.
const (
	VenueBinance = "binance"
	VenueBybit   = "bybit"
	VenueKraken  = "kraken"
	VenueOKX     = "okx"
)

var knownVenues = map[string]bool{
	VenueBinance: true,
	VenueBybit:   true,
	VenueKraken:  true,
	VenueOKX:     true,
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	venue := func() VenueConfig {
		return VenueConfig{Enabled: true, RESTRPS: 5, ConnectTimeout: duration{10 * time.Second}}
	}
	return Config{
		Scanner: ScannerConfig{
			MinProfitPct:     0.1,
			MaxPositionPct:   0.1,
			MaxSlippagePct:   0.5,
			ScanInterval:     duration{5 * time.Second},
			AvailableCapital: 10_000,
			MinPosition:      10,
			PurgeInterval:    duration{time.Hour},
			PendingTTL:       duration{time.Hour},
			TopN:             50,
			Streaming:        true,
		},
		Risk: RiskConfig{
			Regime:     risk.RegimeDefault,
			Thresholds: risk.DefaultThresholds(),
		},
		Slippage: SlippageConfig{
			VolatilityThreshold: 0.02,
			SpikeThreshold:      0.05,
			LiquidHours:         []int{13, 21},
			CacheTTL:            duration{5 * time.Second},
			HistoryTTL:          duration{24 * time.Hour},
		},
		Venues: map[string]VenueConfig{
			VenueBinance: venue(),
			VenueBybit:   venue(),
			VenueKraken:  venue(),
			VenueOKX:     venue(),
		},
		Reconnect: ReconnectConfig{
			Enabled:      false,
			InitialDelay: duration{2 * time.Second},
			MaxDelay:     duration{60 * time.Second},
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			Channel:      "opportunities",
			StreamMaxLen: 10_000,
			MirrorTTL:    duration{time.Minute},
			LeaderLock:   true,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "arbscanner",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
			RetentionDays: 30,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbscanner-data",
			ForcePathStyle: true,
			ArchiveCron:    "0 3 1 * *",
		},
		Kafka: KafkaConfig{
			Enabled:  false,
			Brokers:  []string{"localhost:9092"},
			Topic:    "arbscanner.opportunities",
			ClientID: "arbscanner",
			Acks:     "1",
		},
		Notify: NotifyConfig{
			Events:       []string{"opportunity", "error"},
			MinProfitPct: 1.0,
			Cooldown:     duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   20,
			RateBurst:   40,
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// EnabledVenues returns the enabled venue names in sorted order.
func (c *Config) EnabledVenues() []string {
	var out []string
	for name, v := range c.Venues {
		if v.Enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":   true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validRegimes = map[string]bool{
	risk.RegimeDefault:  true,
	risk.RegimeVolatile: true,
	risk.RegimeStable:   true,
	risk.RegimeIlliquid: true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Scanner
	s := c.Scanner
	if s.MinProfitPct < 0 {
		errs = append(errs, "scanner: min_profit_pct must be >= 0")
	}
	if s.MaxPositionPct <= 0 || s.MaxPositionPct > 1 {
		errs = append(errs, fmt.Sprintf("scanner: max_position_pct must be in (0, 1], got %v", s.MaxPositionPct))
	}
	if s.MaxSlippagePct <= 0 {
		errs = append(errs, "scanner: max_slippage_pct must be > 0")
	}
	if s.ScanInterval.Duration <= 0 {
		errs = append(errs, "scanner: scan_interval must be > 0")
	}
	if s.AvailableCapital <= 0 {
		errs = append(errs, "scanner: available_capital must be > 0")
	}
	if s.TopN < 0 {
		errs = append(errs, "scanner: top_n must be >= 0")
	}

	// Risk
	if !validRegimes[c.Risk.Regime] {
		errs = append(errs, fmt.Sprintf("risk: unknown regime %q", c.Risk.Regime))
	}
	for name, v := range map[string]float64{
		"min_liquidity":    c.Risk.Thresholds.MinLiquidity,
		"max_volatility":   c.Risk.Thresholds.MaxVolatility,
		"max_slippage":     c.Risk.Thresholds.MaxSlippage,
		"min_market_depth": c.Risk.Thresholds.MinMarketDepth,
		"max_anomaly":      c.Risk.Thresholds.MaxAnomaly,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("risk: %s must be in [0, 1], got %v", name, v))
		}
	}

	// Slippage
	if len(c.Slippage.LiquidHours) != 2 {
		errs = append(errs, "slippage: liquid_hours must have exactly two entries [from, to]")
	} else {
		for _, h := range c.Slippage.LiquidHours {
			if h < 0 || h > 23 {
				errs = append(errs, fmt.Sprintf("slippage: liquid hour %d out of range 0-23", h))
			}
		}
	}

	// Venues
	enabled := 0
	for name, v := range c.Venues {
		if !knownVenues[name] {
			errs = append(errs, fmt.Sprintf("venues: unknown venue %q", name))
			continue
		}
		if !v.Enabled {
			continue
		}
		enabled++
		if v.RESTRPS < 0 {
			errs = append(errs, fmt.Sprintf("venues.%s: rest_rps must be >= 0", name))
		}
	}
	if enabled < 2 {
		errs = append(errs, fmt.Sprintf("venues: at least 2 venues must be enabled, got %d", enabled))
	}

	// Reconnect
	if c.Reconnect.Enabled {
		if c.Reconnect.InitialDelay.Duration <= 0 {
			errs = append(errs, "reconnect: initial_delay must be > 0 when enabled")
		}
		if c.Reconnect.MaxDelay.Duration < c.Reconnect.InitialDelay.Duration {
			errs = append(errs, "reconnect: max_delay must be >= initial_delay")
		}
		if c.Reconnect.MaxAttempts < 0 {
			errs = append(errs, "reconnect: max_attempts must be >= 0")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Postgres.PruneCron != "" && c.Postgres.RetentionDays < 1 {
			errs = append(errs, "postgres: prune_cron requires retention_days >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archiving requires postgres to be enabled")
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty")
		}
	}

	// Server
	needsServer := c.Mode == "server" || c.Mode == "full"
	if needsServer || c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
