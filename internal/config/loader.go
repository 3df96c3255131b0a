package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBSCANNER_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
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

// applyEnvOverrides reads well-known ARBSCANNER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Scanner ──
	setFloat64(&cfg.Scanner.MinProfitPct, "ARBSCANNER_SCANNER_MIN_PROFIT_PCT")
	setFloat64(&cfg.Scanner.MaxPositionPct, "ARBSCANNER_SCANNER_MAX_POSITION_PCT")
	setFloat64(&cfg.Scanner.MaxSlippagePct, "ARBSCANNER_SCANNER_MAX_SLIPPAGE_PCT")
	setDuration(&cfg.Scanner.ScanInterval, "ARBSCANNER_SCANNER_SCAN_INTERVAL")
	setFloat64(&cfg.Scanner.AvailableCapital, "ARBSCANNER_SCANNER_AVAILABLE_CAPITAL")
	setFloat64(&cfg.Scanner.MinPosition, "ARBSCANNER_SCANNER_MIN_POSITION")
	setDuration(&cfg.Scanner.PurgeInterval, "ARBSCANNER_SCANNER_PURGE_INTERVAL")
	setDuration(&cfg.Scanner.PendingTTL, "ARBSCANNER_SCANNER_PENDING_TTL")
	setInt(&cfg.Scanner.TopN, "ARBSCANNER_SCANNER_TOP_N")
	setBool(&cfg.Scanner.Streaming, "ARBSCANNER_SCANNER_STREAMING")

	// ── Risk ──
	setStr(&cfg.Risk.Regime, "ARBSCANNER_RISK_REGIME")

	// ── Fees ──
	setStr(&cfg.Fees.Path, "ARBSCANNER_FEES_PATH")

	// ── Venues ──
	// ARBSCANNER_VENUES replaces the enabled set, e.g. "binance,okx".
	var enabled []string
	setStringSlice(&enabled, "ARBSCANNER_VENUES")
	if len(enabled) > 0 {
		want := make(map[string]bool, len(enabled))
		for _, name := range enabled {
			want[strings.ToLower(name)] = true
		}
		if cfg.Venues == nil {
			cfg.Venues = make(map[string]VenueConfig)
		}
		for name := range want {
			if _, ok := cfg.Venues[name]; !ok {
				cfg.Venues[name] = VenueConfig{}
			}
		}
		for name, v := range cfg.Venues {
			v.Enabled = want[name]
			cfg.Venues[name] = v
		}
	}

	// ── Reconnect ──
	setBool(&cfg.Reconnect.Enabled, "ARBSCANNER_RECONNECT_ENABLED")
	setDuration(&cfg.Reconnect.InitialDelay, "ARBSCANNER_RECONNECT_INITIAL_DELAY")
	setDuration(&cfg.Reconnect.MaxDelay, "ARBSCANNER_RECONNECT_MAX_DELAY")
	setInt(&cfg.Reconnect.MaxAttempts, "ARBSCANNER_RECONNECT_MAX_ATTEMPTS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBSCANNER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBSCANNER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBSCANNER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBSCANNER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBSCANNER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBSCANNER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBSCANNER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Channel, "ARBSCANNER_REDIS_CHANNEL")
	setInt64(&cfg.Redis.StreamMaxLen, "ARBSCANNER_REDIS_STREAM_MAX_LEN")
	setDuration(&cfg.Redis.MirrorTTL, "ARBSCANNER_REDIS_MIRROR_TTL")
	setBool(&cfg.Redis.LeaderLock, "ARBSCANNER_REDIS_LEADER_LOCK")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBSCANNER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBSCANNER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBSCANNER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBSCANNER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBSCANNER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBSCANNER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBSCANNER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBSCANNER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBSCANNER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBSCANNER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBSCANNER_POSTGRES_RUN_MIGRATIONS")
	setInt(&cfg.Postgres.RetentionDays, "ARBSCANNER_POSTGRES_RETENTION_DAYS")
	setStr(&cfg.Postgres.PruneCron, "ARBSCANNER_POSTGRES_PRUNE_CRON")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBSCANNER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBSCANNER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBSCANNER_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBSCANNER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBSCANNER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBSCANNER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBSCANNER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBSCANNER_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ArchiveCron, "ARBSCANNER_S3_ARCHIVE_CRON")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "ARBSCANNER_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "ARBSCANNER_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "ARBSCANNER_KAFKA_TOPIC")
	setStr(&cfg.Kafka.ClientID, "ARBSCANNER_KAFKA_CLIENT_ID")
	setStr(&cfg.Kafka.Acks, "ARBSCANNER_KAFKA_ACKS")
	setBool(&cfg.Kafka.All, "ARBSCANNER_KAFKA_ALL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBSCANNER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBSCANNER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "ARBSCANNER_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBSCANNER_SERVER_CORS_ORIGINS")
	setFloat64(&cfg.Server.RateLimit, "ARBSCANNER_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateBurst, "ARBSCANNER_SERVER_RATE_BURST")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBSCANNER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBSCANNER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBSCANNER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBSCANNER_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.MinProfitPct, "ARBSCANNER_NOTIFY_MIN_PROFIT_PCT")
	setDuration(&cfg.Notify.Cooldown, "ARBSCANNER_NOTIFY_COOLDOWN")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBSCANNER_MODE")
	setStr(&cfg.LogLevel, "ARBSCANNER_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
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
