package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/arbitrage"
	s3blob "github.com/alanyoungcy/arbscanner/internal/blob/s3"
	"github.com/alanyoungcy/arbscanner/internal/broker/kafka"
	"github.com/alanyoungcy/arbscanner/internal/cache/redis"
	"github.com/alanyoungcy/arbscanner/internal/config"
	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/exchange"
	"github.com/alanyoungcy/arbscanner/internal/exchange/binance"
	"github.com/alanyoungcy/arbscanner/internal/exchange/bybit"
	"github.com/alanyoungcy/arbscanner/internal/exchange/kraken"
	"github.com/alanyoungcy/arbscanner/internal/exchange/okx"
	"github.com/alanyoungcy/arbscanner/internal/fee"
	"github.com/alanyoungcy/arbscanner/internal/notify"
	"github.com/alanyoungcy/arbscanner/internal/risk"
	"github.com/alanyoungcy/arbscanner/internal/scan"
	"github.com/alanyoungcy/arbscanner/internal/sizing"
	"github.com/alanyoungcy/arbscanner/internal/slippage"
	"github.com/alanyoungcy/arbscanner/internal/store/postgres"
	"github.com/alanyoungcy/arbscanner/internal/symbol"
)

// Dependencies bundles the scanner core and the optional infrastructure the
// modes hang off it. Nil infrastructure fields mean the backend is disabled.
type Dependencies struct {
	// Core
	Connectors []exchange.Connector
	Normalizer *symbol.Normalizer
	Scorer     *risk.Scorer
	Detector   *arbitrage.Detector
	Slippage   *slippage.Coordinator
	Sizer      *sizing.Sizer
	Settings   scan.Params

	// Redis
	LockManager  domain.LockManager
	SignalBus    domain.SignalBus
	TickerMirror domain.TickerMirror

	// Postgres
	OpportunityStore domain.OpportunityStore
	FeedbackStore    domain.FeedbackStore

	// Blob storage
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Pruner deletes history past retention when nothing archives it.
	Pruner domain.Archiver

	// Kafka
	Events *kafka.Producer

	// Notifications
	Notifier *notify.Notifier
}

// venueConstructors maps config venue names to connector constructors.
var venueConstructors = map[string]func(exchange.BaseConfig) exchange.Connector{
	config.VenueBinance: func(c exchange.BaseConfig) exchange.Connector { return binance.New(c) },
	config.VenueBybit:   func(c exchange.BaseConfig) exchange.Connector { return bybit.New(c) },
	config.VenueKraken:  func(c exchange.BaseConfig) exchange.Connector { return kraken.New(c) },
	config.VenueOKX:     func(c exchange.BaseConfig) exchange.Connector { return okx.New(c) },
}

// needsS3 reports whether the mode runs the archiver.
func needsS3(mode string) bool {
	return strings.EqualFold(mode, "full")
}

// Wire constructs every dependency from cfg. The returned cleanup releases
// them in reverse order and must be called even when the app exits early.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- Core ---
	conns, err := buildConnectors(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	deps.Connectors = conns
	deps.Normalizer = symbol.New()

	deps.Settings = scan.Params{
		MinProfit:    cfg.Scanner.MinProfitPct,
		MinProfitSet: true,
		MaxPosition:  cfg.Scanner.MaxPositionPct,
		MaxSlippage:  cfg.Scanner.MaxSlippagePct,
		Interval:     cfg.Scanner.ScanInterval.Duration,
		Capital:      cfg.Scanner.AvailableCapital,
		Top:          cfg.Scanner.TopN,
	}

	deps.Scorer = risk.NewScorer(cfg.Risk.Thresholds, logger)
	deps.Scorer.UpdateRiskWeights(cfg.Risk.Regime)
	deps.Detector = arbitrage.NewDetector(arbitrage.DetectorConfig{
		Scorer:       deps.Scorer,
		MinProfitPct: deps.Settings.MinProfitPct(),
		Logger:       logger,
	})

	tracker := slippage.NewVolatilityTracker(cfg.Slippage.VolatilityThreshold, cfg.Slippage.SpikeThreshold)
	var hours [2]int
	copy(hours[:], cfg.Slippage.LiquidHours)
	estimator := slippage.NewEstimator(tracker, hours, logger)
	deps.Slippage = slippage.NewCoordinator(tracker, estimator, slippage.CoordinatorConfig{
		CacheTTL:      cfg.Slippage.CacheTTL.Duration,
		MaxAge:        cfg.Scanner.PendingTTL.Duration,
		HistoryTTL:    cfg.Slippage.HistoryTTL.Duration,
		PurgeInterval: cfg.Scanner.PurgeInterval.Duration,
	}, logger)
	deps.Sizer = sizing.New(cfg.Scanner.MinPosition)

	// --- Postgres ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:          cfg.Postgres.DSN,
			Host:         cfg.Postgres.Host,
			Port:         cfg.Postgres.Port,
			Database:     cfg.Postgres.Database,
			User:         cfg.Postgres.User,
			Password:     cfg.Postgres.Password,
			SSLMode:      cfg.Postgres.SSLMode,
			PoolMaxConns: cfg.Postgres.PoolMaxConns,
			PoolMinConns: cfg.Postgres.PoolMinConns,
			Logger:       logger,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		feedback := postgres.NewFeedbackStore(pool)
		deps.FeedbackStore = feedback
		deps.Slippage.SetFeedbackRecorder(feedback)
		if cfg.Postgres.PruneCron != "" {
			deps.Pruner = postgres.NewPruner(deps.OpportunityStore, feedback, logger)
		}
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.TickerMirror = redis.NewTickerMirror(redisClient, cfg.Redis.MirrorTTL.Duration)
		if cfg.Redis.LeaderLock {
			deps.LockManager = redis.NewLockManager(redisClient)
		}
	}

	// --- S3 blob storage (only for modes that archive) ---
	if cfg.S3.Enabled && needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable at startup",
				slog.String("bucket", s3Client.Bucket()),
				slog.String("error", err.Error()),
			)
		}
		deps.BlobReader = s3blob.NewReader(s3Client)
		// Archiving needs the stores it drains.
		if deps.OpportunityStore != nil && deps.FeedbackStore != nil {
			deps.Archiver = s3blob.NewArchiver(
				s3blob.NewWriter(s3Client),
				deps.OpportunityStore,
				deps.FeedbackStore,
				true,
				logger,
			)
		}
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
			Acks:     cfg.Kafka.Acks,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: kafka: %w", err)
		}
		closers = append(closers, producer.Close)
		deps.Events = producer
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// buildConnectors creates one connector per enabled venue, each with its
// own fee tracker and the shared reconnect policy.
func buildConnectors(cfg *config.Config, logger *slog.Logger) ([]exchange.Connector, error) {
	schedules, err := fee.LoadSchedules(cfg.Fees.Path)
	if err != nil {
		return nil, fmt.Errorf("wire: fees: %w", err)
	}
	policy := exchange.ReconnectPolicy{
		Enabled:      cfg.Reconnect.Enabled,
		InitialDelay: cfg.Reconnect.InitialDelay.Duration,
		MaxDelay:     cfg.Reconnect.MaxDelay.Duration,
		MaxAttempts:  cfg.Reconnect.MaxAttempts,
	}
	hc := &http.Client{Timeout: 15 * time.Second}

	var conns []exchange.Connector
	for _, name := range cfg.EnabledVenues() {
		build, ok := venueConstructors[name]
		if !ok {
			return nil, fmt.Errorf("wire: venue %q: %w", name, domain.ErrUnknownVenue)
		}
		vc := cfg.Venues[name]

		scheduleName := vc.FeeSchedule
		if scheduleName == "" {
			scheduleName = name
		}
		schedule, ok := schedules[scheduleName]
		if !ok {
			logger.Warn("no fee schedule for venue, fees treated as zero",
				slog.String("venue", name),
				slog.String("schedule", scheduleName),
			)
			schedule = fee.ZeroSchedule()
		}

		conns = append(conns, build(exchange.BaseConfig{
			RESTURL:        vc.RESTURL,
			WSURL:          vc.WSURL,
			RESTRPS:        vc.RESTRPS,
			ConnectTimeout: vc.ConnectTimeout.Duration,
			Reconnect:      policy,
			Fees:           fee.NewTracker(name, schedule),
			HTTPClient:     hc,
			Logger:         logger,
		}))
	}
	return conns, nil
}
