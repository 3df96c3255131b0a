package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbscanner/internal/config"
	"github.com/alanyoungcy/arbscanner/internal/feed"
	"github.com/alanyoungcy/arbscanner/internal/notify"
	"github.com/alanyoungcy/arbscanner/internal/pipeline"
	"github.com/alanyoungcy/arbscanner/internal/scan"
	"github.com/alanyoungcy/arbscanner/internal/server"
	"github.com/alanyoungcy/arbscanner/internal/server/handler"
	"github.com/alanyoungcy/arbscanner/internal/server/ws"
	"github.com/alanyoungcy/arbscanner/internal/service"
)

// ScanMode runs connectors, the scan loop and slippage housekeeping. Results
// go to whichever sinks are configured.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	orch, err := a.newScanner(deps, a.buildSinks(deps, nil))
	if err != nil {
		return err
	}
	pipe, err := a.newPipeline(orch, deps, false)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipe.Run(ctx) })
	return a.wait(ctx, g)
}

// ServerMode is ScanMode plus the HTTP API and WebSocket feed.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	return a.runWithServer(ctx, deps, false)
}

// FullMode is ServerMode plus the scheduled archive of history to S3.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	if deps.Archiver == nil {
		a.logger.WarnContext(ctx, "archiver disabled: full mode needs postgres and s3 enabled")
	}
	return a.runWithServer(ctx, deps, true)
}

// runWithServer adds the API. With a Redis bus the WebSocket hub is fed from
// the bus, so every replica streams the leader's cycles; otherwise it is a
// local sink.
func (a *App) runWithServer(ctx context.Context, deps *Dependencies, archive bool) error {
	hub := ws.NewHub(a.cfg.Server.CORSOrigins, a.logger)
	defer hub.Close()

	var follower *feed.Follower
	localHub := hub
	if deps.SignalBus != nil {
		follower = feed.NewFollower(deps.SignalBus, a.cfg.Redis.Channel, []scan.Sink{hub}, a.logger)
		localHub = nil
	}

	orch, err := a.newScanner(deps, a.buildSinks(deps, localHub))
	if err != nil {
		return err
	}
	pipe, err := a.newPipeline(orch, deps, archive)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipe.Run(ctx) })
	if follower != nil {
		g.Go(func() error {
			if err := follower.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("app: bus follower: %w", err)
			}
			return nil
		})
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, latestSource{Orchestrator: orch, follower: follower}, hub)
	} else {
		a.logger.WarnContext(ctx, "server.enabled is false; HTTP API not started")
	}
	return a.wait(ctx, g)
}

// latestSource serves whichever of the local and the followed cycle is
// newer. Ties go to the local result, which also carries fee ledgers.
type latestSource struct {
	*scan.Orchestrator
	follower *feed.Follower
}

func (s latestSource) Last() *scan.Result {
	local := s.Orchestrator.Last()
	if s.follower == nil {
		return local
	}
	remote := s.follower.Last()
	if remote == nil || (local != nil && !remote.StartedAt.After(local.StartedAt)) {
		return local
	}
	return remote
}

// startHTTPServer adds the API server to g. Store-backed routes are only
// registered when their backends are wired.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, source handler.ScanSource, hub *ws.Hub) {
	redacted := config.RedactedConfig(a.cfg)
	h := server.Handlers{
		Health: handler.NewHealthHandler(source, deps.Settings.ScanInterval()),
		Status: handler.NewStatusHandler(a.cfg.Mode, redacted),
		Scan:   handler.NewScanHandler(source),
		Hub:    hub,
	}
	if deps.OpportunityStore != nil && deps.FeedbackStore != nil {
		h.History = handler.NewHistoryHandler(deps.OpportunityStore, deps.FeedbackStore, a.logger)
	}
	h.Trades = handler.NewTradeHandler(source, deps.Slippage, a.logger)
	if deps.BlobReader != nil {
		h.Archive = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateBurst:   a.cfg.Server.RateBurst,
	}, h, a.logger)

	g.Go(func() error { return srv.Run(ctx) })
}

// buildSinks collects the result sinks for the wired backends. hub may be
// nil.
func (a *App) buildSinks(deps *Dependencies, hub *ws.Hub) []scan.Sink {
	var sinks []scan.Sink
	if deps.OpportunityStore != nil {
		sinks = append(sinks, service.NewHistorySink(deps.OpportunityStore, a.logger))
	}
	if deps.SignalBus != nil {
		sinks = append(sinks, service.NewBusSink(deps.SignalBus, deps.TickerMirror, a.cfg.Redis.Channel, a.logger))
	}
	if deps.Events != nil {
		sinks = append(sinks, service.NewEventSink(deps.Events, a.cfg.Kafka.All, a.logger))
	}
	if deps.Notifier.Enabled() && deps.Notifier.Allows(notify.EventOpportunity) {
		sinks = append(sinks, notify.NewAlertSink(deps.Notifier, a.cfg.Notify.MinProfitPct, a.cfg.Notify.Cooldown.Duration))
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}
	return sinks
}

func (a *App) newScanner(deps *Dependencies, sinks []scan.Sink) (*scan.Orchestrator, error) {
	orch, err := scan.New(scan.Config{
		Connectors: deps.Connectors,
		Normalizer: deps.Normalizer,
		Detector:   deps.Detector,
		Scorer:     deps.Scorer,
		Slippage:   deps.Slippage,
		Sizer:      deps.Sizer,
		Settings:   deps.Settings,
		Locker:     deps.LockManager,
		Sinks:      sinks,
		Streaming:  a.cfg.Scanner.Streaming,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: build scanner: %w", err)
	}
	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	a.logger.Info("scanner wired",
		slog.Int("venues", len(deps.Connectors)),
		slog.String("sinks", strings.Join(names, ",")),
		slog.Bool("leader_lock", deps.LockManager != nil),
	)
	return orch, nil
}

// newPipeline schedules the S3 archive when archive is set and wired, and
// otherwise falls back to retention pruning if configured.
func (a *App) newPipeline(orch *scan.Orchestrator, deps *Dependencies, archive bool) (*pipeline.Orchestrator, error) {
	var archiver *pipeline.Archiver
	cron := a.cfg.S3.ArchiveCron
	switch {
	case archive && deps.Archiver != nil:
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Postgres.RetentionDays, a.logger)
	case deps.Pruner != nil:
		archiver = pipeline.NewArchiver(deps.Pruner, a.cfg.Postgres.RetentionDays, a.logger)
		cron = a.cfg.Postgres.PruneCron
	}
	pipe, err := pipeline.NewOrchestrator(orch, deps.Slippage, archiver, cron, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: build pipeline: %w", err)
	}
	return pipe, nil
}

// wait announces startup, blocks on g and reports a failure to the
// notifier before returning it.
func (a *App) wait(ctx context.Context, g *errgroup.Group) error {
	a.notify(ctx, notify.EventStartup, "arbscanner started",
		fmt.Sprintf("mode=%s venues=%s", a.cfg.Mode, strings.Join(a.cfg.EnabledVenues(), ",")))

	err := g.Wait()
	if err != nil {
		a.notify(context.Background(), notify.EventError, "arbscanner stopped with error", err.Error())
	}
	return err
}

func (a *App) notify(ctx context.Context, event, title, message string) {
	if !a.notifier.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := a.notifier.Notify(ctx, event, title, message); err != nil {
		a.logger.Warn("notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
