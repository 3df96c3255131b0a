// Package server exposes the scanner's state over an HTTP API and a
// WebSocket feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/server/handler"
	"github.com/alanyoungcy/arbscanner/internal/server/middleware"
	"github.com/alanyoungcy/arbscanner/internal/server/ws"
)

const healthPath = "/api/health"

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
	RateLimit   float64
	RateBurst   int
}

// Handlers aggregates the route handlers. History, Archive, Trades and Hub
// are optional.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Scan    *handler.ScanHandler
	History *handler.HistoryHandler
	Archive *handler.ArchiveHandler
	Trades  *handler.TradeHandler
	Hub     *ws.Hub
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers routes and builds the middleware chain:
// CORS, logging, rate limit, auth.
func NewServer(cfg Config, h Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+healthPath, h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)
	mux.HandleFunc("GET /api/opportunities", h.Scan.ListOpportunities)
	mux.HandleFunc("GET /api/venues", h.Scan.ListVenues)
	mux.HandleFunc("GET /api/ledgers", h.Scan.ListLedgers)
	if h.History != nil {
		mux.HandleFunc("GET /api/history/opportunities", h.History.ListOpportunities)
		mux.HandleFunc("GET /api/history/feedback/{symbol}", h.History.ListFeedback)
	}
	if h.Archive != nil {
		mux.HandleFunc("GET /api/archive/{kind}", h.Archive.List)
		mux.HandleFunc("GET /api/archive/{kind}/{day}/{file}", h.Archive.Get)
	}
	if h.Trades != nil {
		mux.HandleFunc("POST /api/trades", h.Trades.Register)
		mux.HandleFunc("POST /api/trades/{id}/execution", h.Trades.RecordExecution)
	}
	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWS)
	}

	var chain http.Handler = mux
	chain = middleware.Auth(cfg.APIKey, healthPath)(chain)
	if cfg.RateLimit > 0 {
		chain = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Middleware(chain)
	}
	chain = middleware.Logging(logger, healthPath)(chain)
	chain = middleware.CORS(cfg.CORSOrigins)(chain)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           chain,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info("stopped")
	return nil
}
