package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/fee"
	"github.com/alanyoungcy/arbscanner/internal/marketdata"
)

// BaseConfig configures the shared connector parts.
type BaseConfig struct {
	Name           string
	RESTURL        string
	WSURL          string
	RESTRPS        float64
	ConnectTimeout time.Duration
	Reconnect      ReconnectPolicy
	Fees           *fee.Tracker
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Base is composed into every venue connector. It owns the pair cache,
// market-data cache, fee tracker, REST client and stream lifecycle.
type Base struct {
	name   string
	logger *slog.Logger
	cache  *marketdata.Cache
	fees   *fee.Tracker
	rest   *RESTClient

	wsURL          string
	connectTimeout time.Duration
	reconnect      ReconnectPolicy

	pairsMu sync.RWMutex
	pairs   []domain.TradingPair

	streamMu sync.Mutex
	stream   *Stream
}

// NewBase creates a Base.
func NewBase(cfg BaseConfig) *Base {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fees := cfg.Fees
	if fees == nil {
		fees = fee.NewTracker(cfg.Name, fee.ZeroSchedule())
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &Base{
		name:           cfg.Name,
		logger:         logger.With(slog.String("component", "connector"), slog.String("venue", cfg.Name)),
		cache:          marketdata.New(),
		fees:           fees,
		rest:           NewRESTClient(cfg.Name, cfg.RESTURL, cfg.RESTRPS, cfg.HTTPClient),
		wsURL:          cfg.WSURL,
		connectTimeout: timeout,
		reconnect:      cfg.Reconnect,
	}
}

func (b *Base) Name() string             { return b.name }
func (b *Base) Fees() *fee.Tracker       { return b.fees }
func (b *Base) Cache() *marketdata.Cache { return b.cache }
func (b *Base) REST() *RESTClient        { return b.rest }
func (b *Base) Logger() *slog.Logger     { return b.logger }

// SetPairs replaces the cached pair list.
func (b *Base) SetPairs(p []domain.TradingPair) {
	b.pairsMu.Lock()
	b.pairs = p
	b.pairsMu.Unlock()
}

// Pairs returns a copy of the cached pair list.
func (b *Base) Pairs() []domain.TradingPair {
	b.pairsMu.RLock()
	defer b.pairsMu.RUnlock()
	return append([]domain.TradingPair(nil), b.pairs...)
}

// TickerOrFetch returns the streamed ticker for symbol while the stream is
// live. Otherwise it calls fetch, and serves the last streamed ticker only
// when fetch fails.
func (b *Base) TickerOrFetch(ctx context.Context, symbol string, fetch func(context.Context, string) (domain.Ticker, error)) (domain.Ticker, error) {
	cached, ok := b.cache.Ticker(symbol)
	if ok && b.IsWebSocketConnected() {
		return cached, nil
	}
	t, err := fetch(ctx, symbol)
	if err != nil {
		b.logger.WarnContext(ctx, "rest ticker fetch failed",
			slog.String("symbol", symbol),
			slog.Bool("stale_fallback", ok),
			slog.String("error", err.Error()),
		)
		if ok {
			return cached, nil
		}
		return domain.Ticker{}, fmt.Errorf("%s: ticker %s: %w", b.name, symbol, err)
	}
	return t, nil
}

// OrderBookOrFetch is TickerOrFetch for order books.
func (b *Base) OrderBookOrFetch(ctx context.Context, symbol string, fetch func(context.Context, string) (domain.OrderBook, error)) (domain.OrderBook, error) {
	cached, ok := b.cache.OrderBook(symbol)
	if ok && b.IsWebSocketConnected() {
		return cached, nil
	}
	ob, err := fetch(ctx, symbol)
	if err != nil {
		b.logger.WarnContext(ctx, "rest order book fetch failed",
			slog.String("symbol", symbol),
			slog.Bool("stale_fallback", ok),
			slog.String("error", err.Error()),
		)
		if ok {
			return cached, nil
		}
		return domain.OrderBook{}, fmt.Errorf("%s: order book %s: %w", b.name, symbol, err)
	}
	return ob, nil
}

// StartStream closes any existing stream and opens a new one using proto.
func (b *Base) StartStream(ctx context.Context, proto StreamProtocol, symbols []string) bool {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()

	if b.stream != nil {
		_ = b.stream.Close()
		b.stream = nil
	}
	if b.wsURL == "" {
		b.logger.WarnContext(ctx, "websocket url not configured")
		return false
	}
	if len(symbols) == 0 {
		b.logger.WarnContext(ctx, "no symbols to subscribe")
		return false
	}

	frames, err := proto.SubscribeFrames(symbols)
	if err != nil {
		b.logger.WarnContext(ctx, "build subscribe frames failed", slog.String("error", err.Error()))
		return false
	}

	st := NewStream(StreamConfig{
		Venue:          b.name,
		URL:            proto.StreamURL(b.wsURL, symbols),
		Subscribe:      frames,
		KeepAlive:      proto.KeepAlive(),
		ConnectTimeout: b.connectTimeout,
		Reconnect:      b.reconnect,
		Handler:        proto.HandleMessage,
		Logger:         b.logger,
	})
	if err := st.Connect(ctx); err != nil {
		b.logger.WarnContext(ctx, "websocket connect failed", slog.String("error", err.Error()))
		return false
	}
	b.stream = st
	b.logger.InfoContext(ctx, "websocket connected", slog.Int("symbols", len(symbols)))
	return true
}

// CloseWebSocket closes the stream, if any.
func (b *Base) CloseWebSocket() {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()
	if b.stream == nil {
		return
	}
	if err := b.stream.Close(); err != nil {
		b.logger.Debug("websocket close", slog.String("error", err.Error()))
	}
	b.stream = nil
}

// IsWebSocketConnected reports live stream state.
func (b *Base) IsWebSocketConnected() bool {
	b.streamMu.Lock()
	st := b.stream
	b.streamMu.Unlock()
	return st != nil && st.Connected()
}

// Status returns a health snapshot.
func (b *Base) Status() Status {
	tickers, books := b.cache.Len()
	b.pairsMu.RLock()
	n := len(b.pairs)
	b.pairsMu.RUnlock()
	return Status{
		Venue:         b.name,
		Connected:     b.IsWebSocketConnected(),
		Pairs:         n,
		CachedTickers: tickers,
		CachedBooks:   books,
	}
}
