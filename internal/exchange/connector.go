// Package exchange defines the venue connector contract and the shared
// building blocks every venue composes: the market-data cache, fee tracker,
// rate-limited REST client and WebSocket stream lifecycle.
package exchange

import (
	"context"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/fee"
)

// Connector is one venue's market-data source.
type Connector interface {
	Name() string

	// FetchTradingPairs loads the venue's listed pairs and caches them.
	FetchTradingPairs(ctx context.Context) ([]domain.TradingPair, error)
	Pairs() []domain.TradingPair

	// GetTicker and GetOrderBook prefer the streamed cache and fall back to
	// REST on a miss.
	GetTicker(ctx context.Context, symbol string) (domain.Ticker, error)
	GetOrderBook(ctx context.Context, symbol string) (domain.OrderBook, error)

	// InitializeWebSocket closes any prior stream and subscribes to ticker
	// and depth channels for symbols.
	InitializeWebSocket(ctx context.Context, symbols []string) bool
	CloseWebSocket()
	IsWebSocketConnected() bool

	Fees() *fee.Tracker
	Status() Status
}

// Status is a connector health snapshot.
type Status struct {
	Venue         string `json:"venue"`
	Connected     bool   `json:"connected"`
	Pairs         int    `json:"pairs"`
	CachedTickers int    `json:"cached_tickers"`
	CachedBooks   int    `json:"cached_books"`
}

// StreamProtocol is a venue's WebSocket framing.
type StreamProtocol interface {
	// StreamURL returns the endpoint to dial for symbols.
	StreamURL(base string, symbols []string) string
	// SubscribeFrames returns the text frames sent right after connecting.
	SubscribeFrames(symbols []string) ([][]byte, error)
	// KeepAlive returns an application-level ping frame, or nil to use
	// WebSocket ping control frames.
	KeepAlive() []byte
	// HandleMessage parses one inbound frame and updates the cache. A
	// returned error means the frame was dropped.
	HandleMessage(raw []byte) error
}
