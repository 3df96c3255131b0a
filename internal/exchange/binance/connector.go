// Package binance implements the Binance spot market-data connector.
package binance

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/exchange"
)

// Name is the venue identifier.
const Name = "binance"

const (
	DefaultRESTURL = "https://api.binance.com"
	DefaultWSURL   = "wss://stream.binance.com:9443"

	depthLevels = 20
)

// Connector reads Binance spot tickers and books.
type Connector struct {
	*exchange.Base
}

// New creates a Binance connector.
func New(cfg exchange.BaseConfig) *Connector {
	cfg.Name = Name
	if cfg.RESTURL == "" {
		cfg.RESTURL = DefaultRESTURL
	}
	if cfg.WSURL == "" {
		cfg.WSURL = DefaultWSURL
	}
	return &Connector{Base: exchange.NewBase(cfg)}
}

// FetchTradingPairs loads every TRADING spot symbol.
func (c *Connector) FetchTradingPairs(ctx context.Context) ([]domain.TradingPair, error) {
	var info exchangeInfo
	if err := c.REST().GetJSON(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, fmt.Errorf("binance: fetch pairs: %w", err)
	}
	pairs := make([]domain.TradingPair, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "" && s.Status != "TRADING" {
			continue
		}
		pairs = append(pairs, domain.TradingPair{Symbol: s.Symbol, Base: s.BaseAsset, Quote: s.QuoteAsset})
	}
	c.SetPairs(pairs)
	return pairs, nil
}

// GetTicker returns the streamed ticker or fetches /api/v3/ticker/24hr.
func (c *Connector) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	return c.TickerOrFetch(ctx, symbol, c.fetchTicker)
}

func (c *Connector) fetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	var rt restTicker
	if err := c.REST().GetJSON(ctx, "/api/v3/ticker/24hr", url.Values{"symbol": {symbol}}, &rt); err != nil {
		return domain.Ticker{}, err
	}
	return rt.toTicker(), nil
}

// GetOrderBook returns the streamed book or fetches /api/v3/depth.
func (c *Connector) GetOrderBook(ctx context.Context, symbol string) (domain.OrderBook, error) {
	return c.OrderBookOrFetch(ctx, symbol, c.fetchOrderBook)
}

func (c *Connector) fetchOrderBook(ctx context.Context, symbol string) (domain.OrderBook, error) {
	var d depthEvent
	params := url.Values{"symbol": {symbol}, "limit": {fmt.Sprint(depthLevels)}}
	if err := c.REST().GetJSON(ctx, "/api/v3/depth", params, &d); err != nil {
		return domain.OrderBook{}, err
	}
	return d.toOrderBook(symbol, time.Now().UTC()), nil
}

// InitializeWebSocket subscribes to @ticker and @depth20@100ms for symbols.
func (c *Connector) InitializeWebSocket(ctx context.Context, symbols []string) bool {
	return c.StartStream(ctx, &stream{c: c}, symbols)
}

// stream implements exchange.StreamProtocol for the combined endpoint.
type stream struct {
	c *Connector
}

func (s *stream) StreamURL(base string, _ []string) string {
	return strings.TrimRight(base, "/") + "/stream"
}

func (s *stream) SubscribeFrames(symbols []string) ([][]byte, error) {
	params := make([]string, 0, len(symbols)*2)
	for _, sym := range symbols {
		l := strings.ToLower(sym)
		params = append(params, l+"@ticker", fmt.Sprintf("%s@depth%d@100ms", l, depthLevels))
	}
	frame, err := sonnet.Marshal(map[string]any{"method": "SUBSCRIBE", "params": params, "id": 1})
	if err != nil {
		return nil, err
	}
	return [][]byte{frame}, nil
}

func (s *stream) KeepAlive() []byte { return nil }

func (s *stream) HandleMessage(raw []byte) error {
	u, err := parseMessage(raw)
	if err != nil || u == nil {
		return err
	}
	cache := s.c.Cache()
	if u.ticker != nil {
		cache.SetTicker(u.symbol, *u.ticker)
	}
	if u.book != nil {
		cache.SetOrderBook(u.symbol, *u.book)
	}
	return nil
}
