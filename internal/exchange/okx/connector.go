// Package okx implements the OKX v5 spot market-data connector.
package okx

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/exchange"
)

const Name = "okx"

const (
	DefaultRESTURL = "https://www.okx.com"
	DefaultWSURL   = "wss://ws.okx.com:8443/ws/v5/public"

	bookDepth = 20
)

type Connector struct {
	*exchange.Base
}

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

func (c *Connector) get(ctx context.Context, path string, params url.Values, out any) error {
	var resp restResponse
	if err := c.REST().GetJSON(ctx, path, params, &resp); err != nil {
		return err
	}
	if resp.Code != "0" {
		return fmt.Errorf("okx: code %s: %s", resp.Code, resp.Msg)
	}
	return sonnet.Unmarshal(resp.Data, out)
}

// FetchTradingPairs loads live SPOT instruments.
func (c *Connector) FetchTradingPairs(ctx context.Context) ([]domain.TradingPair, error) {
	var list []instrument
	if err := c.get(ctx, "/api/v5/public/instruments", url.Values{"instType": {"SPOT"}}, &list); err != nil {
		return nil, fmt.Errorf("okx: fetch pairs: %w", err)
	}
	pairs := make([]domain.TradingPair, 0, len(list))
	for _, in := range list {
		if in.State != "" && in.State != "live" {
			continue
		}
		pairs = append(pairs, domain.TradingPair{Symbol: in.InstID, Base: in.BaseCcy, Quote: in.QuoteCcy})
	}
	c.SetPairs(pairs)
	return pairs, nil
}

func (c *Connector) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	return c.TickerOrFetch(ctx, symbol, c.fetchTicker)
}

func (c *Connector) fetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	var rows []tickerData
	if err := c.get(ctx, "/api/v5/market/ticker", url.Values{"instId": {symbol}}, &rows); err != nil {
		return domain.Ticker{}, err
	}
	if len(rows) == 0 {
		return domain.Ticker{}, domain.ErrNoData
	}
	return rows[0].toTicker(), nil
}

func (c *Connector) GetOrderBook(ctx context.Context, symbol string) (domain.OrderBook, error) {
	return c.OrderBookOrFetch(ctx, symbol, c.fetchOrderBook)
}

func (c *Connector) fetchOrderBook(ctx context.Context, symbol string) (domain.OrderBook, error) {
	var rows []bookData
	params := url.Values{"instId": {symbol}, "sz": {fmt.Sprint(bookDepth)}}
	if err := c.get(ctx, "/api/v5/market/books", params, &rows); err != nil {
		return domain.OrderBook{}, err
	}
	if len(rows) == 0 {
		return domain.OrderBook{}, domain.ErrNoData
	}
	return rows[0].toOrderBook(symbol), nil
}

// InitializeWebSocket subscribes to tickers and books5 per instrument.
func (c *Connector) InitializeWebSocket(ctx context.Context, symbols []string) bool {
	return c.StartStream(ctx, &stream{c: c}, symbols)
}

type stream struct {
	c *Connector
}

func (s *stream) StreamURL(base string, _ []string) string { return base }

func (s *stream) SubscribeFrames(symbols []string) ([][]byte, error) {
	args := make([]arg, 0, len(symbols)*2)
	for _, sym := range symbols {
		args = append(args, arg{Channel: "tickers", InstID: sym}, arg{Channel: "books5", InstID: sym})
	}
	b, err := sonnet.Marshal(map[string]any{"op": "subscribe", "args": args})
	if err != nil {
		return nil, err
	}
	return [][]byte{b}, nil
}

// KeepAlive is the literal text "ping"; OKX answers "pong".
func (s *stream) KeepAlive() []byte { return []byte("ping") }

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
