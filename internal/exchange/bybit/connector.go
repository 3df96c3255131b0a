// Package bybit implements the Bybit v5 spot market-data connector.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/exchange"
)

const Name = "bybit"

const (
	DefaultRESTURL = "https://api.bybit.com"
	DefaultWSURL   = "wss://stream.bybit.com/v5/public/spot"

	bookDepth = 50
	// Bybit rejects spot subscribe requests with more than 10 args.
	maxArgsPerFrame = 10
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
	var resp restResponse[json.RawMessage]
	if err := c.REST().GetJSON(ctx, path, params, &resp); err != nil {
		return err
	}
	if resp.RetCode != 0 {
		return fmt.Errorf("bybit: retCode %d: %s", resp.RetCode, resp.RetMsg)
	}
	return sonnet.Unmarshal(resp.Result, out)
}

// FetchTradingPairs loads spot instruments with status Trading.
func (c *Connector) FetchTradingPairs(ctx context.Context) ([]domain.TradingPair, error) {
	var list instrumentList
	if err := c.get(ctx, "/v5/market/instruments-info", url.Values{"category": {"spot"}}, &list); err != nil {
		return nil, fmt.Errorf("bybit: fetch pairs: %w", err)
	}
	pairs := make([]domain.TradingPair, 0, len(list.List))
	for _, in := range list.List {
		if in.Status != "" && in.Status != "Trading" {
			continue
		}
		pairs = append(pairs, domain.TradingPair{Symbol: in.Symbol, Base: in.BaseCoin, Quote: in.QuoteCoin})
	}
	c.SetPairs(pairs)
	return pairs, nil
}

func (c *Connector) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	return c.TickerOrFetch(ctx, symbol, c.fetchTicker)
}

func (c *Connector) fetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	var list tickerList
	if err := c.get(ctx, "/v5/market/tickers", url.Values{"category": {"spot"}, "symbol": {symbol}}, &list); err != nil {
		return domain.Ticker{}, err
	}
	if len(list.List) == 0 {
		return domain.Ticker{}, domain.ErrNoData
	}
	t := list.List[0].merge(domain.Ticker{})
	t.Timestamp = time.Now().UTC()
	return t, nil
}

func (c *Connector) GetOrderBook(ctx context.Context, symbol string) (domain.OrderBook, error) {
	return c.OrderBookOrFetch(ctx, symbol, c.fetchOrderBook)
}

func (c *Connector) fetchOrderBook(ctx context.Context, symbol string) (domain.OrderBook, error) {
	var b bookData
	params := url.Values{"category": {"spot"}, "symbol": {symbol}, "limit": {fmt.Sprint(bookDepth)}}
	if err := c.get(ctx, "/v5/market/orderbook", params, &b); err != nil {
		return domain.OrderBook{}, err
	}
	return domain.NewOrderBook(symbol, exchange.ParseLevels(b.Bids), exchange.ParseLevels(b.Asks), exchange.MillisToTime(b.TS)), nil
}

// InitializeWebSocket subscribes to tickers and orderbook.50 topics.
func (c *Connector) InitializeWebSocket(ctx context.Context, symbols []string) bool {
	return c.StartStream(ctx, &stream{c: c}, symbols)
}

type stream struct {
	c *Connector
}

func (s *stream) StreamURL(base string, _ []string) string { return base }

func (s *stream) SubscribeFrames(symbols []string) ([][]byte, error) {
	args := make([]string, 0, len(symbols)*2)
	for _, sym := range symbols {
		args = append(args, "tickers."+sym, fmt.Sprintf("orderbook.%d.%s", bookDepth, sym))
	}
	var frames [][]byte
	for start := 0; start < len(args); start += maxArgsPerFrame {
		end := min(start+maxArgsPerFrame, len(args))
		b, err := sonnet.Marshal(map[string]any{"op": "subscribe", "args": args[start:end]})
		if err != nil {
			return nil, err
		}
		frames = append(frames, b)
	}
	return frames, nil
}

func (s *stream) KeepAlive() []byte { return []byte(`{"op":"ping"}`) }

func (s *stream) HandleMessage(raw []byte) error {
	f, err := parseMessage(raw)
	if err != nil || f == nil {
		return err
	}
	cache := s.c.Cache()
	switch f.kind {
	case "ticker":
		ts := exchange.MillisToTime(f.ts)
		cache.UpdateTicker(f.symbol, func(prev domain.Ticker, ok bool) domain.Ticker {
			if !ok || !f.delta {
				prev = domain.Ticker{}
			}
			t := f.ticker.merge(prev)
			t.Timestamp = ts
			return t
		})
	case "book":
		cache.UpdateOrderBook(f.symbol, func(prev domain.OrderBook, ok bool) domain.OrderBook {
			return applyBook(prev, f)
		})
	}
	return nil
}
