// Package kraken implements the Kraken spot market-data connector. Native
// symbols are websocket names such as "XBT/USD"; REST calls use altnames.
package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/exchange"
)

const Name = "kraken"

const (
	DefaultRESTURL = "https://api.kraken.com"
	DefaultWSURL   = "wss://ws.kraken.com"

	bookDepth = 25
)

type Connector struct {
	*exchange.Base

	mu       sync.RWMutex
	altnames map[string]string // wsname -> altname
}

func New(cfg exchange.BaseConfig) *Connector {
	cfg.Name = Name
	if cfg.RESTURL == "" {
		cfg.RESTURL = DefaultRESTURL
	}
	if cfg.WSURL == "" {
		cfg.WSURL = DefaultWSURL
	}
	return &Connector{Base: exchange.NewBase(cfg), altnames: make(map[string]string)}
}

func (c *Connector) get(ctx context.Context, path string, params url.Values, out any) error {
	var resp restResponse[json.RawMessage]
	if err := c.REST().GetJSON(ctx, path, params, &resp); err != nil {
		return err
	}
	if len(resp.Error) > 0 {
		return fmt.Errorf("kraken: %s", strings.Join(resp.Error, "; "))
	}
	return sonnet.Unmarshal(resp.Result, out)
}

// restPair maps a websocket name to the REST pair name.
func (c *Connector) restPair(symbol string) string {
	c.mu.RLock()
	alt, ok := c.altnames[symbol]
	c.mu.RUnlock()
	if ok {
		return alt
	}
	return strings.ReplaceAll(symbol, "/", "")
}

// FetchTradingPairs loads online asset pairs that have a websocket name.
func (c *Connector) FetchTradingPairs(ctx context.Context) ([]domain.TradingPair, error) {
	var result map[string]assetPair
	if err := c.get(ctx, "/0/public/AssetPairs", nil, &result); err != nil {
		return nil, fmt.Errorf("kraken: fetch pairs: %w", err)
	}
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]domain.TradingPair, 0, len(result))
	alt := make(map[string]string, len(result))
	for _, k := range keys {
		p := result[k]
		if p.WSName == "" || (p.Status != "" && p.Status != "online") {
			continue
		}
		quote := p.WSName[strings.Index(p.WSName, "/")+1:]
		pairs = append(pairs, domain.TradingPair{Symbol: p.WSName, Base: wsPairBase(p.WSName), Quote: quote})
		alt[p.WSName] = p.Altname
	}
	c.mu.Lock()
	c.altnames = alt
	c.mu.Unlock()
	c.SetPairs(pairs)
	return pairs, nil
}

func (c *Connector) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	return c.TickerOrFetch(ctx, symbol, c.fetchTicker)
}

func (c *Connector) fetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	var result map[string]tickerPayload
	if err := c.get(ctx, "/0/public/Ticker", url.Values{"pair": {c.restPair(symbol)}}, &result); err != nil {
		return domain.Ticker{}, err
	}
	for _, p := range result {
		return p.toTicker(), nil
	}
	return domain.Ticker{}, domain.ErrNoData
}

func (c *Connector) GetOrderBook(ctx context.Context, symbol string) (domain.OrderBook, error) {
	return c.OrderBookOrFetch(ctx, symbol, c.fetchOrderBook)
}

func (c *Connector) fetchOrderBook(ctx context.Context, symbol string) (domain.OrderBook, error) {
	var result map[string]restBook
	params := url.Values{"pair": {c.restPair(symbol)}, "count": {fmt.Sprint(bookDepth)}}
	if err := c.get(ctx, "/0/public/Depth", params, &result); err != nil {
		return domain.OrderBook{}, err
	}
	for _, b := range result {
		return domain.NewOrderBook(symbol, exchange.ParseAnyLevels(b.Bids), exchange.ParseAnyLevels(b.Asks), time.Now().UTC()), nil
	}
	return domain.OrderBook{}, domain.ErrNoData
}

// InitializeWebSocket subscribes to ticker and book-25 for the given wsnames.
func (c *Connector) InitializeWebSocket(ctx context.Context, symbols []string) bool {
	return c.StartStream(ctx, &stream{c: c}, symbols)
}

type stream struct {
	c *Connector
}

func (s *stream) StreamURL(base string, _ []string) string { return base }

func (s *stream) SubscribeFrames(symbols []string) ([][]byte, error) {
	subs := []map[string]any{
		{"name": "ticker"},
		{"name": "book", "depth": bookDepth},
	}
	frames := make([][]byte, 0, len(subs))
	for _, sub := range subs {
		b, err := sonnet.Marshal(map[string]any{"event": "subscribe", "pair": symbols, "subscription": sub})
		if err != nil {
			return nil, err
		}
		frames = append(frames, b)
	}
	return frames, nil
}

func (s *stream) KeepAlive() []byte { return []byte(`{"event":"ping"}`) }

func (s *stream) HandleMessage(raw []byte) error {
	f, err := parseMessage(raw)
	if err != nil || f == nil {
		return err
	}
	cache := s.c.Cache()
	if f.ticker != nil {
		cache.SetTicker(f.pair, *f.ticker)
	}
	if len(f.books) > 0 {
		cache.UpdateOrderBook(f.pair, func(prev domain.OrderBook, _ bool) domain.OrderBook {
			return applyBook(prev, f.pair, f.books)
		})
	}
	return nil
}
