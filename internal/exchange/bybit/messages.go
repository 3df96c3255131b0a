package bybit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/exchange"
)

// envelope is the common v5 public frame.
type envelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	TS      int64           `json:"ts"`
	Data    json.RawMessage `json:"data"`
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
}

// tickerData carries only the fields present in the frame; deltas omit the
// unchanged ones.
type tickerData struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	Bid1Price string `json:"bid1Price"`
	Ask1Price string `json:"ask1Price"`
	Volume24h string `json:"volume24h"`
}

type bookData struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
	TS     int64      `json:"ts"`
}

// restResponse wraps every v5 REST reply.
type restResponse[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
}

type instrumentList struct {
	List []struct {
		Symbol    string `json:"symbol"`
		BaseCoin  string `json:"baseCoin"`
		QuoteCoin string `json:"quoteCoin"`
		Status    string `json:"status"`
	} `json:"list"`
}

type tickerList struct {
	List []tickerData `json:"list"`
}

// merge overlays the non-empty fields of d onto prev.
func (d tickerData) merge(prev domain.Ticker) domain.Ticker {
	if d.Bid1Price != "" {
		prev.Bid = exchange.ParseFloat(d.Bid1Price)
	}
	if d.Ask1Price != "" {
		prev.Ask = exchange.ParseFloat(d.Ask1Price)
	}
	if d.LastPrice != "" {
		prev.Last = exchange.ParseFloat(d.LastPrice)
	}
	if d.Volume24h != "" {
		prev.Volume = exchange.ParseFloat(d.Volume24h)
	}
	return prev
}

// frame is one parsed stream message.
type frame struct {
	kind   string // "ticker" or "book"
	delta  bool
	symbol string
	ticker tickerData
	book   bookData
	ts     int64
}

func parseMessage(raw []byte) (*frame, error) {
	var env envelope
	if err := sonnet.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("bybit: decode frame: %w", err)
	}
	if env.Op != "" {
		if env.Success != nil && !*env.Success {
			return nil, fmt.Errorf("bybit: %s failed: %s", env.Op, env.RetMsg)
		}
		return nil, nil
	}
	if env.Topic == "" {
		return nil, fmt.Errorf("bybit: frame without topic")
	}

	f := &frame{delta: env.Type == "delta", ts: env.TS}
	switch {
	case strings.HasPrefix(env.Topic, "tickers."):
		f.kind = "ticker"
		if err := sonnet.Unmarshal(env.Data, &f.ticker); err != nil {
			return nil, fmt.Errorf("bybit: decode ticker: %w", err)
		}
		f.symbol = f.ticker.Symbol
	case strings.HasPrefix(env.Topic, "orderbook."):
		f.kind = "book"
		if err := sonnet.Unmarshal(env.Data, &f.book); err != nil {
			return nil, fmt.Errorf("bybit: decode book: %w", err)
		}
		f.symbol = f.book.Symbol
	default:
		return nil, fmt.Errorf("bybit: unknown topic %q", env.Topic)
	}
	if f.symbol == "" {
		f.symbol = env.Topic[strings.LastIndex(env.Topic, ".")+1:]
	}
	return f, nil
}

// applyBook folds a snapshot or delta into prev.
func applyBook(prev domain.OrderBook, f *frame) domain.OrderBook {
	ts := exchange.MillisToTime(f.ts)
	if !f.delta {
		return domain.NewOrderBook(f.symbol, exchange.ParseLevels(f.book.Bids), exchange.ParseLevels(f.book.Asks), ts)
	}
	ob := prev
	ob.Symbol = f.symbol
	for _, l := range exchange.ParseLevels(f.book.Bids) {
		ob = ob.ApplyDelta(domain.SideBuy, l.Price, l.Volume, ts)
	}
	for _, l := range exchange.ParseLevels(f.book.Asks) {
		ob = ob.ApplyDelta(domain.SideSell, l.Price, l.Volume, ts)
	}
	return ob
}
