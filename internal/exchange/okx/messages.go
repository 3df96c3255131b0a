package okx

import (
	"encoding/json"
	"fmt"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/exchange"
)

type arg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// pushFrame is both a data push and an event reply.
type pushFrame struct {
	Event string          `json:"event"`
	Code  string          `json:"code"`
	Msg   string          `json:"msg"`
	Arg   *arg            `json:"arg"`
	Data  json.RawMessage `json:"data"`
}

type tickerData struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	AskPx  string `json:"askPx"`
	BidPx  string `json:"bidPx"`
	Vol24h string `json:"vol24h"`
	TS     string `json:"ts"`
}

// bookData rows are [price, size, deprecated, orderCount].
type bookData struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	TS   string     `json:"ts"`
}

type restResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type instrument struct {
	InstID   string `json:"instId"`
	BaseCcy  string `json:"baseCcy"`
	QuoteCcy string `json:"quoteCcy"`
	State    string `json:"state"`
}

func (d tickerData) toTicker() domain.Ticker {
	return domain.Ticker{
		Bid:       exchange.ParseFloat(d.BidPx),
		Ask:       exchange.ParseFloat(d.AskPx),
		Last:      exchange.ParseFloat(d.Last),
		Volume:    exchange.ParseFloat(d.Vol24h),
		Timestamp: exchange.MillisToTime(int64(exchange.ParseFloat(d.TS))),
	}
}

func (d bookData) toOrderBook(symbol string) domain.OrderBook {
	return domain.NewOrderBook(symbol, exchange.ParseLevels(d.Bids), exchange.ParseLevels(d.Asks),
		exchange.MillisToTime(int64(exchange.ParseFloat(d.TS))))
}

type update struct {
	symbol string
	ticker *domain.Ticker
	book   *domain.OrderBook
}

// parseMessage decodes a push frame. "pong" keep-alive replies and
// subscribe acknowledgements yield no update.
func parseMessage(raw []byte) (*update, error) {
	if string(raw) == "pong" {
		return nil, nil
	}
	var f pushFrame
	if err := sonnet.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("okx: decode frame: %w", err)
	}
	switch f.Event {
	case "":
	case "error":
		return nil, fmt.Errorf("okx: error %s: %s", f.Code, f.Msg)
	default:
		return nil, nil
	}
	if f.Arg == nil || f.Arg.InstID == "" {
		return nil, fmt.Errorf("okx: push without arg")
	}

	u := &update{symbol: f.Arg.InstID}
	switch f.Arg.Channel {
	case "tickers":
		var rows []tickerData
		if err := sonnet.Unmarshal(f.Data, &rows); err != nil {
			return nil, fmt.Errorf("okx: decode ticker: %w", err)
		}
		if len(rows) == 0 {
			return nil, nil
		}
		t := rows[0].toTicker()
		u.ticker = &t
	case "books5":
		var rows []bookData
		if err := sonnet.Unmarshal(f.Data, &rows); err != nil {
			return nil, fmt.Errorf("okx: decode book: %w", err)
		}
		if len(rows) == 0 {
			return nil, nil
		}
		ob := rows[0].toOrderBook(u.symbol)
		u.book = &ob
	default:
		return nil, fmt.Errorf("okx: unknown channel %q", f.Arg.Channel)
	}
	return u, nil
}
