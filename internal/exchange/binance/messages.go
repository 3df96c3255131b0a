package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/exchange"
)

// combinedEnvelope wraps every frame on the /stream endpoint.
type combinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tickerEvent is the 24hrTicker stream payload.
type tickerEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Last      string `json:"c"`
	Bid       string `json:"b"`
	Ask       string `json:"a"`
	Volume    string `json:"v"`
}

// depthEvent is the partial book depth payload (depth<N>@100ms).
type depthEvent struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// controlReply answers SUBSCRIBE requests.
type controlReply struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

type restTicker struct {
	Symbol    string `json:"symbol"`
	BidPrice  string `json:"bidPrice"`
	AskPrice  string `json:"askPrice"`
	LastPrice string `json:"lastPrice"`
	Volume    string `json:"volume"`
	CloseTime int64  `json:"closeTime"`
}

func (e tickerEvent) toTicker() domain.Ticker {
	return domain.Ticker{
		Bid:       exchange.ParseFloat(e.Bid),
		Ask:       exchange.ParseFloat(e.Ask),
		Last:      exchange.ParseFloat(e.Last),
		Volume:    exchange.ParseFloat(e.Volume),
		Timestamp: exchange.MillisToTime(e.EventTime),
	}
}

func (r restTicker) toTicker() domain.Ticker {
	return domain.Ticker{
		Bid:       exchange.ParseFloat(r.BidPrice),
		Ask:       exchange.ParseFloat(r.AskPrice),
		Last:      exchange.ParseFloat(r.LastPrice),
		Volume:    exchange.ParseFloat(r.Volume),
		Timestamp: exchange.MillisToTime(r.CloseTime),
	}
}

func (d depthEvent) toOrderBook(symbol string, ts time.Time) domain.OrderBook {
	return domain.NewOrderBook(symbol, exchange.ParseLevels(d.Bids), exchange.ParseLevels(d.Asks), ts)
}

// update is one parsed cache write.
type update struct {
	symbol string
	ticker *domain.Ticker
	book   *domain.OrderBook
}

// parseMessage decodes a combined-stream or single-stream frame. Control
// replies yield no update. Depth snapshots need the stream name for their
// symbol, so single-stream depth frames are rejected.
func parseMessage(raw []byte) (*update, error) {
	var env combinedEnvelope
	if err := sonnet.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("binance: decode frame: %w", err)
	}
	if env.Stream != "" {
		return parseStream(env.Stream, env.Data)
	}

	var ctl controlReply
	if err := sonnet.Unmarshal(raw, &ctl); err == nil && ctl.ID != nil {
		if ctl.Error != nil {
			return nil, fmt.Errorf("binance: subscribe error %d: %s", ctl.Error.Code, ctl.Error.Msg)
		}
		return nil, nil
	}

	var ev tickerEvent
	if err := sonnet.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("binance: decode payload: %w", err)
	}
	if ev.Event == "24hrTicker" && ev.Symbol != "" {
		t := ev.toTicker()
		return &update{symbol: ev.Symbol, ticker: &t}, nil
	}
	return nil, fmt.Errorf("binance: unroutable payload")
}

func parseStream(stream string, data json.RawMessage) (*update, error) {
	name, channel, ok := strings.Cut(stream, "@")
	if !ok || name == "" {
		return nil, fmt.Errorf("binance: bad stream name %q", stream)
	}
	symbol := strings.ToUpper(name)

	switch {
	case channel == "ticker":
		var ev tickerEvent
		if err := sonnet.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("binance: decode ticker: %w", err)
		}
		if ev.Symbol != "" {
			symbol = ev.Symbol
		}
		t := ev.toTicker()
		return &update{symbol: symbol, ticker: &t}, nil
	case strings.HasPrefix(channel, "depth"):
		var ev depthEvent
		if err := sonnet.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("binance: decode depth: %w", err)
		}
		ob := ev.toOrderBook(symbol, time.Now().UTC())
		return &update{symbol: symbol, book: &ob}, nil
	}
	return nil, fmt.Errorf("binance: unknown channel %q", channel)
}
