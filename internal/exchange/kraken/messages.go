package kraken

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/exchange"
)

// event is any object frame (heartbeat, systemStatus, subscriptionStatus).
type event struct {
	Event        string `json:"event"`
	Status       string `json:"status"`
	Pair         string `json:"pair"`
	ErrorMessage string `json:"errorMessage"`
}

// tickerPayload mixes strings and integers inside each array.
type tickerPayload struct {
	Ask    []any `json:"a"`
	Bid    []any `json:"b"`
	Close  []any `json:"c"`
	Volume []any `json:"v"`
}

// bookPayload is either a snapshot (as/bs) or an update (a/b).
type bookPayload struct {
	AskSnapshot [][]any `json:"as"`
	BidSnapshot [][]any `json:"bs"`
	Asks        [][]any `json:"a"`
	Bids        [][]any `json:"b"`
}

type restResponse[T any] struct {
	Error  []string `json:"error"`
	Result T        `json:"result"`
}

type assetPair struct {
	Altname string `json:"altname"`
	WSName  string `json:"wsname"`
	Base    string `json:"base"`
	Quote   string `json:"quote"`
	Status  string `json:"status"`
}

type restBook struct {
	Asks [][]any `json:"asks"`
	Bids [][]any `json:"bids"`
}

func first(v []any) float64 {
	if len(v) == 0 {
		return 0
	}
	return exchange.AnyFloat(v[0])
}

func (p tickerPayload) toTicker() domain.Ticker {
	vol := 0.0
	if len(p.Volume) > 1 {
		vol = exchange.AnyFloat(p.Volume[1])
	}
	return domain.Ticker{
		Bid:       first(p.Bid),
		Ask:       first(p.Ask),
		Last:      first(p.Close),
		Volume:    vol,
		Timestamp: time.Now().UTC(),
	}
}

// wsPairBase returns the base asset of a wsname such as "XBT/USD".
func wsPairBase(wsname string) string {
	base, _, _ := strings.Cut(wsname, "/")
	return base
}

// frame is one parsed channel message.
type frame struct {
	channel string
	pair    string
	ticker  *domain.Ticker
	books   []bookPayload
}

// parseMessage decodes a channel array
// [channelID, payload..., channelName, pair] or an event object.
func parseMessage(raw []byte) (*frame, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var ev event
		if err := sonnet.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("kraken: decode event: %w", err)
		}
		if ev.Event == "subscriptionStatus" && ev.Status == "error" {
			return nil, fmt.Errorf("kraken: subscribe %s: %s", ev.Pair, ev.ErrorMessage)
		}
		return nil, nil
	}

	var arr []json.RawMessage
	if err := sonnet.Unmarshal(raw, &arr); err != nil {
		return nil, fmt.Errorf("kraken: decode array: %w", err)
	}
	if len(arr) < 4 {
		return nil, fmt.Errorf("kraken: short channel message (%d elements)", len(arr))
	}
	f := &frame{}
	if err := sonnet.Unmarshal(arr[len(arr)-2], &f.channel); err != nil {
		return nil, fmt.Errorf("kraken: channel name: %w", err)
	}
	if err := sonnet.Unmarshal(arr[len(arr)-1], &f.pair); err != nil {
		return nil, fmt.Errorf("kraken: pair: %w", err)
	}
	payloads := arr[1 : len(arr)-2]

	switch {
	case f.channel == "ticker":
		var p tickerPayload
		if err := sonnet.Unmarshal(payloads[0], &p); err != nil {
			return nil, fmt.Errorf("kraken: decode ticker: %w", err)
		}
		t := p.toTicker()
		f.ticker = &t
	case strings.HasPrefix(f.channel, "book"):
		for _, raw := range payloads {
			var p bookPayload
			if err := sonnet.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("kraken: decode book: %w", err)
			}
			f.books = append(f.books, p)
		}
	default:
		return nil, fmt.Errorf("kraken: unknown channel %q", f.channel)
	}
	return f, nil
}

// applyBook folds snapshot or update payloads into prev. Update rows may
// carry a trailing "r" republish flag, which is ignored.
func applyBook(prev domain.OrderBook, pair string, books []bookPayload) domain.OrderBook {
	ts := time.Now().UTC()
	ob := prev
	ob.Symbol = pair
	for _, p := range books {
		if p.AskSnapshot != nil || p.BidSnapshot != nil {
			ob = domain.NewOrderBook(pair, exchange.ParseAnyLevels(p.BidSnapshot), exchange.ParseAnyLevels(p.AskSnapshot), ts)
			continue
		}
		for _, l := range exchange.ParseAnyLevels(p.Bids) {
			ob = ob.ApplyDelta(domain.SideBuy, l.Price, l.Volume, ts)
		}
		for _, l := range exchange.ParseAnyLevels(p.Asks) {
			ob = ob.ApplyDelta(domain.SideSell, l.Price, l.Volume, ts)
		}
	}
	return ob
}
