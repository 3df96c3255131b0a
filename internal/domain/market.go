package domain

import (
	"sort"
	"time"
)

// Side is the direction of a trade leg.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Ticker is a best bid/ask/last snapshot for one symbol on one venue.
// A Ticker is never mutated after it is stored; the next update replaces it.
// Ask >= Bid is not enforced.
type Ticker struct {
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether both sides of the quote are positive.
func (t Ticker) Valid() bool {
	return t.Bid > 0 && t.Ask > 0
}

// Mid returns the midpoint of bid and ask, or 0 when either side is missing.
func (t Ticker) Mid() float64 {
	if !t.Valid() {
		return 0
	}
	return (t.Bid + t.Ask) / 2
}

// RelSpread returns |ask-bid|/mid. An unusable quote yields 1.
func (t Ticker) RelSpread() float64 {
	mid := t.Mid()
	if mid <= 0 {
		return 1
	}
	s := t.Ask - t.Bid
	if s < 0 {
		s = -s
	}
	return s / mid
}

// Price returns the most useful single price for the ticker: last trade,
// then mid.
func (t Ticker) Price() float64 {
	if t.Last > 0 {
		return t.Last
	}
	return t.Mid()
}

// OrderBookEntry is one price level.
type OrderBookEntry struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// OrderBook holds bids sorted descending and asks sorted ascending.
// Levels with zero or negative volume are never retained.
type OrderBook struct {
	Symbol    string           `json:"symbol"`
	Bids      []OrderBookEntry `json:"bids"`
	Asks      []OrderBookEntry `json:"asks"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewOrderBook builds a book from raw levels, dropping empty levels and
// sorting each side.
func NewOrderBook(symbol string, bids, asks []OrderBookEntry, ts time.Time) OrderBook {
	ob := OrderBook{
		Symbol:    symbol,
		Bids:      cleanLevels(bids),
		Asks:      cleanLevels(asks),
		Timestamp: ts,
	}
	ob.sortSides()
	return ob
}

// BestBid returns the highest bid, if any.
func (ob OrderBook) BestBid() (float64, bool) {
	if len(ob.Bids) == 0 {
		return 0, false
	}
	return ob.Bids[0].Price, true
}

// BestAsk returns the lowest ask, if any.
func (ob OrderBook) BestAsk() (float64, bool) {
	if len(ob.Asks) == 0 {
		return 0, false
	}
	return ob.Asks[0].Price, true
}

// Spread returns best ask minus best bid, or 0 when a side is empty.
func (ob OrderBook) Spread() float64 {
	bid, okB := ob.BestBid()
	ask, okA := ob.BestAsk()
	if !okB || !okA {
		return 0
	}
	return ask - bid
}

// Clone returns a deep copy of the book.
func (ob OrderBook) Clone() OrderBook {
	out := ob
	out.Bids = append([]OrderBookEntry(nil), ob.Bids...)
	out.Asks = append([]OrderBookEntry(nil), ob.Asks...)
	return out
}

// ApplyDelta returns a new book with the level at price upserted on the given
// side. A non-positive volume deletes the level. The receiver is not modified.
func (ob OrderBook) ApplyDelta(side Side, price, volume float64, ts time.Time) OrderBook {
	out := ob.Clone()
	levels := &out.Asks
	if side == SideBuy {
		levels = &out.Bids
	}
	*levels = upsertLevel(*levels, price, volume)
	out.Timestamp = ts
	out.sortSides()
	return out
}

func (ob *OrderBook) sortSides() {
	sort.SliceStable(ob.Bids, func(i, j int) bool { return ob.Bids[i].Price > ob.Bids[j].Price })
	sort.SliceStable(ob.Asks, func(i, j int) bool { return ob.Asks[i].Price < ob.Asks[j].Price })
}

func upsertLevel(levels []OrderBookEntry, price, volume float64) []OrderBookEntry {
	for i := range levels {
		if levels[i].Price != price {
			continue
		}
		if volume <= 0 {
			return append(levels[:i], levels[i+1:]...)
		}
		levels[i].Volume = volume
		return levels
	}
	if volume <= 0 {
		return levels
	}
	return append(levels, OrderBookEntry{Price: price, Volume: volume})
}

func cleanLevels(in []OrderBookEntry) []OrderBookEntry {
	out := make([]OrderBookEntry, 0, len(in))
	for _, l := range in {
		if l.Volume > 0 && l.Price > 0 {
			out = append(out, l)
		}
	}
	return out
}

// TradingPair is a venue-native trading symbol with optional base/quote.
type TradingPair struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base,omitempty"`
	Quote  string `json:"quote,omitempty"`
}
