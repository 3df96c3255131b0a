package domain

import (
	"testing"
	"time"
)

func TestNewOrderBookDropsEmptyLevelsAndSorts(t *testing.T) {
	ob := NewOrderBook("BTCUSD",
		[]OrderBookEntry{{Price: 99, Volume: 1}, {Price: 100, Volume: 2}, {Price: 98, Volume: 0}},
		[]OrderBookEntry{{Price: 102, Volume: 1}, {Price: 101, Volume: 3}, {Price: 103, Volume: -1}},
		time.Now())

	if len(ob.Bids) != 2 || len(ob.Asks) != 2 {
		t.Fatalf("levels = %d bids, %d asks, want 2, 2", len(ob.Bids), len(ob.Asks))
	}
	if bid, _ := ob.BestBid(); bid != 100 {
		t.Errorf("BestBid = %v, want 100", bid)
	}
	if ask, _ := ob.BestAsk(); ask != 101 {
		t.Errorf("BestAsk = %v, want 101", ask)
	}
	if s := ob.Spread(); s != 1 {
		t.Errorf("Spread = %v, want 1", s)
	}
}

func TestApplyDelta(t *testing.T) {
	base := NewOrderBook("ETHUSD",
		[]OrderBookEntry{{Price: 10, Volume: 1}},
		[]OrderBookEntry{{Price: 11, Volume: 1}},
		time.Time{})

	tests := []struct {
		name     string
		side     Side
		price    float64
		volume   float64
		wantBids int
		wantAsks int
		bestBid  float64
		bestAsk  float64
	}{
		{"insert better bid", SideBuy, 10.5, 2, 2, 1, 10.5, 11},
		{"update existing ask", SideSell, 11, 5, 1, 1, 10, 11},
		{"delete bid on zero", SideBuy, 10, 0, 0, 1, 0, 11},
		{"delete unknown level is noop", SideSell, 12, 0, 1, 1, 10, 11},
		{"insert lower ask", SideSell, 10.8, 1, 1, 2, 10, 10.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base.ApplyDelta(tt.side, tt.price, tt.volume, time.Now())
			if len(got.Bids) != tt.wantBids || len(got.Asks) != tt.wantAsks {
				t.Fatalf("levels = %d/%d, want %d/%d", len(got.Bids), len(got.Asks), tt.wantBids, tt.wantAsks)
			}
			if bid, _ := got.BestBid(); bid != tt.bestBid {
				t.Errorf("BestBid = %v, want %v", bid, tt.bestBid)
			}
			if ask, _ := got.BestAsk(); ask != tt.bestAsk {
				t.Errorf("BestAsk = %v, want %v", ask, tt.bestAsk)
			}
			if len(base.Bids) != 1 || len(base.Asks) != 1 || base.Asks[0].Volume != 1 {
				t.Errorf("ApplyDelta mutated the receiver: %+v", base)
			}
		})
	}
}

func TestTickerRelSpread(t *testing.T) {
	tests := []struct {
		name string
		tk   Ticker
		want float64
	}{
		{"normal", Ticker{Bid: 99, Ask: 101}, 0.02},
		{"crossed", Ticker{Bid: 101, Ask: 99}, 0.02},
		{"missing bid", Ticker{Ask: 101}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.tk.RelSpread()
			if d := got - tt.want; d > 1e-12 || d < -1e-12 {
				t.Errorf("RelSpread = %v, want %v", got, tt.want)
			}
		})
	}
}
