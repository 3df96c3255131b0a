package arbitrage

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/fee"
	"github.com/alanyoungcy/arbscanner/internal/risk"
)

type stubVenue struct {
	name    string
	tickers map[string]domain.Ticker
	fees    *fee.Tracker
}

func (s *stubVenue) Name() string       { return s.name }
func (s *stubVenue) Fees() *fee.Tracker { return s.fees }

func (s *stubVenue) GetTicker(_ context.Context, symbol string) (domain.Ticker, error) {
	t, ok := s.tickers[symbol]
	if !ok {
		return domain.Ticker{}, domain.ErrNoData
	}
	return t, nil
}

func newStub(name string, rate float64, tickers map[string]domain.Ticker) *stubVenue {
	return &stubVenue{
		name:    name,
		tickers: tickers,
		fees:    fee.NewTracker(name, fee.Schedule{Taker: fee.Percentage{Rate: rate}}),
	}
}

func newTestDetector(minProfit float64) *Detector {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDetector(DetectorConfig{
		Scorer:       risk.NewScorer(risk.DefaultThresholds(), logger),
		MinProfitPct: minProfit,
		Logger:       logger,
	})
}

func TestReferenceQuantity(t *testing.T) {
	tests := []struct {
		price float64
		want  float64
	}{
		{0.0001, 1_000_000},
		{0.5, 1_000},
		{42, 10},
		{100, 0.01},
		{65_000, 0.01},
	}
	for _, tt := range tests {
		if got := ReferenceQuantity(tt.price); got != tt.want {
			t.Errorf("ReferenceQuantity(%v) = %v, want %v", tt.price, got, tt.want)
		}
	}
}

func TestCalculateArbitrageEndToEnd(t *testing.T) {
	a := newStub("venue_a", 0, map[string]domain.Ticker{
		"BTC-USD": {Bid: 100, Ask: 100.1, Last: 100.05, Volume: 5000},
	})
	b := newStub("venue_b", 0, map[string]domain.Ticker{
		"BTCUSD": {Bid: 101, Ask: 101.2, Last: 101.1, Volume: 4000},
	})

	d := newTestDetector(0.1)
	opp, ok := d.CalculateArbitrage(context.Background(), "BTCUSD",
		Leg{Venue: a, Symbol: "BTC-USD"}, Leg{Venue: b, Symbol: "BTCUSD"})
	if !ok {
		t.Fatal("expected an opportunity")
	}
	if opp.BuyVenue != "venue_a" || opp.SellVenue != "venue_b" {
		t.Errorf("direction = buy %s sell %s, want buy venue_a sell venue_b", opp.BuyVenue, opp.SellVenue)
	}
	if opp.BuySymbol != "BTC-USD" || opp.SellSymbol != "BTCUSD" {
		t.Errorf("native symbols = %s / %s", opp.BuySymbol, opp.SellSymbol)
	}
	if math.Abs(opp.ProfitPct-0.9) > 0.01 {
		t.Errorf("ProfitPct = %v, want ~0.9", opp.ProfitPct)
	}
	want := (101/100.1 - 1) * 100
	if math.Abs(opp.ProfitPct-want) > 1e-9 {
		t.Errorf("ProfitPct = %v, want %v with zero fees", opp.ProfitPct, want)
	}
	if opp.Risk == nil {
		t.Fatal("risk assessment not attached")
	}
	if opp.Risk.OverallRiskScore < risk.MinOverallScore {
		t.Errorf("overall risk = %v, want healthy market to pass", opp.Risk.OverallRiskScore)
	}

	if l := a.fees.Ledger(); l.Transactions != 1 {
		t.Errorf("buy venue ledger transactions = %d, want 1", l.Transactions)
	}
	if l := b.fees.Ledger(); l.Transactions != 1 {
		t.Errorf("sell venue ledger transactions = %d, want 1", l.Transactions)
	}
}

func TestCalculateArbitragePicksBetterDirection(t *testing.T) {
	a := newStub("a", 0, map[string]domain.Ticker{"X": {Bid: 102, Ask: 102.1, Volume: 1000}})
	b := newStub("b", 0, map[string]domain.Ticker{"X": {Bid: 99.9, Ask: 100, Volume: 1000}})

	opp, ok := newTestDetector(0.1).CalculateArbitrage(context.Background(), "X",
		Leg{Venue: a, Symbol: "X"}, Leg{Venue: b, Symbol: "X"})
	if !ok {
		t.Fatal("expected an opportunity")
	}
	if opp.BuyVenue != "b" || opp.SellVenue != "a" {
		t.Errorf("direction = buy %s sell %s, want buy b sell a", opp.BuyVenue, opp.SellVenue)
	}
}

func TestCalculateArbitrageFeesReduceProfit(t *testing.T) {
	a := newStub("a", 0.001, map[string]domain.Ticker{"X": {Bid: 100, Ask: 100.1, Volume: 5000}})
	b := newStub("b", 0.001, map[string]domain.Ticker{"X": {Bid: 101, Ask: 101.2, Volume: 4000}})

	opp, ok := newTestDetector(0.1).CalculateArbitrage(context.Background(), "X",
		Leg{Venue: a, Symbol: "X"}, Leg{Venue: b, Symbol: "X"})
	if !ok {
		t.Fatal("expected an opportunity")
	}
	if math.Abs(opp.FeePct-0.2) > 1e-9 {
		t.Errorf("FeePct = %v, want 0.2", opp.FeePct)
	}
	if math.Abs(opp.ProfitPct-(opp.PriceDiffPct-0.2)) > 1e-9 {
		t.Errorf("ProfitPct = %v, want diff %v minus fees", opp.ProfitPct, opp.PriceDiffPct)
	}
}

func TestCalculateArbitrageNone(t *testing.T) {
	flat := map[string]domain.Ticker{"X": {Bid: 100, Ask: 100.1, Volume: 1000}}
	tests := []struct {
		name string
		a, b *stubVenue
	}{
		{"below threshold both ways", newStub("a", 0, flat), newStub("b", 0, flat)},
		{"missing ticker on a", newStub("a", 0, nil), newStub("b", 0, flat)},
		{"missing ticker on b", newStub("a", 0, flat), newStub("b", 0, nil)},
		{"degenerate prices", newStub("a", 0, map[string]domain.Ticker{"X": {}}), newStub("b", 0, map[string]domain.Ticker{"X": {}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp, ok := newTestDetector(0.1).CalculateArbitrage(context.Background(), "X",
				Leg{Venue: tt.a, Symbol: "X"}, Leg{Venue: tt.b, Symbol: "X"})
			if ok || opp != nil {
				t.Errorf("got opportunity %+v, want none", opp)
			}
		})
	}
}
