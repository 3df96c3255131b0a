package fee

import (
	"math"
	"path/filepath"
	"testing"
)

func TestFeeModels(t *testing.T) {
	tiers := []Tier{
		{MinVolume: 10_000, Maker: 0.0020, Taker: 0.0030},
		{MinVolume: 0, Maker: 0.0025, Taker: 0.0040},
	}

	tests := []struct {
		name     string
		fee      Fee
		amount   float64
		want     float64
		wantType Type
	}{
		{"fixed", Fixed{Amount: 2}, 1000, 2, TypeFixed},
		{"fixed zero notional", Fixed{Amount: 2}, 0, 0, TypeFixed},
		{"percentage", Percentage{Rate: 0.001}, 1000, 1, TypePercentage},
		{"tiered base taker", NewTiered(tiers, 0, false), 1000, 4, TypeTiered},
		{"tiered upper maker", NewTiered(tiers, 50_000, true), 1000, 2, TypeTiered},
		{"discounted", Discounted{Inner: Percentage{Rate: 0.001}, Discount: 0.25}, 1000, 0.75, TypePercentage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fee.CalculateFee(tt.amount); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CalculateFee(%v) = %v, want %v", tt.amount, got, tt.want)
			}
			if got := tt.fee.Type(); got != tt.wantType {
				t.Errorf("Type() = %v, want %v", got, tt.wantType)
			}
			if tt.fee.Description() == "" {
				t.Error("Description() is empty")
			}
		})
	}
}

func TestParseSchedules(t *testing.T) {
	data := []byte(`
venues:
  Binance:
    type: tiered
    volume_30d: 2000000
    discount: 0.25
    tiers:
      - {min_volume: 0, maker: 0.001, taker: 0.001}
      - {min_volume: 1000000, maker: 0.0009, taker: 0.0008}
  paper:
    type: fixed
    amount: 1.5
`)
	got, err := ParseSchedules(data)
	if err != nil {
		t.Fatalf("ParseSchedules: %v", err)
	}
	bn, ok := got["binance"]
	if !ok {
		t.Fatal("venue names should be lower-cased")
	}
	if r := Rate(bn.Taker, 1000); math.Abs(r-0.0006) > 1e-12 {
		t.Errorf("binance taker rate = %v, want 0.0006", r)
	}
	if got["paper"].Taker.CalculateFee(500) != 1.5 {
		t.Errorf("paper fixed fee = %v, want 1.5", got["paper"].Taker.CalculateFee(500))
	}

	if _, err := ParseSchedules([]byte("venues:\n  x:\n    type: bogus\n")); err == nil {
		t.Error("expected error for unknown fee type")
	}
}

func TestTrackerLedger(t *testing.T) {
	tr := NewTracker("bybit", Schedule{Taker: Percentage{Rate: 0.001}})
	tr.RecordTaker(1000)
	tr.RecordTaker(500)

	l := tr.Ledger()
	if l.Transactions != 2 {
		t.Errorf("Transactions = %d, want 2", l.Transactions)
	}
	if math.Abs(l.Notional-1500) > 1e-9 || math.Abs(l.Fees-1.5) > 1e-9 {
		t.Errorf("ledger = %+v, want notional 1500 fees 1.5", l)
	}
	if tr.Maker().CalculateFee(1000) != 0 {
		t.Error("missing maker side should charge nothing")
	}
	if l.FeeType != string(TypePercentage) {
		t.Errorf("FeeType = %q", l.FeeType)
	}
}

func TestDefaultSchedulesCoverVenues(t *testing.T) {
	s := DefaultSchedules()
	for _, v := range []string{"binance", "bybit", "kraken", "okx"} {
		if _, ok := s[v]; !ok {
			t.Errorf("missing default schedule for %s", v)
		}
	}
}

func TestLoadSchedulesExampleFile(t *testing.T) {
	got, err := LoadSchedules(filepath.Join("..", "..", "fees.yaml"))
	if err != nil {
		t.Fatalf("LoadSchedules: %v", err)
	}
	for _, venue := range []string{"binance", "bybit", "kraken", "okx"} {
		if _, ok := got[venue]; !ok {
			t.Errorf("missing schedule for %s", venue)
		}
	}
	// 0.1% taker with the 25% discount.
	if r := Rate(got["binance"].Taker, 1000); math.Abs(r-0.00075) > 1e-12 {
		t.Errorf("binance taker rate = %v, want 0.00075", r)
	}
	if _, err := LoadSchedules(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
