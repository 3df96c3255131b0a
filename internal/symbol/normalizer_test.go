package symbol

import (
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"XBTUSD", "BTCUSD"},
		{"btc-usd", "BTCUSD"},
		{"XBT/USD", "BTCUSD"},
		{"BTC-USDT-SWAP", "BTCUSDT"},
		{"BTCUSDT.P", "BTCUSDT"},
		{"eth_usdt", "ETHUSDT"},
		{"XDG/USD", "DOGEUSD"},
		{"DOGEUSDT", "DOGEUSDT"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Normalize(tt.in)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := Normalize(got); again != got {
				t.Errorf("Normalize not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestFindTradable(t *testing.T) {
	pairs := map[string][]domain.TradingPair{
		"binance": {{Symbol: "BTCUSDT"}, {Symbol: "ETHUSDT"}, {Symbol: "SOLUSDT"}},
		"kraken":  {{Symbol: "XBT/USDT"}, {Symbol: "ETH/USDT"}},
		"okx":     {{Symbol: "BTC-USDT"}, {Symbol: "ADA-USDT"}},
		"empty":   nil,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	got := New().FindTradable(pairs, logger)

	want := []string{"BTCUSDT", "ETHUSDT"}
	if len(got.Symbols) != len(want) {
		t.Fatalf("Symbols = %v, want %v", got.Symbols, want)
	}
	for i := range want {
		if got.Symbols[i] != want[i] {
			t.Errorf("Symbols[%d] = %q, want %q", i, got.Symbols[i], want[i])
		}
	}

	for _, s := range got.Symbols {
		if n := len(got.Venues(s)); n < 2 {
			t.Errorf("%s backed by %d venues", s, n)
		}
	}
	if native, ok := got.NativeFor("kraken", "BTCUSDT"); !ok || native != "XBT/USDT" {
		t.Errorf("NativeFor(kraken, BTCUSDT) = %q, %v", native, ok)
	}
	if _, ok := got.NativeFor("binance", "SOLUSDT"); ok {
		t.Error("single-venue symbol must not be addressable")
	}
	if _, ok := got.Native["empty"]; ok {
		t.Error("empty venue should be skipped")
	}
}
