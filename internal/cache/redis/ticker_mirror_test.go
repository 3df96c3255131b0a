package redis

import (
	"testing"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

func TestTickerFieldsRoundTrip(t *testing.T) {
	in := domain.Ticker{
		Bid:       100.5,
		Ask:       100.75,
		Last:      100.6,
		Volume:    12.25,
		Timestamp: time.Unix(1_700_000_000, 123).UTC(),
	}
	vals := make(map[string]string)
	for k, v := range tickerFields(in) {
		vals[k] = v.(string)
	}
	out, err := parseTicker(vals)
	if err != nil {
		t.Fatalf("parseTicker: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestParseTickerRejectsGarbage(t *testing.T) {
	if _, err := parseTicker(map[string]string{"bid": "abc"}); err == nil {
		t.Fatal("expected error for non-numeric bid")
	}
	if _, err := parseTicker(map[string]string{"ts": "x"}); err == nil {
		t.Fatal("expected error for non-numeric ts")
	}
}

func TestTickerKey(t *testing.T) {
	if got := tickerKey("kraken", "XBT/USD"); got != "ticker:kraken:XBT/USD" {
		t.Fatalf("tickerKey = %q", got)
	}
}

func TestPayloadBytes(t *testing.T) {
	if b, ok := payloadBytes("x"); !ok || string(b) != "x" {
		t.Fatal("string payload")
	}
	if b, ok := payloadBytes([]byte("y")); !ok || string(b) != "y" {
		t.Fatal("bytes payload")
	}
	if _, ok := payloadBytes(42); ok {
		t.Fatal("int payload should be rejected")
	}
}

func TestClientConfigOptions(t *testing.T) {
	opts := ClientConfig{Addr: "localhost:6379", DB: 2, PoolSize: 7, TLSEnabled: true}.options()
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.TLSConfig == nil {
		t.Fatal("expected TLS config")
	}
}
