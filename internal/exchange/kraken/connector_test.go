package kraken

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/arbscanner/internal/exchange"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestHandleTicker(t *testing.T) {
	c := New(exchange.BaseConfig{Logger: quietLogger})
	s := &stream{c: c}
	msg := `[340,{"a":["5525.40000",1,"1.000"],"b":["5525.10000",1,"1.000"],"c":["5525.10000","0.00398963"],"v":["2634.11501494","3591.17907851"]},"ticker","XBT/USD"]`
	if err := s.HandleMessage([]byte(msg)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	tk, ok := c.Cache().Ticker("XBT/USD")
	if !ok {
		t.Fatal("ticker missing")
	}
	if tk.Ask != 5525.4 || tk.Bid != 5525.1 || tk.Volume != 3591.17907851 {
		t.Errorf("ticker = %+v", tk)
	}
}

func TestHandleBookSnapshotAndUpdates(t *testing.T) {
	c := New(exchange.BaseConfig{Logger: quietLogger})
	s := &stream{c: c}
	msgs := []string{
		`[0,{"as":[["101.0","1.0","1534614057.321597"],["102.0","2.0","1534614057.321597"]],"bs":[["99.0","1.0","1534614057.321597"]]},"book-25","XBT/USD"]`,
		`[0,{"a":[["101.0","0.00000000","1534614248.765567"]]},"book-25","XBT/USD"]`,
		`[0,{"a":[["100.5","3.0","1534614248.456738","r"]]},{"b":[["99.5","1.0","1534614248.456738"]],"c":"974942666"},"book-25","XBT/USD"]`,
	}
	for _, m := range msgs {
		if err := s.HandleMessage([]byte(m)); err != nil {
			t.Fatalf("HandleMessage(%s): %v", m, err)
		}
	}
	ob, ok := c.Cache().OrderBook("XBT/USD")
	if !ok {
		t.Fatal("book missing")
	}
	if len(ob.Asks) != 2 || ob.Asks[0].Price != 100.5 || ob.Asks[1].Price != 102 {
		t.Errorf("asks = %+v", ob.Asks)
	}
	if len(ob.Bids) != 2 || ob.Bids[0].Price != 99.5 {
		t.Errorf("bids = %+v", ob.Bids)
	}
}

func TestEvents(t *testing.T) {
	s := &stream{c: New(exchange.BaseConfig{Logger: quietLogger})}
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{`{"event":"heartbeat"}`, false},
		{`{"event":"systemStatus","status":"online","version":"1.0.0"}`, false},
		{`{"event":"subscriptionStatus","status":"subscribed","pair":"XBT/USD"}`, false},
		{`{"event":"subscriptionStatus","status":"error","pair":"FOO/BAR","errorMessage":"Currency pair not supported"}`, true},
		{`[1,{},"spread","XBT/USD"]`, true},
		{`[1,"x"]`, true},
	}
	for _, tt := range tests {
		err := s.HandleMessage([]byte(tt.raw))
		if (err != nil) != tt.wantErr {
			t.Errorf("HandleMessage(%s) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
	}
}

func TestConnectorREST(t *testing.T) {
	var tickerPair string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/0/public/AssetPairs":
			_, _ = io.WriteString(w, `{"error":[],"result":{
				"XXBTZUSD":{"altname":"XBTUSD","wsname":"XBT/USD","base":"XXBT","quote":"ZUSD","status":"online"},
				"XETHZUSD.d":{"altname":"ETHUSD.d","base":"XETH","quote":"ZUSD"}}}`)
		case "/0/public/Ticker":
			tickerPair = r.URL.Query().Get("pair")
			_, _ = io.WriteString(w, `{"error":[],"result":{"XXBTZUSD":{"a":["101.0","1","1.000"],"b":["100.0","1","1.000"],"c":["100.5","0.1"],"v":["1","2"]}}}`)
		case "/0/public/Depth":
			_, _ = io.WriteString(w, `{"error":["EQuery:Unknown asset pair"]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(exchange.BaseConfig{RESTURL: srv.URL, RESTRPS: 100, Logger: quietLogger})
	ctx := context.Background()

	pairs, err := c.FetchTradingPairs(ctx)
	if err != nil || len(pairs) != 1 {
		t.Fatalf("pairs = %+v err=%v", pairs, err)
	}
	if pairs[0].Symbol != "XBT/USD" || pairs[0].Base != "XBT" || pairs[0].Quote != "USD" {
		t.Errorf("pair = %+v", pairs[0])
	}

	tk, err := c.GetTicker(ctx, "XBT/USD")
	if err != nil || tk.Bid != 100 || tk.Ask != 101 || tk.Volume != 2 {
		t.Errorf("ticker = %+v err=%v", tk, err)
	}
	if tickerPair != "XBTUSD" {
		t.Errorf("REST pair = %q, want altname", tickerPair)
	}
	if _, err := c.GetOrderBook(ctx, "XBT/USD"); err == nil {
		t.Error("kraken error array should surface")
	}
}
