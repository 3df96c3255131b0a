package bybit

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/arbscanner/internal/exchange"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestConnector() (*Connector, *stream) {
	c := New(exchange.BaseConfig{Logger: quietLogger})
	return c, &stream{c: c}
}

func TestTickerDeltaMerges(t *testing.T) {
	c, s := newTestConnector()
	frames := []string{
		`{"topic":"tickers.BTCUSDT","type":"snapshot","ts":1700000000000,"data":{"symbol":"BTCUSDT","lastPrice":"100","bid1Price":"99","ask1Price":"101","volume24h":"5"}}`,
		`{"topic":"tickers.BTCUSDT","type":"delta","ts":1700000001000,"data":{"symbol":"BTCUSDT","bid1Price":"99.5"}}`,
	}
	for _, f := range frames {
		if err := s.HandleMessage([]byte(f)); err != nil {
			t.Fatalf("HandleMessage: %v", err)
		}
	}
	tk, ok := c.Cache().Ticker("BTCUSDT")
	if !ok {
		t.Fatal("ticker missing")
	}
	if tk.Bid != 99.5 || tk.Ask != 101 || tk.Last != 100 || tk.Volume != 5 {
		t.Errorf("merged ticker = %+v", tk)
	}
}

func TestBookSnapshotThenDelta(t *testing.T) {
	c, s := newTestConnector()
	frames := []string{
		`{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1,"data":{"s":"BTCUSDT","b":[["99","1"],["98","2"]],"a":[["101","1"],["102","3"]]}}`,
		`{"topic":"orderbook.50.BTCUSDT","type":"delta","ts":2,"data":{"s":"BTCUSDT","b":[["99","0"],["100","4"]],"a":[["102","5"]]}}`,
	}
	for _, f := range frames {
		if err := s.HandleMessage([]byte(f)); err != nil {
			t.Fatalf("HandleMessage: %v", err)
		}
	}
	ob, ok := c.Cache().OrderBook("BTCUSDT")
	if !ok {
		t.Fatal("book missing")
	}
	if len(ob.Bids) != 2 || ob.Bids[0].Price != 100 || ob.Bids[0].Volume != 4 || ob.Bids[1].Price != 98 {
		t.Errorf("bids = %+v", ob.Bids)
	}
	if len(ob.Asks) != 2 || ob.Asks[1].Volume != 5 {
		t.Errorf("asks = %+v", ob.Asks)
	}
}

func TestControlFrames(t *testing.T) {
	_, s := newTestConnector()
	if err := s.HandleMessage([]byte(`{"success":true,"ret_msg":"pong","op":"ping"}`)); err != nil {
		t.Errorf("pong: %v", err)
	}
	if err := s.HandleMessage([]byte(`{"success":false,"ret_msg":"bad args","op":"subscribe"}`)); err == nil {
		t.Error("failed subscribe should error")
	}
	if err := s.HandleMessage([]byte(`{"topic":"kline.1.BTCUSDT","data":{}}`)); err == nil {
		t.Error("unknown topic should error")
	}
}

func TestSubscribeFramesChunked(t *testing.T) {
	_, s := newTestConnector()
	symbols := []string{"A", "B", "C", "D", "E", "F"}
	frames, err := s.SubscribeFrames(symbols)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if !strings.Contains(string(frames[0]), "orderbook.50.A") {
		t.Errorf("frame = %s", frames[0])
	}
	if string(s.KeepAlive()) != `{"op":"ping"}` {
		t.Error("unexpected keepalive")
	}
}

func TestConnectorREST(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/market/instruments-info":
			_, _ = io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
				{"symbol":"BTCUSDT","baseCoin":"BTC","quoteCoin":"USDT","status":"Trading"},
				{"symbol":"XUSDT","baseCoin":"X","quoteCoin":"USDT","status":"Closed"}]}}`)
		case "/v5/market/tickers":
			_, _ = io.WriteString(w, `{"retCode":0,"result":{"list":[{"symbol":"BTCUSDT","bid1Price":"10","ask1Price":"11","lastPrice":"10.5","volume24h":"7"}]}}`)
		case "/v5/market/orderbook":
			_, _ = io.WriteString(w, `{"retCode":10001,"retMsg":"params error","result":{}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(exchange.BaseConfig{RESTURL: srv.URL, RESTRPS: 100, Logger: quietLogger})
	ctx := context.Background()

	pairs, err := c.FetchTradingPairs(ctx)
	if err != nil || len(pairs) != 1 || pairs[0].Quote != "USDT" {
		t.Fatalf("pairs = %+v err=%v", pairs, err)
	}
	tk, err := c.GetTicker(ctx, "BTCUSDT")
	if err != nil || tk.Bid != 10 || tk.Ask != 11 {
		t.Errorf("ticker = %+v err=%v", tk, err)
	}
	if _, err := c.GetOrderBook(ctx, "BTCUSDT"); err == nil {
		t.Error("non-zero retCode should error")
	}
}
