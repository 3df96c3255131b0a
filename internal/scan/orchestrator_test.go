package scan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/arbitrage"
	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/exchange"
	"github.com/alanyoungcy/arbscanner/internal/risk"
	"github.com/alanyoungcy/arbscanner/internal/sizing"
	"github.com/alanyoungcy/arbscanner/internal/slippage"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// stubVenue serves tickers from its cache only.
type stubVenue struct {
	*exchange.Base
	pairs    []domain.TradingPair
	pairsErr error
	panicOn  string
}

func newStubVenue(name string, pairs ...domain.TradingPair) *stubVenue {
	return &stubVenue{
		Base:  exchange.NewBase(exchange.BaseConfig{Name: name, Logger: quietLogger}),
		pairs: pairs,
	}
}

func (v *stubVenue) FetchTradingPairs(context.Context) ([]domain.TradingPair, error) {
	if v.pairsErr != nil {
		return nil, v.pairsErr
	}
	v.SetPairs(v.pairs)
	return v.pairs, nil
}

func (v *stubVenue) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	if symbol == v.panicOn {
		panic("corrupt ticker")
	}
	return v.TickerOrFetch(ctx, symbol, func(context.Context, string) (domain.Ticker, error) {
		return domain.Ticker{}, domain.ErrNoData
	})
}

func (v *stubVenue) GetOrderBook(ctx context.Context, symbol string) (domain.OrderBook, error) {
	return v.OrderBookOrFetch(ctx, symbol, func(context.Context, string) (domain.OrderBook, error) {
		return domain.OrderBook{}, domain.ErrNoData
	})
}

func (v *stubVenue) InitializeWebSocket(context.Context, []string) bool { return false }

func newOrchestrator(t *testing.T, venues []exchange.Connector, cfg Config) *Orchestrator {
	t.Helper()
	scorer := risk.NewScorer(risk.DefaultThresholds(), quietLogger)
	tracker := slippage.NewVolatilityTracker(0.02, 0.05)
	est := slippage.NewEstimator(tracker, [2]int{0, 0}, quietLogger)
	cfg.Connectors = venues
	cfg.Detector = arbitrage.NewDetector(arbitrage.DetectorConfig{Scorer: scorer, MinProfitPct: 0.1, Logger: quietLogger})
	cfg.Scorer = scorer
	cfg.Slippage = slippage.NewCoordinator(tracker, est, slippage.DefaultCoordinatorConfig(), quietLogger)
	cfg.Sizer = sizing.New(0)
	if cfg.Settings == nil {
		cfg.Settings = Params{MinProfit: 0.1}
	}
	cfg.Logger = quietLogger
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestNewRequiresTwoVenues(t *testing.T) {
	_, err := New(Config{Connectors: []exchange.Connector{newStubVenue("a")}})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestCycleEndToEnd(t *testing.T) {
	a := newStubVenue("alpha", domain.TradingPair{Symbol: "BTC-USDT"}, domain.TradingPair{Symbol: "ETH-USDT"})
	b := newStubVenue("beta", domain.TradingPair{Symbol: "BTCUSDT"}, domain.TradingPair{Symbol: "SOLUSDT"})
	a.Cache().SetTicker("BTC-USDT", domain.Ticker{Bid: 100, Ask: 100.1, Last: 100.05, Volume: 5000})
	b.Cache().SetTicker("BTCUSDT", domain.Ticker{Bid: 101, Ask: 101.2, Last: 101.1, Volume: 4000})

	o := newOrchestrator(t, []exchange.Connector{a, b}, Config{})
	ctx := context.Background()

	tradable, err := o.Discover(ctx)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(tradable.Symbols) != 1 || tradable.Symbols[0] != "BTCUSDT" {
		t.Fatalf("tradable = %v", tradable.Symbols)
	}

	res := o.RunCycle(ctx)
	if res.CycleID == "" || res.Evaluated != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Opportunities) != 1 {
		t.Fatalf("opportunities = %d, want 1", len(res.Opportunities))
	}
	opp := res.Opportunities[0]
	if opp.BuyVenue != "alpha" || opp.SellVenue != "beta" {
		t.Errorf("direction = %s->%s", opp.BuyVenue, opp.SellVenue)
	}
	if math.Abs(opp.ProfitPct-0.899) > 0.01 {
		t.Errorf("profit = %v, want ~0.9", opp.ProfitPct)
	}
	if opp.BuySlippage < slippage.MinSlippage || opp.SellSlippage > slippage.MaxSlippage {
		t.Errorf("slippage out of range: %v %v", opp.BuySlippage, opp.SellSlippage)
	}
	if !opp.Viable {
		t.Errorf("expected viable opportunity, risk=%+v", opp.Risk)
	}
	if opp.PositionSize <= 0 || opp.PositionSize > DefaultAvailableCapital*DefaultMaxPositionPct {
		t.Errorf("position size = %v", opp.PositionSize)
	}
	if len(res.Ledgers) != 2 || res.Ledgers[0].Transactions != 1 {
		t.Errorf("ledgers = %+v", res.Ledgers)
	}
	if o.Last() == nil || o.Last().CycleID != res.CycleID {
		t.Error("Last not updated")
	}
}

func TestDiscoverSkipsFailingVenue(t *testing.T) {
	a := newStubVenue("a", domain.TradingPair{Symbol: "BTCUSDT"})
	b := newStubVenue("b", domain.TradingPair{Symbol: "BTC-USDT"})
	c := newStubVenue("c")
	c.pairsErr = errors.New("maintenance")

	o := newOrchestrator(t, []exchange.Connector{a, b, c}, Config{})
	tradable, err := o.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(tradable.Symbols) != 1 {
		t.Errorf("tradable = %v", tradable.Symbols)
	}
	if got := tradable.Venues("BTCUSDT"); len(got) != 2 {
		t.Errorf("venues = %v", got)
	}
}

func TestCycleSurvivesPanicAndMissingData(t *testing.T) {
	a := newStubVenue("a", domain.TradingPair{Symbol: "BTCUSDT"}, domain.TradingPair{Symbol: "ETHUSDT"}, domain.TradingPair{Symbol: "XRPUSDT"})
	b := newStubVenue("b", domain.TradingPair{Symbol: "BTCUSDT"}, domain.TradingPair{Symbol: "ETHUSDT"}, domain.TradingPair{Symbol: "XRPUSDT"})
	a.panicOn = "ETHUSDT"
	a.Cache().SetTicker("BTCUSDT", domain.Ticker{Bid: 100, Ask: 100.1, Last: 100.05, Volume: 5000})
	b.Cache().SetTicker("BTCUSDT", domain.Ticker{Bid: 101, Ask: 101.2, Last: 101.1, Volume: 4000})
	// XRPUSDT has no ticker on either venue.

	o := newOrchestrator(t, []exchange.Connector{a, b}, Config{})
	if _, err := o.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	res := o.RunCycle(context.Background())
	if res.Evaluated != 3 {
		t.Errorf("evaluated = %d, want 3", res.Evaluated)
	}
	if len(res.Opportunities) != 1 || res.Opportunities[0].Symbol != "BTCUSDT" {
		t.Errorf("opportunities = %+v", res.Opportunities)
	}
}

func TestRankingAndTopN(t *testing.T) {
	pairs := []domain.TradingPair{{Symbol: "AUSDT"}, {Symbol: "BUSDT"}, {Symbol: "CUSDT"}}
	a := newStubVenue("a", pairs...)
	b := newStubVenue("b", pairs...)
	for sym, sell := range map[string]float64{"AUSDT": 10.1, "BUSDT": 10.3, "CUSDT": 10.2} {
		a.Cache().SetTicker(sym, domain.Ticker{Bid: 9.99, Ask: 10, Last: 10, Volume: 5000})
		b.Cache().SetTicker(sym, domain.Ticker{Bid: sell, Ask: sell + 0.01, Last: sell, Volume: 5000})
	}

	o := newOrchestrator(t, []exchange.Connector{a, b}, Config{Settings: Params{MinProfit: 0.1, Top: 2}})
	if _, err := o.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	res := o.RunCycle(context.Background())
	if len(res.Opportunities) != 2 {
		t.Fatalf("opportunities = %d, want 2", len(res.Opportunities))
	}
	if res.Opportunities[0].Symbol != "BUSDT" || res.Opportunities[1].Symbol != "CUSDT" {
		t.Errorf("order = %s, %s", res.Opportunities[0].Symbol, res.Opportunities[1].Symbol)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	results []Result
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

type fakeLocker struct {
	held     atomic.Bool
	acquired atomic.Int32
}

func (l *fakeLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	if !l.held.CompareAndSwap(false, true) {
		return nil, domain.ErrLockHeld
	}
	l.acquired.Add(1)
	return func() { l.held.Store(false) }, nil
}

func TestRunPublishesToSinks(t *testing.T) {
	a := newStubVenue("a", domain.TradingPair{Symbol: "BTCUSDT"})
	b := newStubVenue("b", domain.TradingPair{Symbol: "BTCUSDT"})
	sink := &recordingSink{}
	locker := &fakeLocker{}

	o := newOrchestrator(t, []exchange.Connector{a, b}, Config{
		Settings: Params{Interval: 20 * time.Millisecond},
		Sinks:    []Sink{sink},
		Locker:   locker,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for sink.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sink.count() < 2 {
		t.Errorf("sink received %d results", sink.count())
	}
	if locker.acquired.Load() < 2 || locker.held.Load() {
		t.Errorf("lock acquired %d times, held=%v", locker.acquired.Load(), locker.held.Load())
	}
}

func TestRunSkipsCycleWhenLockHeld(t *testing.T) {
	a := newStubVenue("a", domain.TradingPair{Symbol: "BTCUSDT"})
	b := newStubVenue("b", domain.TradingPair{Symbol: "BTCUSDT"})
	locker := &fakeLocker{}
	locker.held.Store(true)

	o := newOrchestrator(t, []exchange.Connector{a, b}, Config{Locker: locker})
	o.tick(context.Background(), time.Second)
	if o.Last() != nil {
		t.Error("cycle ran without the leader lock")
	}
}

func TestParamsDefaults(t *testing.T) {
	var p Params
	if p.MinProfitPct() != DefaultMinProfitPct || p.ScanInterval() != DefaultScanInterval ||
		p.AvailableCapital() != DefaultAvailableCapital || p.MaxPositionPct() != DefaultMaxPositionPct ||
		p.MaxSlippagePct() != DefaultMaxSlippagePct || p.TopN() != 0 {
		t.Errorf("defaults = %+v", p)
	}
}

func TestParamsExplicitMinProfit(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		want float64
	}{
		{"unset zero defaults", Params{}, DefaultMinProfitPct},
		{"explicit zero kept", Params{MinProfitSet: true}, 0},
		{"explicit value kept", Params{MinProfit: 0.3, MinProfitSet: true}, 0.3},
		{"explicit negative clamps", Params{MinProfit: -1, MinProfitSet: true}, 0},
		{"unset value kept", Params{MinProfit: 0.4}, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.MinProfitPct(); got != tt.want {
				t.Errorf("MinProfitPct() = %v, want %v", got, tt.want)
			}
		})
	}
}
