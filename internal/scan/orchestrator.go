// Package scan drives the detection pipeline: discovery of symbols shared by
// at least two venues, then on every tick the venue-pair by symbol product
// through detection, slippage estimation, risk and sizing.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbscanner/internal/arbitrage"
	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/exchange"
	"github.com/alanyoungcy/arbscanner/internal/risk"
	"github.com/alanyoungcy/arbscanner/internal/sizing"
	"github.com/alanyoungcy/arbscanner/internal/slippage"
	"github.com/alanyoungcy/arbscanner/internal/symbol"
)

// LeaderKey is the lock held for the duration of each cycle when a lock
// manager is configured.
const LeaderKey = "scan:leader"

// Result is one cycle's ranked output.
type Result struct {
	CycleID       string                         `json:"cycle_id"`
	StartedAt     time.Time                      `json:"started_at"`
	Duration      time.Duration                  `json:"duration"`
	Evaluated     int                            `json:"evaluated"`
	Opportunities []*domain.ArbitrageOpportunity `json:"opportunities"`
	Ledgers       []domain.FeeLedger             `json:"ledgers"`
}

// Config wires the orchestrator's collaborators. Locker, Sinks and Logger
// are optional.
type Config struct {
	Connectors []exchange.Connector
	Normalizer *symbol.Normalizer
	Detector   *arbitrage.Detector
	Scorer     *risk.Scorer
	Slippage   *slippage.Coordinator
	Sizer      *sizing.Sizer
	Settings   Settings
	Locker     domain.LockManager
	Sinks      []Sink
	Streaming  bool
	Logger     *slog.Logger
}

// Orchestrator owns the scan loop.
type Orchestrator struct {
	connectors []exchange.Connector
	normalizer *symbol.Normalizer
	detector   *arbitrage.Detector
	scorer     *risk.Scorer
	slip       *slippage.Coordinator
	sizer      *sizing.Sizer
	settings   Settings
	locker     domain.LockManager
	sinks      []*sinkRunner
	streaming  bool
	logger     *slog.Logger

	mu       sync.RWMutex
	tradable symbol.Tradable
	last     *Result
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if len(cfg.Connectors) < 2 {
		return nil, fmt.Errorf("scan: need at least 2 connectors, got %d: %w", len(cfg.Connectors), domain.ErrInvalidInput)
	}
	if cfg.Detector == nil || cfg.Scorer == nil || cfg.Slippage == nil {
		return nil, fmt.Errorf("scan: detector, scorer and slippage coordinator are required: %w", domain.ErrInvalidInput)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "scan"))

	o := &Orchestrator{
		connectors: cfg.Connectors,
		normalizer: cfg.Normalizer,
		detector:   cfg.Detector,
		scorer:     cfg.Scorer,
		slip:       cfg.Slippage,
		sizer:      cfg.Sizer,
		settings:   cfg.Settings,
		locker:     cfg.Locker,
		streaming:  cfg.Streaming,
		logger:     logger,
	}
	if o.normalizer == nil {
		o.normalizer = symbol.New()
	}
	if o.sizer == nil {
		o.sizer = sizing.New(0)
	}
	if o.settings == nil {
		o.settings = Params{}
	}
	for _, s := range cfg.Sinks {
		o.sinks = append(o.sinks, newSinkRunner(s, logger))
	}
	return o, nil
}

// Connectors returns the configured venues.
func (o *Orchestrator) Connectors() []exchange.Connector { return o.connectors }

// Tradable returns the last discovery result.
func (o *Orchestrator) Tradable() symbol.Tradable {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.tradable
}

// Last returns the most recent cycle result, or nil before the first cycle.
func (o *Orchestrator) Last() *Result {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

// Discover fetches every venue's pairs in parallel, keeps the canonical
// symbols carried by at least two venues and, when streaming is enabled,
// subscribes each venue to its native symbols. A venue whose fetch fails
// contributes no pairs.
func (o *Orchestrator) Discover(ctx context.Context) (symbol.Tradable, error) {
	var mu sync.Mutex
	pairs := make(map[string][]domain.TradingPair, len(o.connectors))

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range o.connectors {
		g.Go(func() error {
			p, err := c.FetchTradingPairs(gctx)
			if err != nil {
				o.logger.WarnContext(gctx, "fetch trading pairs failed",
					slog.String("venue", c.Name()),
					slog.String("error", err.Error()),
				)
				p = nil
			}
			mu.Lock()
			pairs[c.Name()] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return symbol.Tradable{}, err
	}

	tradable := o.normalizer.FindTradable(pairs, o.logger)
	o.mu.Lock()
	o.tradable = tradable
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "discovery complete",
		slog.Int("venues", len(o.connectors)),
		slog.Int("tradable", len(tradable.Symbols)),
	)

	if o.streaming {
		for _, c := range o.connectors {
			native := tradable.NativeSymbols(c.Name())
			if len(native) == 0 {
				continue
			}
			if !c.InitializeWebSocket(ctx, native) {
				o.logger.WarnContext(ctx, "websocket unavailable, using rest fallback",
					slog.String("venue", c.Name()),
				)
			}
		}
	}
	return tradable, nil
}

// unit is one (venue pair, canonical symbol) evaluation.
type unit struct {
	canonical string
	a, b      arbitrage.Leg
}

func (o *Orchestrator) units(t symbol.Tradable) [][]unit {
	var groups [][]unit
	for i := 0; i < len(o.connectors); i++ {
		for j := i + 1; j < len(o.connectors); j++ {
			a, b := o.connectors[i], o.connectors[j]
			var us []unit
			for _, canonical := range t.Symbols {
				na, okA := t.NativeFor(a.Name(), canonical)
				nb, okB := t.NativeFor(b.Name(), canonical)
				if !okA || !okB {
					continue
				}
				us = append(us, unit{
					canonical: canonical,
					a:         arbitrage.Leg{Venue: a, Symbol: na},
					b:         arbitrage.Leg{Venue: b, Symbol: nb},
				})
			}
			if len(us) > 0 {
				groups = append(groups, us)
			}
		}
	}
	return groups
}

// RunCycle evaluates every venue pair concurrently and ranks the viable and
// non-viable opportunities by profit. It never fails on market data; a
// panic inside one unit is logged and that unit is skipped.
func (o *Orchestrator) RunCycle(ctx context.Context) Result {
	res := Result{CycleID: uuid.NewString(), StartedAt: time.Now().UTC()}

	var (
		mu        sync.Mutex
		opps      []*domain.ArbitrageOpportunity
		evaluated int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, group := range o.units(o.Tradable()) {
		g.Go(func() error {
			for _, u := range group {
				if gctx.Err() != nil {
					return nil
				}
				opp := o.evaluate(gctx, u)
				mu.Lock()
				evaluated++
				if opp != nil {
					opps = append(opps, opp)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	rank(opps)
	if n := o.settings.TopN(); n > 0 && len(opps) > n {
		opps = opps[:n]
	}
	res.Opportunities = opps
	res.Evaluated = evaluated
	for _, c := range o.connectors {
		res.Ledgers = append(res.Ledgers, c.Fees().Ledger())
	}
	res.Duration = time.Since(res.StartedAt)

	o.mu.Lock()
	o.last = &res
	o.mu.Unlock()
	return res
}

// evaluate runs the pipeline for one unit and returns the enriched
// opportunity, or nil.
func (o *Orchestrator) evaluate(ctx context.Context, u unit) (opp *domain.ArbitrageOpportunity) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "evaluation panicked",
				slog.String("symbol", u.canonical),
				slog.String("venue_a", u.a.Venue.Name()),
				slog.String("venue_b", u.b.Venue.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			opp = nil
		}
	}()

	opp, ok := o.detector.CalculateArbitrage(ctx, u.canonical, u.a, u.b)
	if !ok {
		return nil
	}

	buy, sell := u.a, u.b
	if opp.BuyVenue != u.a.Venue.Name() {
		buy, sell = u.b, u.a
	}
	buyBook := o.orderBook(ctx, buy)
	sellBook := o.orderBook(ctx, sell)

	opp.BuySlippage = o.slip.EstimateSlippage(slippage.Key(opp.BuyVenue, u.canonical), opp.BuyTicker, buyBook, opp.Quantity, true)
	opp.SellSlippage = o.slip.EstimateSlippage(slippage.Key(opp.SellVenue, u.canonical), opp.SellTicker, sellBook, opp.Quantity, false)
	if opp.Risk != nil {
		o.scorer.UpdateSlippage(opp.Risk, opp.TotalSlippage()/2)
	}

	minProfit := o.settings.MinProfitPct()
	opp.Viable = opp.Risk != nil &&
		o.scorer.IsOpportunityAcceptable(opp.ProfitPct, opp.Risk, minProfit) &&
		opp.TotalSlippage()*100 <= o.settings.MaxSlippagePct() &&
		opp.ExpectedProfitPct() > 0
	if opp.Viable {
		opp.PositionSize = o.sizer.Size(opp, o.settings.AvailableCapital(), o.settings.MaxPositionPct())
	}

	o.logger.DebugContext(ctx, "opportunity evaluated",
		slog.String("symbol", opp.Symbol),
		slog.String("buy_venue", opp.BuyVenue),
		slog.String("sell_venue", opp.SellVenue),
		slog.Float64("profit_pct", opp.ProfitPct),
		slog.Float64("slippage", opp.TotalSlippage()),
		slog.Bool("viable", opp.Viable),
	)
	return opp
}

// orderBook returns the leg's book, or nil when none is available.
func (o *Orchestrator) orderBook(ctx context.Context, leg arbitrage.Leg) *domain.OrderBook {
	c, ok := leg.Venue.(exchange.Connector)
	if !ok {
		return nil
	}
	ob, err := c.GetOrderBook(ctx, leg.Symbol)
	if err != nil || (len(ob.Bids) == 0 && len(ob.Asks) == 0) {
		return nil
	}
	return &ob
}

// rank orders by profit descending; ties keep symbol order stable.
func rank(opps []*domain.ArbitrageOpportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].ProfitPct != opps[j].ProfitPct {
			return opps[i].ProfitPct > opps[j].ProfitPct
		}
		return opps[i].Symbol < opps[j].Symbol
	})
}

// Run discovers symbols, then scans on every tick until ctx is cancelled.
// Sinks receive each result asynchronously.
func (o *Orchestrator) Run(ctx context.Context) error {
	interval := o.settings.ScanInterval()
	o.logger.InfoContext(ctx, "scan loop starting",
		slog.Duration("interval", interval),
		slog.Int("venues", len(o.connectors)),
		slog.Int("sinks", len(o.sinks)),
	)

	if _, err := o.Discover(ctx); err != nil {
		return fmt.Errorf("scan: discover: %w", err)
	}
	defer func() {
		for _, c := range o.connectors {
			c.CloseWebSocket()
		}
	}()

	var wg sync.WaitGroup
	for _, r := range o.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.run(ctx)
		}()
	}
	defer wg.Wait()

	o.tick(ctx, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("scan loop stopped")
			return nil
		case <-ticker.C:
			o.tick(ctx, interval)
		}
	}
}

// tick runs one cycle under the leader lock, if any, and fans the result
// out to the sinks.
func (o *Orchestrator) tick(ctx context.Context, interval time.Duration) {
	if o.locker != nil {
		unlock, err := o.locker.Acquire(ctx, LeaderKey, 2*interval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				o.logger.DebugContext(ctx, "another scanner holds the leader lock")
			} else {
				o.logger.WarnContext(ctx, "leader lock failed", slog.String("error", err.Error()))
			}
			return
		}
		defer unlock()
	}

	res := o.RunCycle(ctx)
	viable := 0
	for _, opp := range res.Opportunities {
		if opp.Viable {
			viable++
		}
	}
	o.logger.InfoContext(ctx, "scan cycle complete",
		slog.String("cycle_id", res.CycleID),
		slog.Int("evaluated", res.Evaluated),
		slog.Int("opportunities", len(res.Opportunities)),
		slog.Int("viable", viable),
		slog.Duration("duration", res.Duration),
	)
	for _, r := range o.sinks {
		r.offer(res)
	}
}
