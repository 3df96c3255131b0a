// Package arbitrage finds cross-venue price discrepancies net of fees.
package arbitrage

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/fee"
	"github.com/alanyoungcy/arbscanner/internal/risk"
)

// Quoter is the part of a venue connector the detector needs.
type Quoter interface {
	Name() string
	GetTicker(ctx context.Context, symbol string) (domain.Ticker, error)
	Fees() *fee.Tracker
}

// Leg addresses a canonical symbol on one venue by its native symbol.
type Leg struct {
	Venue  Quoter
	Symbol string
}

// Detector evaluates both trade directions for a symbol across a venue pair.
type Detector struct {
	scorer       *risk.Scorer
	minProfitPct float64
	logger       *slog.Logger
	now          func() time.Time
}

// DetectorConfig configures the detector.
type DetectorConfig struct {
	Scorer       *risk.Scorer
	MinProfitPct float64
	Logger       *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(cfg DetectorConfig) *Detector {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		scorer:       cfg.Scorer,
		minProfitPct: cfg.MinProfitPct,
		logger:       logger.With(slog.String("component", "arb_detector")),
		now:          time.Now,
	}
}

// ReferenceQuantity returns the trade size, in base units, used to compare
// notionals across assets of very different unit price.
func ReferenceQuantity(price float64) float64 {
	switch {
	case price < 0.001:
		return 1_000_000
	case price < 1:
		return 1_000
	case price < 100:
		return 10
	default:
		return 0.01
	}
}

// direction is one candidate trade: buy on one leg, sell on the other.
type direction struct {
	buy, sell         Leg
	buyTk, sellTk     domain.Ticker
	buyRate, sellRate float64
	netPct            float64
}

// CalculateArbitrage returns the more profitable direction for canonical
// across a and b when its net profit exceeds the minimum threshold. Missing
// tickers or non-positive prices yield no opportunity.
func (d *Detector) CalculateArbitrage(ctx context.Context, canonical string, a, b Leg) (*domain.ArbitrageOpportunity, bool) {
	log := d.logger.With(
		slog.String("symbol", canonical),
		slog.String("venue_a", a.Venue.Name()),
		slog.String("venue_b", b.Venue.Name()),
	)

	tkA, err := a.Venue.GetTicker(ctx, a.Symbol)
	if err != nil {
		log.DebugContext(ctx, "ticker unavailable", slog.String("venue", a.Venue.Name()), slog.String("error", err.Error()))
		return nil, false
	}
	tkB, err := b.Venue.GetTicker(ctx, b.Symbol)
	if err != nil {
		log.DebugContext(ctx, "ticker unavailable", slog.String("venue", b.Venue.Name()), slog.String("error", err.Error()))
		return nil, false
	}

	qty := ReferenceQuantity((tkA.Ask + tkB.Ask) / 2)

	ab := evaluate(a, b, tkA, tkB, qty)
	ba := evaluate(b, a, tkB, tkA, qty)
	best := ab
	if ba.netPct > ab.netPct || math.IsNaN(ab.netPct) {
		best = ba
	}
	if math.IsNaN(best.netPct) || math.IsInf(best.netPct, 0) {
		log.DebugContext(ctx, "degenerate prices, skipping")
		return nil, false
	}

	// Fee analytics: one simulated taker fill per leg.
	best.buy.Venue.Fees().RecordTaker(best.buyTk.Ask * qty)
	best.sell.Venue.Fees().RecordTaker(best.sellTk.Bid * qty)

	if best.netPct <= d.minProfitPct {
		log.DebugContext(ctx, "below profit threshold", slog.Float64("net_pct", best.netPct))
		return nil, false
	}

	diffPct := (best.sellTk.Bid - best.buyTk.Ask) / best.buyTk.Ask * 100
	feePct := (best.buyRate + best.sellRate) * 100

	opp := &domain.ArbitrageOpportunity{
		ID:           uuid.NewString(),
		Symbol:       canonical,
		BuySymbol:    best.buy.Symbol,
		SellSymbol:   best.sell.Symbol,
		BuyVenue:     best.buy.Venue.Name(),
		SellVenue:    best.sell.Venue.Name(),
		BuyPrice:     best.buyTk.Ask,
		SellPrice:    best.sellTk.Bid,
		PriceDiffPct: diffPct,
		ProfitPct:    diffPct - feePct,
		FeePct:       feePct,
		BuyFeeRate:   best.buyRate,
		SellFeeRate:  best.sellRate,
		Quantity:     qty,
		BuyTicker:    best.buyTk,
		SellTicker:   best.sellTk,
		DetectedAt:   d.now().UTC(),
	}
	if d.scorer != nil {
		opp.Risk = d.scorer.CalculateRisk(best.buyTk, best.sellTk, best.buyRate, best.sellRate)
	}

	log.DebugContext(ctx, "opportunity detected",
		slog.String("buy_venue", opp.BuyVenue),
		slog.String("sell_venue", opp.SellVenue),
		slog.Float64("profit_pct", opp.ProfitPct),
	)
	return opp, true
}

// evaluate computes net profit for buying at buy's ask and selling at sell's
// bid with taker fees on both legs, as a percentage of buy notional.
func evaluate(buy, sell Leg, buyTk, sellTk domain.Ticker, qty float64) direction {
	dir := direction{buy: buy, sell: sell, buyTk: buyTk, sellTk: sellTk, netPct: math.NaN()}
	if buyTk.Ask <= 0 || sellTk.Bid <= 0 || !finite(buyTk.Ask) || !finite(sellTk.Bid) {
		return dir
	}
	buyNotional := buyTk.Ask * qty
	sellNotional := sellTk.Bid * qty
	buyFee := buy.Venue.Fees().Taker().CalculateFee(buyNotional)
	sellFee := sell.Venue.Fees().Taker().CalculateFee(sellNotional)

	dir.buyRate = buyFee / buyNotional
	dir.sellRate = sellFee / sellNotional
	dir.netPct = ((sellNotional - sellFee) - (buyNotional + buyFee)) / buyNotional * 100
	return dir
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
