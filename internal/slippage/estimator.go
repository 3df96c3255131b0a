// Package slippage estimates execution slippage from ticker and order-book
// data, calibrates it to market conditions and corrects it with realised
// feedback.
package slippage

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Estimate bounds and defaults, all as fractions of price.
const (
	MinSlippage     = 0.0001
	MaxSlippage     = 0.01
	DefaultSlippage = 0.005

	// MinObservations is how much feedback a symbol needs before its
	// historical bias is applied.
	MinObservations = 5

	baseSlippage     = 0.001
	unfilledPenalty  = 0.03
	offHoursFactor   = 1.2
	stressFactor     = 1.5
	buySideFactor    = 1.1
	sellSideFactor   = 0.9
	referenceVolume  = 1000.0
	sizeImpactWeight = 0.01
)

// ConditionSource reports the latest market condition per symbol.
type ConditionSource interface {
	Condition(symbol string) (domain.MarketCondition, bool)
}

// Estimator computes slippage estimates. It never panics to the caller.
type Estimator struct {
	conditions ConditionSource
	liquidFrom int
	liquidTo   int
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.RWMutex
	history map[string]*domain.SlippageHistory
}

// NewEstimator creates an Estimator. liquidHours is a [from, to) UTC hour
// window; outside it estimates are inflated. conditions may be nil.
func NewEstimator(conditions ConditionSource, liquidHours [2]int, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{
		conditions: conditions,
		liquidFrom: liquidHours[0],
		liquidTo:   liquidHours[1],
		now:        time.Now,
		logger:     logger.With(slog.String("component", "slippage_estimator")),
		history:    make(map[string]*domain.SlippageHistory),
	}
}

// Estimate returns the expected slippage fraction for a trade of tradeSize
// base units. ob may be nil. The result always lies in
// [MinSlippage, MaxSlippage]; invalid input yields DefaultSlippage.
func (e *Estimator) Estimate(t domain.Ticker, ob *domain.OrderBook, tradeSize float64, isBuy bool, symbol string) (est float64) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("slippage estimate panicked",
				slog.String("symbol", symbol),
				slog.Any("panic", r),
			)
			est = DefaultSlippage
		}
	}()

	if !t.Valid() || !finite(t.Bid) || !finite(t.Ask) || tradeSize < 0 || !finite(tradeSize) {
		return DefaultSlippage
	}

	s := e.BaseSlippage(t, tradeSize, isBuy)
	if ob != nil {
		if depth, ok := DepthSlippage(*ob, tradeSize, isBuy); ok {
			s = math.Max(s, depth)
		}
	}
	s = e.calibrate(s, symbol)
	s = e.applyHistory(s, symbol)

	if !finite(s) {
		return DefaultSlippage
	}
	return clamp(s)
}

// BaseSlippage is the ticker-only estimate before calibration.
func (e *Estimator) BaseSlippage(t domain.Ticker, tradeSize float64, isBuy bool) float64 {
	vol := t.Volume
	if vol < 0 || math.IsNaN(vol) {
		vol = 0
	}

	sizeImpact := sizeImpactWeight
	if vol > 0 {
		sizeImpact = math.Min(tradeSize/vol, 1) * sizeImpactWeight
	}
	spreadImpact := t.RelSpread() * 0.5
	volumeFactor := math.Min(vol/referenceVolume, 1)

	s := (baseSlippage + sizeImpact + spreadImpact) * (1 - volumeFactor*0.5)
	if isBuy {
		return s * buySideFactor
	}
	return s * sellSideFactor
}

// DepthSlippage walks the asks (buy) or bids (sell) until tradeSize is
// filled. Any unfilled remainder is priced off the last level with a 3%
// penalty. It reports false when the relevant side is empty or the size is
// not positive.
func DepthSlippage(ob domain.OrderBook, tradeSize float64, isBuy bool) (float64, bool) {
	levels := ob.Bids
	if isBuy {
		levels = ob.Asks
	}
	if len(levels) == 0 || tradeSize <= 0 {
		return 0, false
	}
	best := levels[0].Price
	if best <= 0 {
		return 0, false
	}

	remaining := tradeSize
	var cost, last float64
	for _, l := range levels {
		take := math.Min(remaining, l.Volume)
		cost += take * l.Price
		remaining -= take
		last = l.Price
		if remaining <= 0 {
			break
		}
	}
	if remaining > 0 {
		penalised := last * (1 - unfilledPenalty)
		if isBuy {
			penalised = last * (1 + unfilledPenalty)
		}
		cost += remaining * penalised
	}
	avg := cost / tradeSize
	return math.Abs(avg-best) / best, true
}

func (e *Estimator) calibrate(s float64, symbol string) float64 {
	if !e.inLiquidHours(e.now().UTC().Hour()) {
		s *= offHoursFactor
	}
	if e.conditions == nil {
		return s
	}
	if c, ok := e.conditions.Condition(symbol); ok {
		s *= 1 + c.Volatility*0.5
		if c.Stressed {
			s *= stressFactor
		}
	}
	return s
}

func (e *Estimator) inLiquidHours(h int) bool {
	from, to := e.liquidFrom, e.liquidTo
	if from == to {
		return true
	}
	if from < to {
		return h >= from && h < to
	}
	return h >= from || h < to
}

func (e *Estimator) applyHistory(s float64, symbol string) float64 {
	e.mu.RLock()
	h, ok := e.history[symbol]
	var count int
	var mean float64
	if ok {
		count, mean = h.Count, h.MeanError
	}
	e.mu.RUnlock()

	if count >= MinObservations && mean < 0 {
		return s * (1 - mean)
	}
	return s
}

// RecordObservation folds one (predicted, actual) pair into the symbol's
// running mean error.
func (e *Estimator) RecordObservation(symbol string, predicted, actual float64) {
	if !finite(predicted) || !finite(actual) {
		return
	}
	diff := predicted - actual
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.history[symbol]
	if !ok {
		h = &domain.SlippageHistory{}
		e.history[symbol] = h
	}
	h.Count++
	h.MeanError += (diff - h.MeanError) / float64(h.Count)
	h.UpdatedAt = e.now()
}

// History returns a copy of the symbol's feedback history.
func (e *Estimator) History(symbol string) (domain.SlippageHistory, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.history[symbol]
	if !ok {
		return domain.SlippageHistory{}, false
	}
	return *h, true
}

// PurgeHistory drops histories not updated since cutoff.
func (e *Estimator) PurgeHistory(cutoff time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for sym, h := range e.history {
		if h.UpdatedAt.Before(cutoff) {
			delete(e.history, sym)
			n++
		}
	}
	return n
}

func clamp(v float64) float64 {
	if v < MinSlippage {
		return MinSlippage
	}
	if v > MaxSlippage {
		return MaxSlippage
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
