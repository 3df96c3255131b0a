package slippage

import (
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// DefaultWindow is the number of price points kept per symbol.
const DefaultWindow = 20

type pricePoint struct {
	price float64
	ts    time.Time
}

type series struct {
	mu     sync.Mutex
	points []pricePoint
	cond   domain.MarketCondition
}

// VolatilityTracker keeps a rolling price window per symbol and derives a
// volatility measure and stress flag from it.
type VolatilityTracker struct {
	mu     sync.RWMutex
	series map[string]*series

	window         int
	volThreshold   float64
	spikeThreshold float64
}

// NewVolatilityTracker creates a tracker. A symbol is stressed when its
// return volatility exceeds volThreshold or its latest absolute return
// exceeds spikeThreshold.
func NewVolatilityTracker(volThreshold, spikeThreshold float64) *VolatilityTracker {
	return &VolatilityTracker{
		series:         make(map[string]*series),
		window:         DefaultWindow,
		volThreshold:   volThreshold,
		spikeThreshold: spikeThreshold,
	}
}

func (v *VolatilityTracker) get(symbol string, create bool) *series {
	v.mu.RLock()
	s, ok := v.series[symbol]
	v.mu.RUnlock()
	if ok || !create {
		return s
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok = v.series[symbol]; ok {
		return s
	}
	s = &series{cond: domain.MarketCondition{Symbol: symbol}}
	v.series[symbol] = s
	return s
}

// Update appends a price and returns the refreshed condition. Non-positive
// prices and repeats of the latest point (same price and timestamp) are
// ignored, so a cached ticker read by several venue pairs in one cycle
// counts once.
func (v *VolatilityTracker) Update(symbol string, price float64, ts time.Time) domain.MarketCondition {
	s := v.get(symbol, true)
	s.mu.Lock()
	defer s.mu.Unlock()

	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return s.cond
	}
	if n := len(s.points); n > 0 && s.points[n-1].price == price && s.points[n-1].ts.Equal(ts) {
		return s.cond
	}
	s.points = append(s.points, pricePoint{price: price, ts: ts})
	if len(s.points) > v.window {
		s.points = append(s.points[:0], s.points[len(s.points)-v.window:]...)
	}

	vol, last := returnStats(s.points)
	s.cond = domain.MarketCondition{
		Symbol:     symbol,
		Volatility: vol,
		Stressed:   vol > v.volThreshold || math.Abs(last) > v.spikeThreshold,
		UpdatedAt:  ts,
	}
	return s.cond
}

// Condition returns the latest condition for symbol.
func (v *VolatilityTracker) Condition(symbol string) (domain.MarketCondition, bool) {
	s := v.get(symbol, false)
	if s == nil {
		return domain.MarketCondition{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cond, len(s.points) > 0
}

// Volatility returns the latest volatility for symbol, or 0.
func (v *VolatilityTracker) Volatility(symbol string) float64 {
	c, _ := v.Condition(symbol)
	return c.Volatility
}

// returnStats returns the population standard deviation of successive
// returns and the most recent return.
func returnStats(points []pricePoint) (stddev, last float64) {
	if len(points) < 2 {
		return 0, 0
	}
	rets := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		rets = append(rets, (points[i].price-points[i-1].price)/points[i-1].price)
	}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var ss float64
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	return math.Sqrt(ss / float64(len(rets))), rets[len(rets)-1]
}
