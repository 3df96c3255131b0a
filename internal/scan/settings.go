package scan

import "time"

// Settings is the typed view of configuration the scan loop reads. Getters
// return defaults when unset.
type Settings interface {
	MinProfitPct() float64
	MaxPositionPct() float64
	MaxSlippagePct() float64
	ScanInterval() time.Duration
	AvailableCapital() float64
	TopN() int
}

// Default thresholds.
const (
	DefaultMinProfitPct     = 0.1
	DefaultMaxPositionPct   = 0.1
	DefaultMaxSlippagePct   = 0.5
	DefaultScanInterval     = 5 * time.Second
	DefaultAvailableCapital = 10_000.0
)

// Params is a static Settings. Zero fields fall back to the defaults above;
// TopN 0 keeps every opportunity. MinProfit is taken as given, zero
// included, once MinProfitSet is true.
type Params struct {
	MinProfit    float64
	MinProfitSet bool
	MaxPosition  float64
	MaxSlippage  float64
	Interval     time.Duration
	Capital      float64
	Top          int
}

func (p Params) MinProfitPct() float64 {
	if p.MinProfitSet {
		return max(p.MinProfit, 0)
	}
	if p.MinProfit <= 0 {
		return DefaultMinProfitPct
	}
	return p.MinProfit
}

func (p Params) MaxPositionPct() float64 {
	if p.MaxPosition <= 0 {
		return DefaultMaxPositionPct
	}
	return p.MaxPosition
}

func (p Params) MaxSlippagePct() float64 {
	if p.MaxSlippage <= 0 {
		return DefaultMaxSlippagePct
	}
	return p.MaxSlippage
}

func (p Params) ScanInterval() time.Duration {
	if p.Interval <= 0 {
		return DefaultScanInterval
	}
	return p.Interval
}

func (p Params) AvailableCapital() float64 {
	if p.Capital <= 0 {
		return DefaultAvailableCapital
	}
	return p.Capital
}

func (p Params) TopN() int { return p.Top }
