// Package sizing recommends position sizes with a fractional Kelly rule.
package sizing

import (
	"math"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

const (
	// DefaultMinPosition is the smallest position worth recommending.
	DefaultMinPosition = 10.0

	maxWinProb   = 0.95
	kellyDamping = 0.5
	minLoss      = 0.01
)

// Sizer computes Kelly-based position sizes.
type Sizer struct {
	MinPosition float64
}

// New returns a Sizer with the given floor; non-positive uses
// DefaultMinPosition.
func New(minPosition float64) *Sizer {
	if minPosition <= 0 {
		minPosition = DefaultMinPosition
	}
	return &Sizer{MinPosition: minPosition}
}

// Size returns the recommended capital to commit to opp. The result is 0 when
// below the floor, otherwise at most availableCapital*maxPositionPct.
// maxPositionPct is a fraction (0.1 = 10%). ProfitPct is used in percent
// units as the payoff term.
func (s *Sizer) Size(opp *domain.ArbitrageOpportunity, availableCapital, maxPositionPct float64) float64 {
	if opp == nil || opp.Risk == nil || availableCapital <= 0 || maxPositionPct <= 0 {
		return 0
	}
	ra := opp.Risk

	winProb := math.Min(maxWinProb, ra.OverallRiskScore*0.9+0.05)
	loss := math.Max(1-ra.Slippage, minLoss)

	kelly := (winProb*(1+opp.ProfitPct) - 1) / loss
	if math.IsNaN(kelly) || kelly <= 0 {
		return 0
	}
	fraction := math.Min(kelly*kellyDamping, maxPositionPct)
	fraction *= math.Pow(unit(ra.Liquidity), 1.5) * math.Pow(unit(ra.Volatility), 1.2)

	size := availableCapital * fraction
	if size < s.MinPosition || math.IsNaN(size) {
		return 0
	}
	return size
}

func unit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
