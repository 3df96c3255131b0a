package risk

import (
	"fmt"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Weights maps a risk component name to its weight. Weights need not sum to
// one; the overall score divides by their sum.
type Weights map[string]float64

// Regime names accepted by UpdateRiskWeights.
const (
	RegimeDefault  = "default"
	RegimeVolatile = "volatile"
	RegimeStable   = "stable"
	RegimeIlliquid = "illiquid"
)

// DefaultWeights is the neutral weight vector.
func DefaultWeights() Weights {
	return Weights{
		domain.RiskLiquidity:      0.3,
		domain.RiskVolatility:     0.3,
		domain.RiskFeeImpact:      0.4,
		domain.RiskMarketDepth:    0.2,
		domain.RiskExecutionSpeed: 0.2,
		domain.RiskSlippage:       0.2,
		domain.RiskMarketRegime:   0.1,
		domain.RiskSentiment:      0.1,
		domain.RiskAnomaly:        0.2,
		domain.RiskCorrelation:    0.1,
	}
}

// PresetWeights returns the weight vector for a regime. Unknown regimes get
// DefaultWeights.
func PresetWeights(regime string) Weights {
	switch regime {
	case RegimeVolatile:
		return Weights{
			domain.RiskLiquidity:      0.25,
			domain.RiskVolatility:     0.45,
			domain.RiskFeeImpact:      0.3,
			domain.RiskMarketDepth:    0.2,
			domain.RiskExecutionSpeed: 0.3,
			domain.RiskSlippage:       0.35,
			domain.RiskMarketRegime:   0.2,
			domain.RiskSentiment:      0.05,
			domain.RiskAnomaly:        0.3,
			domain.RiskCorrelation:    0.1,
		}
	case RegimeStable:
		return Weights{
			domain.RiskLiquidity:      0.3,
			domain.RiskVolatility:     0.15,
			domain.RiskFeeImpact:      0.5,
			domain.RiskMarketDepth:    0.15,
			domain.RiskExecutionSpeed: 0.15,
			domain.RiskSlippage:       0.15,
			domain.RiskMarketRegime:   0.05,
			domain.RiskSentiment:      0.1,
			domain.RiskAnomaly:        0.15,
			domain.RiskCorrelation:    0.1,
		}
	case RegimeIlliquid:
		return Weights{
			domain.RiskLiquidity:      0.5,
			domain.RiskVolatility:     0.25,
			domain.RiskFeeImpact:      0.3,
			domain.RiskMarketDepth:    0.4,
			domain.RiskExecutionSpeed: 0.3,
			domain.RiskSlippage:       0.35,
			domain.RiskMarketRegime:   0.1,
			domain.RiskSentiment:      0.05,
			domain.RiskAnomaly:        0.2,
			domain.RiskCorrelation:    0.1,
		}
	}
	return DefaultWeights()
}

func (w Weights) clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

func (w Weights) validate() error {
	var sum float64
	for name, v := range w {
		if v < 0 {
			return fmt.Errorf("risk: negative weight %v for %s: %w", v, name, domain.ErrInvalidInput)
		}
		sum += v
	}
	if sum <= 0 {
		return fmt.Errorf("risk: weights sum to zero: %w", domain.ErrInvalidInput)
	}
	return nil
}
