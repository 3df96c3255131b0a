// Package risk scores arbitrage opportunities on ten market factors.
package risk

import (
	"log/slog"
	"math"
	"sync"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Placeholder inputs. There is no regime, sentiment or predictive model; these
// constants stand in for one.
const (
	RegimeBaseline   = 0.7
	SentimentNeutral = 0.65
	PredictionFactor = 0.95
	ConfidenceFixed  = 0.75
)

// MinOverallScore is the score below which an opportunity is always rejected.
const MinOverallScore = 0.4

// EarlyWarningProfitMultiplier scales the profit threshold once an early
// warning is raised.
const EarlyWarningProfitMultiplier = 1.5

const (
	liquidityVolume = 1000.0
	depthVolume     = 2000.0
	maxSlippage     = 0.01
)

// Warning indicator names.
const (
	WarnLiquidity   = "liquidity"
	WarnVolatility  = "volatility"
	WarnSlippage    = "slippage"
	WarnMarketDepth = "market_depth"
	WarnAnomaly     = "anomaly"
)

// Thresholds configure the early-warning indicators. Volatility, slippage and
// anomaly are checked on the inverted score (1 - component), so they trigger
// when the inverted value exceeds the threshold.
type Thresholds struct {
	MinLiquidity   float64 `toml:"min_liquidity"`
	MaxVolatility  float64 `toml:"max_volatility"`
	MaxSlippage    float64 `toml:"max_slippage"`
	MinMarketDepth float64 `toml:"min_market_depth"`
	MaxAnomaly     float64 `toml:"max_anomaly"`
}

// DefaultThresholds returns the stock warning thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinLiquidity:   0.2,
		MaxVolatility:  0.8,
		MaxSlippage:    0.8,
		MinMarketDepth: 0.2,
		MaxAnomaly:     0.5,
	}
}

// Scorer computes RiskAssessments. It is safe for concurrent use; weights may
// be swapped while scans run.
type Scorer struct {
	mu         sync.RWMutex
	weights    Weights
	regime     string
	thresholds Thresholds
	logger     *slog.Logger
}

// NewScorer creates a Scorer with default weights.
func NewScorer(th Thresholds, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		weights:    DefaultWeights(),
		regime:     RegimeDefault,
		thresholds: th,
		logger:     logger.With(slog.String("component", "risk_scorer")),
	}
}

// UpdateRiskWeights swaps in the preset weights for regime.
func (s *Scorer) UpdateRiskWeights(regime string) {
	w := PresetWeights(regime)
	s.mu.Lock()
	s.weights = w
	s.regime = regime
	s.mu.Unlock()
	s.logger.Info("risk weights updated", slog.String("regime", regime))
}

// SetWeights installs a custom weight vector.
func (s *Scorer) SetWeights(w Weights) error {
	if err := w.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.weights = w.clone()
	s.regime = "custom"
	s.mu.Unlock()
	return nil
}

// Weights returns a copy of the active weights and their regime name.
func (s *Scorer) Weights() (Weights, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights.clone(), s.regime
}

// CalculateRisk scores a buy/sell ticker pair given the fractional taker fee
// rate on each leg.
func (s *Scorer) CalculateRisk(buy, sell domain.Ticker, buyFeeRate, sellFeeRate float64) *domain.RiskAssessment {
	buyVol := nonNeg(buy.Volume)
	sellVol := nonNeg(sell.Volume)
	avgVol := (buyVol + sellVol) / 2
	sumVol := buyVol + sellVol

	avgRelSpread := (buy.RelSpread() + sell.RelSpread()) / 2
	spreadFactor := 1 - math.Min(avgRelSpread*100, 1)
	volFactor := math.Min(sumVol/depthVolume, 1)

	volRatio := 0.0
	if hi := math.Max(buyVol, sellVol); hi > 0 {
		volRatio = math.Min(buyVol, sellVol) / hi
	}

	totalFeePct := (buyFeeRate + sellFeeRate) * 100
	relDiff := relLastPriceDiff(buy, sell)

	ra := &domain.RiskAssessment{
		Liquidity:      clamp01(avgVol / liquidityVolume),
		Volatility:     clamp01(spreadFactor),
		FeeImpact:      clamp01(1 - totalFeePct),
		MarketDepth:    clamp01(0.5*volRatio + 0.5*volFactor),
		ExecutionSpeed: clamp01(0.7*volFactor + 0.3*spreadFactor),
		Slippage:       clamp01(0.6*volFactor + 0.4*spreadFactor),
		Sentiment:      SentimentNeutral,
		Anomaly:        clamp01(1 - relDiff*10),
		Correlation:    clamp01(1 - relDiff*10),
		Warnings:       make(map[string]domain.WarningIndicator, 5),
		Confidence:     ConfidenceFixed,
	}
	ra.MarketRegime = clamp01(0.5*RegimeBaseline + 0.5*ra.Volatility)

	s.refresh(ra)
	return ra
}

// UpdateSlippage folds a slippage estimate (fraction of price) into the
// slippage component and refreshes the composite score and warnings. The
// early-warning flag is never cleared by an update.
func (s *Scorer) UpdateSlippage(ra *domain.RiskAssessment, estimate float64) {
	if ra == nil {
		return
	}
	est := clamp01(1 - nonNeg(estimate)/maxSlippage)
	ra.Slippage = clamp01((ra.Slippage + est) / 2)
	s.refresh(ra)
}

func (s *Scorer) refresh(ra *domain.RiskAssessment) {
	s.mu.RLock()
	w := s.weights
	th := s.thresholds
	s.mu.RUnlock()

	ra.OverallRiskScore = overall(ra, w)
	ra.PredictedRisk = ra.OverallRiskScore * PredictionFactor
	s.checkWarnings(ra, th)
}

func overall(ra *domain.RiskAssessment, w Weights) float64 {
	var num, den float64
	for _, name := range domain.RiskComponents {
		wt := w[name]
		if wt <= 0 {
			continue
		}
		num += wt * clamp01(ra.Component(name))
		den += wt
	}
	if den <= 0 {
		return 0
	}
	return clamp01(num / den)
}

func (s *Scorer) checkWarnings(ra *domain.RiskAssessment, th Thresholds) {
	if ra.Warnings == nil {
		ra.Warnings = make(map[string]domain.WarningIndicator, 5)
	}
	set := func(name string, value, threshold float64, triggered bool) {
		ra.Warnings[name] = domain.WarningIndicator{Value: value, Threshold: threshold, Triggered: triggered}
		if triggered {
			ra.EarlyWarningTriggered = true
		}
	}

	set(WarnLiquidity, ra.Liquidity, th.MinLiquidity, ra.Liquidity < th.MinLiquidity)
	invVol := 1 - ra.Volatility
	set(WarnVolatility, invVol, th.MaxVolatility, invVol > th.MaxVolatility)
	invSlip := 1 - ra.Slippage
	set(WarnSlippage, invSlip, th.MaxSlippage, invSlip > th.MaxSlippage)
	set(WarnMarketDepth, ra.MarketDepth, th.MinMarketDepth, ra.MarketDepth < th.MinMarketDepth)
	invAnom := 1 - ra.Anomaly
	set(WarnAnomaly, invAnom, th.MaxAnomaly, invAnom > th.MaxAnomaly)
}

// IsOpportunityAcceptable applies the acceptance rules: a composite score
// below MinOverallScore is always rejected, profit must reach minProfitPct,
// and an early warning raises the bar to EarlyWarningProfitMultiplier times
// the threshold.
func (s *Scorer) IsOpportunityAcceptable(profitPct float64, ra *domain.RiskAssessment, minProfitPct float64) bool {
	if ra == nil || math.IsNaN(profitPct) {
		return false
	}
	if ra.OverallRiskScore < MinOverallScore {
		return false
	}
	if profitPct < minProfitPct {
		return false
	}
	if ra.EarlyWarningTriggered && profitPct <= minProfitPct*EarlyWarningProfitMultiplier {
		return false
	}
	return true
}

func relLastPriceDiff(a, b domain.Ticker) float64 {
	pa, pb := a.Price(), b.Price()
	mean := (pa + pb) / 2
	if pa <= 0 || pb <= 0 || mean <= 0 {
		return 1
	}
	return math.Abs(pa-pb) / mean
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nonNeg(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
