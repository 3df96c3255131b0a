package domain

// Risk component names. Each component score lies in [0,1] with 1.0 the
// favourable end.
const (
	RiskLiquidity      = "liquidity"
	RiskVolatility     = "volatility"
	RiskFeeImpact      = "fee_impact"
	RiskMarketDepth    = "market_depth"
	RiskExecutionSpeed = "execution_speed"
	RiskSlippage       = "slippage"
	RiskMarketRegime   = "market_regime"
	RiskSentiment      = "sentiment"
	RiskAnomaly        = "anomaly"
	RiskCorrelation    = "correlation"
)

// RiskComponents lists every component in a stable order.
var RiskComponents = []string{
	RiskLiquidity,
	RiskVolatility,
	RiskFeeImpact,
	RiskMarketDepth,
	RiskExecutionSpeed,
	RiskSlippage,
	RiskMarketRegime,
	RiskSentiment,
	RiskAnomaly,
	RiskCorrelation,
}

// WarningIndicator is one early-warning check.
type WarningIndicator struct {
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Triggered bool    `json:"triggered"`
}

// RiskAssessment is the multi-factor score attached to an opportunity.
type RiskAssessment struct {
	Liquidity      float64 `json:"liquidity"`
	Volatility     float64 `json:"volatility"`
	FeeImpact      float64 `json:"fee_impact"`
	MarketDepth    float64 `json:"market_depth"`
	ExecutionSpeed float64 `json:"execution_speed"`
	Slippage       float64 `json:"slippage"`
	MarketRegime   float64 `json:"market_regime"`
	Sentiment      float64 `json:"sentiment"`
	Anomaly        float64 `json:"anomaly"`
	Correlation    float64 `json:"correlation"`

	OverallRiskScore float64 `json:"overall_risk_score"`

	Warnings              map[string]WarningIndicator `json:"warnings"`
	EarlyWarningTriggered bool                        `json:"early_warning_triggered"`

	// Placeholders: there is no predictive model behind these.
	PredictedRisk float64 `json:"predicted_risk"`
	Confidence    float64 `json:"confidence"`
}

// Component returns the named component score.
func (r *RiskAssessment) Component(name string) float64 {
	switch name {
	case RiskLiquidity:
		return r.Liquidity
	case RiskVolatility:
		return r.Volatility
	case RiskFeeImpact:
		return r.FeeImpact
	case RiskMarketDepth:
		return r.MarketDepth
	case RiskExecutionSpeed:
		return r.ExecutionSpeed
	case RiskSlippage:
		return r.Slippage
	case RiskMarketRegime:
		return r.MarketRegime
	case RiskSentiment:
		return r.Sentiment
	case RiskAnomaly:
		return r.Anomaly
	case RiskCorrelation:
		return r.Correlation
	}
	return 0
}
