package domain

import "time"

// MarketCondition is the latest volatility state of a symbol.
type MarketCondition struct {
	Symbol     string    `json:"symbol"`
	Volatility float64   `json:"volatility"`
	Stressed   bool      `json:"stressed"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SlippageHistory is a running mean of (predicted - actual) slippage error.
type SlippageHistory struct {
	Count     int       `json:"count"`
	MeanError float64   `json:"mean_error"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PendingTrade is a trade whose slippage was predicted and whose execution is
// still awaited.
type PendingTrade struct {
	ID                string    `json:"id"`
	Symbol            string    `json:"symbol"`
	Size              float64   `json:"size"`
	Side              Side      `json:"side"`
	PredictedSlippage float64   `json:"predicted_slippage"`
	CreatedAt         time.Time `json:"created_at"`
}

// SlippageFeedback is one realised prediction outcome.
type SlippageFeedback struct {
	TradeID           string    `json:"trade_id"`
	Symbol            string    `json:"symbol"`
	Side              Side      `json:"side"`
	Size              float64   `json:"size"`
	PredictedSlippage float64   `json:"predicted_slippage"`
	RealizedSlippage  float64   `json:"realized_slippage"`
	ExpectedPrice     float64   `json:"expected_price"`
	ExecutedPrice     float64   `json:"executed_price"`
	RecordedAt        time.Time `json:"recorded_at"`
}
