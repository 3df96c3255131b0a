package domain

import "time"

// ArbitrageOpportunity is a cross-venue price discrepancy for one canonical
// symbol. It is built by the detector, enriched with slippage and sizing by
// the scan pipeline, and read-only once published.
type ArbitrageOpportunity struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	BuySymbol  string `json:"buy_symbol"`
	SellSymbol string `json:"sell_symbol"`
	BuyVenue   string `json:"buy_venue"`
	SellVenue  string `json:"sell_venue"`

	BuyPrice     float64 `json:"buy_price"`
	SellPrice    float64 `json:"sell_price"`
	PriceDiffPct float64 `json:"price_diff_pct"`
	ProfitPct    float64 `json:"profit_pct"`
	FeePct       float64 `json:"fee_pct"`
	BuyFeeRate   float64 `json:"buy_fee_rate"`
	SellFeeRate  float64 `json:"sell_fee_rate"`
	BuyIsMaker   bool    `json:"buy_is_maker"`
	SellIsMaker  bool    `json:"sell_is_maker"`
	Quantity     float64 `json:"quantity"`

	Risk       *RiskAssessment `json:"risk"`
	BuyTicker  Ticker          `json:"buy_ticker"`
	SellTicker Ticker          `json:"sell_ticker"`

	BuySlippage  float64 `json:"buy_slippage"`
	SellSlippage float64 `json:"sell_slippage"`
	PositionSize float64 `json:"position_size"`
	Viable       bool    `json:"viable"`

	DetectedAt time.Time `json:"detected_at"`
}

// TotalSlippage is the combined slippage fraction of both legs.
func (o ArbitrageOpportunity) TotalSlippage() float64 {
	return o.BuySlippage + o.SellSlippage
}

// ExpectedProfitPct is the net profit after fees and estimated slippage.
func (o ArbitrageOpportunity) ExpectedProfitPct() float64 {
	return o.ProfitPct - o.TotalSlippage()*100
}

// FeeLedger is the analytics summary of simulated taker charges on a venue.
type FeeLedger struct {
	Venue        string    `json:"venue"`
	FeeType      string    `json:"fee_type"`
	Description  string    `json:"description"`
	Transactions int64     `json:"transactions"`
	Notional     float64   `json:"notional"`
	Fees         float64   `json:"fees"`
	UpdatedAt    time.Time `json:"updated_at"`
}
