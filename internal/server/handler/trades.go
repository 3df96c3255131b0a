package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/slippage"
)

const maxTradeBody = 64 << 10

// TradeRecorder closes the slippage feedback loop. *slippage.Coordinator
// satisfies it.
type TradeRecorder interface {
	RecordPendingTrade(symbol string, size float64, side domain.Side, predicted float64) string
	RecordTradeExecution(ctx context.Context, tradeID string, executedPrice, expectedPrice float64) (float64, error)
}

// TradeHandler lets an execution system report the legs it placed and what
// they filled at, so realised slippage flows back into the estimator.
type TradeHandler struct {
	source ScanSource
	trades TradeRecorder
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(source ScanSource, trades TradeRecorder, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{source: source, trades: trades, logger: logger.With(slog.String("handler", "trades"))}
}

// pendingRequest names a leg of a reported opportunity, or describes the
// trade directly when OpportunityID is empty.
type pendingRequest struct {
	OpportunityID string `json:"opportunity_id"`
	Leg           string `json:"leg"`

	Venue             string  `json:"venue"`
	Symbol            string  `json:"symbol"`
	Side              string  `json:"side"`
	Size              float64 `json:"size"`
	PredictedSlippage float64 `json:"predicted_slippage"`
	ExpectedPrice     float64 `json:"expected_price"`
}

type pendingResponse struct {
	TradeID           string      `json:"trade_id"`
	Key               string      `json:"key"`
	Side              domain.Side `json:"side"`
	Size              float64     `json:"size"`
	PredictedSlippage float64     `json:"predicted_slippage"`
	ExpectedPrice     float64     `json:"expected_price,omitempty"`
}

// Register POST /api/trades
func (h *TradeHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req pendingRequest
	if err := readBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var resp pendingResponse
	if req.OpportunityID != "" {
		opp := h.findOpportunity(req.OpportunityID)
		if opp == nil {
			writeError(w, http.StatusNotFound, "opportunity not in the latest cycle")
			return
		}
		switch domain.Side(strings.ToLower(req.Leg)) {
		case domain.SideBuy:
			resp = pendingResponse{Key: slippage.Key(opp.BuyVenue, opp.Symbol), Side: domain.SideBuy,
				PredictedSlippage: opp.BuySlippage, ExpectedPrice: opp.BuyPrice}
		case domain.SideSell:
			resp = pendingResponse{Key: slippage.Key(opp.SellVenue, opp.Symbol), Side: domain.SideSell,
				PredictedSlippage: opp.SellSlippage, ExpectedPrice: opp.SellPrice}
		default:
			writeError(w, http.StatusBadRequest, "leg must be buy or sell")
			return
		}
		resp.Size = opp.Quantity
		if req.Size > 0 {
			resp.Size = req.Size
		}
	} else {
		side := domain.Side(strings.ToLower(req.Side))
		sym := strings.ToUpper(strings.TrimSpace(req.Symbol))
		if req.Venue == "" || sym == "" || (side != domain.SideBuy && side != domain.SideSell) || req.Size <= 0 || req.PredictedSlippage < 0 {
			writeError(w, http.StatusBadRequest, "venue, symbol, side and a positive size are required")
			return
		}
		resp = pendingResponse{
			Key:               slippage.Key(strings.ToLower(req.Venue), sym),
			Side:              side,
			Size:              req.Size,
			PredictedSlippage: req.PredictedSlippage,
			ExpectedPrice:     req.ExpectedPrice,
		}
	}

	resp.TradeID = h.trades.RecordPendingTrade(resp.Key, resp.Size, resp.Side, resp.PredictedSlippage)
	h.logger.InfoContext(r.Context(), "pending trade registered",
		slog.String("trade_id", resp.TradeID),
		slog.String("key", resp.Key),
		slog.String("side", string(resp.Side)),
	)
	writeJSON(w, http.StatusCreated, resp)
}

type executionRequest struct {
	ExecutedPrice float64 `json:"executed_price"`
	ExpectedPrice float64 `json:"expected_price"`
}

// RecordExecution POST /api/trades/{id}/execution
func (h *TradeHandler) RecordExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req executionRequest
	if err := readBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	realized, err := h.trades.RecordTradeExecution(r.Context(), id, req.ExecutedPrice, req.ExpectedPrice)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown or expired trade")
		return
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "prices must be positive")
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "record execution failed", slog.String("trade_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to record execution")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trade_id": id, "realized_slippage": realized})
}

func (h *TradeHandler) findOpportunity(id string) *domain.ArbitrageOpportunity {
	last := h.source.Last()
	if last == nil {
		return nil
	}
	for _, o := range last.Opportunities {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func readBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxTradeBody))
	if err != nil {
		return err
	}
	return sonnet.Unmarshal(data, v)
}
