package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/slippage"
)

// HistoryHandler serves persisted opportunities and slippage feedback.
type HistoryHandler struct {
	opps     domain.OpportunityStore
	feedback domain.FeedbackStore
	logger   *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(opps domain.OpportunityStore, feedback domain.FeedbackStore, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{opps: opps, feedback: feedback, logger: logger.With(slog.String("handler", "history"))}
}

// ListOpportunities GET /api/history/opportunities?limit=
func (h *HistoryHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	opps, err := h.opps.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list opportunities failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if opps == nil {
		opps = []domain.ArbitrageOpportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(opps), "opportunities": opps})
}

// ListFeedback GET /api/history/feedback/{symbol}?limit=&venue=
// The symbol is canonical with the slash replaced by a dash (BTC-USDT).
// venue narrows the rows to one venue's leg.
func (h *HistoryHandler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	sym := canonicalFromPath(r.PathValue("symbol"))
	if sym == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	if v := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("venue"))); v != "" {
		sym = slippage.Key(v, sym)
	}
	rows, err := h.feedback.ListBySymbol(r.Context(), sym, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list feedback failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load feedback")
		return
	}
	if rows == nil {
		rows = []domain.SlippageFeedback{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": sym, "count": len(rows), "feedback": rows})
}
