package handler

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/exchange"
)

// ScanHandler serves the latest cycle and connector state.
type ScanHandler struct {
	source ScanSource
}

// NewScanHandler creates a ScanHandler.
func NewScanHandler(source ScanSource) *ScanHandler {
	return &ScanHandler{source: source}
}

type opportunitiesResponse struct {
	CycleID       string                         `json:"cycle_id,omitempty"`
	StartedAt     *time.Time                     `json:"started_at,omitempty"`
	DurationMs    int64                          `json:"duration_ms"`
	Evaluated     int                            `json:"evaluated"`
	Count         int                            `json:"count"`
	Opportunities []*domain.ArbitrageOpportunity `json:"opportunities"`
}

// ListOpportunities returns the last cycle's ranked opportunities.
// GET /api/opportunities?limit=&viable=true&symbol=BTC/USDT
func (h *ScanHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	q := r.URL.Query()
	viableOnly := q.Get("viable") == "true"
	sym := strings.ToUpper(strings.TrimSpace(q.Get("symbol")))

	resp := opportunitiesResponse{Opportunities: []*domain.ArbitrageOpportunity{}}
	last := h.source.Last()
	if last != nil {
		started := last.StartedAt
		resp.CycleID = last.CycleID
		resp.StartedAt = &started
		resp.DurationMs = last.Duration.Milliseconds()
		resp.Evaluated = last.Evaluated
		for _, o := range last.Opportunities {
			if viableOnly && !o.Viable {
				continue
			}
			if sym != "" && o.Symbol != sym {
				continue
			}
			resp.Opportunities = append(resp.Opportunities, o)
			if len(resp.Opportunities) == limit {
				break
			}
		}
	}
	resp.Count = len(resp.Opportunities)
	writeJSON(w, http.StatusOK, resp)
}

type venueStatus struct {
	exchange.Status
	TradableSymbols int `json:"tradable_symbols"`
}

// ListVenues returns each connector's health and how many tradable symbols
// it contributes.
// GET /api/venues
func (h *ScanHandler) ListVenues(w http.ResponseWriter, r *http.Request) {
	tradable := h.source.Tradable()
	conns := h.source.Connectors()
	out := make([]venueStatus, 0, len(conns))
	for _, c := range conns {
		out = append(out, venueStatus{
			Status:          c.Status(),
			TradableSymbols: len(tradable.Native[c.Name()]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Venue < out[j].Venue })
	writeJSON(w, http.StatusOK, map[string]any{
		"venues":           out,
		"tradable_symbols": len(tradable.Symbols),
	})
}

// ListLedgers returns the per-venue simulated fee ledgers of the last cycle.
// GET /api/ledgers
func (h *ScanHandler) ListLedgers(w http.ResponseWriter, r *http.Request) {
	ledgers := []domain.FeeLedger{}
	if last := h.source.Last(); last != nil && last.Ledgers != nil {
		ledgers = last.Ledgers
	}
	writeJSON(w, http.StatusOK, map[string]any{"ledgers": ledgers})
}
