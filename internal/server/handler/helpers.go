// Package handler implements the HTTP API over the scanner state. Every
// route reads except the trade feedback endpoints.
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbscanner/internal/exchange"
	"github.com/alanyoungcy/arbscanner/internal/scan"
	"github.com/alanyoungcy/arbscanner/internal/symbol"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ScanSource is the scanner state the handlers read. *scan.Orchestrator
// satisfies it.
type ScanSource interface {
	Last() *scan.Result
	Connectors() []exchange.Connector
	Tradable() symbol.Tradable
}

// writeJSON falls back to a plain 500 when v cannot be encoded.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonnet.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseLimit reads ?limit=, defaulting to 50 and capping at 500. A
// malformed value is an error.
func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, strconv.ErrSyntax
	}
	return min(n, maxLimit), nil
}

// canonicalFromPath maps a URL-safe symbol ("BTC-USDT") back to its
// canonical form ("BTC/USDT").
func canonicalFromPath(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "-", "/")
}
