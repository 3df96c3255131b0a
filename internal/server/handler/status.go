package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves GET /api/status: run mode and the effective,
// secret-free configuration.
type StatusHandler struct {
	mode      string
	config    any
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler. config must already be redacted.
func NewStatusHandler(mode string, config any) *StatusHandler {
	return &StatusHandler{mode: mode, config: config, startedAt: time.Now().UTC()}
}

// GetStatus writes the mode, start time and configuration.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":       h.mode,
		"started_at": h.startedAt.Format(time.RFC3339),
		"config":     h.config,
	})
}
