package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	source    ScanSource
	interval  time.Duration
	startedAt time.Time
	now       func() time.Time
}

// NewHealthHandler creates a HealthHandler. A last cycle older than three
// intervals reports "stale".
func NewHealthHandler(source ScanSource, interval time.Duration) *HealthHandler {
	return &HealthHandler{source: source, interval: interval, startedAt: time.Now(), now: time.Now}
}

// HealthCheck reports "starting" until the first cycle completes. It always
// answers 200 so liveness probes do not restart a scanner waiting on venues.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	body := map[string]any{
		"status":         "ok",
		"timestamp":      now.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(now.Sub(h.startedAt).Seconds()),
	}
	last := h.source.Last()
	switch {
	case last == nil:
		body["status"] = "starting"
	default:
		age := now.Sub(last.StartedAt)
		body["last_cycle_id"] = last.CycleID
		body["last_cycle_age_seconds"] = age.Seconds()
		if h.interval > 0 && age > 3*h.interval {
			body["status"] = "stale"
		}
	}
	writeJSON(w, http.StatusOK, body)
}
