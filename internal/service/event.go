// Package service adapts scan results to the outside world: history in
// Postgres, live fan-out over Redis and an event stream on Kafka. Each
// adapter is a scan.Sink.
package service

import (
	"fmt"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/scan"
)

// Event types carried on the bus and the event stream.
const (
	EventCycle       = "cycle"
	EventOpportunity = "opportunity"
)

// CycleEvent summarises one scan cycle.
type CycleEvent struct {
	Event         string                         `json:"event"`
	CycleID       string                         `json:"cycle_id"`
	StartedAt     time.Time                      `json:"started_at"`
	DurationMs    int64                          `json:"duration_ms"`
	Evaluated     int                            `json:"evaluated"`
	Viable        int                            `json:"viable"`
	Opportunities []*domain.ArbitrageOpportunity `json:"opportunities"`
}

// OpportunityEvent is a single opportunity tagged with its cycle.
type OpportunityEvent struct {
	Event       string                       `json:"event"`
	CycleID     string                       `json:"cycle_id"`
	Rank        int                          `json:"rank"`
	Opportunity *domain.ArbitrageOpportunity `json:"opportunity"`
}

func newCycleEvent(res scan.Result) CycleEvent {
	ev := CycleEvent{
		Event:         EventCycle,
		CycleID:       res.CycleID,
		StartedAt:     res.StartedAt,
		DurationMs:    res.Duration.Milliseconds(),
		Evaluated:     res.Evaluated,
		Opportunities: res.Opportunities,
	}
	for _, o := range res.Opportunities {
		if o.Viable {
			ev.Viable++
		}
	}
	return ev
}

func encodeCycle(res scan.Result) ([]byte, error) {
	return sonnet.Marshal(newCycleEvent(res))
}

func encodeOpportunity(cycleID string, rank int, o *domain.ArbitrageOpportunity) ([]byte, error) {
	return sonnet.Marshal(OpportunityEvent{
		Event:       EventOpportunity,
		CycleID:     cycleID,
		Rank:        rank,
		Opportunity: o,
	})
}

// DecodeCycle turns a bus payload back into a scan.Result. Ledgers are not
// carried on the bus and stay empty.
func DecodeCycle(data []byte) (scan.Result, error) {
	var ev CycleEvent
	if err := sonnet.Unmarshal(data, &ev); err != nil {
		return scan.Result{}, fmt.Errorf("service: decode cycle: %w", err)
	}
	if ev.Event != EventCycle || ev.CycleID == "" {
		return scan.Result{}, fmt.Errorf("service: decode cycle: unexpected event %q: %w", ev.Event, domain.ErrInvalidInput)
	}
	return scan.Result{
		CycleID:       ev.CycleID,
		StartedAt:     ev.StartedAt,
		Duration:      time.Duration(ev.DurationMs) * time.Millisecond,
		Evaluated:     ev.Evaluated,
		Opportunities: ev.Opportunities,
	}, nil
}
