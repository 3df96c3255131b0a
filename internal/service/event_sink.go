package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbscanner/internal/scan"
)

// EventProducer is the slice of the Kafka producer the event sink needs.
type EventProducer interface {
	Produce(ctx context.Context, key string, value []byte, headers map[string]string) error
}

// EventSink emits one message per ranked opportunity, keyed by canonical
// symbol so a partition sees a symbol's events in order. Only viable
// opportunities are sent unless all is set.
type EventSink struct {
	producer EventProducer
	all      bool
	logger   *slog.Logger
}

// NewEventSink creates an EventSink.
func NewEventSink(p EventProducer, all bool, logger *slog.Logger) *EventSink {
	return &EventSink{producer: p, all: all, logger: logger.With(slog.String("component", "event_sink"))}
}

// Name implements scan.Sink.
func (s *EventSink) Name() string { return "events" }

// Publish implements scan.Sink.
func (s *EventSink) Publish(ctx context.Context, res scan.Result) error {
	sent := 0
	for i, o := range res.Opportunities {
		if !s.all && !o.Viable {
			continue
		}
		payload, err := encodeOpportunity(res.CycleID, i+1, o)
		if err != nil {
			return fmt.Errorf("event_sink: encode %s: %w", o.ID, err)
		}
		headers := map[string]string{"event": EventOpportunity, "cycle_id": res.CycleID}
		if err := s.producer.Produce(ctx, o.Symbol, payload, headers); err != nil {
			return fmt.Errorf("event_sink: produce %s: %w", o.ID, err)
		}
		sent++
	}
	if sent > 0 {
		s.logger.DebugContext(ctx, "opportunities produced",
			slog.String("cycle_id", res.CycleID),
			slog.Int("count", sent),
		)
	}
	return nil
}

var _ scan.Sink = (*EventSink)(nil)
