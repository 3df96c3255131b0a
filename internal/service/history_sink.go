package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/scan"
)

// HistorySink persists every ranked opportunity of a cycle.
type HistorySink struct {
	store  domain.OpportunityStore
	logger *slog.Logger
}

// NewHistorySink creates a HistorySink.
func NewHistorySink(store domain.OpportunityStore, logger *slog.Logger) *HistorySink {
	return &HistorySink{store: store, logger: logger.With(slog.String("component", "history_sink"))}
}

// Name implements scan.Sink.
func (s *HistorySink) Name() string { return "history" }

// Publish implements scan.Sink.
func (s *HistorySink) Publish(ctx context.Context, res scan.Result) error {
	if len(res.Opportunities) == 0 {
		return nil
	}
	opps := make([]domain.ArbitrageOpportunity, 0, len(res.Opportunities))
	for _, o := range res.Opportunities {
		opps = append(opps, *o)
	}
	if err := s.store.InsertBatch(ctx, res.CycleID, opps); err != nil {
		return fmt.Errorf("history_sink: insert cycle %s: %w", res.CycleID, err)
	}
	s.logger.DebugContext(ctx, "cycle persisted",
		slog.String("cycle_id", res.CycleID),
		slog.Int("rows", len(opps)),
	)
	return nil
}

var _ scan.Sink = (*HistorySink)(nil)
