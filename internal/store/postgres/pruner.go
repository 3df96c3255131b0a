package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Pruner enforces the retention window when no cold storage is configured.
// It satisfies domain.Archiver so the archive scheduler can drive it; rows
// before the cutoff are deleted instead of uploaded.
type Pruner struct {
	opportunities domain.OpportunityStore
	feedback      domain.FeedbackStore
	logger        *slog.Logger
}

// NewPruner creates a Pruner. Either store may be nil.
func NewPruner(opps domain.OpportunityStore, fb domain.FeedbackStore, logger *slog.Logger) *Pruner {
	return &Pruner{
		opportunities: opps,
		feedback:      fb,
		logger:        logger.With(slog.String("component", "pruner")),
	}
}

// ArchiveOpportunities deletes opportunities detected before the cutoff.
func (p *Pruner) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	if p.opportunities == nil {
		return 0, nil
	}
	return p.prune(ctx, "opportunities", before, p.opportunities.DeleteBefore)
}

// ArchiveFeedback deletes slippage feedback recorded before the cutoff.
func (p *Pruner) ArchiveFeedback(ctx context.Context, before time.Time) (int64, error) {
	if p.feedback == nil {
		return 0, nil
	}
	return p.prune(ctx, "slippage_feedback", before, p.feedback.DeleteBefore)
}

func (p *Pruner) prune(ctx context.Context, kind string, before time.Time, del func(context.Context, time.Time) (int64, error)) (int64, error) {
	n, err := del(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune %s: %w", kind, err)
	}
	p.logger.InfoContext(ctx, "pruned rows past retention",
		slog.String("kind", kind),
		slog.Int64("deleted", n),
		slog.Time("before", before),
	)
	return n, nil
}
