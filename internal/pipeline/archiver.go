package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Archiver moves history older than the retention window to cold storage.
type Archiver struct {
	blob      domain.Archiver
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiver creates an Archiver keeping retentionDays of history in the
// database.
func NewArchiver(blob domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blob:      blob,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archiver_cron")),
	}
}

// Run archives once. A failure on opportunities does not prevent the
// feedback archive.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.now().UTC().Add(-a.retention)
	a.logger.InfoContext(ctx, "archive run starting", slog.Time("cutoff", cutoff))

	var errs []error
	opps, err := a.blob.ArchiveOpportunities(ctx, cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("opportunities: %w", err))
	}
	fb, err := a.blob.ArchiveFeedback(ctx, cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("slippage feedback: %w", err))
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("opportunities", opps),
		slog.Int64("feedback", fb),
		slog.Int("errors", len(errs)),
	)
	if len(errs) > 0 {
		return fmt.Errorf("pipeline: archive before %s: %w", cutoff.Format(time.RFC3339), errors.Join(errs...))
	}
	return nil
}

// RunCron runs the archiver on schedule until ctx is cancelled. A failed
// run is logged and the next trigger is awaited.
func (a *Archiver) RunCron(ctx context.Context, sched Schedule) error {
	for {
		next, err := sched.Next(a.now())
		if err != nil {
			return err
		}
		wait := time.Until(next)
		a.logger.Info("waiting for next archive run", slog.Time("next_run", next), slog.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
