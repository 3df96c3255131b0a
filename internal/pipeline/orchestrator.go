// Package pipeline runs the long-lived background loops of a scanner
// process side by side: the scan loop, slippage state housekeeping and the
// cold-storage archiver.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner is a loop that blocks until ctx is cancelled or it fails.
type Runner interface {
	Run(ctx context.Context) error
}

// Orchestrator supervises the loops. The first loop to fail cancels the
// others.
type Orchestrator struct {
	scanner  Runner
	purger   Runner
	archiver *Archiver
	schedule Schedule
	logger   *slog.Logger
}

// NewOrchestrator validates archiveCron when an archiver is given. purger
// and archiver may be nil.
func NewOrchestrator(scanner, purger Runner, archiver *Archiver, archiveCron string, logger *slog.Logger) (*Orchestrator, error) {
	if scanner == nil {
		return nil, errors.New("pipeline: scanner is required")
	}
	o := &Orchestrator{
		scanner:  scanner,
		purger:   purger,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "pipeline")),
	}
	if archiver != nil {
		sched, err := ParseSchedule(archiveCron)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		o.schedule = sched
	}
	return o, nil
}

// Run blocks until ctx is cancelled (returning nil) or a loop fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline starting",
		slog.Bool("purger", o.purger != nil),
		slog.Bool("archiver", o.archiver != nil),
	)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return supervise(ctx, "scanner", o.scanner.Run) })
	if o.purger != nil {
		g.Go(func() error { return supervise(ctx, "slippage purger", o.purger.Run) })
	}
	if o.archiver != nil {
		g.Go(func() error {
			return supervise(ctx, "archiver", func(ctx context.Context) error {
				return o.archiver.RunCron(ctx, o.schedule)
			})
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline stopped cleanly")
	return nil
}

// supervise turns a loop exit caused by cancellation into a clean stop.
func supervise(ctx context.Context, name string, run func(context.Context) error) error {
	err := run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		return fmt.Errorf("%s exited unexpectedly", name)
	}
	return fmt.Errorf("%s: %w", name, err)
}
