package scan

import (
	"context"
	"log/slog"
	"time"
)

// Sink receives every cycle's result. Publish runs off the scan goroutine.
type Sink interface {
	Name() string
	Publish(ctx context.Context, res Result) error
}

const sinkTimeout = 10 * time.Second

// sinkRunner feeds one sink from a single-slot queue. A result that arrives
// while the previous one is still being published replaces the queued one,
// so a slow sink drops stale cycles instead of stalling the scan.
type sinkRunner struct {
	sink   Sink
	queue  chan Result
	logger *slog.Logger
}

func newSinkRunner(s Sink, logger *slog.Logger) *sinkRunner {
	return &sinkRunner{
		sink:   s,
		queue:  make(chan Result, 1),
		logger: logger.With(slog.String("sink", s.Name())),
	}
}

func (r *sinkRunner) offer(res Result) {
	for {
		select {
		case r.queue <- res:
			return
		default:
		}
		select {
		case stale := <-r.queue:
			r.logger.Debug("dropping unpublished cycle", slog.String("cycle_id", stale.CycleID))
		default:
		}
	}
}

func (r *sinkRunner) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-r.queue:
			pctx, cancel := context.WithTimeout(ctx, sinkTimeout)
			if err := r.sink.Publish(pctx, res); err != nil {
				r.logger.WarnContext(ctx, "sink publish failed",
					slog.String("cycle_id", res.CycleID),
					slog.String("error", err.Error()),
				)
			}
			cancel()
		}
	}
}
