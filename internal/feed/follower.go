// Package feed relays scan cycles published on the Redis bus to local
// consumers, so every replica serves the cycles of whichever replica holds
// the leader lock.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/scan"
	"github.com/alanyoungcy/arbscanner/internal/service"
)

// Follower subscribes to the cycle channel and forwards each decoded cycle
// to its sinks.
type Follower struct {
	bus     domain.SignalBus
	channel string
	sinks   []scan.Sink
	logger  *slog.Logger

	mu   sync.RWMutex
	last *scan.Result
}

// NewFollower creates a Follower.
func NewFollower(bus domain.SignalBus, channel string, sinks []scan.Sink, logger *slog.Logger) *Follower {
	return &Follower{
		bus:     bus,
		channel: channel,
		sinks:   sinks,
		logger:  logger.With(slog.String("component", "bus_follower")),
	}
}

// Last returns the most recent cycle received, or nil.
func (f *Follower) Last() *scan.Result {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last
}

// Run blocks until ctx is cancelled or the subscription closes.
func (f *Follower) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, f.channel)
	if err != nil {
		return err
	}
	f.logger.Info("bus follower started", slog.String("channel", f.channel))
	defer f.logger.Info("bus follower stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			f.handle(ctx, data)
		}
	}
}

func (f *Follower) handle(ctx context.Context, data []byte) {
	res, err := service.DecodeCycle(data)
	if err != nil {
		f.logger.Debug("skipping bus message",
			slog.String("error", err.Error()),
			slog.Int("payload_len", len(data)),
		)
		return
	}

	f.mu.Lock()
	if f.last != nil && !res.StartedAt.After(f.last.StartedAt) {
		f.mu.Unlock()
		return
	}
	f.last = &res
	f.mu.Unlock()

	for _, s := range f.sinks {
		if err := s.Publish(ctx, res); err != nil {
			f.logger.Warn("follower sink failed",
				slog.String("sink", s.Name()),
				slog.String("cycle_id", res.CycleID),
				slog.String("error", err.Error()),
			)
		}
	}
}
