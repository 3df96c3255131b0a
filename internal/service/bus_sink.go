package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/scan"
)

// BusSink fans each cycle out over the signal bus: a Pub/Sub message for
// live listeners and a stream entry for replay. When a mirror is set, the
// quotes behind each opportunity are mirrored too.
type BusSink struct {
	bus     domain.SignalBus
	mirror  domain.TickerMirror
	channel string
	logger  *slog.Logger
}

// NewBusSink creates a BusSink. mirror may be nil.
func NewBusSink(bus domain.SignalBus, mirror domain.TickerMirror, channel string, logger *slog.Logger) *BusSink {
	return &BusSink{
		bus:     bus,
		mirror:  mirror,
		channel: channel,
		logger:  logger.With(slog.String("component", "bus_sink")),
	}
}

// StreamName is the stream that keeps the replayable cycle history.
func (s *BusSink) StreamName() string { return s.channel + ":stream" }

// Name implements scan.Sink.
func (s *BusSink) Name() string { return "bus" }

// Publish implements scan.Sink. Stream and mirror failures are reported
// together; the Pub/Sub message is always attempted first.
func (s *BusSink) Publish(ctx context.Context, res scan.Result) error {
	payload, err := encodeCycle(res)
	if err != nil {
		return fmt.Errorf("bus_sink: encode cycle %s: %w", res.CycleID, err)
	}
	if err := s.bus.Publish(ctx, s.channel, payload); err != nil {
		return fmt.Errorf("bus_sink: publish cycle %s: %w", res.CycleID, err)
	}

	var errs []error
	if err := s.bus.StreamAppend(ctx, s.StreamName(), payload); err != nil {
		errs = append(errs, err)
	}
	if s.mirror != nil {
		for _, o := range res.Opportunities {
			if err := s.mirror.SetTicker(ctx, o.BuyVenue, o.BuySymbol, o.BuyTicker); err != nil {
				errs = append(errs, err)
			}
			if err := s.mirror.SetTicker(ctx, o.SellVenue, o.SellSymbol, o.SellTicker); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("bus_sink: cycle %s: %w", res.CycleID, errors.Join(errs...))
	}
	return nil
}

var _ scan.Sink = (*BusSink)(nil)
