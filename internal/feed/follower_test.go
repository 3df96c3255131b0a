package feed

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/scan"
)

type chanBus struct {
	domain.SignalBus
	ch chan []byte
}

func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}

type recordSink struct {
	mu  sync.Mutex
	ids []string
}

func (s *recordSink) Name() string { return "record" }

func (s *recordSink) Publish(_ context.Context, res scan.Result) error {
	s.mu.Lock()
	s.ids = append(s.ids, res.CycleID)
	s.mu.Unlock()
	return nil
}

func (s *recordSink) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func TestFollowerRelaysNewerCycles(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 8)}
	sink := &recordSink{}
	f := NewFollower(bus, "opportunities", []scan.Sink{sink}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	bus.ch <- []byte(`{"event":"cycle","cycle_id":"c1","started_at":"2026-01-01T00:00:05Z","duration_ms":40,"evaluated":2,"opportunities":[]}`)
	bus.ch <- []byte(`garbage`)
	// Older than c1: dropped.
	bus.ch <- []byte(`{"event":"cycle","cycle_id":"c0","started_at":"2026-01-01T00:00:00Z","opportunities":[]}`)
	bus.ch <- []byte(`{"event":"cycle","cycle_id":"c2","started_at":"2026-01-01T00:00:10Z","opportunities":[{"id":"o1","symbol":"BTC/USDT"}]}`)
	close(bus.ch)

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}

	got := sink.seen()
	if len(got) != 2 || got[0] != "c1" || got[1] != "c2" {
		t.Fatalf("relayed %v, want [c1 c2]", got)
	}
	last := f.Last()
	if last == nil || last.CycleID != "c2" || len(last.Opportunities) != 1 {
		t.Fatalf("Last = %+v", last)
	}
	if last.Duration != 0 {
		t.Errorf("duration = %v", last.Duration)
	}
}

func TestFollowerStopsOnCancel(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte)}
	f := NewFollower(bus, "opportunities", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Run(ctx); err != context.Canceled {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if f.Last() != nil {
		t.Fatal("no cycle should be recorded")
	}
}
