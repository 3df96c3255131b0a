package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/scan"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleResult() scan.Result {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return scan.Result{
		CycleID:   "cycle-1",
		StartedAt: ts,
		Duration:  250 * time.Millisecond,
		Evaluated: 3,
		Opportunities: []*domain.ArbitrageOpportunity{
			{
				ID: "o1", Symbol: "BTC/USDT", Viable: true,
				BuyVenue: "binance", BuySymbol: "BTCUSDT", BuyTicker: domain.Ticker{Bid: 99, Ask: 100},
				SellVenue: "kraken", SellSymbol: "XBT/USDT", SellTicker: domain.Ticker{Bid: 102, Ask: 103},
			},
			{
				ID: "o2", Symbol: "ETH/USDT", Viable: false,
				BuyVenue: "okx", BuySymbol: "ETH-USDT",
				SellVenue: "bybit", SellSymbol: "ETHUSDT",
			},
		},
	}
}

type fakeStore struct {
	domain.OpportunityStore
	cycleID string
	rows    []domain.ArbitrageOpportunity
	err     error
}

func (f *fakeStore) InsertBatch(_ context.Context, cycleID string, opps []domain.ArbitrageOpportunity) error {
	f.cycleID = cycleID
	f.rows = opps
	return f.err
}

func TestHistorySink(t *testing.T) {
	store := &fakeStore{}
	sink := NewHistorySink(store, discard())

	if err := sink.Publish(context.Background(), sampleResult()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if store.cycleID != "cycle-1" || len(store.rows) != 2 || store.rows[0].ID != "o1" {
		t.Fatalf("unexpected insert: %q %+v", store.cycleID, store.rows)
	}

	store = &fakeStore{err: errors.New("db down")}
	sink = NewHistorySink(store, discard())
	if err := sink.Publish(context.Background(), sampleResult()); err == nil {
		t.Fatal("expected store error")
	}
	if err := sink.Publish(context.Background(), scan.Result{CycleID: "empty"}); err != nil {
		t.Fatalf("empty cycle should be a no-op, got %v", err)
	}
}

type fakeBus struct {
	domain.SignalBus
	published map[string][]byte
	streamed  map[string][]byte
	streamErr error
}

func (b *fakeBus) Publish(_ context.Context, ch string, payload []byte) error {
	if b.published == nil {
		b.published = map[string][]byte{}
	}
	b.published[ch] = payload
	return nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	if b.streamErr != nil {
		return b.streamErr
	}
	if b.streamed == nil {
		b.streamed = map[string][]byte{}
	}
	b.streamed[stream] = payload
	return nil
}

type fakeMirror struct {
	set map[string]domain.Ticker
}

func (m *fakeMirror) SetTicker(_ context.Context, venue, symbol string, t domain.Ticker) error {
	if m.set == nil {
		m.set = map[string]domain.Ticker{}
	}
	m.set[venue+":"+symbol] = t
	return nil
}

func (m *fakeMirror) GetTicker(context.Context, string, string) (domain.Ticker, error) {
	return domain.Ticker{}, domain.ErrNotFound
}

func TestBusSink(t *testing.T) {
	bus := &fakeBus{}
	mirror := &fakeMirror{}
	sink := NewBusSink(bus, mirror, "opportunities", discard())

	if err := sink.Publish(context.Background(), sampleResult()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	msg, ok := bus.published["opportunities"]
	if !ok {
		t.Fatal("nothing published on channel")
	}
	for _, want := range []string{`"event":"cycle"`, `"cycle_id":"cycle-1"`, `"viable":1`, `"duration_ms":250`} {
		if !strings.Contains(string(msg), want) {
			t.Errorf("payload %s missing %s", msg, want)
		}
	}
	if _, ok := bus.streamed["opportunities:stream"]; !ok {
		t.Fatal("nothing appended to stream")
	}
	if got := mirror.set["binance:BTCUSDT"]; got.Ask != 100 {
		t.Fatalf("buy leg not mirrored: %+v", mirror.set)
	}
	if got := mirror.set["kraken:XBT/USDT"]; got.Bid != 102 {
		t.Fatalf("sell leg not mirrored: %+v", mirror.set)
	}
	if len(mirror.set) != 4 {
		t.Fatalf("mirrored %d tickers, want 4", len(mirror.set))
	}
}

func TestBusSinkStreamFailure(t *testing.T) {
	boom := errors.New("stream down")
	bus := &fakeBus{streamErr: boom}
	sink := NewBusSink(bus, nil, "opportunities", discard())

	err := sink.Publish(context.Background(), sampleResult())
	if !errors.Is(err, boom) {
		t.Fatalf("expected stream error, got %v", err)
	}
	if _, ok := bus.published["opportunities"]; !ok {
		t.Fatal("pub/sub message should still be sent")
	}
}

type produced struct {
	key     string
	value   string
	headers map[string]string
}

type fakeProducer struct {
	msgs []produced
}

func (p *fakeProducer) Produce(_ context.Context, key string, value []byte, headers map[string]string) error {
	p.msgs = append(p.msgs, produced{key: key, value: string(value), headers: headers})
	return nil
}

func TestEventSink(t *testing.T) {
	tests := []struct {
		name string
		all  bool
		want []string
	}{
		{name: "viable only", all: false, want: []string{"BTC/USDT"}},
		{name: "all ranked", all: true, want: []string{"BTC/USDT", "ETH/USDT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProducer{}
			sink := NewEventSink(p, tt.all, discard())
			if err := sink.Publish(context.Background(), sampleResult()); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if len(p.msgs) != len(tt.want) {
				t.Fatalf("produced %d messages, want %d", len(p.msgs), len(tt.want))
			}
			for i, key := range tt.want {
				if p.msgs[i].key != key {
					t.Errorf("msg %d key = %s, want %s", i, p.msgs[i].key, key)
				}
				if p.msgs[i].headers["cycle_id"] != "cycle-1" {
					t.Errorf("msg %d missing cycle header", i)
				}
			}
			if !strings.Contains(p.msgs[0].value, `"rank":1`) {
				t.Errorf("first message should carry rank 1: %s", p.msgs[0].value)
			}
		})
	}
}

func TestDecodeCycle(t *testing.T) {
	bus := &fakeBus{}
	if err := NewBusSink(bus, nil, "opportunities", discard()).Publish(context.Background(), sampleResult()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	res, err := DecodeCycle(bus.published["opportunities"])
	if err != nil {
		t.Fatalf("DecodeCycle: %v", err)
	}
	want := sampleResult()
	if res.CycleID != want.CycleID || !res.StartedAt.Equal(want.StartedAt) || res.Duration != want.Duration {
		t.Fatalf("header mismatch: %+v", res)
	}
	if len(res.Opportunities) != 2 || res.Opportunities[0].ID != "o1" || !res.Opportunities[0].Viable {
		t.Fatalf("opportunities mismatch: %+v", res.Opportunities)
	}

	for _, bad := range []string{`not json`, `{"event":"opportunity","cycle_id":"x"}`, `{"event":"cycle"}`} {
		if _, err := DecodeCycle([]byte(bad)); err == nil {
			t.Errorf("DecodeCycle(%s) should fail", bad)
		}
	}
}
