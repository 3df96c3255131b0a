package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/config"
	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/server/ws"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestWireCoreOnly(t *testing.T) {
	cfg := config.Defaults()
	deps, cleanup, err := Wire(context.Background(), &cfg, quiet)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if got := len(deps.Connectors); got != 4 {
		t.Fatalf("connectors = %d, want 4", got)
	}
	want := []string{"binance", "bybit", "kraken", "okx"}
	for i, c := range deps.Connectors {
		if c.Name() != want[i] {
			t.Errorf("connector %d = %s, want %s", i, c.Name(), want[i])
		}
		if c.Fees() == nil {
			t.Errorf("%s has no fee tracker", c.Name())
		}
	}
	if deps.LockManager != nil || deps.SignalBus != nil || deps.OpportunityStore != nil || deps.Events != nil || deps.Archiver != nil {
		t.Error("disabled backends must stay nil")
	}
	if deps.Settings.ScanInterval() != cfg.Scanner.ScanInterval.Duration {
		t.Errorf("interval = %v", deps.Settings.ScanInterval())
	}
	if deps.Notifier.Enabled() {
		t.Error("notifier without senders must be disabled")
	}
}

func TestWireVenueSelection(t *testing.T) {
	cfg := config.Defaults()
	v := cfg.Venues[config.VenueBybit]
	v.Enabled = false
	cfg.Venues[config.VenueBybit] = v
	okx := cfg.Venues[config.VenueOKX]
	okx.FeeSchedule = "missing"
	cfg.Venues[config.VenueOKX] = okx

	conns, err := buildConnectors(&cfg, quiet)
	if err != nil {
		t.Fatalf("buildConnectors: %v", err)
	}
	if len(conns) != 3 {
		t.Fatalf("connectors = %d, want 3", len(conns))
	}
	for _, c := range conns {
		if c.Name() == config.VenueBybit {
			t.Error("disabled venue was built")
		}
	}
	if rate := conns[2].Fees().TakerRate(1000); rate != 0 {
		t.Errorf("unknown schedule should fall back to zero fees, got %v", rate)
	}
}

func TestWireUnknownVenue(t *testing.T) {
	cfg := config.Defaults()
	cfg.Venues["coinbase"] = config.VenueConfig{Enabled: true}
	_, err := buildConnectors(&cfg, quiet)
	if !errors.Is(err, domain.ErrUnknownVenue) {
		t.Fatalf("err = %v, want ErrUnknownVenue", err)
	}
}

func TestWireBadFeeFile(t *testing.T) {
	cfg := config.Defaults()
	cfg.Fees.Path = "/nonexistent/fees.yaml"
	if _, _, err := Wire(context.Background(), &cfg, quiet); err == nil {
		t.Fatal("expected error for unreadable fee file")
	}
}

func TestBuildSinks(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, quiet)
	deps, cleanup, err := Wire(context.Background(), &cfg, quiet)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if sinks := a.buildSinks(deps, nil); len(sinks) != 0 {
		t.Errorf("sinks = %d, want 0 with no backends", len(sinks))
	}
	sinks := a.buildSinks(deps, ws.NewHub(nil, quiet))
	if len(sinks) != 1 || sinks[0].Name() != "websocket" {
		t.Errorf("sinks = %v, want websocket hub only", sinks)
	}
}

func TestNewPipelineWithoutArchiver(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, quiet)
	deps, cleanup, err := Wire(context.Background(), &cfg, quiet)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	orch, err := a.newScanner(deps, nil)
	if err != nil {
		t.Fatalf("newScanner: %v", err)
	}
	if _, err := a.newPipeline(orch, deps, false); err != nil {
		t.Errorf("pipeline without archiver: %v", err)
	}
}

func TestWireKeepsZeroMinProfit(t *testing.T) {
	cfg := config.Defaults()
	cfg.Scanner.MinProfitPct = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	deps, cleanup, err := Wire(context.Background(), &cfg, quiet)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()
	if got := deps.Settings.MinProfitPct(); got != 0 {
		t.Errorf("MinProfitPct() = %v, want 0", got)
	}
}

type countingArchiver struct{}

func (countingArchiver) ArchiveOpportunities(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (countingArchiver) ArchiveFeedback(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func TestNewPipelinePruneSchedule(t *testing.T) {
	tests := []struct {
		name    string
		cron    string
		wantErr bool
	}{
		{"valid schedule", "0 4 * * *", false},
		{"invalid schedule", "every night", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.Postgres.PruneCron = tt.cron
			a := New(&cfg, quiet)
			deps, cleanup, err := Wire(context.Background(), &cfg, quiet)
			if err != nil {
				t.Fatalf("Wire: %v", err)
			}
			defer cleanup()
			deps.Pruner = countingArchiver{}

			orch, err := a.newScanner(deps, nil)
			if err != nil {
				t.Fatalf("newScanner: %v", err)
			}
			_, err = a.newPipeline(orch, deps, false)
			if (err != nil) != tt.wantErr {
				t.Errorf("newPipeline err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunUnsupportedMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "trade"
	a := New(&cfg, quiet)
	defer a.Close()
	if err := a.Run(context.Background()); err == nil {
		t.Fatal("expected error for unsupported mode")
	}
}
