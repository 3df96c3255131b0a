package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if got := cfg.EnabledVenues(); strings.Join(got, ",") != "binance,bybit,kraken,okx" {
		t.Errorf("enabled venues = %v", got)
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "server"

[scanner]
min_profit_pct = 0.25
scan_interval = "2s"

[risk]
regime = "volatile"
max_anomaly = 0.3

[venues.binance]
enabled = true
rest_rps = 10

[venues.okx]
enabled = true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ARBSCANNER_SCANNER_TOP_N", "7")
	t.Setenv("ARBSCANNER_REDIS_PASSWORD", "hunter2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "server" || cfg.Scanner.MinProfitPct != 0.25 {
		t.Errorf("file values not applied: %+v", cfg.Scanner)
	}
	if cfg.Scanner.ScanInterval.Duration != 2*time.Second {
		t.Errorf("scan_interval = %v", cfg.Scanner.ScanInterval.Duration)
	}
	if cfg.Scanner.MaxPositionPct != 0.1 {
		t.Errorf("default lost: max_position_pct = %v", cfg.Scanner.MaxPositionPct)
	}
	if cfg.Risk.Regime != "volatile" || cfg.Risk.MaxAnomaly != 0.3 || cfg.Risk.MinLiquidity != 0.2 {
		t.Errorf("risk = %+v", cfg.Risk)
	}
	if cfg.Venues["binance"].RESTRPS != 10 {
		t.Errorf("binance rps = %v", cfg.Venues["binance"].RESTRPS)
	}
	if cfg.Scanner.TopN != 7 || cfg.Redis.Password != "hunter2" {
		t.Error("env overrides not applied")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestVenuesEnvOverride(t *testing.T) {
	t.Setenv("ARBSCANNER_VENUES", "kraken, OKX")
	cfg := Defaults()
	applyEnvOverrides(&cfg)
	if got := strings.Join(cfg.EnabledVenues(), ","); got != "kraken,okx" {
		t.Errorf("enabled = %s", got)
	}
}

func TestValidateAggregates(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Scanner.MaxPositionPct = 2
	cfg.Risk.Regime = "calm"
	cfg.Slippage.LiquidHours = []int{25}
	cfg.Venues = map[string]VenueConfig{"binance": {Enabled: true}, "ftx": {Enabled: true}}
	cfg.Kafka.Enabled = true
	cfg.Kafka.Topic = ""
	cfg.Postgres.Enabled = true
	cfg.Postgres.PruneCron = "0 4 * * *"
	cfg.Postgres.RetentionDays = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown mode", "max_position_pct", "unknown regime", "liquid_hours", `unknown venue "ftx"`, "at least 2 venues", "kafka: topic", "prune_cron requires retention_days"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pw"
	cfg.S3.SecretKey = "secret"
	cfg.Server.APIKey = "key"

	out := RedactedConfig(&cfg)
	if out.Postgres.Password != redacted || out.S3.SecretKey != redacted || out.Server.APIKey != redacted {
		t.Errorf("secrets not redacted: %+v", out)
	}
	if out.S3.AccessKey != "" {
		t.Error("empty secret should stay empty")
	}
	if cfg.Postgres.Password != "pw" {
		t.Error("original mutated")
	}
	out.Venues["binance"] = VenueConfig{}
	if !cfg.Venues["binance"].Enabled {
		t.Error("venues map shared with original")
	}
}

func TestExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("example should validate: %v", err)
	}
	def := Defaults()
	if cfg.Scanner.ScanInterval != def.Scanner.ScanInterval || cfg.Notify.Cooldown != def.Notify.Cooldown {
		t.Errorf("example drifted from defaults: interval %v cooldown %v", cfg.Scanner.ScanInterval, cfg.Notify.Cooldown)
	}
	if cfg.Fees.Path != "fees.yaml" {
		t.Errorf("fees path = %q", cfg.Fees.Path)
	}
}
