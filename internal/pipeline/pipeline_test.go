package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduleNext(t *testing.T) {
	base := time.Date(2025, 1, 15, 10, 30, 45, 0, time.UTC)
	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2025, 1, 15, 10, 31, 0, 0, time.UTC)},
		{"0 3 1 * *", time.Date(2025, 2, 1, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2025, 1, 15, 10, 45, 0, 0, time.UTC)},
		{"0 9-17 * * *", time.Date(2025, 1, 15, 11, 0, 0, 0, time.UTC)},
		{"30 2 * * 0", time.Date(2025, 1, 19, 2, 30, 0, 0, time.UTC)},
		{"0 0 1 1 *", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"5,35 10 * * *", time.Date(2025, 1, 15, 10, 35, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := ParseSchedule(tt.expr)
			if err != nil {
				t.Fatalf("ParseSchedule: %v", err)
			}
			got, err := s.Next(base)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Next = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseScheduleErrors(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
	} {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q) should fail", expr)
		}
	}
}

func TestScheduleNoMatch(t *testing.T) {
	s, err := ParseSchedule("0 0 31 2 *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	if _, err := s.Next(time.Now()); err == nil {
		t.Fatal("February 31st should never match")
	}
}

type fakeBlobArchiver struct {
	oppErr  error
	cutoffs []time.Time
	fbCalls int
}

func (f *fakeBlobArchiver) ArchiveOpportunities(_ context.Context, before time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, before)
	return 3, f.oppErr
}

func (f *fakeBlobArchiver) ArchiveFeedback(context.Context, time.Time) (int64, error) {
	f.fbCalls++
	return 1, nil
}

func TestArchiverRun(t *testing.T) {
	blob := &fakeBlobArchiver{}
	a := NewArchiver(blob, 30, discard())
	now := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := now.Add(-30 * 24 * time.Hour)
	if len(blob.cutoffs) != 1 || !blob.cutoffs[0].Equal(want) {
		t.Fatalf("cutoffs = %v, want %s", blob.cutoffs, want)
	}
}

func TestArchiverRunContinuesAfterFailure(t *testing.T) {
	boom := errors.New("s3 down")
	blob := &fakeBlobArchiver{oppErr: boom}
	a := NewArchiver(blob, 7, discard())

	err := a.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if blob.fbCalls != 1 {
		t.Fatal("feedback archive should still run")
	}
}

type loop struct {
	err   error
	calls atomic.Int32
}

func (l *loop) Run(ctx context.Context) error {
	l.calls.Add(1)
	if l.err != nil {
		return l.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestOrchestratorCleanShutdown(t *testing.T) {
	scanner, purger := &loop{}, &loop{}
	o, err := NewOrchestrator(scanner, purger, NewArchiver(&fakeBlobArchiver{}, 30, discard()), "0 3 * * *", discard())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if scanner.calls.Load() != 1 || purger.calls.Load() != 1 {
		t.Fatal("every loop should have started once")
	}
}

func TestOrchestratorPropagatesFailure(t *testing.T) {
	boom := errors.New("discovery failed")
	o, err := NewOrchestrator(&loop{err: boom}, &loop{}, nil, "", discard())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	if err := o.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want %v", err, boom)
	}
}

func TestNewOrchestratorValidates(t *testing.T) {
	if _, err := NewOrchestrator(nil, nil, nil, "", discard()); err == nil {
		t.Fatal("scanner is required")
	}
	a := NewArchiver(&fakeBlobArchiver{}, 30, discard())
	if _, err := NewOrchestrator(&loop{}, nil, a, "bad cron", discard()); err == nil {
		t.Fatal("invalid cron should be rejected")
	}
}
