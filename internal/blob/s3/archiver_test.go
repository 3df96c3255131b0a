package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

type memWriter struct {
	objects   map[string][]byte
	multipart int
	err       error
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.err != nil {
		return w.err
	}
	b, _ := io.ReadAll(data)
	if w.objects == nil {
		w.objects = make(map[string][]byte)
	}
	w.objects[path] = b
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	w.multipart++
	return w.Put(ctx, path, data, contentTypeJSONL)
}

type oppSource struct {
	rows    []domain.ArbitrageOpportunity
	deleted []time.Time
}

func (s *oppSource) ListBefore(_ context.Context, before time.Time, _ int) ([]domain.ArbitrageOpportunity, error) {
	var out []domain.ArbitrageOpportunity
	for _, r := range s.rows {
		if r.DetectedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *oppSource) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.deleted = append(s.deleted, before)
	return 1, nil
}

type fbSource struct {
	err error
}

func (s *fbSource) ListBefore(context.Context, time.Time, int) ([]domain.SlippageFeedback, error) {
	return nil, s.err
}

func (s *fbSource) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func TestArchiveOpportunitiesWritesJSONL(t *testing.T) {
	cutoff := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	src := &oppSource{rows: []domain.ArbitrageOpportunity{
		{ID: "a", Symbol: "BTC/USDT", DetectedAt: cutoff.Add(-2 * time.Hour)},
		{ID: "b", Symbol: "ETH/USDT", DetectedAt: cutoff.Add(-time.Hour)},
		{ID: "c", Symbol: "SOL/USDT", DetectedAt: cutoff.Add(time.Hour)},
	}}
	w := &memWriter{}
	a := NewArchiver(w, src, nil, true, nil)

	n, err := a.ArchiveOpportunities(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveOpportunities: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived %d rows, want 2", n)
	}

	path := "archive/opportunities/2025-01-31/20250131T000000Z.jsonl"
	body, ok := w.objects[path]
	if !ok {
		t.Fatalf("object %s not written; have %v", path, w.objects)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"id":"a"`) || !strings.Contains(lines[1], `"id":"b"`) {
		t.Fatalf("unexpected lines: %q", lines)
	}
	if len(src.deleted) != 1 || !src.deleted[0].Equal(cutoff) {
		t.Fatalf("prune not called with cutoff: %v", src.deleted)
	}
	if w.multipart != 0 {
		t.Fatal("small archive should not use multipart")
	}
}

func TestArchiveSkipsEmptyAndNilSources(t *testing.T) {
	w := &memWriter{}
	a := NewArchiver(w, &oppSource{}, nil, true, nil)

	if n, err := a.ArchiveOpportunities(context.Background(), time.Now()); err != nil || n != 0 {
		t.Fatalf("empty source: n=%d err=%v", n, err)
	}
	if n, err := a.ArchiveFeedback(context.Background(), time.Now()); err != nil || n != 0 {
		t.Fatalf("nil source: n=%d err=%v", n, err)
	}
	if len(w.objects) != 0 {
		t.Fatal("nothing should be uploaded")
	}
}

func TestArchiveErrors(t *testing.T) {
	boom := errors.New("boom")

	a := NewArchiver(&memWriter{}, nil, &fbSource{err: boom}, false, nil)
	if _, err := a.ArchiveFeedback(context.Background(), time.Now()); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}

	src := &oppSource{rows: []domain.ArbitrageOpportunity{{ID: "a", DetectedAt: time.Unix(0, 0)}}}
	a = NewArchiver(&memWriter{err: boom}, src, nil, true, nil)
	if _, err := a.ArchiveOpportunities(context.Background(), time.Now()); !errors.Is(err, boom) {
		t.Fatalf("expected upload error, got %v", err)
	}
	if len(src.deleted) != 0 {
		t.Fatal("rows must not be pruned after a failed upload")
	}
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"https://e2.example.com", false, "https://e2.example.com"},
		{"minio:9000", false, "http://minio:9000"},
		{"minio:9000", true, "https://minio:9000"},
	}
	for _, tt := range tests {
		if got := endpointURL(tt.in, tt.useSSL); got != tt.want {
			t.Errorf("endpointURL(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
		}
	}
}

func TestMarshalJSONL(t *testing.T) {
	b, err := marshalJSONL([]map[string]int{{"a": 1}, {"b": 2}})
	if err != nil {
		t.Fatalf("marshalJSONL: %v", err)
	}
	if !bytes.Equal(b, []byte("{\"a\":1}\n{\"b\":2}\n")) {
		t.Fatalf("got %q", b)
	}
}
