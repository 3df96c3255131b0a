package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// TickerMirror implements domain.TickerMirror with one hash per venue and
// symbol at "ticker:{venue}:{symbol}". Entries expire after ttl so a stopped
// scanner does not leave stale quotes behind.
type TickerMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTickerMirror creates a TickerMirror. ttl <= 0 keeps entries forever.
func NewTickerMirror(c *Client, ttl time.Duration) *TickerMirror {
	return &TickerMirror{rdb: c.Underlying(), ttl: ttl}
}

func tickerKey(venue, symbol string) string {
	return "ticker:" + venue + ":" + symbol
}

func tickerFields(t domain.Ticker) map[string]any {
	return map[string]any{
		"bid":    strconv.FormatFloat(t.Bid, 'f', -1, 64),
		"ask":    strconv.FormatFloat(t.Ask, 'f', -1, 64),
		"last":   strconv.FormatFloat(t.Last, 'f', -1, 64),
		"volume": strconv.FormatFloat(t.Volume, 'f', -1, 64),
		"ts":     strconv.FormatInt(t.Timestamp.UnixNano(), 10),
	}
}

func parseTicker(vals map[string]string) (domain.Ticker, error) {
	var t domain.Ticker
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"bid", &t.Bid},
		{"ask", &t.Ask},
		{"last", &t.Last},
		{"volume", &t.Volume},
	} {
		raw, ok := vals[f.name]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Ticker{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = v
	}
	if raw, ok := vals["ts"]; ok {
		ns, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.Ticker{}, fmt.Errorf("parse ts: %w", err)
		}
		t.Timestamp = time.Unix(0, ns).UTC()
	}
	return t, nil
}

// SetTicker overwrites the mirrored ticker and refreshes its expiry.
func (m *TickerMirror) SetTicker(ctx context.Context, venue, symbol string, t domain.Ticker) error {
	key := tickerKey(venue, symbol)
	pipe := m.rdb.TxPipeline()
	pipe.HSet(ctx, key, tickerFields(t))
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set ticker %s: %w", key, err)
	}
	return nil
}

// GetTicker returns domain.ErrNotFound when nothing is mirrored for the pair.
func (m *TickerMirror) GetTicker(ctx context.Context, venue, symbol string) (domain.Ticker, error) {
	key := tickerKey(venue, symbol)
	vals, err := m.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("redis: get ticker %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.Ticker{}, domain.ErrNotFound
	}
	t, err := parseTicker(vals)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("redis: ticker %s: %w", key, err)
	}
	return t, nil
}

var _ domain.TickerMirror = (*TickerMirror)(nil)
