package exchange

import (
	"strconv"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// ParseFloat parses a venue decimal string. Malformed input yields 0, which
// downstream code treats as missing.
func ParseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// AnyFloat converts a decoded JSON scalar (string or number) to float64.
func AnyFloat(v any) float64 {
	switch x := v.(type) {
	case string:
		return ParseFloat(x)
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	}
	return 0
}

// ParseLevels converts [[price, size, ...], ...] string rows.
func ParseLevels(rows [][]string) []domain.OrderBookEntry {
	out := make([]domain.OrderBookEntry, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		out = append(out, domain.OrderBookEntry{Price: ParseFloat(r[0]), Volume: ParseFloat(r[1])})
	}
	return out
}

// ParseAnyLevels converts rows whose cells may be strings or numbers.
func ParseAnyLevels(rows [][]any) []domain.OrderBookEntry {
	out := make([]domain.OrderBookEntry, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		out = append(out, domain.OrderBookEntry{Price: AnyFloat(r[0]), Volume: AnyFloat(r[1])})
	}
	return out
}

// MillisToTime converts a Unix millisecond timestamp; 0 means now.
func MillisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
