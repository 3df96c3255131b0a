package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/scan"
)

const (
	maxAlertLines   = 5
	defaultCooldown = 5 * time.Minute
)

// AlertSink turns viable opportunities above a profit floor into a chat
// alert. A route (symbol, buy venue, sell venue) alerts at most once per
// cooldown.
type AlertSink struct {
	notifier  *Notifier
	minProfit float64
	cooldown  time.Duration
	now       func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewAlertSink creates an AlertSink. cooldown <= 0 uses five minutes.
func NewAlertSink(n *Notifier, minProfitPct float64, cooldown time.Duration) *AlertSink {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &AlertSink{
		notifier:  n,
		minProfit: minProfitPct,
		cooldown:  cooldown,
		now:       time.Now,
		last:      make(map[string]time.Time),
	}
}

// Name implements scan.Sink.
func (s *AlertSink) Name() string { return "alerts" }

// Publish implements scan.Sink.
func (s *AlertSink) Publish(ctx context.Context, res scan.Result) error {
	if !s.notifier.Allows(EventOpportunity) {
		return nil
	}
	fresh := s.admit(res.Opportunities)
	if len(fresh) == 0 {
		return nil
	}
	title := fmt.Sprintf("%d arbitrage opportunit%s", len(fresh), plural(len(fresh), "y", "ies"))
	return s.notifier.Notify(ctx, EventOpportunity, title, formatAlert(fresh))
}

func (s *AlertSink) admit(opps []*domain.ArbitrageOpportunity) []*domain.ArbitrageOpportunity {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, t := range s.last {
		if now.Sub(t) >= s.cooldown {
			delete(s.last, k)
		}
	}

	var out []*domain.ArbitrageOpportunity
	for _, o := range opps {
		if !o.Viable || o.ProfitPct < s.minProfit {
			continue
		}
		key := o.Symbol + "|" + o.BuyVenue + "|" + o.SellVenue
		if _, seen := s.last[key]; seen {
			continue
		}
		s.last[key] = now
		out = append(out, o)
	}
	return out
}

func formatAlert(opps []*domain.ArbitrageOpportunity) string {
	var b strings.Builder
	for i, o := range opps {
		if i == maxAlertLines {
			fmt.Fprintf(&b, "... and %d more\n", len(opps)-maxAlertLines)
			break
		}
		fmt.Fprintf(&b, "%s: buy %s @ %g, sell %s @ %g, net %.3f%%, size %.2f\n",
			o.Symbol, o.BuyVenue, o.BuyPrice, o.SellVenue, o.SellPrice, o.ExpectedProfitPct(), o.PositionSize)
	}
	return strings.TrimRight(b.String(), "\n")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

var _ scan.Sink = (*AlertSink)(nil)
