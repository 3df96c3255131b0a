package fee

import (
	"sync"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Tracker holds one venue's fee schedule and a ledger of simulated taker
// charges recorded by the detector.
type Tracker struct {
	venue    string
	schedule Schedule

	mu     sync.Mutex
	ledger domain.FeeLedger
}

// NewTracker creates a Tracker. A zero Schedule side falls back to no fee.
func NewTracker(venue string, s Schedule) *Tracker {
	if s.Maker == nil {
		s.Maker = Percentage{}
	}
	if s.Taker == nil {
		s.Taker = Percentage{}
	}
	return &Tracker{
		venue:    venue,
		schedule: s,
		ledger: domain.FeeLedger{
			Venue:       venue,
			FeeType:     string(s.Taker.Type()),
			Description: s.Taker.Description(),
		},
	}
}

func (t *Tracker) Maker() Fee { return t.schedule.Maker }
func (t *Tracker) Taker() Fee { return t.schedule.Taker }

// TakerRate returns the effective taker rate at the given notional.
func (t *Tracker) TakerRate(notional float64) float64 {
	return Rate(t.schedule.Taker, notional)
}

// RecordTaker charges a simulated taker transaction and returns its fee.
func (t *Tracker) RecordTaker(notional float64) float64 {
	f := t.schedule.Taker.CalculateFee(notional)
	t.mu.Lock()
	t.ledger.Transactions++
	t.ledger.Notional += notional
	t.ledger.Fees += f
	t.ledger.UpdatedAt = time.Now().UTC()
	t.mu.Unlock()
	return f
}

// Ledger returns a copy of the current ledger.
func (t *Tracker) Ledger() domain.FeeLedger {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger
}
