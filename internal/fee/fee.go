// Package fee implements the venue fee capability: flat, percentage,
// volume-tiered and discounted fee models, plus a per-venue tracker that keeps
// an analytics ledger of simulated charges.
package fee

import (
	"fmt"
	"sort"
)

// Type classifies a fee model.
type Type string

const (
	TypeFixed      Type = "FIXED"
	TypePercentage Type = "PERCENTAGE"
	TypeTiered     Type = "TIERED"
)

// Fee computes the fee owed on a notional amount.
type Fee interface {
	CalculateFee(amount float64) float64
	Description() string
	Type() Type
}

// Fixed charges a flat amount per transaction.
type Fixed struct {
	Amount float64
}

func (f Fixed) CalculateFee(amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	return f.Amount
}

func (f Fixed) Description() string { return fmt.Sprintf("fixed %.4f per trade", f.Amount) }
func (f Fixed) Type() Type          { return TypeFixed }

// Percentage charges Rate (a fraction, 0.001 = 0.1%) of notional.
type Percentage struct {
	Rate float64
}

func (p Percentage) CalculateFee(amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	return amount * p.Rate
}

func (p Percentage) Description() string { return fmt.Sprintf("%.4f%% of notional", p.Rate*100) }
func (p Percentage) Type() Type          { return TypePercentage }

// Tier is one row of a volume-tiered schedule.
type Tier struct {
	MinVolume float64 `yaml:"min_volume"`
	Maker     float64 `yaml:"maker"`
	Taker     float64 `yaml:"taker"`
}

// Tiered picks a rate from a 30-day volume tier table.
type Tiered struct {
	tiers     []Tier
	volume30d float64
	maker     bool
}

// NewTiered returns a tiered fee for the given 30-day volume. maker selects
// the maker column instead of the taker column.
func NewTiered(tiers []Tier, volume30d float64, maker bool) *Tiered {
	sorted := append([]Tier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinVolume < sorted[j].MinVolume })
	return &Tiered{tiers: sorted, volume30d: volume30d, maker: maker}
}

// Rate returns the fractional rate for the configured volume.
func (t *Tiered) Rate() float64 {
	var tier Tier
	for _, tr := range t.tiers {
		if t.volume30d >= tr.MinVolume {
			tier = tr
		}
	}
	if t.maker {
		return tier.Maker
	}
	return tier.Taker
}

func (t *Tiered) CalculateFee(amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	return amount * t.Rate()
}

func (t *Tiered) Description() string {
	side := "taker"
	if t.maker {
		side = "maker"
	}
	return fmt.Sprintf("tiered %s %.4f%% at 30d volume %.0f", side, t.Rate()*100, t.volume30d)
}

func (t *Tiered) Type() Type { return TypeTiered }

// Discounted reduces an inner fee by Discount (a fraction).
type Discounted struct {
	Inner    Fee
	Discount float64
}

func (d Discounted) CalculateFee(amount float64) float64 {
	disc := d.Discount
	if disc < 0 {
		disc = 0
	}
	if disc > 1 {
		disc = 1
	}
	return d.Inner.CalculateFee(amount) * (1 - disc)
}

func (d Discounted) Description() string {
	return fmt.Sprintf("%s less %.0f%% discount", d.Inner.Description(), d.Discount*100)
}

func (d Discounted) Type() Type { return d.Inner.Type() }

// Rate returns fee/notional for f at the given notional, or 0 when the
// notional is not positive.
func Rate(f Fee, notional float64) float64 {
	if f == nil || notional <= 0 {
		return 0
	}
	return f.CalculateFee(notional) / notional
}
