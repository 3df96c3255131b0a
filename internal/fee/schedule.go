package fee

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Schedule is a venue's maker and taker fee pair.
type Schedule struct {
	Maker Fee
	Taker Fee
}

// ZeroSchedule charges nothing on either side.
func ZeroSchedule() Schedule {
	return Schedule{Maker: Percentage{}, Taker: Percentage{}}
}

// venueSpec is the YAML shape of one venue's fee table.
type venueSpec struct {
	Type      string  `yaml:"type"`
	Amount    float64 `yaml:"amount"`
	Maker     float64 `yaml:"maker"`
	Taker     float64 `yaml:"taker"`
	Volume30d float64 `yaml:"volume_30d"`
	Discount  float64 `yaml:"discount"`
	Tiers     []Tier  `yaml:"tiers"`
}

type fileSpec struct {
	Venues map[string]venueSpec `yaml:"venues"`
}

// DefaultSchedules returns the built-in public fee tables.
func DefaultSchedules() map[string]Schedule {
	out := make(map[string]Schedule, len(defaultSpecs))
	for name, spec := range defaultSpecs {
		s, _ := spec.schedule()
		out[name] = s
	}
	return out
}

var defaultSpecs = map[string]venueSpec{
	"binance": {
		Type: "tiered",
		Tiers: []Tier{
			{MinVolume: 0, Maker: 0.0010, Taker: 0.0010},
			{MinVolume: 1_000_000, Maker: 0.0009, Taker: 0.0010},
			{MinVolume: 5_000_000, Maker: 0.0008, Taker: 0.0010},
			{MinVolume: 20_000_000, Maker: 0.0004, Taker: 0.0006},
		},
	},
	"bybit": {Type: "percentage", Maker: 0.0010, Taker: 0.0010},
	"kraken": {
		Type: "tiered",
		Tiers: []Tier{
			{MinVolume: 0, Maker: 0.0025, Taker: 0.0040},
			{MinVolume: 10_000, Maker: 0.0020, Taker: 0.0035},
			{MinVolume: 50_000, Maker: 0.0014, Taker: 0.0024},
			{MinVolume: 100_000, Maker: 0.0012, Taker: 0.0022},
		},
	},
	"okx": {
		Type: "tiered",
		Tiers: []Tier{
			{MinVolume: 0, Maker: 0.0008, Taker: 0.0010},
			{MinVolume: 5_000_000, Maker: 0.00045, Taker: 0.0005},
		},
	},
}

// LoadSchedules reads a YAML fee file and merges it over DefaultSchedules.
// An empty path returns the defaults.
func LoadSchedules(path string) (map[string]Schedule, error) {
	out := DefaultSchedules()
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fee: read %s: %w", path, err)
	}
	parsed, err := ParseSchedules(data)
	if err != nil {
		return nil, err
	}
	for name, s := range parsed {
		out[name] = s
	}
	return out, nil
}

// ParseSchedules decodes YAML fee tables keyed by venue name.
func ParseSchedules(data []byte) (map[string]Schedule, error) {
	var f fileSpec
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fee: parse yaml: %w", err)
	}
	out := make(map[string]Schedule, len(f.Venues))
	for name, spec := range f.Venues {
		s, err := spec.schedule()
		if err != nil {
			return nil, fmt.Errorf("fee: venue %s: %w", name, err)
		}
		out[strings.ToLower(name)] = s
	}
	return out, nil
}

func (v venueSpec) schedule() (Schedule, error) {
	var s Schedule
	switch strings.ToLower(v.Type) {
	case "fixed":
		s = Schedule{Maker: Fixed{Amount: v.Amount}, Taker: Fixed{Amount: v.Amount}}
	case "percentage", "":
		s = Schedule{Maker: Percentage{Rate: v.Maker}, Taker: Percentage{Rate: v.Taker}}
	case "tiered":
		if len(v.Tiers) == 0 {
			return Schedule{}, fmt.Errorf("tiered schedule without tiers")
		}
		s = Schedule{
			Maker: NewTiered(v.Tiers, v.Volume30d, true),
			Taker: NewTiered(v.Tiers, v.Volume30d, false),
		}
	default:
		return Schedule{}, fmt.Errorf("unknown fee type %q", v.Type)
	}
	if v.Discount > 0 {
		s.Maker = Discounted{Inner: s.Maker, Discount: v.Discount}
		s.Taker = Discounted{Inner: s.Taker, Discount: v.Discount}
	}
	return s, nil
}
