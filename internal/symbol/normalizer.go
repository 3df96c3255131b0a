// Package symbol maps venue-native trading symbols to canonical identifiers
// and finds symbols quoted on more than one venue.
package symbol

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// DefaultAliases maps venue-specific base asset codes to their common code.
var DefaultAliases = map[string]string{
	"XBT": "BTC",
	"XDG": "DOGE",
}

// DefaultSuffixes are contract qualifiers stripped from native symbols.
// Longer qualifiers must come first.
var DefaultSuffixes = []string{"-SWAP", "-PERP", "-SPOT", "_PERP", ".P", ":USDT"}

const separators = "-_/:. "

// Normalizer canonicalises native symbols.
type Normalizer struct {
	aliases  map[string]string
	suffixes []string
}

// New returns a Normalizer with the default alias and suffix tables.
func New() *Normalizer {
	return &Normalizer{aliases: DefaultAliases, suffixes: DefaultSuffixes}
}

// NewWithRules returns a Normalizer with custom tables.
func NewWithRules(aliases map[string]string, suffixes []string) *Normalizer {
	return &Normalizer{aliases: aliases, suffixes: suffixes}
}

// Normalize returns the canonical form of native: upper-cased, qualifiers and
// separators removed, base alias applied. Normalize(Normalize(s)) ==
// Normalize(s).
func (n *Normalizer) Normalize(native string) string {
	s := strings.ToUpper(strings.TrimSpace(native))
	for {
		next := n.pass(s)
		if next == s {
			return s
		}
		s = next
	}
}

func (n *Normalizer) pass(s string) string {
	for _, suf := range n.suffixes {
		if strings.HasSuffix(s, suf) && len(s) > len(suf) {
			s = strings.TrimSuffix(s, suf)
			break
		}
	}
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(separators, r) {
			return -1
		}
		return r
	}, s)
	for from, to := range n.aliases {
		if strings.HasPrefix(s, from) && !strings.HasPrefix(s, to) {
			return to + strings.TrimPrefix(s, from)
		}
	}
	return s
}

var defaultNormalizer = New()

// Normalize canonicalises native with the default tables.
func Normalize(native string) string {
	return defaultNormalizer.Normalize(native)
}

// Tradable is the set of canonical symbols carried by at least two venues
// and, per venue, the canonical to native mapping used to address it.
type Tradable struct {
	Symbols []string
	Native  map[string]map[string]string
}

// NativeFor returns venue's native symbol for canonical.
func (t Tradable) NativeFor(venue, canonical string) (string, bool) {
	m, ok := t.Native[venue]
	if !ok {
		return "", false
	}
	s, ok := m[canonical]
	return s, ok
}

// Venues returns the sorted venues carrying canonical.
func (t Tradable) Venues(canonical string) []string {
	var out []string
	for v, m := range t.Native {
		if _, ok := m[canonical]; ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// NativeSymbols returns venue's native symbols for every tradable canonical.
func (t Tradable) NativeSymbols(venue string) []string {
	m := t.Native[venue]
	out := make([]string, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// FindTradable normalizes each venue's pairs and keeps canonical symbols
// present on at least two venues. Venues with no pairs are skipped with a
// warning. When two native symbols on one venue collide, the
// lexicographically smaller native wins.
func (n *Normalizer) FindTradable(pairs map[string][]domain.TradingPair, logger *slog.Logger) Tradable {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "symbol_normalizer"))

	perVenue := make(map[string]map[string]string, len(pairs))
	counts := make(map[string]int)

	venues := make([]string, 0, len(pairs))
	for v := range pairs {
		venues = append(venues, v)
	}
	sort.Strings(venues)

	for _, venue := range venues {
		list := pairs[venue]
		if len(list) == 0 {
			logger.Warn("venue has no trading pairs, skipping", slog.String("venue", venue))
			continue
		}
		m := make(map[string]string, len(list))
		for _, p := range list {
			if p.Symbol == "" {
				continue
			}
			canon := n.Normalize(p.Symbol)
			if prev, dup := m[canon]; dup {
				if p.Symbol < prev {
					m[canon] = p.Symbol
				}
				continue
			}
			m[canon] = p.Symbol
		}
		perVenue[venue] = m
		for canon := range m {
			counts[canon]++
		}
	}

	out := Tradable{Native: make(map[string]map[string]string, len(perVenue))}
	for canon, c := range counts {
		if c >= 2 {
			out.Symbols = append(out.Symbols, canon)
		}
	}
	sort.Strings(out.Symbols)

	keep := make(map[string]bool, len(out.Symbols))
	for _, s := range out.Symbols {
		keep[s] = true
	}
	for venue, m := range perVenue {
		filtered := make(map[string]string)
		for canon, native := range m {
			if keep[canon] {
				filtered[canon] = native
			}
		}
		out.Native[venue] = filtered
	}

	logger.Info("tradable symbols resolved",
		slog.Int("venues", len(perVenue)),
		slog.Int("symbols", len(out.Symbols)),
	)
	return out
}
