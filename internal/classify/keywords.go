// Package classify turns RawItems into ScoredItems. The classifier is a pure
// function of the item, the enrichment snapshot, and the keyword table, so a
// replay over the same inputs reproduces identical scores.
package classify

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeywordTable maps lowercase phrases to weights in [-1, 1].
type KeywordTable map[string]float64

// DefaultKeywords is the curated base table. Negative weights mark distress
// and dilution language.
func DefaultKeywords() KeywordTable {
	return KeywordTable{
		// Regulatory and clinical catalysts.
		"fda approval":          0.50,
		"fda clearance":         0.45,
		"fda approves":          0.50,
		"breakthrough therapy":  0.45,
		"fast track":            0.35,
		"orphan drug":           0.30,
		"phase 3":               0.30,
		"phase 2":               0.20,
		"positive topline":      0.45,
		"primary endpoint met":  0.50,
		"emergency use":         0.35,
		"510(k)":                0.30,

		// Deals and corporate actions.
		"merger":                0.35,
		"acquisition":           0.35,
		"definitive agreement":  0.40,
		"strategic partnership": 0.30,
		"licensing agreement":   0.30,
		"buyback":               0.25,
		"uplisting":             0.30,
		"contract award":        0.35,
		"patent granted":        0.25,

		// Results surprises.
		"record revenue":        0.35,
		"beats estimates":       0.30,
		"raises guidance":       0.35,
		"profitability":         0.20,

		// Negative catalysts.
		"going concern":         -0.60,
		"delisting":             -0.50,
		"reverse split":         -0.35,
		"offering":              -0.20,
		"dilution":              -0.30,
		"bankruptcy":            -0.70,
		"chapter 11":            -0.70,
		"sec investigation":     -0.50,
		"clinical hold":         -0.45,
		"trial failed":          -0.55,
		"missed estimates":      -0.25,
		"resignation":           -0.20,
	}
}

// LoadKeywords builds the effective table: defaults, then the optional YAML
// overlay. Overlay entries override defaults phrase-by-phrase; a zero weight
// removes the phrase.
func LoadKeywords(overlayPath string) (KeywordTable, error) {
	table := DefaultKeywords()
	if overlayPath == "" {
		return table, nil
	}

	raw, err := os.ReadFile(overlayPath)
	if err != nil {
		return nil, fmt.Errorf("keywords overlay: %w", err)
	}
	var overlay map[string]float64
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, fmt.Errorf("keywords overlay %s: %w", overlayPath, err)
	}
	for phrase, weight := range overlay {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" {
			continue
		}
		if weight == 0 {
			delete(table, phrase)
			continue
		}
		table[phrase] = clip(weight, -1, 1)
	}
	return table, nil
}

// Match is one phrase hit with its weight.
type Match struct {
	Phrase string
	Weight float64
}

// MatchText applies the table to text with case-insensitive substring matching
// at token boundaries, so "offering" does not fire inside "suffering". Matches
// are returned in deterministic phrase order.
func (t KeywordTable) MatchText(text string) []Match {
	lower := strings.ToLower(text)

	phrases := make([]string, 0, len(t))
	for p := range t {
		phrases = append(phrases, p)
	}
	sort.Strings(phrases)

	var matches []Match
	for _, phrase := range phrases {
		if containsAtBoundary(lower, phrase) {
			matches = append(matches, Match{Phrase: phrase, Weight: t[phrase]})
		}
	}
	return matches
}

// Score sums matched weights clipped to [-1, 1] and reports the positive
// match count.
func (t KeywordTable) Score(text string) (score float64, positive int, matched []string) {
	for _, m := range t.MatchText(text) {
		score += m.Weight
		if m.Weight > 0 {
			positive++
		}
		matched = append(matched, m.Phrase)
	}
	return clip(score, -1, 1), positive, matched
}

func containsAtBoundary(text, phrase string) bool {
	for start := 0; ; {
		idx := strings.Index(text[start:], phrase)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(phrase)
		if boundaryBefore(text, idx) && boundaryAfter(text, end) {
			return true
		}
		start = idx + 1
	}
}

func boundaryBefore(text string, idx int) bool {
	return idx == 0 || !isTokenChar(text[idx-1])
}

func boundaryAfter(text string, end int) bool {
	return end >= len(text) || !isTokenChar(text[end])
}

func isTokenChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
