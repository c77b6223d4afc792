package classify

import (
	"regexp"
	"strings"

	"github.com/pennypulse/pennypulse/internal/models"
)

var (
	exchangeTagRe = regexp.MustCompile(`(?i)\((?:NASDAQ|NYSE(?:\s+American)?|AMEX|OTC(?:QB|QX)?)\s*:\s*([A-Za-z]{1,5})\)`)
	cashtagRe     = regexp.MustCompile(`\$([A-Z]{1,5})\b`)
)

// ResolveTickers returns the item's resolved symbols: the feed hint when
// present, otherwise extraction from the title and body. Bare uppercase words
// are deliberately not treated as tickers; only exchange tags and cashtags
// are unambiguous enough in headline text.
func ResolveTickers(item models.RawItem) []string {
	if len(item.TickersHint) > 0 {
		return dedupeUpper(item.TickersHint)
	}

	text := item.Title + " " + item.BodySnippet
	var found []string
	for _, m := range exchangeTagRe.FindAllStringSubmatch(text, -1) {
		found = append(found, m[1])
	}
	for _, m := range cashtagRe.FindAllStringSubmatch(text, -1) {
		found = append(found, m[1])
	}
	if t := item.Metadata["ticker"]; t != "" {
		found = append(found, t)
	}
	return dedupeUpper(found)
}

func dedupeUpper(tickers []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
