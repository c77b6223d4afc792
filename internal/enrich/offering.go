package enrich

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pennypulse/pennypulse/internal/models"
)

// OfferingResult is the dilution assessment for one filing.
type OfferingResult struct {
	IsOffering  bool
	Severity    models.OfferingSeverity
	Penalty     float64 // [-0.50, 0]
	SizeUSD     float64 // 0 when not extractable
	Shares      float64 // offered shares, 0 when not extractable
	DilutionPct float64 // implied dilution, percent
}

// OfferingParser detects dilutive filings and sizes their penalty. Parsing is
// deterministic text analysis; the 90-day cache only skips rework on refiled
// amendments.
type OfferingParser struct {
	cache *memo
	now   func() time.Time
}

func NewOfferingParser(now func() time.Time) *OfferingParser {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &OfferingParser{cache: newMemo(90 * 24 * time.Hour), now: now}
}

// dilutive form types as they appear in SEC feed metadata.
var dilutiveForms = map[string]bool{
	"424B5": true, "424B4": true, "424B3": true,
	"S-1": true, "S-3": true, "F-1": true, "F-3": true,
}

var offeringPhrases = []string{
	"prospectus supplement",
	"registered direct offering",
	"public offering",
	"private placement",
	"at-the-market offering",
	"securities purchase agreement",
	"pricing of",
	"share offering",
	"unit offering",
	"common stock offering",
}

var (
	dollarSizeRe = regexp.MustCompile(`(?i)\$\s*([\d][\d,]*(?:\.\d+)?)\s*(million|billion|mm|m|b)\b`)
	dollarRawRe  = regexp.MustCompile(`\$\s*([\d][\d,]{6,})\b`)
	sharesRe     = regexp.MustCompile(`(?i)([\d][\d,]*(?:\.\d+)?)\s*(million\s+)?shares`)
)

// Parse assesses one item. floatShares and lastPrice size the implied
// dilution; pass zero when unknown.
func (p *OfferingParser) Parse(item models.RawItem, floatShares, lastPrice float64) OfferingResult {
	key := item.DedupKey()
	if v, ok := p.cache.get(key, p.now()); ok {
		return v.(OfferingResult)
	}

	result := parseOffering(item, floatShares, lastPrice)
	p.cache.put(key, result, p.now())
	return result
}

func parseOffering(item models.RawItem, floatShares, lastPrice float64) OfferingResult {
	text := strings.ToLower(item.Title + " " + item.BodySnippet)

	detected := dilutiveForms[strings.ToUpper(item.Metadata["form_type"])]
	if !detected {
		for _, phrase := range offeringPhrases {
			if strings.Contains(text, phrase) {
				detected = true
				break
			}
		}
	}
	if !detected {
		return OfferingResult{Severity: models.OfferingNone, Penalty: 0}
	}

	result := OfferingResult{IsOffering: true}
	result.SizeUSD = extractDollarSize(text)
	result.Shares = extractShares(text)

	// Implied dilution: offered shares against float when both are known,
	// else dollar size against float market value.
	switch {
	case result.Shares > 0 && floatShares > 0:
		result.DilutionPct = result.Shares / floatShares * 100
	case result.SizeUSD > 0 && floatShares > 0 && lastPrice > 0:
		result.DilutionPct = result.SizeUSD / (floatShares * lastPrice) * 100
	}

	result.Severity, result.Penalty = offeringSeverity(result.DilutionPct)
	return result
}

// offeringSeverity bands dilution: MINOR <5%, MODERATE 5-15%, SEVERE 15-30%,
// EXTREME >30%. Unknown dilution on a detected offering is treated MODERATE.
func offeringSeverity(dilutionPct float64) (models.OfferingSeverity, float64) {
	switch {
	case dilutionPct <= 0:
		return models.OfferingModerate, -0.25
	case dilutionPct < 5:
		return models.OfferingMinor, -0.10
	case dilutionPct < 15:
		return models.OfferingModerate, -0.25
	case dilutionPct < 30:
		return models.OfferingSevere, -0.40
	default:
		return models.OfferingExtreme, -0.50
	}
}

func extractDollarSize(text string) float64 {
	m := dollarSizeRe.FindStringSubmatch(text)
	if m == nil {
		// Fully written-out amounts: "$25,000,000".
		if raw := dollarRawRe.FindStringSubmatch(text); raw != nil {
			n, err := strconv.ParseFloat(strings.ReplaceAll(raw[1], ",", ""), 64)
			if err == nil {
				return n
			}
		}
		return 0
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(m[2]) {
	case "billion", "b":
		return n * 1e9
	default:
		return n * 1e6
	}
}

func extractShares(text string) float64 {
	m := sharesRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	if strings.TrimSpace(m[2]) != "" {
		n *= 1e6
	}
	return n
}
