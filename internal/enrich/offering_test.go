package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pennypulse/pennypulse/internal/models"
)

func offeringItem(title string, meta map[string]string) models.RawItem {
	return models.RawItem{
		SourceID:    "sec_424b5",
		CanonicalID: "acc-" + title,
		Title:       title,
		Metadata:    meta,
	}
}

func TestNonOfferingIsClean(t *testing.T) {
	p := NewOfferingParser(fixedNow(time.Now()))
	r := p.Parse(offeringItem("Company X announces FDA approval of Drug Y", nil), 0, 0)
	assert.False(t, r.IsOffering)
	assert.Equal(t, models.OfferingNone, r.Severity)
	assert.Equal(t, 0.0, r.Penalty)
}

func TestFormTypeDetection(t *testing.T) {
	p := NewOfferingParser(fixedNow(time.Now()))
	r := p.Parse(offeringItem("Quarterly filing", map[string]string{"form_type": "424B5"}), 0, 0)
	assert.True(t, r.IsOffering)
	assert.Equal(t, models.OfferingModerate, r.Severity, "unknown dilution defaults to MODERATE")
	assert.Equal(t, -0.25, r.Penalty)
}

func TestPhraseDetectionWithDollarSize(t *testing.T) {
	p := NewOfferingParser(fixedNow(time.Now()))
	// $20M raise against a 10M-share float at $4: 50% dilution -> EXTREME.
	r := p.Parse(offeringItem("XYZ announces pricing of $20 million public offering", nil), 10_000_000, 4.00)
	assert.True(t, r.IsOffering)
	assert.Equal(t, 20_000_000.0, r.SizeUSD)
	assert.InDelta(t, 50.0, r.DilutionPct, 0.01)
	assert.Equal(t, models.OfferingExtreme, r.Severity)
	assert.Equal(t, -0.50, r.Penalty)
}

func TestShareCountDilution(t *testing.T) {
	p := NewOfferingParser(fixedNow(time.Now()))
	// 2M shares against a 50M float: 4% -> MINOR.
	r := p.Parse(offeringItem("ABC prices registered direct offering of 2,000,000 shares", nil), 50_000_000, 3.00)
	assert.True(t, r.IsOffering)
	assert.InDelta(t, 4.0, r.DilutionPct, 0.01)
	assert.Equal(t, models.OfferingMinor, r.Severity)
	assert.Equal(t, -0.10, r.Penalty)
}

func TestMillionSharesSuffix(t *testing.T) {
	p := NewOfferingParser(fixedNow(time.Now()))
	// "5 million shares" against 40M float: 12.5% -> MODERATE.
	r := p.Parse(offeringItem("DEF announces public offering of 5 million shares", nil), 40_000_000, 2.00)
	assert.InDelta(t, 12.5, r.DilutionPct, 0.01)
	assert.Equal(t, models.OfferingModerate, r.Severity)
}

func TestSeverityBands(t *testing.T) {
	cases := []struct {
		dilution float64
		severity models.OfferingSeverity
		penalty  float64
	}{
		{3, models.OfferingMinor, -0.10},
		{10, models.OfferingModerate, -0.25},
		{20, models.OfferingSevere, -0.40},
		{45, models.OfferingExtreme, -0.50},
	}
	for _, tc := range cases {
		sev, pen := offeringSeverity(tc.dilution)
		assert.Equal(t, tc.severity, sev, "dilution=%v", tc.dilution)
		assert.Equal(t, tc.penalty, pen)
	}
}

func TestPenaltyWithinSpecBand(t *testing.T) {
	for _, d := range []float64{0, 1, 4.9, 5, 14.9, 15, 29.9, 30, 100} {
		_, pen := offeringSeverity(d)
		assert.GreaterOrEqual(t, pen, -0.50)
		assert.LessOrEqual(t, pen, 0.0)
	}
}

func TestBillionSizeParsing(t *testing.T) {
	assert.Equal(t, 1.5e9, extractDollarSize("a $1.5 billion offering"))
	assert.Equal(t, 25e6, extractDollarSize("priced its $25,000,000 offering"))
	assert.Equal(t, 0.0, extractDollarSize("no numbers here"))
}
