package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pennypulse/pennypulse/internal/enrich"
	"github.com/pennypulse/pennypulse/internal/models"
)

type fixedSentiment struct{ v float64 }

func (f fixedSentiment) Sentiment(string) float64 { return f.v }

func pricedSnapshot(price float64) enrich.Snapshot {
	snap := enrich.Identity()
	snap.LastPrice = price
	snap.HasPrice = true
	return snap
}

func freshItem(title string, tickers ...string) models.RawItem {
	now := time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)
	return models.RawItem{
		SourceID:    "sec_8k",
		CanonicalID: "acc1",
		TSPublished: now,
		TSObserved:  now.Add(2 * time.Minute),
		Title:       title,
		TickersHint: tickers,
	}
}

func TestHappyPathComposition(t *testing.T) {
	snap := pricedSnapshot(3.20)
	snap.Regime = models.RegimeBull
	snap.RegimeMultiplier = 1.1
	snap.RVolMultiplier = 1.1
	snap.FloatClass = models.FloatLow
	snap.FloatMultiplier = 1.2

	c := New(DefaultKeywords(), fixedSentiment{0.3}, DefaultParams())
	scored, reason := c.Classify(freshItem("Company X announces FDA approval of Drug Y", "XYZ"), snap)

	assert.Empty(t, string(reason))
	assert.Equal(t, []string{"XYZ"}, scored.Tickers)
	assert.Equal(t, 0.5, scored.KeywordScore)
	assert.Equal(t, 0.3, scored.SentimentScore)
	// base = clip(0.5 + 0.3*0.3) = 0.59; composed = 0.59 * 1.1 * 1.1 * 1.2
	assert.InDelta(t, 0.857, scored.SourceWeight, 0.001)
	assert.Equal(t, 0.0, scored.OfferingPenalty)
	assert.GreaterOrEqual(t, scored.Confidence, 0.4)
}

func TestOfferingPenaltyOverridesPositiveKeywords(t *testing.T) {
	snap := pricedSnapshot(2.00)
	snap.OfferingSeverity = models.OfferingExtreme
	snap.OfferingPenalty = -0.50

	c := New(KeywordTable{"definitive agreement": 0.4}, fixedSentiment{0.1}, DefaultParams())
	scored, reason := c.Classify(freshItem("Definitive agreement for offering", "ABC"), snap)

	assert.Empty(t, string(reason))
	// base = 0.4 + 0.3*0.1 = 0.43; neutral multipliers; -0.50 penalty.
	assert.InDelta(t, -0.07, scored.SourceWeight, 1e-9)
}

func TestNoTickerRejected(t *testing.T) {
	c := New(DefaultKeywords(), NullSentiment{}, DefaultParams())
	_, reason := c.Classify(freshItem("Generic macro headline with no symbols"), pricedSnapshot(5))
	assert.Equal(t, models.ReasonNoTicker, reason)
}

func TestPriceGates(t *testing.T) {
	c := New(DefaultKeywords(), NullSentiment{}, DefaultParams())

	_, reason := c.Classify(freshItem("FDA approval news", "XYZ"), enrich.Identity())
	assert.Equal(t, models.ReasonNoPrice, reason)

	// Band boundaries: the lower bound itself is inside the band.
	_, reason = c.Classify(freshItem("FDA approval news", "XYZ"), pricedSnapshot(0.10))
	assert.Empty(t, string(reason))

	_, reason = c.Classify(freshItem("FDA approval news", "XYZ"), pricedSnapshot(0.09))
	assert.Equal(t, models.ReasonPriceOutOfBand, reason)

	_, reason = c.Classify(freshItem("FDA approval news", "XYZ"), pricedSnapshot(10.01))
	assert.Equal(t, models.ReasonPriceOutOfBand, reason)
}

func TestRejectionStillCarriesScores(t *testing.T) {
	c := New(DefaultKeywords(), fixedSentiment{0.2}, DefaultParams())
	scored, reason := c.Classify(freshItem("FDA approval for lead drug", "XYZ"), enrich.Identity())

	assert.Equal(t, models.ReasonNoPrice, reason)
	assert.Equal(t, 0.5, scored.KeywordScore, "scores survive for the rejection journal")
}

func TestDeterminism(t *testing.T) {
	snap := pricedSnapshot(3.20)
	snap.RegimeMultiplier = 1.1
	snap.RVolMultiplier = 1.25
	item := freshItem("FDA approval and record revenue for Acme", "ACME")

	c := New(DefaultKeywords(), NewLexiconSentiment(), DefaultParams())
	first, r1 := c.Classify(item, snap)
	second, r2 := c.Classify(item, snap)
	assert.Equal(t, r1, r2)
	assert.Equal(t, first, second)
}

func TestNegativeScoresStayInBand(t *testing.T) {
	snap := pricedSnapshot(1.00)
	snap.OfferingPenalty = -0.50

	c := New(DefaultKeywords(), fixedSentiment{-1}, DefaultParams())
	scored, _ := c.Classify(freshItem("Bankruptcy filing cites going concern doubt", "XYZ"), snap)
	assert.GreaterOrEqual(t, scored.SourceWeight, -1.0)
	assert.LessOrEqual(t, scored.SourceWeight, 1.0)
}
