package classify

import (
	"github.com/pennypulse/pennypulse/internal/enrich"
	"github.com/pennypulse/pennypulse/internal/models"
)

// Params are the classifier's tunables.
type Params struct {
	Alpha    float64 // sentiment blend weight in the base score
	PriceMin float64
	PriceMax float64
}

func DefaultParams() Params {
	return Params{Alpha: 0.3, PriceMin: 0.10, PriceMax: 10.00}
}

// Classifier scores items. It performs no I/O: every market-dependent input
// arrives in the enrichment snapshot.
type Classifier struct {
	table     KeywordTable
	sentiment SentimentAnalyzer
	params    Params
}

func New(table KeywordTable, sentiment SentimentAnalyzer, params Params) *Classifier {
	if sentiment == nil {
		sentiment = NullSentiment{}
	}
	return &Classifier{table: table, sentiment: sentiment, params: params}
}

// Classify scores one item against its enrichment snapshot. A non-empty
// reason means the item failed a classifier gate; the ScoredItem is still
// populated as far as scoring got, so rejections journal with full context.
//
// Composition:
//
//	base          = clip(keyword + alpha*sentiment, -1, 1)
//	composed      = base * regime_mult * rvol_mult * float_mult
//	source_weight = clip(composed + offering_penalty, -1, 1)
//
// The offering penalty is additive after the multipliers: it is a verified
// hard negative, not a modulation of the catalyst signal.
func (c *Classifier) Classify(item models.RawItem, snap enrich.Snapshot) (models.ScoredItem, models.Reason) {
	scored := models.ScoredItem{
		RawItem:          item,
		Regime:           snap.Regime,
		RegimeMultiplier: snap.RegimeMultiplier,
		RVolMultiplier:   snap.RVolMultiplier,
		FloatMultiplier:  snap.FloatMultiplier,
		OfferingPenalty:  snap.OfferingPenalty,
		FloatClass:       snap.FloatClass,
		OfferingSeverity: snap.OfferingSeverity,
		Sector:           snap.Sector,
		LastPrice:        snap.LastPrice,
		Currency:         snap.Currency,
	}

	scored.Tickers = ResolveTickers(item)
	if len(scored.Tickers) == 0 {
		return scored, models.ReasonNoTicker
	}

	text := item.Title + " " + item.BodySnippet
	scored.KeywordScore, scored.PositiveMatches, scored.Matched = c.table.Score(text)
	scored.Relevance = scored.KeywordScore
	scored.SentimentScore = clip(c.sentiment.Sentiment(text), -1, 1)

	if !snap.HasPrice {
		return scored, models.ReasonNoPrice
	}
	if snap.LastPrice < c.params.PriceMin || snap.LastPrice > c.params.PriceMax {
		return scored, models.ReasonPriceOutOfBand
	}

	base := clip(scored.KeywordScore+c.params.Alpha*scored.SentimentScore, -1, 1)
	composed := base * snap.RegimeMultiplier * snap.RVolMultiplier * snap.FloatMultiplier
	scored.SourceWeight = clip(composed+snap.OfferingPenalty, -1, 1)

	scored.Confidence = Confidence(scored.PositiveMatches, scored.SentimentScore, item.Age())
	return scored, ""
}
