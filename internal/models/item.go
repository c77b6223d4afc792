package models

import (
	"fmt"
	"time"
)

// RawItem is the normalized output of a feed fetcher, before classification.
type RawItem struct {
	SourceID    string    `json:"source_id"`    // stable feed identifier, e.g. "sec_8k"
	CanonicalID string    `json:"canonical_id"` // provider-issued id (accession number, GUID)
	TSPublished time.Time `json:"ts_published"` // publication instant per the source
	TSObserved  time.Time `json:"ts_observed"`  // first seen by a fetcher
	Title       string    `json:"title"`
	BodySnippet string    `json:"body_snippet,omitempty"`
	Link        string    `json:"link"`
	TickersHint []string  `json:"tickers_hint,omitempty"` // pre-extracted symbols from the feed

	// Metadata carries uninterpreted pass-through fields (filing form type,
	// feed category tags). Nothing in the pipeline branches on it.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DedupKey returns the key used for at-most-once alerting. Multi-ticker items
// share one key so a second ticker on the same filing still dedups.
func (r RawItem) DedupKey() string {
	return r.SourceID + "|" + r.CanonicalID
}

func (r RawItem) String() string {
	return fmt.Sprintf("%s/%s %q", r.SourceID, r.CanonicalID, r.Title)
}

// Age is the observation lag used by the freshness gate.
func (r RawItem) Age() time.Duration {
	return r.TSObserved.Sub(r.TSPublished)
}

// Regime is the coarse market-conditions classification that modulates scoring.
type Regime string

const (
	RegimeBull    Regime = "BULL"
	RegimeBear    Regime = "BEAR"
	RegimeHighVol Regime = "HIGH_VOL"
	RegimeNeutral Regime = "NEUTRAL"
	RegimeCrash   Regime = "CRASH"
)

// FloatClass buckets a ticker's public float.
type FloatClass string

const (
	FloatMicro   FloatClass = "MICRO"  // < 10M shares
	FloatLow     FloatClass = "LOW"    // 10M - 50M
	FloatMedium  FloatClass = "MEDIUM" // 50M - 200M
	FloatHigh    FloatClass = "HIGH"   // > 200M
	FloatUnknown FloatClass = "UNKNOWN"
)

// OfferingSeverity bands implied dilution from a dilutive filing.
type OfferingSeverity string

const (
	OfferingNone     OfferingSeverity = "NONE"
	OfferingMinor    OfferingSeverity = "MINOR"    // < 5% dilution
	OfferingModerate OfferingSeverity = "MODERATE" // 5-15%
	OfferingSevere   OfferingSeverity = "SEVERE"   // 15-30%
	OfferingExtreme  OfferingSeverity = "EXTREME"  // > 30%
)

// ScoredItem is the classifier output. Every signal that contributed to the
// composed score is retained on the record for journaling and diagnostics.
type ScoredItem struct {
	RawItem

	Tickers []string `json:"tickers"` // resolved symbols; empty means rejection

	KeywordScore   float64 `json:"keyword_score"`   // [-1, 1] weighted phrase sum
	SentimentScore float64 `json:"sentiment_score"` // [-1, 1]
	SourceWeight   float64 `json:"source_weight"`   // composed score used for thresholding
	Relevance      float64 `json:"relevance"`       // raw keyword relevance, pre-sentiment

	Regime           Regime  `json:"regime"`
	RegimeMultiplier float64 `json:"regime_multiplier"`
	RVolMultiplier   float64 `json:"rvol_multiplier"`
	FloatMultiplier  float64 `json:"float_multiplier"`
	OfferingPenalty  float64 `json:"offering_penalty"`

	FloatClass       FloatClass       `json:"float_class,omitempty"`
	OfferingSeverity OfferingSeverity `json:"offering_severity,omitempty"`
	Sector           string           `json:"sector,omitempty"`

	LastPrice float64 `json:"last_price"`
	Currency  string  `json:"currency"`

	Confidence float64 `json:"confidence"` // [0, 1] secondary threshold

	// PositiveMatches and Matched feed the confidence function and the
	// analyzer; they are not part of the composed score.
	PositiveMatches int      `json:"positive_matches"`
	Matched         []string `json:"matched,omitempty"`
}

// Reason is the primary rejection reason code. Exactly one per rejected item.
type Reason string

const (
	ReasonNoTicker        Reason = "no_ticker"
	ReasonNoPrice         Reason = "no_price"
	ReasonPriceOutOfBand  Reason = "price_out_of_band"
	ReasonBelowMinScore   Reason = "below_min_score"
	ReasonLowConfidence   Reason = "low_confidence"
	ReasonStale           Reason = "stale"
	ReasonDuplicate       Reason = "duplicate"
	ReasonClassifierError Reason = "classifier_error"
)
