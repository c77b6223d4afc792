package models

import "time"

// Outcome is the realized price outcome of one rejected item over one
// measurement window, produced by the historical analyzer.
type Outcome struct {
	SourceID    string    `json:"source_id"`
	CanonicalID string    `json:"canonical_id"`
	Ticker      string    `json:"ticker"`
	Timeframe   Timeframe `json:"timeframe"`

	EntryPrice    float64 `json:"entry_price"` // first bar open at or after ts_published
	ExitPrice     float64 `json:"exit_price"`  // last bar close inside the window
	MaxReturn     float64 `json:"max_return"`  // (max(high) - entry) / entry
	Drawdown      float64 `json:"drawdown"`    // (min(low) - entry) / entry, <= 0
	VolumeAtEntry float64 `json:"volume_at_entry"`

	// IsMissedOpportunity is true iff the item was rejected, MaxReturn >= the
	// missed threshold within the window, and the tradeability filter passed.
	IsMissedOpportunity bool `json:"is_missed_opportunity"`
}

// RecommendationKind classifies a keyword-weight recommendation.
type RecommendationKind string

const (
	KindNew            RecommendationKind = "new"
	KindWeightIncrease RecommendationKind = "weight_increase"
	KindWeightDecrease RecommendationKind = "weight_decrease"
	KindNewDiscovered  RecommendationKind = "new_discovered"
)

// Evidence is the statistical backing for one recommendation.
type Evidence struct {
	Occurrences int     `json:"occurrences"` // phrase hits among missed opportunities
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
	Lift        float64 `json:"lift"` // P(phrase|missed) / P(phrase|not_missed)
	SampleSize  int     `json:"sample_size"`
	PValue      float64 `json:"p_value"` // BH-adjusted
}

// KeywordRecommendation is one advisory weight change from a nightly run.
// Recommendations are never auto-applied; the operator reviews them.
type KeywordRecommendation struct {
	Keyword           string             `json:"keyword"`
	Kind              RecommendationKind `json:"kind"`
	RecommendedWeight float64            `json:"recommended_weight"` // [-1, 1]
	Confidence        float64            `json:"confidence"`         // [0, 1]
	Evidence          Evidence           `json:"evidence"`

	// 95% bootstrap CI over the lift estimate.
	LiftCILow  float64 `json:"lift_ci_low"`
	LiftCIHigh float64 `json:"lift_ci_high"`
}

// AnalysisReport is the atomic write-once output of one analyzer run.
type AnalysisReport struct {
	RunID               string                  `json:"run_id"`
	GeneratedAt         time.Time               `json:"generated_at"`
	WindowStart         time.Time               `json:"window_start"`
	WindowEnd           time.Time               `json:"window_end"`
	RejectedExamined    int                     `json:"rejected_examined"`
	MissedOpportunities int                     `json:"missed_opportunities"`
	PhrasesTested       int                     `json:"phrases_tested"`
	Recommendations     []KeywordRecommendation `json:"recommendations"`
	Schema              string                  `json:"schema"`
}
