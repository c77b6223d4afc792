package models

import "time"

// SchemaV1 is the journal record schema version.
const SchemaV1 = "v1"

// Classification is the score context embedded in a journal record.
type Classification struct {
	KeywordScore     float64 `json:"keyword_score"`
	SentimentScore   float64 `json:"sentiment_score"`
	SourceWeight     float64 `json:"source_weight"`
	Confidence       float64 `json:"confidence"`
	Relevance        float64 `json:"relevance"`
	Regime           Regime  `json:"regime"`
	RegimeMultiplier float64 `json:"regime_multiplier"`
	RVolMultiplier   float64 `json:"rvol_multiplier"`
	FloatMultiplier  float64 `json:"float_multiplier"`
	OfferingPenalty  float64 `json:"offering_penalty"`
	LastPrice        float64 `json:"last_price"`
}

// EventRecord is one line of events.jsonl / rejected_items.jsonl. Records are
// self-describing and never mutated after the append.
type EventRecord struct {
	TSPublished time.Time      `json:"ts_published"`
	TSObserved  time.Time      `json:"ts_observed"`
	SourceID    string         `json:"source_id"`
	CanonicalID string         `json:"canonical_id"`
	Tickers     []string       `json:"tickers"`
	Title       string         `json:"title"`
	Link        string         `json:"link"`
	Cls         Classification `json:"cls"`

	// RejectionReason is set only in the rejected journal.
	RejectionReason Reason `json:"rejection_reason,omitempty"`

	Schema string `json:"schema"`
}

// NewEventRecord snapshots a scored item into journal form.
func NewEventRecord(s ScoredItem) EventRecord {
	return EventRecord{
		TSPublished: s.TSPublished,
		TSObserved:  s.TSObserved,
		SourceID:    s.SourceID,
		CanonicalID: s.CanonicalID,
		Tickers:     s.Tickers,
		Title:       s.Title,
		Link:        s.Link,
		Cls: Classification{
			KeywordScore:     s.KeywordScore,
			SentimentScore:   s.SentimentScore,
			SourceWeight:     s.SourceWeight,
			Confidence:       s.Confidence,
			Relevance:        s.Relevance,
			Regime:           s.Regime,
			RegimeMultiplier: s.RegimeMultiplier,
			RVolMultiplier:   s.RVolMultiplier,
			FloatMultiplier:  s.FloatMultiplier,
			OfferingPenalty:  s.OfferingPenalty,
			LastPrice:        s.LastPrice,
		},
		Schema: SchemaV1,
	}
}
