// Package enrich produces the market-context signals that modulate keyword
// scores: regime, relative volume, float class, sector context, and offering
// dilution. Every provider degrades to its identity value on failure so
// enrichment can never block admission.
package enrich

import (
	"sync"
	"time"

	"github.com/pennypulse/pennypulse/internal/models"
)

// Snapshot is the enrichment state captured for one item at classification
// time. The classifier is a pure function of (RawItem, Snapshot, table).
type Snapshot struct {
	Regime           models.Regime
	RegimeMultiplier float64
	RegimeConfidence float64

	RVol           float64
	RVolMultiplier float64

	FloatClass      models.FloatClass
	FloatMultiplier float64

	OfferingSeverity models.OfferingSeverity
	OfferingPenalty  float64
	DilutionPct      float64

	Sector          string
	SectorRelReturn float64

	LastPrice float64
	Currency  string
	HasPrice  bool
}

// Identity returns the snapshot that leaves a score unchanged. Providers that
// cannot produce a result contribute their identity slice of it.
func Identity() Snapshot {
	return Snapshot{
		Regime:           models.RegimeNeutral,
		RegimeMultiplier: 1.0,
		RVol:             1.0,
		RVolMultiplier:   1.0,
		FloatClass:       models.FloatUnknown,
		FloatMultiplier:  1.0,
		OfferingSeverity: models.OfferingNone,
		OfferingPenalty:  0.0,
		Currency:         "USD",
	}
}

// memo is a tiny single-purpose TTL cache; each enrichment provider owns one
// with its own horizon (5 min for regime/rvol/sector, 30 d float, 90 d offering).
type memo struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoEntry
}

type memoEntry struct {
	value   interface{}
	expires time.Time
}

func newMemo(ttl time.Duration) *memo {
	return &memo{ttl: ttl, entries: make(map[string]memoEntry)}
}

func (m *memo) get(key string, now time.Time) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || now.After(e.expires) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

func (m *memo) put(key string, value interface{}, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Opportunistic sweep keeps the map bounded without a background task.
	if len(m.entries) > 4096 {
		for k, e := range m.entries {
			if now.After(e.expires) {
				delete(m.entries, k)
			}
		}
	}
	m.entries[key] = memoEntry{value: value, expires: now.Add(m.ttl)}
}
