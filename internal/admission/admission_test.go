package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennypulse/pennypulse/internal/models"
)

func gk() *Gatekeeper {
	return NewGatekeeper(0.25, 0.4, time.Hour)
}

func passing() models.ScoredItem {
	now := time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)
	return models.ScoredItem{
		RawItem: models.RawItem{
			SourceID:    "sec_8k",
			CanonicalID: "acc1",
			TSPublished: now,
			TSObserved:  now.Add(5 * time.Minute),
		},
		Tickers:      []string{"XYZ"},
		SourceWeight: 0.60,
		Confidence:   0.70,
		LastPrice:    3.20,
	}
}

func TestAcceptWhenAllGatesPass(t *testing.T) {
	d := gk().Admit(passing(), "")
	assert.True(t, d.Accepted)
	assert.Empty(t, string(d.Reason))
}

func TestScoreBoundaryInclusive(t *testing.T) {
	item := passing()
	item.SourceWeight = 0.25
	assert.True(t, gk().Admit(item, "").Accepted, "exactly MIN_SCORE is accepted")

	item.SourceWeight = 0.2499
	d := gk().Admit(item, "")
	assert.False(t, d.Accepted)
	assert.Equal(t, models.ReasonBelowMinScore, d.Reason)
}

func TestAgeBoundaryInclusive(t *testing.T) {
	item := passing()
	item.TSObserved = item.TSPublished.Add(time.Hour)
	assert.True(t, gk().Admit(item, "").Accepted, "exactly MAX_AGE is accepted")

	item.TSObserved = item.TSPublished.Add(time.Hour + time.Second)
	d := gk().Admit(item, "")
	assert.False(t, d.Accepted)
	assert.Equal(t, models.ReasonStale, d.Reason)
}

func TestLowConfidence(t *testing.T) {
	item := passing()
	item.Confidence = 0.39
	d := gk().Admit(item, "")
	assert.Equal(t, models.ReasonLowConfidence, d.Reason)
}

func TestClassifierReasonIsPrimary(t *testing.T) {
	item := passing()
	item.SourceWeight = 0 // would also fail the score gate
	d := gk().Admit(item, models.ReasonNoPrice)
	require.False(t, d.Accepted)
	assert.Equal(t, models.ReasonNoPrice, d.Reason, "classifier reason wins as primary")
	assert.Contains(t, d.Secondary, models.ReasonBelowMinScore)
}

func TestOfferingScenarioRejected(t *testing.T) {
	item := passing()
	item.SourceWeight = -0.07
	d := gk().Admit(item, "")
	assert.False(t, d.Accepted)
	assert.Equal(t, models.ReasonBelowMinScore, d.Reason)
}

func TestLifecycleTransitions(t *testing.T) {
	s, err := Advance(StateNew, StateClassified)
	require.NoError(t, err)
	s, err = Advance(s, StateAccepted)
	require.NoError(t, err)
	s, err = Advance(s, StateDispatched)
	require.NoError(t, err)
	_, err = Advance(s, StateLogged)
	require.NoError(t, err)

	// No un-accept, no skipping straight to logged.
	_, err = Advance(StateAccepted, StateRejected)
	assert.Error(t, err)
	_, err = Advance(StateNew, StateLogged)
	assert.Error(t, err)
}
