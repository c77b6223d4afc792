package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennypulse/pennypulse/internal/classify"
	"github.com/pennypulse/pennypulse/internal/journal"
	"github.com/pennypulse/pennypulse/internal/market"
	"github.com/pennypulse/pennypulse/internal/models"
)

// stubBars fabricates a 4h window of 5-minute bars from the requested start.
// Tickers prefixed "UP" rally 25% on heavy volume; "THIN" rallies on no
// volume; everything else stays flat.
type stubBars struct{}

func (stubBars) Bars(_ context.Context, ticker string, _ models.Interval, start, end time.Time) ([]models.Bar, error) {
	if ticker == "GONE" {
		return nil, market.ErrNoData
	}
	var bars []models.Bar
	for i := 0; i < 48; i++ {
		ts := start.Add(time.Duration(i) * 5 * time.Minute)
		if ts.After(end) {
			break
		}
		bar := models.Bar{TS: ts, Open: 1.00, High: 1.005, Low: 0.999, Close: 1.00, Volume: 500_000}
		switch {
		case strings.HasPrefix(ticker, "UP"):
			if i > 10 {
				bar.High = 1.25
				bar.Close = 1.20
			}
		case strings.HasPrefix(ticker, "THIN"):
			bar.Volume = 10_000
			if i > 10 {
				bar.High = 1.25
			}
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func rejectedRecord(id, ticker, title string, published time.Time) models.EventRecord {
	return models.EventRecord{
		TSPublished:     published,
		TSObserved:      published.Add(time.Minute),
		SourceID:        "sec_8k",
		CanonicalID:     id,
		Tickers:         []string{ticker},
		Title:           title,
		Cls:             models.Classification{SourceWeight: 0.18},
		RejectionReason: models.ReasonBelowMinScore,
		Schema:          models.SchemaV1,
	}
}

func TestOutcomeMissedOpportunity(t *testing.T) {
	published := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	rec := rejectedRecord("acc9", "UP1", "ABC announces pivotal Phase 3 results", published)

	outcomes, err := outcomesFor(context.Background(), stubBars{}, rec, "UP1", 0.10, DefaultTradeability())
	require.NoError(t, err)
	require.NotEmpty(t, outcomes)

	var fourHour *models.Outcome
	for i := range outcomes {
		if outcomes[i].Timeframe == models.Timeframe4h {
			fourHour = &outcomes[i]
		}
	}
	require.NotNil(t, fourHour)
	assert.Equal(t, 1.00, fourHour.EntryPrice)
	assert.InDelta(t, 0.25, fourHour.MaxReturn, 1e-9)
	assert.Equal(t, 500_000.0, fourHour.VolumeAtEntry)
	assert.True(t, fourHour.IsMissedOpportunity)
}

func TestOutcomeFlatIsNotMissed(t *testing.T) {
	published := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	rec := rejectedRecord("acc1", "FLAT1", "dividend declared", published)

	outcomes, err := outcomesFor(context.Background(), stubBars{}, rec, "FLAT1", 0.10, DefaultTradeability())
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.False(t, o.IsMissedOpportunity)
	}
}

func TestTradeabilityBlocksThinFills(t *testing.T) {
	published := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	rec := rejectedRecord("acc2", "THIN1", "big move on no volume", published)

	outcomes, err := outcomesFor(context.Background(), stubBars{}, rec, "THIN1", 0.10, DefaultTradeability())
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.False(t, o.IsMissedOpportunity, "%s: volume below floor", o.Timeframe)
	}

	// With the filter disabled the same move counts.
	outcomes, err = outcomesFor(context.Background(), stubBars{}, rec, "THIN1", 0.10, Tradeability{})
	require.NoError(t, err)
	missedAny := false
	for _, o := range outcomes {
		missedAny = missedAny || o.IsMissedOpportunity
	}
	assert.True(t, missedAny)
}

func TestTradeabilitySpreadGate(t *testing.T) {
	wide := models.Bar{Open: 1, High: 1.10, Low: 1.00, Close: 1.05, Volume: 500_000}
	assert.False(t, tradeable(wide, DefaultTradeability()), "~9.5% range fails the 5% gate")

	tight := models.Bar{Open: 1, High: 1.01, Low: 1.00, Close: 1.01, Volume: 500_000}
	assert.True(t, tradeable(tight, DefaultTradeability()))
}

func TestOutcomeNoDataSkipsTimeframes(t *testing.T) {
	published := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	rec := rejectedRecord("acc3", "GONE", "vanished ticker", published)

	outcomes, err := outcomesFor(context.Background(), stubBars{}, rec, "GONE", 0.10, DefaultTradeability())
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func writeRejected(t *testing.T, dir string, records []models.EventRecord) string {
	t.Helper()
	path := filepath.Join(dir, "rejected_items.jsonl")
	w, err := journal.NewWriter(path)
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, w.Append(rec))
	}
	require.NoError(t, w.Close())
	return path
}

func analyzerFixture(t *testing.T, dir string, records []models.EventRecord) *Analyzer {
	t.Helper()
	cfg := DefaultConfig(writeRejected(t, dir, records), filepath.Join(dir, "recommendations.json"))
	a := New(cfg, stubBars{}, classify.DefaultKeywords())
	a.now = func() time.Time { return time.Date(2026, 8, 24, 2, 0, 0, 0, time.UTC) }
	return a
}

func TestRunEmptyJournal(t *testing.T) {
	dir := t.TempDir()
	a := analyzerFixture(t, dir, nil)

	report, err := a.Run(context.Background())
	require.NoError(t, err, "empty journal is a report with zero recommendations, not an error")
	assert.Zero(t, report.RejectedExamined)
	assert.Empty(t, report.Recommendations)

	_, err = os.Stat(filepath.Join(dir, "recommendations.json"))
	assert.NoError(t, err, "report file still written")
}

func missedCorpusRecords() []models.EventRecord {
	published := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	var records []models.EventRecord
	for i := 0; i < 6; i++ {
		records = append(records, rejectedRecord(
			fmt.Sprintf("up%d", i),
			fmt.Sprintf("UP%d", i),
			fmt.Sprintf("Company%d announces pivotal Phase 3 results", i),
			published.Add(time.Duration(i)*time.Minute)))
	}
	for i := 0; i < 30; i++ {
		records = append(records, rejectedRecord(
			fmt.Sprintf("flat%d", i),
			fmt.Sprintf("FLAT%d", i),
			fmt.Sprintf("Company%d declares quarterly dividend", i+100),
			published.Add(time.Duration(i)*time.Minute)))
	}
	return records
}

func TestRunDiscoversKeyword(t *testing.T) {
	dir := t.TempDir()
	a := analyzerFixture(t, dir, missedCorpusRecords())

	report, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 36, report.RejectedExamined)
	assert.Equal(t, 6, report.MissedOpportunities)

	var found *models.KeywordRecommendation
	for i := range report.Recommendations {
		if report.Recommendations[i].Keyword == "pivotal phase 3 results" {
			found = &report.Recommendations[i]
		}
	}
	require.NotNil(t, found, "dominant phrase in the missed corpus must surface")
	assert.Equal(t, models.KindNewDiscovered, found.Kind)
	assert.GreaterOrEqual(t, found.RecommendedWeight, 0.3)
	assert.LessOrEqual(t, found.RecommendedWeight, 0.8)
	assert.GreaterOrEqual(t, found.Evidence.Lift, 2.0)
	assert.Less(t, found.Evidence.PValue, 0.05)
	assert.Greater(t, found.LiftCIHigh, found.LiftCILow)
}

func TestRunIdempotent(t *testing.T) {
	dir := t.TempDir()
	a := analyzerFixture(t, dir, missedCorpusRecords())

	first, err := a.Run(context.Background())
	require.NoError(t, err)
	second, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Recommendations, second.Recommendations)
	assert.Equal(t, first.MissedOpportunities, second.MissedOpportunities)
}

func TestRunDoesNotMutateJournal(t *testing.T) {
	dir := t.TempDir()
	records := missedCorpusRecords()
	a := analyzerFixture(t, dir, records)
	path := filepath.Join(dir, "rejected_items.jsonl")

	before, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = a.Run(context.Background())
	require.NoError(t, err)
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
