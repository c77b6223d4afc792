// Package analyzer is the nightly out-of-band job that re-prices rejected
// items against realized market outcomes and mines the rejection journal for
// keyword weights the live table is missing. It only reads the journals and
// emits an advisory recommendations report; nothing is auto-applied.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/pennypulse/pennypulse/internal/classify"
	"github.com/pennypulse/pennypulse/internal/journal"
	"github.com/pennypulse/pennypulse/internal/models"
)

// Config tunes one analyzer run.
type Config struct {
	RejectedPath string
	OutputPath   string

	LookbackDays    int
	MissedThreshold float64 // max_return flagging a missed opportunity
	MinOccurrences  int     // phrase document frequency floor
	MinLift         float64
	FDRAlpha        float64
	Concurrency     int // concurrent outcome fetches
	Tradeability    Tradeability
}

func DefaultConfig(rejectedPath, outputPath string) Config {
	return Config{
		RejectedPath:    rejectedPath,
		OutputPath:      outputPath,
		LookbackDays:    30,
		MissedThreshold: 0.10,
		MinOccurrences:  5,
		MinLift:         2,
		FDRAlpha:        0.05,
		Concurrency:     4,
		Tradeability:    DefaultTradeability(),
	}
}

// Analyzer holds one run's dependencies.
type Analyzer struct {
	cfg   Config
	bars  BarSource
	table classify.KeywordTable
	now   func() time.Time
}

func New(cfg Config, bars BarSource, table classify.KeywordTable) *Analyzer {
	return &Analyzer{
		cfg:   cfg,
		bars:  bars,
		table: table,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one full analysis pass and writes the report atomically.
// Identical journals and bars produce identical recommendations (run_id and
// generated_at aside); the source journals are never written.
func (a *Analyzer) Run(ctx context.Context) (models.AnalysisReport, error) {
	now := a.now()
	windowStart := now.AddDate(0, 0, -a.cfg.LookbackDays)

	records, err := journal.ReadSince(a.cfg.RejectedPath, windowStart)
	if err != nil {
		return models.AnalysisReport{}, fmt.Errorf("analyzer: load rejected: %w", err)
	}

	missedTitles, notMissedTitles := a.partition(ctx, records)
	report := models.AnalysisReport{
		RunID:               uuid.NewString(),
		GeneratedAt:         now,
		WindowStart:         windowStart,
		WindowEnd:           now,
		RejectedExamined:    len(records),
		MissedOpportunities: len(missedTitles),
		Schema:              models.SchemaV1,
	}

	report.Recommendations, report.PhrasesTested = a.recommend(missedTitles, notMissedTitles)

	if err := writeReport(a.cfg.OutputPath, report); err != nil {
		return models.AnalysisReport{}, err
	}
	log.Info().Str("component", "analyzer").
		Int("rejected", report.RejectedExamined).
		Int("missed", report.MissedOpportunities).
		Int("recommendations", len(report.Recommendations)).
		Msg("analysis run complete")
	return report, nil
}

// partition measures each rejected item and splits titles into missed and
// not-missed corpora. Outcome fetches run on a bounded pool with the
// analyzer's own provider quota.
func (a *Analyzer) partition(ctx context.Context, records []models.EventRecord) (missed, notMissed []string) {
	type verdict struct {
		title  string
		missed bool
		skip   bool
	}
	verdicts := make([]verdict, len(records))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.cfg.Concurrency, 1))
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			v := verdict{title: rec.Title}
			if len(rec.Tickers) == 0 {
				v.skip = true
			} else {
				outcomes, err := outcomesFor(gctx, a.bars, rec, rec.Tickers[0],
					a.cfg.MissedThreshold, a.cfg.Tradeability)
				if err != nil {
					log.Warn().Err(err).Str("component", "analyzer").
						Str("item", rec.SourceID+"|"+rec.CanonicalID).
						Msg("outcome computation failed, skipping item")
					v.skip = true
				} else {
					for _, o := range outcomes {
						if o.IsMissedOpportunity {
							v.missed = true
							break
						}
					}
				}
			}
			mu.Lock()
			verdicts[i] = v
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, v := range verdicts {
		if v.skip {
			continue
		}
		if v.missed {
			missed = append(missed, v.title)
		} else {
			notMissed = append(notMissed, v.title)
		}
	}
	return missed, notMissed
}

// recommend runs the mining and statistical gates over both corpora.
func (a *Analyzer) recommend(missedTitles, notMissedTitles []string) ([]models.KeywordRecommendation, int) {
	if len(missedTitles) == 0 {
		return nil, 0
	}
	stats, phrases := minePhrases(missedTitles, notMissedTitles)

	// Candidate gate: document frequency and lift (either direction for
	// phrases already in the live table).
	type candidate struct {
		phrase string
		s      *phraseStats
		lift   float64
	}
	var candidates []candidate
	for _, phrase := range phrases {
		s := stats[phrase]
		l := lift(s, len(missedTitles), len(notMissedTitles))
		_, existing := a.table[phrase]

		switch {
		case s.MissedTitles >= a.cfg.MinOccurrences && l >= a.cfg.MinLift:
			candidates = append(candidates, candidate{phrase, s, l})
		case existing && s.NotMissedTitles >= a.cfg.MinOccurrences && l > 0 && l <= 1/a.cfg.MinLift:
			candidates = append(candidates, candidate{phrase, s, l})
		}
	}
	if len(candidates) == 0 {
		return nil, 0
	}

	pvalues := make([]float64, len(candidates))
	for i, c := range candidates {
		pvalues[i] = proportionZTest(
			c.s.MissedTitles, len(missedTitles),
			c.s.NotMissedTitles, len(notMissedTitles))
	}
	adjusted := benjaminiHochberg(pvalues)

	var recs []models.KeywordRecommendation
	for i, c := range candidates {
		if adjusted[i] >= a.cfg.FDRAlpha {
			continue
		}
		rec := models.KeywordRecommendation{
			Keyword:    c.phrase,
			Confidence: 1 - adjusted[i],
			Evidence: models.Evidence{
				Occurrences: c.s.MissedTitles,
				Successes:   c.s.MissedTitles,
				SuccessRate: float64(c.s.MissedTitles) / float64(len(missedTitles)),
				Lift:        c.lift,
				SampleSize:  len(missedTitles) + len(notMissedTitles),
				PValue:      adjusted[i],
			},
		}
		rec.LiftCILow, rec.LiftCIHigh = bootstrapLiftCI(
			presence(missedTitles, c.phrase),
			presence(notMissedTitles, c.phrase))
		rec.Kind, rec.RecommendedWeight = a.proposeWeight(c.phrase, c.lift)
		recs = append(recs, rec)
	}
	return recs, len(candidates)
}

// proposeWeight is deliberately conservative: discovered phrases start in the
// 0.3-0.8 band scaled by lift; existing phrases move in 0.1 steps.
func (a *Analyzer) proposeWeight(phrase string, liftValue float64) (models.RecommendationKind, float64) {
	current, existing := a.table[phrase]
	if !existing {
		w := 0.3 + 0.05*liftValue
		if w > 0.8 {
			w = 0.8
		}
		return models.KindNewDiscovered, w
	}
	if liftValue >= a.cfg.MinLift {
		return models.KindWeightIncrease, clampWeight(current + 0.1)
	}
	return models.KindWeightDecrease, clampWeight(current - 0.1)
}

func clampWeight(w float64) float64 {
	if w > 1 {
		return 1
	}
	if w < -1 {
		return -1
	}
	return w
}

// writeReport lands the report with a temp-file rename so readers never see a
// partial file.
func writeReport(path string, report models.AnalysisReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("analyzer: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("analyzer: marshal report: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".recommendations-*.json")
	if err != nil {
		return fmt.Errorf("analyzer: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("analyzer: write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("analyzer: close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("analyzer: publish report: %w", err)
	}
	return nil
}
