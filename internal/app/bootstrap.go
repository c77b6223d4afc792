package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pennypulse/pennypulse/internal/classify"
	"github.com/pennypulse/pennypulse/internal/config"
	"github.com/pennypulse/pennypulse/internal/enrich"
	"github.com/pennypulse/pennypulse/internal/feeds"
	"github.com/pennypulse/pennypulse/internal/models"
)

// Bootstrap seeds the analyzer corpus: it pulls whatever history the chosen
// sources still serve inside [start, end], classifies each item with
// enrichment evaluated at its publication instant, and journals every one of
// them to the rejection journal. Nothing is dispatched and the dedup store is
// untouched, so a later live run re-evaluates the same feeds normally.
func (a *App) Bootstrap(ctx context.Context, start, end time.Time, sources []string) (int, error) {
	if !end.After(start) {
		return 0, &config.ConfigError{Reason: fmt.Sprintf("bootstrap window [%s, %s] is empty",
			start.Format("2006-01-02"), end.Format("2006-01-02"))}
	}

	fetchers := a.fetchers
	if len(sources) > 0 {
		fetchers = filterFetchers(a.fetchers, sources)
		if len(fetchers) == 0 {
			return 0, &config.ConfigError{Reason: "bootstrap: --sources matched no enabled fetchers"}
		}
	}

	result := feeds.FetchAll(ctx, fetchers, start, a.settings.FetchTimeout)
	for source, err := range result.Errors {
		log.Warn().Err(err).Str("component", "bootstrap").Str("source", source).
			Msg("source unavailable for backfill")
	}

	seeded := 0
	for _, item := range result.Items {
		if item.TSPublished.After(end) {
			continue
		}

		snap := enrich.Identity()
		if tickers := classify.ResolveTickers(item); len(tickers) > 0 {
			snap = a.enricher.SnapshotFor(ctx, item, tickers[0], item.TSPublished)
		}
		scored, reason := a.classifier.Classify(item, snap)
		if reason == "" {
			if d := a.gate.Admit(scored, ""); !d.Accepted {
				reason = d.Reason
			}
		}
		if reason == "" {
			// Would have alerted live; it belongs in the accepted journal.
			if err := a.events.Append(models.NewEventRecord(scored)); err != nil {
				return seeded, err
			}
		} else {
			a.journalRejection(scored, reason)
		}
		seeded++
	}

	log.Info().Str("component", "bootstrap").
		Int("seeded", seeded).
		Time("start", start).Time("end", end).
		Msg("bootstrap complete")
	return seeded, nil
}

func filterFetchers(all []feeds.Fetcher, names []string) []feeds.Fetcher {
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	var out []feeds.Fetcher
	for _, f := range all {
		if want[f.SourceID()] {
			out = append(out, f)
		}
	}
	return out
}
