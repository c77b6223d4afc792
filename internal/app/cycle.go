package app

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pennypulse/pennypulse/internal/classify"
	"github.com/pennypulse/pennypulse/internal/clock"
	"github.com/pennypulse/pennypulse/internal/enrich"
	"github.com/pennypulse/pennypulse/internal/feeds"
	"github.com/pennypulse/pennypulse/internal/models"
)

// purgeEveryCycles spaces out dedup retention sweeps.
const purgeEveryCycles = 100

// RunCycle executes one fetch-classify-dispatch pass. Everything below the
// cycle recovers locally: a failed source or a panicking classification
// never aborts the pass.
func (a *App) RunCycle(ctx context.Context, session clock.Session) {
	a.cycleCount++
	deadline := a.sessions.NextCycleDelay(session)
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	now := a.clk.Now()
	since := a.lastFetch
	if since.IsZero() || now.Sub(since) > a.settings.MaxAge {
		since = now.Add(-a.settings.MaxAge)
	}

	result := feeds.FetchAll(cctx, a.fetchers, since, a.settings.FetchTimeout)
	for source := range result.Errors {
		a.metrics.FeedError(source)
	}
	perSource := map[string]int{}
	for _, item := range result.Items {
		perSource[item.SourceID]++
	}
	for source, n := range perSource {
		a.metrics.ItemsFetched(source, n)
	}
	a.lastFetch = now

	// Warm the trailing price window for every hinted ticker so per-item
	// enrichment lookups land on the memory tier. Same instant, same window:
	// the prefetch keys are exactly what PriceAt asks for.
	if tickers := hintTickers(result.Items); len(tickers) > 0 {
		a.cache.Prefetch(cctx, tickers, models.Interval1m, now.Add(-30*time.Minute), now)
	}

	accepted := a.processItems(cctx, result.Items, now)

	// Highest-conviction alerts go out first within the cycle.
	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].SourceWeight > accepted[j].SourceWeight
	})
	for _, item := range accepted {
		if err := a.events.Append(models.NewEventRecord(item)); err != nil {
			log.Error().Err(err).Str("component", "app").Msg("event journal append failed")
		}
	}
	if len(accepted) > 0 {
		a.dispatcher.Enqueue(accepted...)
	}

	if a.cycleCount%purgeEveryCycles == 0 {
		if n, err := a.dedup.Purge(now.Add(-a.settings.DedupRetention)); err == nil && n > 0 {
			log.Debug().Int64("purged", n).Str("component", "app").Msg("dedup retention sweep")
		}
	}

	a.metrics.CycleDone(len(result.Items))
	a.metrics.QueueDepth(a.dispatcher.QueueLen())
	a.beacon.MaybeSend(ctx, a.cycleCount)

	log.Info().Str("component", "app").
		Str("session", string(session)).
		Int("cycle", a.cycleCount).
		Int("items", len(result.Items)).
		Int("accepted", len(accepted)).
		Msg("cycle complete")
}

// hintTickers collects the distinct primary tickers of a batch.
func hintTickers(items []models.RawItem) []string {
	seen := map[string]bool{}
	var out []string
	for _, item := range items {
		if tickers := classify.ResolveTickers(item); len(tickers) > 0 && !seen[tickers[0]] {
			seen[tickers[0]] = true
			out = append(out, tickers[0])
		}
	}
	return out
}

// processItems runs dedup, classification, and admission over one batch,
// journaling rejections as it goes and returning the accepted items.
func (a *App) processItems(ctx context.Context, items []models.RawItem, now time.Time) []models.ScoredItem {
	var accepted []models.ScoredItem
	for _, item := range items {
		seen, err := a.dedup.Seen(item.SourceID, item.CanonicalID)
		if err != nil {
			log.Warn().Err(err).Str("component", "app").Msg("dedup read failed, treating as unseen")
		}
		if seen {
			a.metrics.Rejected(models.ReasonDuplicate)
			a.journalRejection(models.ScoredItem{RawItem: item}, models.ReasonDuplicate)
			continue
		}

		scored, reason := a.classifyItem(ctx, item, now)
		decision := a.gate.Admit(scored, reason)

		if decision.Accepted {
			a.metrics.Accepted()
			accepted = append(accepted, scored)
		} else {
			a.metrics.Rejected(decision.Reason)
			a.journalRejection(scored, decision.Reason)
		}

		// Mark after processing so a crash mid-cycle re-evaluates rather
		// than silently losing the item.
		if err := a.dedup.Mark(item.SourceID, item.CanonicalID, item.TSObserved); err != nil {
			log.Warn().Err(err).Str("component", "app").Msg("dedup mark failed")
		}
	}
	return accepted
}

// classifyItem enriches and scores one item. A panic inside classification is
// contained and surfaces as a classifier_error rejection.
func (a *App) classifyItem(ctx context.Context, item models.RawItem, now time.Time) (scored models.ScoredItem, reason models.Reason) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("component", "app").
				Str("item", item.DedupKey()).Msg("classification panicked")
			scored = models.ScoredItem{RawItem: item}
			reason = models.ReasonClassifierError
		}
	}()

	snap := enrich.Identity()
	if tickers := classify.ResolveTickers(item); len(tickers) > 0 {
		snap = a.enricher.SnapshotFor(ctx, item, tickers[0], now)
	}
	return a.classifier.Classify(item, snap)
}

func (a *App) journalRejection(item models.ScoredItem, reason models.Reason) {
	rec := models.NewEventRecord(item)
	rec.RejectionReason = reason
	if err := a.rejected.Append(rec); err != nil {
		log.Error().Err(err).Str("component", "app").Msg("rejection journal append failed")
	}
}
