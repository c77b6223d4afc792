package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennypulse/pennypulse/internal/admission"
	"github.com/pennypulse/pennypulse/internal/classify"
	"github.com/pennypulse/pennypulse/internal/clock"
	"github.com/pennypulse/pennypulse/internal/config"
	"github.com/pennypulse/pennypulse/internal/dedup"
	"github.com/pennypulse/pennypulse/internal/dispatch"
	"github.com/pennypulse/pennypulse/internal/enrich"
	"github.com/pennypulse/pennypulse/internal/feeds"
	"github.com/pennypulse/pennypulse/internal/heartbeat"
	"github.com/pennypulse/pennypulse/internal/journal"
	"github.com/pennypulse/pennypulse/internal/market"
	"github.com/pennypulse/pennypulse/internal/models"
)

var cycleInstant = time.Date(2026, 8, 24, 14, 30, 0, 0, time.UTC) // Monday, regular session

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

// batchFetcher serves one canned batch.
type batchFetcher struct {
	items []models.RawItem
}

func (b *batchFetcher) SourceID() string { return "sec_8k" }
func (b *batchFetcher) Fetch(context.Context, time.Time) ([]models.RawItem, error) {
	return b.items, nil
}

// flatProvider serves in-band prices for every ticker.
type flatProvider struct{ calls atomic.Int32 }

func (p *flatProvider) Name() string { return "stub" }
func (p *flatProvider) RateLimitSpec() market.RateLimitSpec {
	return market.RateLimitSpec{RPS: 1000, Burst: 1000, MaxWait: time.Second}
}
func (p *flatProvider) FetchBars(_ context.Context, _ string, interval models.Interval, start, end time.Time) ([]models.Bar, error) {
	p.calls.Add(1)
	var bars []models.Bar
	step := interval.Duration()
	for ts := start; !ts.After(end); ts = ts.Add(step) {
		bars = append(bars, models.Bar{TS: ts, Open: 3.20, High: 3.25, Low: 3.18, Close: 3.20, Volume: 400_000})
	}
	return bars, nil
}

func rawItem(id, title string, tickers ...string) models.RawItem {
	return models.RawItem{
		SourceID:    "sec_8k",
		CanonicalID: id,
		TSPublished: cycleInstant.Add(-5 * time.Minute),
		TSObserved:  cycleInstant,
		Title:       title,
		Link:        "https://www.sec.gov/filing/" + id,
		TickersHint: tickers,
	}
}

// testApp assembles an App over stubs: one fetcher, one provider, a real
// webhook test server, tempdir journals, and an in-memory dedup store.
func testApp(t *testing.T, webhookURL string, items []models.RawItem) *App {
	t.Helper()
	dir := t.TempDir()

	sessions, err := clock.NewSessionClassifier(clock.Intervals{
		Regular: 200 * time.Millisecond, Extended: 200 * time.Millisecond, Closed: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	registry := market.NewRegistry()
	require.NoError(t, registry.Register(&flatProvider{}))
	cache, err := market.NewCache(market.CacheConfig{
		MaxEntries: 64, TTLIntraday: time.Minute, TTLDaily: time.Hour,
		DiskDir: dir + "/cache", Workers: 2,
	}, registry, nil, func() time.Time { return cycleInstant })
	require.NoError(t, err)

	events, err := journal.NewWriter(dir + "/events.jsonl")
	require.NoError(t, err)
	rejected, err := journal.NewWriter(dir + "/rejected_items.jsonl")
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	metrics := heartbeat.NewMetrics(promReg)

	settings := &config.Settings{
		WebhookURL: webhookURL, DataDir: dir,
		MinScore: 0.25, MinConfidence: 0.4, MaxAge: time.Hour,
		PriceBandLower: 0.10, PriceBandUpper: 10.00,
		SentimentAlpha: 0.3, FetchTimeout: time.Second,
		DedupRetention: 14 * 24 * time.Hour,
	}

	a := &App{
		settings: settings,
		sessions: sessions,
		fetchers: []feeds.Fetcher{&batchFetcher{items: items}},
		dedup:    dedup.OpenWithFallback(dir + "/dedup.db"),
		cache:    cache,
		enricher: enrich.NewService(cache, nil, nil, nil, enrich.NewOfferingParser(nil), nil, enrich.Flags{}),
		classifier: classify.New(classify.DefaultKeywords(), classify.NewLexiconSentiment(), classify.Params{
			Alpha: 0.3, PriceMin: 0.10, PriceMax: 10.00,
		}),
		gate:     admission.NewGatekeeper(0.25, 0.4, time.Hour),
		events:   events,
		rejected: rejected,
		metrics:  metrics,
		beacon:   heartbeat.NewBeacon("", 30, metrics),
		registry: promReg,
		clk:      fixedClock{cycleInstant},
	}
	a.dispatcher = dispatch.New(dispatch.Config{
		WebhookURL: webhookURL, QueueCap: 50, BucketSize: 5,
		BucketWindow: 20 * time.Millisecond, HourlyCap: 100,
		Backoff: time.Millisecond,
	}, dispatch.Hooks{
		Delivered: func(models.ScoredItem) { metrics.Dispatch("delivered") },
		Dropped:   func(models.ScoredItem) { metrics.Dispatch("dropped") },
	})
	t.Cleanup(a.Close)
	return a
}

func TestCycleAcceptsAndJournals(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
	}))
	defer srv.Close()

	items := []models.RawItem{
		rawItem("acc1", "Company X announces FDA approval of Drug Y", "XYZ"),
		rawItem("acc2", "Routine shareholder meeting scheduled", "ABC"),
	}
	a := testApp(t, srv.URL, items)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.dispatcher.Run(ctx)

	a.RunCycle(ctx, clock.SessionRegular)

	eventsRecs, err := journal.Read(a.settings.Path("events.jsonl"))
	require.NoError(t, err)
	require.Len(t, eventsRecs, 1, "only the catalyst item passes the gates")
	assert.Equal(t, "acc1", eventsRecs[0].CanonicalID)
	assert.GreaterOrEqual(t, eventsRecs[0].Cls.SourceWeight, 0.25)

	rejectedRecs, err := journal.Read(a.settings.Path("rejected_items.jsonl"))
	require.NoError(t, err)
	require.Len(t, rejectedRecs, 1)
	assert.Equal(t, "acc2", rejectedRecs[0].CanonicalID)
	assert.NotEmpty(t, string(rejectedRecs[0].RejectionReason))

	// The accepted item must be backed by a dedup entry.
	seen, err := a.dedup.Seen("sec_8k", "acc1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.Eventually(t, func() bool { return posts.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestCycleDuplicateSuppression(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	items := []models.RawItem{rawItem("acc1", "Company X announces FDA approval of Drug Y", "XYZ")}
	a := testApp(t, srv.URL, items)

	ctx := context.Background()
	a.RunCycle(ctx, clock.SessionRegular)
	a.RunCycle(ctx, clock.SessionRegular)

	eventsRecs, err := journal.Read(a.settings.Path("events.jsonl"))
	require.NoError(t, err)
	assert.Len(t, eventsRecs, 1, "second observation dedups")

	rejectedRecs, err := journal.Read(a.settings.Path("rejected_items.jsonl"))
	require.NoError(t, err)
	require.Len(t, rejectedRecs, 1)
	assert.Equal(t, models.ReasonDuplicate, rejectedRecs[0].RejectionReason)
}

func TestDuplicateEligibleAgainAfterPurge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	items := []models.RawItem{rawItem("acc1", "Company X announces FDA approval of Drug Y", "XYZ")}
	a := testApp(t, srv.URL, items)

	ctx := context.Background()
	a.RunCycle(ctx, clock.SessionRegular)

	// Purge everything, then the same canonical id classifies again.
	_, err := a.dedup.Purge(cycleInstant.Add(time.Hour))
	require.NoError(t, err)

	a.RunCycle(ctx, clock.SessionRegular)
	eventsRecs, err := journal.Read(a.settings.Path("events.jsonl"))
	require.NoError(t, err)
	assert.Len(t, eventsRecs, 2, "purged entry is eligible again")
}

func TestCyclePrefetchWarmsPriceWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	items := []models.RawItem{rawItem("acc1", "Company X announces FDA approval of Drug Y", "XYZ")}
	a := testApp(t, srv.URL, items)

	a.RunCycle(context.Background(), clock.SessionRegular)

	stats := a.cache.Stats()
	assert.GreaterOrEqual(t, stats.MemoryHits, int64(1),
		"classification price lookup is served by the cycle prefetch")
}

func TestClassifierPanicBecomesRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	a := testApp(t, srv.URL, nil)
	a.classifier = nil // force a nil-pointer panic inside classification

	scored, reason := a.classifyItem(context.Background(), rawItem("acc1", "anything", "XYZ"), cycleInstant)
	assert.Equal(t, models.ReasonClassifierError, reason)
	assert.Equal(t, "acc1", scored.CanonicalID)
}
