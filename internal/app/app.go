// Package app assembles the pipeline and owns the cycle loop.
package app

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/pennypulse/pennypulse/internal/admin"
	"github.com/pennypulse/pennypulse/internal/admission"
	"github.com/pennypulse/pennypulse/internal/analyzer"
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

// App owns every long-lived component of the running process.
type App struct {
	settings *config.Settings

	sessions   *clock.SessionClassifier
	fetchers   []feeds.Fetcher
	dedup      dedup.Store
	cache      *market.Cache
	enricher   *enrich.Service
	classifier *classify.Classifier
	gate       *admission.Gatekeeper
	dispatcher *dispatch.Dispatcher
	events     *journal.Writer
	rejected   *journal.Writer
	metrics    *heartbeat.Metrics
	beacon     *heartbeat.Beacon
	admin      *admin.Server
	registry   *prometheus.Registry

	lastFetch  time.Time
	cycleCount int
	clk        clock.Clock
}

// New wires the full pipeline from settings. It opens storage, so callers
// must Close.
func New(s *config.Settings) (*App, error) {
	sessions, err := clock.NewSessionClassifier(clock.Intervals{
		Regular:  s.CycleRegular,
		Extended: s.CycleExtended,
		Closed:   s.CycleClosed,
	})
	if err != nil {
		return nil, err
	}

	fetchers, err := buildFetchers(s)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := heartbeat.NewMetrics(registry)

	cache, err := buildCache(s, metrics)
	if err != nil {
		return nil, err
	}

	table, err := classify.LoadKeywords(s.KeywordsFile)
	if err != nil {
		return nil, &config.ConfigError{Reason: err.Error()}
	}
	var sentiment classify.SentimentAnalyzer = classify.NullSentiment{}
	if s.EnableSentiment {
		sentiment = classify.NewLexiconSentiment()
	}

	events, err := journal.NewWriterWithLimits(s.Path("events.jsonl"), s.JournalMaxBytes, s.JournalArchives)
	if err != nil {
		return nil, err
	}
	rejected, err := journal.NewWriterWithLimits(s.Path("rejected_items.jsonl"), s.JournalMaxBytes, s.JournalArchives)
	if err != nil {
		events.Close()
		return nil, err
	}

	app := &App{
		settings: s,
		sessions: sessions,
		fetchers: fetchers,
		dedup:    dedup.OpenWithFallback(s.Path("dedup.db")),
		cache:    cache,
		enricher: buildEnricher(s, cache, sessions),
		classifier: classify.New(table, sentiment, classify.Params{
			Alpha:    s.SentimentAlpha,
			PriceMin: s.PriceBandLower,
			PriceMax: s.PriceBandUpper,
		}),
		gate:     admission.NewGatekeeper(s.MinScore, s.MinConfidence, s.MaxAge),
		events:   events,
		rejected: rejected,
		metrics:  metrics,
		beacon:   heartbeat.NewBeacon(s.HeartbeatURL(), s.HeartbeatCycles, metrics),
		registry: registry,
		clk:      clock.SystemClock{},
	}

	dispatchCfg := dispatch.Config{
		WebhookURL:     s.WebhookURL,
		QueueCap:       s.DispatchQueueCap,
		BucketSize:     s.DispatchBurst,
		BucketWindow:   s.DispatchWindow,
		HourlyCap:      s.DispatchHourlyCap,
		AdmissionBlock: s.AdmissionBlock,
		PerTicker:      s.AlertPerTicker,
	}
	app.dispatcher = dispatch.New(dispatchCfg, dispatch.Hooks{
		Delivered: func(models.ScoredItem) { metrics.Dispatch("delivered") },
		Dropped:   func(models.ScoredItem) { metrics.Dispatch("dropped") },
		Failed:    func(models.ScoredItem) { metrics.Dispatch("failed") },
	})

	if s.AdminAddr != "" {
		app.admin = admin.NewServer(s.AdminAddr, registry, metrics)
		app.admin.AddSection("cache", func() any { return cache.Stats() })
		app.admin.AddSection("providers", func() any { return cache.ProviderState() })
		app.admin.AddSection("dispatch_queue", func() any { return app.dispatcher.QueueLen() })
	}
	return app, nil
}

func buildFetchers(s *config.Settings) ([]feeds.Fetcher, error) {
	secForms := map[string]string{
		"8k": "8-K", "424b3": "424B3", "424b4": "424B4", "424b5": "424B5",
		"s1": "S-1", "s3": "S-3", "f1": "F-1", "f3": "F-3", "6k": "6-K",
	}

	var fetchers []feeds.Fetcher
	for _, source := range s.Sources {
		switch {
		case strings.HasPrefix(source, "sec_"):
			form, ok := secForms[strings.TrimPrefix(source, "sec_")]
			if !ok {
				return nil, &config.ConfigError{Reason: "unknown SEC form in PP_SOURCES: " + source}
			}
			fetchers = append(fetchers, feeds.NewSECFetcher(form, s.SECUserAgent))
		default:
			feedURL, ok := feeds.WireFeeds[source]
			if !ok {
				return nil, &config.ConfigError{Reason: "unknown source in PP_SOURCES: " + source}
			}
			fetchers = append(fetchers, feeds.NewPRWireFetcher(source, feedURL, s.SECUserAgent))
		}
	}
	if len(fetchers) == 0 {
		return nil, &config.ConfigError{Reason: "PP_SOURCES enabled no fetchers"}
	}
	return fetchers, nil
}

func buildCache(s *config.Settings, metrics *heartbeat.Metrics) (*market.Cache, error) {
	registry := market.NewRegistry()
	for _, name := range s.Providers {
		var p market.Provider
		switch name {
		case "tiingo":
			p = market.NewTiingoProvider(s.TiingoAPIKey)
		case "yahoo":
			p = market.NewYahooProvider()
		case "stooq":
			p = market.NewStooqProvider()
		default:
			return nil, &config.ConfigError{Reason: "unknown provider in PP_PROVIDERS: " + name}
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}

	var redisClient redis.UniversalClient
	if s.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	}

	return market.NewCache(market.CacheConfig{
		MaxEntries:      s.CacheMaxEntries,
		TTLIntraday:     s.CacheTTLIntraday,
		TTLDaily:        s.CacheTTLDaily,
		DiskDir:         s.Path("cache"),
		Workers:         s.CacheWorkers,
		OnTierHit:       metrics.CacheHit,
		OnProviderError: metrics.ProviderError,
	}, registry, redisClient, nil)
}

func buildEnricher(s *config.Settings, cache *market.Cache, sessions *clock.SessionClassifier) *enrich.Service {
	return enrich.NewService(
		cache,
		enrich.NewRegimeClassifier(cache, enrich.DefaultRegimeThresholds(), nil),
		enrich.NewRVolProvider(cache, sessions, nil),
		enrich.NewFloatProvider(enrich.NewYahooFloatSource(), nil),
		enrich.NewOfferingParser(nil),
		enrich.NewSectorProvider(enrich.NewYahooSectorSource(), cache, nil),
		enrich.Flags{
			Regime:   s.EnableRegime,
			RVol:     s.EnableRVol,
			Float:    s.EnableFloat,
			Offering: s.EnableOffering,
			Sector:   s.EnableSector,
		},
	)
}

// Run drives the cycle loop until ctx is cancelled, hosting the dispatcher,
// admin server, and the analyzer cron alongside.
func (a *App) Run(ctx context.Context) error {
	go a.dispatcher.Run(ctx)
	if a.admin != nil {
		go a.admin.Start(ctx)
	}

	scheduler := cron.New(cron.WithLocation(time.UTC))
	if _, err := scheduler.AddFunc(a.settings.AnalyzerSchedule, func() {
		if _, err := a.RunAnalyzer(ctx, a.settings.AnalyzerLookback); err != nil {
			log.Error().Err(err).Str("component", "app").Msg("scheduled analysis failed")
		}
	}); err != nil {
		return &config.ConfigError{Reason: "invalid PP_ANALYZER_SCHEDULE: " + err.Error()}
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Info().Str("component", "app").
		Strs("sources", a.settings.Sources).
		Strs("providers", a.settings.Providers).
		Msg("cycle loop starting")

	for {
		session := a.sessions.SessionAt(a.clk.Now())
		a.RunCycle(ctx, session)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.sessions.NextCycleDelay(session)):
		}
	}
}

// RunAnalyzer executes one analysis pass over the rejection journal.
func (a *App) RunAnalyzer(ctx context.Context, lookback time.Duration) (int, error) {
	table, err := classify.LoadKeywords(a.settings.KeywordsFile)
	if err != nil {
		return 0, err
	}
	cfg := analyzer.Config{
		RejectedPath:    a.settings.Path("rejected_items.jsonl"),
		OutputPath:      a.settings.Path("analysis", "recommendations.json"),
		LookbackDays:    int(lookback.Hours() / 24),
		MissedThreshold: a.settings.MissedThreshold,
		MinOccurrences:  a.settings.MiningMinOccurrence,
		MinLift:         a.settings.MiningMinLift,
		FDRAlpha:        a.settings.FDRAlpha,
		Concurrency:     a.settings.CacheWorkers,
		Tradeability: analyzer.Tradeability{
			Enabled:      a.settings.TradeabilityFilter,
			MinVolume:    a.settings.MinVolumeAtEntry,
			MaxSpreadPct: a.settings.MaxSpreadPct,
		},
	}
	report, err := analyzer.New(cfg, a.cache, table).Run(ctx)
	if err != nil {
		return 0, err
	}
	return len(report.Recommendations), nil
}

// Close releases storage handles.
func (a *App) Close() {
	a.events.Close()
	a.rejected.Close()
	a.dedup.Close()
}
