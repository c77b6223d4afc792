package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/pennypulse/pennypulse/internal/models"
)

// CacheConfig tunes the tiered cache.
type CacheConfig struct {
	MaxEntries  int           // memory tier hard cap
	TTLIntraday time.Duration // minute/hour bars
	TTLDaily    time.Duration // daily bars
	DiskDir     string
	Workers     int // bounded prefetch pool size

	// Observer hooks for external instrumentation; nil members are skipped.
	OnTierHit       func(tier string)
	OnProviderError func(provider string)
}

// CacheStats is a point-in-time counter snapshot for the heartbeat.
type CacheStats struct {
	MemoryHits      int64
	WarmHits        int64
	DiskHits        int64
	UpstreamFetches int64
	Misses          int64
	ProviderErrors  map[string]int64
}

// Cache is the tiered bar store. Safe for concurrent readers; tier writes are
// serialized per key by each tier's own locking.
type Cache struct {
	cfg      CacheConfig
	memory   *barLRU
	warm     *redisTier // nil when redis is not configured
	disk     *diskCache
	chain    []Provider
	limiters *LimiterSet
	health   *HealthSet
	now      func() time.Time

	statsMu sync.Mutex
	stats   CacheStats

	prefetchSem chan struct{}
}

// NewCache wires the tiers over a registered provider chain. redisClient may
// be nil to run without the warm tier.
func NewCache(cfg CacheConfig, registry *Registry, redisClient redis.UniversalClient, now func() time.Time) (*Cache, error) {
	disk, err := newDiskCache(cfg.DiskDir)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	c := &Cache{
		cfg:         cfg,
		memory:      newBarLRU(cfg.MaxEntries),
		disk:        disk,
		chain:       registry.Chain(),
		limiters:    NewLimiterSet(),
		health:      NewHealthSet(DefaultHealthConfig()),
		now:         now,
		prefetchSem: make(chan struct{}, cfg.Workers),
	}
	c.stats.ProviderErrors = make(map[string]int64)

	if redisClient != nil {
		c.warm = newRedisTier(redisClient)
	}
	for _, p := range c.chain {
		c.limiters.Add(p.Name(), p.RateLimitSpec())
		c.health.Add(p.Name())
	}
	return c, nil
}

func queryKey(ticker string, interval models.Interval, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%d|%d", ticker, interval, start.UTC().Unix(), end.UTC().Unix())
}

func (c *Cache) ttlFor(interval models.Interval) time.Duration {
	if interval == models.Interval1d {
		return c.cfg.TTLDaily
	}
	return c.cfg.TTLIntraday
}

// Bars returns ordered, deduplicated bars for the query, consulting tiers in
// order and falling through the provider chain on a full miss.
func (c *Cache) Bars(ctx context.Context, ticker string, interval models.Interval, start, end time.Time) ([]models.Bar, error) {
	key := queryKey(ticker, interval, start, end)
	now := c.now()
	ttl := c.ttlFor(interval)

	if bars, ok := c.memory.Get(key, now); ok {
		c.count(func(s *CacheStats) { s.MemoryHits++ })
		c.tierHit("memory")
		return bars, nil
	}
	if c.warm != nil {
		if bars, ok := c.warm.Get(ctx, key); ok {
			c.count(func(s *CacheStats) { s.WarmHits++ })
			c.tierHit("warm")
			c.memory.Put(key, bars, ttl, now)
			return bars, nil
		}
	}
	if bars, ok := c.disk.Get(key, now); ok {
		c.count(func(s *CacheStats) { s.DiskHits++ })
		c.tierHit("disk")
		c.memory.Put(key, bars, ttl, now)
		if c.warm != nil {
			c.warm.Put(ctx, key, bars, ttl)
		}
		return bars, nil
	}

	bars, err := c.fetchUpstream(ctx, ticker, interval, start, end)
	if err != nil {
		c.count(func(s *CacheStats) { s.Misses++ })
		return nil, err
	}

	c.count(func(s *CacheStats) { s.UpstreamFetches++ })
	c.memory.Put(key, bars, ttl, now)
	if c.warm != nil {
		c.warm.Put(ctx, key, bars, ttl)
	}
	if err := c.disk.Put(key, bars, ttl, now); err != nil {
		log.Warn().Err(err).Str("component", "market").Msg("disk tier write failed")
	}
	return bars, nil
}

// fetchUpstream walks the provider chain. Rate-limit timeouts and provider
// errors move to the next provider; ErrNoData only after the chain is spent.
func (c *Cache) fetchUpstream(ctx context.Context, ticker string, interval models.Interval, start, end time.Time) ([]models.Bar, error) {
	for _, p := range c.chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := c.limiters.Acquire(ctx, p.Name()); err != nil {
			if errors.Is(err, ErrRateLimited) {
				log.Debug().Str("component", "market").Str("provider", p.Name()).
					Msg("rate limit wait exceeded, trying next provider")
				continue
			}
			return nil, err
		}

		result, err := c.health.Execute(p.Name(), func() (interface{}, error) {
			return p.FetchBars(ctx, ticker, interval, start, end)
		})
		if err != nil {
			c.count(func(s *CacheStats) { s.ProviderErrors[p.Name()]++ })
			if c.cfg.OnProviderError != nil {
				c.cfg.OnProviderError(p.Name())
			}
			log.Warn().Err(err).Str("component", "market").Str("provider", p.Name()).
				Str("ticker", ticker).Msg("provider fetch failed")
			continue
		}

		bars := result.([]models.Bar)
		if len(bars) == 0 {
			continue
		}
		return sortBars(bars), nil
	}
	return nil, fmt.Errorf("%w: %s %s", ErrNoData, ticker, interval)
}

// PriceAt resolves the most recent trade price at or before the instant:
// minute bars over the trailing half hour, then daily closes over the
// trailing week for thinly traded names.
func (c *Cache) PriceAt(ctx context.Context, ticker string, instant time.Time) (float64, error) {
	bars, err := c.Bars(ctx, ticker, models.Interval1m, instant.Add(-30*time.Minute), instant)
	if err == nil {
		if px, ok := lastCloseAtOrBefore(bars, instant); ok {
			return px, nil
		}
	}

	bars, err = c.Bars(ctx, ticker, models.Interval1d, instant.Add(-7*24*time.Hour), instant)
	if err != nil {
		return 0, err
	}
	if px, ok := lastCloseAtOrBefore(bars, instant); ok {
		return px, nil
	}
	return 0, fmt.Errorf("%w: %s price at %s", ErrNoData, ticker, instant.Format(time.RFC3339))
}

func lastCloseAtOrBefore(bars []models.Bar, instant time.Time) (float64, bool) {
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].TS.After(instant) {
			return bars[i].Close, true
		}
	}
	return 0, false
}

// Prefetch warms the tiers for a ticker set with bounded concurrency. Errors
// are swallowed; prefetch is best-effort and must never starve interactive
// lookups, so each worker takes a slot from the shared bounded pool.
func (c *Cache) Prefetch(ctx context.Context, tickers []string, interval models.Interval, start, end time.Time) {
	g, ctx := errgroup.WithContext(ctx)
	for _, ticker := range tickers {
		ticker := ticker
		g.Go(func() error {
			select {
			case c.prefetchSem <- struct{}{}:
				defer func() { <-c.prefetchSem }()
			case <-ctx.Done():
				return nil
			}
			if _, err := c.Bars(ctx, ticker, interval, start, end); err != nil && !errors.Is(err, ErrNoData) {
				log.Debug().Err(err).Str("component", "market").Str("ticker", ticker).
					Msg("prefetch fetch failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// ProviderState reports breaker states keyed by provider name.
func (c *Cache) ProviderState() map[string]string {
	out := make(map[string]string, len(c.chain))
	for _, p := range c.chain {
		out[p.Name()] = c.health.State(p.Name())
	}
	return out
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() CacheStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	out := c.stats
	out.ProviderErrors = make(map[string]int64, len(c.stats.ProviderErrors))
	for k, v := range c.stats.ProviderErrors {
		out.ProviderErrors[k] = v
	}
	return out
}

func (c *Cache) count(fn func(*CacheStats)) {
	c.statsMu.Lock()
	fn(&c.stats)
	c.statsMu.Unlock()
}

func (c *Cache) tierHit(tier string) {
	if c.cfg.OnTierHit != nil {
		c.cfg.OnTierHit(tier)
	}
}
