// Package heartbeat tracks pipeline counters and periodically reports them to
// the admin channel. A heartbeat failure never affects cycle liveness.
package heartbeat

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pennypulse/pennypulse/internal/models"
)

// Metrics is the process-wide instrumentation set. Prometheus carries the
// scrape surface; the mirror counters back the beacon payload so it can be
// assembled without walking the registry.
type Metrics struct {
	cycles         prometheus.Counter
	itemsFetched   *prometheus.CounterVec
	accepted       prometheus.Counter
	rejected       *prometheus.CounterVec
	dispatched     *prometheus.CounterVec
	cacheTierHits  *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	feedErrors     *prometheus.CounterVec
	queueDepth     prometheus.Gauge

	mu     sync.Mutex
	mirror Snapshot
}

// Snapshot is the beacon view of the counters.
type Snapshot struct {
	Cycles         int            `json:"cycles"`
	Items          int            `json:"items"`
	Accepted       int            `json:"accepted"`
	Rejected       map[string]int `json:"rejected_by_reason"`
	Dispatched     map[string]int `json:"dispatch_outcomes"`
	CacheTierHits  map[string]int `json:"cache_tier_hits"`
	ProviderErrors map[string]int `json:"provider_errors"`
	FeedErrors     map[string]int `json:"feed_errors"`
	LastError      time.Time      `json:"last_error,omitempty"`
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pennypulse_cycles_total", Help: "Completed scan cycles.",
		}),
		itemsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pennypulse_items_fetched_total", Help: "Raw items fetched per source.",
		}, []string{"source"}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pennypulse_items_accepted_total", Help: "Items passing all admission gates.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pennypulse_items_rejected_total", Help: "Rejections by primary reason.",
		}, []string{"reason"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pennypulse_dispatch_total", Help: "Dispatch outcomes.",
		}, []string{"outcome"}),
		cacheTierHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pennypulse_cache_hits_total", Help: "Bar cache hits per tier.",
		}, []string{"tier"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pennypulse_provider_errors_total", Help: "Market data provider failures.",
		}, []string{"provider"}),
		feedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pennypulse_feed_errors_total", Help: "Feed fetch failures per source.",
		}, []string{"source"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pennypulse_dispatch_queue_depth", Help: "Pending alerts awaiting delivery.",
		}),
	}
	m.mirror = emptySnapshot()
	reg.MustRegister(m.cycles, m.itemsFetched, m.accepted, m.rejected,
		m.dispatched, m.cacheTierHits, m.providerErrors, m.feedErrors, m.queueDepth)
	return m
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Rejected:       map[string]int{},
		Dispatched:     map[string]int{},
		CacheTierHits:  map[string]int{},
		ProviderErrors: map[string]int{},
		FeedErrors:     map[string]int{},
	}
}

func (m *Metrics) CycleDone(items int) {
	m.cycles.Inc()
	m.mu.Lock()
	m.mirror.Cycles++
	m.mirror.Items += items
	m.mu.Unlock()
}

func (m *Metrics) ItemsFetched(source string, n int) {
	m.itemsFetched.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) Accepted() {
	m.accepted.Inc()
	m.mu.Lock()
	m.mirror.Accepted++
	m.mu.Unlock()
}

func (m *Metrics) Rejected(reason models.Reason) {
	m.rejected.WithLabelValues(string(reason)).Inc()
	m.mu.Lock()
	m.mirror.Rejected[string(reason)]++
	m.mu.Unlock()
}

func (m *Metrics) Dispatch(outcome string) {
	m.dispatched.WithLabelValues(outcome).Inc()
	m.mu.Lock()
	m.mirror.Dispatched[outcome]++
	m.mu.Unlock()
}

func (m *Metrics) CacheHit(tier string) {
	m.cacheTierHits.WithLabelValues(tier).Inc()
	m.mu.Lock()
	m.mirror.CacheTierHits[tier]++
	m.mu.Unlock()
}

func (m *Metrics) ProviderError(provider string) {
	m.providerErrors.WithLabelValues(provider).Inc()
	m.mu.Lock()
	m.mirror.ProviderErrors[provider]++
	m.mirror.LastError = time.Now().UTC()
	m.mu.Unlock()
}

func (m *Metrics) FeedError(source string) {
	m.feedErrors.WithLabelValues(source).Inc()
	m.mu.Lock()
	m.mirror.FeedErrors[source]++
	m.mirror.LastError = time.Now().UTC()
	m.mu.Unlock()
}

func (m *Metrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// Snapshot copies the mirror counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.mirror
	out.Rejected = copyMap(m.mirror.Rejected)
	out.Dispatched = copyMap(m.mirror.Dispatched)
	out.CacheTierHits = copyMap(m.mirror.CacheTierHits)
	out.ProviderErrors = copyMap(m.mirror.ProviderErrors)
	out.FeedErrors = copyMap(m.mirror.FeedErrors)
	return out
}

func copyMap(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
