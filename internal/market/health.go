package market

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// HealthConfig tunes the per-provider circuit breakers.
type HealthConfig struct {
	// WindowRequests is how many recent calls the failure ratio is judged over.
	WindowRequests uint32
	// TripRatio opens the breaker when failures exceed this share of the window.
	TripRatio float64
	// Cooldown is how long an open breaker skips the provider before probing.
	Cooldown time.Duration
}

func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		WindowRequests: 100,
		TripRatio:      0.5,
		Cooldown:       5 * time.Minute,
	}
}

// HealthSet wraps every provider call in a gobreaker circuit breaker.
// Persistent failures (>50% over the last 100 calls by default) open the
// breaker and the chain skips the provider for the cooldown window.
type HealthSet struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	cfg      HealthConfig
}

func NewHealthSet(cfg HealthConfig) *HealthSet {
	return &HealthSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		cfg:      cfg,
	}
}

// Add registers a breaker for a provider name.
func (hs *HealthSet) Add(name string) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	cfg := hs.cfg
	hs.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // single probe in half-open
		Interval:    time.Minute,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.WindowRequests {
				// Not enough evidence yet; still trip on a long unbroken
				// failure streak so a dead provider is not hammered.
				return counts.ConsecutiveFailures >= 10
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio > cfg.TripRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("component", "market").Str("provider", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("provider breaker state change")
		},
	})
}

// Execute runs fn under the provider's breaker. An open breaker returns
// immediately with gobreaker.ErrOpenState.
func (hs *HealthSet) Execute(name string, fn func() (interface{}, error)) (interface{}, error) {
	hs.mu.RLock()
	breaker, ok := hs.breakers[name]
	hs.mu.RUnlock()
	if !ok {
		return fn()
	}
	return breaker.Execute(fn)
}

// State reports the breaker state string for the heartbeat snapshot.
func (hs *HealthSet) State(name string) string {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	if b, ok := hs.breakers[name]; ok {
		return b.State().String()
	}
	return "unknown"
}

// Counts exposes the raw window counts for a provider.
func (hs *HealthSet) Counts(name string) gobreaker.Counts {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	if b, ok := hs.breakers[name]; ok {
		return b.Counts()
	}
	return gobreaker.Counts{}
}
