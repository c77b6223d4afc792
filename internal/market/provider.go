// Package market implements the multi-tier market-data cache: in-process LRU,
// optional redis warm tier, on-disk cold tier, then an ordered provider chain
// with per-provider token buckets and health breakers.
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pennypulse/pennypulse/internal/models"
)

var (
	// ErrNoData is returned only after every tier and every provider in the
	// chain has been attempted.
	ErrNoData = errors.New("market: no data")

	// ErrRateLimited marks a provider whose token bucket did not yield a slot
	// within its bounded wait; the chain moves to the next provider.
	ErrRateLimited = errors.New("market: rate limited")
)

// RateLimitSpec describes a provider's token bucket.
type RateLimitSpec struct {
	RPS     float64       // sustained refill rate
	Burst   int           // bucket capacity
	MaxWait time.Duration // bounded wait before the chain moves on
}

// Provider is one interchangeable upstream market-data source.
type Provider interface {
	Name() string
	FetchBars(ctx context.Context, ticker string, interval models.Interval, start, end time.Time) ([]models.Bar, error)
	RateLimitSpec() RateLimitSpec
}

// Registry holds providers keyed by name and preserves chain order.
type Registry struct {
	order  []string
	byName map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Provider)}
}

// Register appends a provider to the chain. Duplicate names are rejected.
func (r *Registry) Register(p Provider) error {
	if _, dup := r.byName[p.Name()]; dup {
		return fmt.Errorf("market: provider %q already registered", p.Name())
	}
	r.byName[p.Name()] = p
	r.order = append(r.order, p.Name())
	return nil
}

// Chain returns providers in registration order.
func (r *Registry) Chain() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Get looks a provider up by name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// sortBars orders bars ascending by timestamp and drops duplicate timestamps,
// keeping the first occurrence. Providers occasionally repeat the boundary bar.
func sortBars(bars []models.Bar) []models.Bar {
	if len(bars) < 2 {
		return bars
	}
	out := append([]models.Bar(nil), bars...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].TS.Before(out[j-1].TS); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	dedup := out[:1]
	for _, b := range out[1:] {
		if !b.TS.Equal(dedup[len(dedup)-1].TS) {
			dedup = append(dedup, b)
		}
	}
	return dedup
}
