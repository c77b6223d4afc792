package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterSet owns one token bucket per provider. A request waits up to the
// provider's MaxWait for a token; on timeout it surfaces ErrRateLimited so the
// chain can try the next provider instead of stalling the cycle.
type LimiterSet struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	maxWait  map[string]time.Duration
}

func NewLimiterSet() *LimiterSet {
	return &LimiterSet{
		limiters: make(map[string]*rate.Limiter),
		maxWait:  make(map[string]time.Duration),
	}
}

// Add registers a bucket for a provider name.
func (ls *LimiterSet) Add(name string, spec RateLimitSpec) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.limiters[name] = rate.NewLimiter(rate.Limit(spec.RPS), spec.Burst)
	ls.maxWait[name] = spec.MaxWait
}

// Acquire blocks for a token, bounded by the provider's MaxWait and the
// caller's context.
func (ls *LimiterSet) Acquire(ctx context.Context, name string) error {
	ls.mu.RLock()
	limiter, ok := ls.limiters[name]
	wait := ls.maxWait[name]
	ls.mu.RUnlock()

	if !ok {
		return fmt.Errorf("market: no limiter for provider %q", name)
	}
	if limiter.Allow() {
		return nil
	}

	waitCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	if err := limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", ErrRateLimited, name)
	}
	return nil
}

// Tokens reports the current token count, for the heartbeat snapshot.
func (ls *LimiterSet) Tokens(name string) float64 {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	if l, ok := ls.limiters[name]; ok {
		return l.Tokens()
	}
	return 0
}
