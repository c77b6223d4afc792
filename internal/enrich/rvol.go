package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pennypulse/pennypulse/internal/models"
)

// regularSessionMinutes is the 6.5-hour regular session used to extrapolate
// today's partial volume to a full-day figure.
const regularSessionMinutes = 390.0

// RVolResult carries the relative-volume ratio and its score multiplier.
type RVolResult struct {
	RVol       float64 // extrapolated full-day volume / 20d average
	Multiplier float64 // [0.8, 1.4]
}

// SessionOpener resolves the regular-session open for an instant; the clock
// package provides the production implementation.
type SessionOpener interface {
	RegularOpen(t time.Time) time.Time
}

// RVolProvider computes relative volume against a 20-day average.
type RVolProvider struct {
	bars   BarSource
	opener SessionOpener
	cache  *memo
	now    func() time.Time
}

func NewRVolProvider(bars BarSource, opener SessionOpener, now func() time.Time) *RVolProvider {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &RVolProvider{
		bars:   bars,
		opener: opener,
		cache:  newMemo(5 * time.Minute),
		now:    now,
	}
}

// At returns the RVol result for a ticker at an instant, identity on failure.
func (p *RVolProvider) At(ctx context.Context, ticker string, instant time.Time) RVolResult {
	key := fmt.Sprintf("%s|%d", ticker, instant.Truncate(5*time.Minute).Unix())
	if v, ok := p.cache.get(key, p.now()); ok {
		return v.(RVolResult)
	}

	result, err := p.compute(ctx, ticker, instant)
	if err != nil {
		log.Debug().Err(err).Str("component", "enrich").Str("ticker", ticker).
			Msg("rvol unavailable, using identity")
		return RVolResult{RVol: 1.0, Multiplier: 1.0}
	}

	p.cache.put(key, result, p.now())
	return result
}

func (p *RVolProvider) compute(ctx context.Context, ticker string, instant time.Time) (RVolResult, error) {
	daily, err := p.bars.Bars(ctx, ticker, models.Interval1d, instant.Add(-30*24*time.Hour), instant.Add(-24*time.Hour))
	if err != nil {
		return RVolResult{}, err
	}
	if len(daily) == 0 {
		return RVolResult{}, errInsufficientBars
	}
	if len(daily) > 20 {
		daily = daily[len(daily)-20:]
	}

	var avg float64
	for _, b := range daily {
		avg += b.Volume
	}
	avg /= float64(len(daily))
	if avg <= 0 {
		return RVolResult{}, errInsufficientBars
	}

	open := p.opener.RegularOpen(instant)
	elapsed := instant.Sub(open).Minutes()
	if elapsed < 1 {
		// Pre-open: score today's pre-market volume against the full-day
		// average without extrapolation.
		elapsed = regularSessionMinutes
	}
	if elapsed > regularSessionMinutes {
		elapsed = regularSessionMinutes
	}

	intraday, err := p.bars.Bars(ctx, ticker, models.Interval5m, open, instant)
	if err != nil {
		return RVolResult{}, err
	}
	var today float64
	for _, b := range intraday {
		today += b.Volume
	}

	projected := today * (regularSessionMinutes / elapsed)
	rvol := projected / avg

	return RVolResult{RVol: rvol, Multiplier: rvolMultiplier(rvol)}, nil
}

// rvolMultiplier maps the ratio into the [0.8, 1.4] band.
func rvolMultiplier(rvol float64) float64 {
	switch {
	case rvol >= 3.0:
		return 1.4
	case rvol >= 2.0:
		return 1.25
	case rvol >= 1.5:
		return 1.1
	case rvol < 0.5:
		return 0.8
	default:
		return 1.0
	}
}
