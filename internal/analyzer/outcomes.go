package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pennypulse/pennypulse/internal/market"
	"github.com/pennypulse/pennypulse/internal/models"
)

// BarSource is the slice of the market cache the analyzer needs.
type BarSource interface {
	Bars(ctx context.Context, ticker string, interval models.Interval, start, end time.Time) ([]models.Bar, error)
}

// Tradeability is the fill-realism filter applied before an outcome can
// count as a missed opportunity.
type Tradeability struct {
	Enabled      bool
	MinVolume    float64 // shares in the entry bar window
	MaxSpreadPct float64 // estimated from the entry bar range
}

func DefaultTradeability() Tradeability {
	return Tradeability{Enabled: true, MinVolume: 100_000, MaxSpreadPct: 5}
}

var errNoEntryBar = errors.New("analyzer: no bar at or after publication")

// outcomesFor measures one rejected item across every timeframe. A timeframe
// with no usable bars is skipped rather than failing the item.
func outcomesFor(ctx context.Context, bars BarSource, rec models.EventRecord, ticker string,
	missedThreshold float64, trade Tradeability) ([]models.Outcome, error) {

	var outcomes []models.Outcome
	for _, tf := range models.AllTimeframes {
		o, err := outcomeForTimeframe(ctx, bars, rec, ticker, tf, missedThreshold, trade)
		if err != nil {
			if errors.Is(err, market.ErrNoData) || errors.Is(err, errNoEntryBar) {
				continue
			}
			return nil, fmt.Errorf("outcome %s %s: %w", ticker, tf, err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func outcomeForTimeframe(ctx context.Context, src BarSource, rec models.EventRecord, ticker string,
	tf models.Timeframe, missedThreshold float64, trade Tradeability) (models.Outcome, error) {

	start := rec.TSPublished
	end := start.Add(tf.Duration())
	bars, err := src.Bars(ctx, ticker, tf.BarInterval(), start, end)
	if err != nil {
		return models.Outcome{}, err
	}

	entryIdx := -1
	for i, b := range bars {
		if !b.TS.Before(start) {
			entryIdx = i
			break
		}
	}
	if entryIdx < 0 {
		return models.Outcome{}, errNoEntryBar
	}
	window := bars[entryIdx:]
	entry := window[0].Open
	if entry <= 0 {
		return models.Outcome{}, errNoEntryBar
	}

	maxHigh, minLow := window[0].High, window[0].Low
	for _, b := range window[1:] {
		if b.High > maxHigh {
			maxHigh = b.High
		}
		if b.Low < minLow {
			minLow = b.Low
		}
	}

	o := models.Outcome{
		SourceID:      rec.SourceID,
		CanonicalID:   rec.CanonicalID,
		Ticker:        ticker,
		Timeframe:     tf,
		EntryPrice:    entry,
		ExitPrice:     window[len(window)-1].Close,
		MaxReturn:     (maxHigh - entry) / entry,
		Drawdown:      (minLow - entry) / entry,
		VolumeAtEntry: window[0].Volume,
	}
	o.IsMissedOpportunity = o.MaxReturn >= missedThreshold && tradeable(window[0], trade)
	return o, nil
}

// tradeable estimates fill realism from the entry bar: enough volume to get
// in, and a bar range narrow enough to suggest a workable spread.
func tradeable(entry models.Bar, trade Tradeability) bool {
	if !trade.Enabled {
		return true
	}
	if entry.Volume < trade.MinVolume {
		return false
	}
	mid := (entry.High + entry.Low) / 2
	if mid <= 0 {
		return false
	}
	spreadPct := (entry.High - entry.Low) / mid * 100
	return spreadPct <= trade.MaxSpreadPct
}
