package models

import "time"

// Interval is a bar aggregation period supported by the provider contract.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
)

// Duration returns the wall-clock span of one bar.
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval1d:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Bar is one OHLCV candle. Timestamps are UTC bar-open instants.
type Bar struct {
	TS     time.Time `json:"ts_utc" msgpack:"ts"`
	Open   float64   `json:"open" msgpack:"o"`
	High   float64   `json:"high" msgpack:"h"`
	Low    float64   `json:"low" msgpack:"l"`
	Close  float64   `json:"close" msgpack:"c"`
	Volume float64   `json:"volume" msgpack:"v"`
}

// Timeframe is an outcome-measurement window used by the analyzer.
type Timeframe string

const (
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
	Timeframe7d  Timeframe = "7d"
)

// AllTimeframes lists outcome windows in ascending span order.
var AllTimeframes = []Timeframe{
	Timeframe15m, Timeframe30m, Timeframe1h, Timeframe4h, Timeframe1d, Timeframe7d,
}

// Duration returns the wall-clock span of the window.
func (t Timeframe) Duration() time.Duration {
	switch t {
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe30m:
		return 30 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	case Timeframe7d:
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// BarInterval returns the bar resolution used to measure outcomes over the
// window: intraday windows use minute bars, multi-day windows use dailies.
func (t Timeframe) BarInterval() Interval {
	switch t {
	case Timeframe15m, Timeframe30m:
		return Interval1m
	case Timeframe1h, Timeframe4h:
		return Interval5m
	case Timeframe1d:
		return Interval15m
	default:
		return Interval1d
	}
}
