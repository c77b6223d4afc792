package enrich

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pennypulse/pennypulse/internal/models"
)

var errInsufficientBars = errors.New("enrich: insufficient bars")

// marketProxyTicker is the broad-market index proxy. The volatility signal is
// the realized vol of this proxy rather than a VIX quote, since the index
// itself is not quotable through every provider in the chain.
const marketProxyTicker = "SPY"

// RegimeResult is the classified market regime with its score multiplier.
type RegimeResult struct {
	Regime     models.Regime
	Multiplier float64
	Confidence float64
	VolLevel   float64 // annualized vol proxy, percent
	Trend20d   float64 // broad-market 20-day return, fraction
	Trend5d    float64
}

// RegimeThresholds drive the classification votes. Defaults mirror the
// detector's calibration; all values are configuration.
type RegimeThresholds struct {
	HighVolLevel float64 // vol proxy annualized % above which HIGH_VOL wins
	BullTrend    float64 // 20d return above which BULL
	BearTrend    float64 // 20d return below which BEAR
	CrashTrend5d float64 // 5d return below which CRASH overrides everything
}

func DefaultRegimeThresholds() RegimeThresholds {
	return RegimeThresholds{
		HighVolLevel: 30.0,
		BullTrend:    0.03,
		BearTrend:    -0.03,
		CrashTrend5d: -0.08,
	}
}

// regimeMultipliers maps each regime into the [0.5, 1.2] band.
var regimeMultipliers = map[models.Regime]float64{
	models.RegimeBull:    1.1,
	models.RegimeNeutral: 1.0,
	models.RegimeHighVol: 0.8,
	models.RegimeBear:    0.7,
	models.RegimeCrash:   0.5,
}

// RegimeClassifier reads the vol and market proxies through the bar cache.
type RegimeClassifier struct {
	bars       BarSource
	thresholds RegimeThresholds
	cache      *memo
	now        func() time.Time
}

// BarSource is the slice of the market cache that enrichment needs.
type BarSource interface {
	Bars(ctx context.Context, ticker string, interval models.Interval, start, end time.Time) ([]models.Bar, error)
	PriceAt(ctx context.Context, ticker string, instant time.Time) (float64, error)
}

func NewRegimeClassifier(bars BarSource, thresholds RegimeThresholds, now func() time.Time) *RegimeClassifier {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &RegimeClassifier{
		bars:       bars,
		thresholds: thresholds,
		cache:      newMemo(5 * time.Minute),
		now:        now,
	}
}

// Classify returns the regime at the instant. On any data failure it returns
// the neutral identity and logs the miss.
func (rc *RegimeClassifier) Classify(ctx context.Context, instant time.Time) RegimeResult {
	if v, ok := rc.cache.get("regime", rc.now()); ok {
		return v.(RegimeResult)
	}

	result, err := rc.classify(ctx, instant)
	if err != nil {
		log.Warn().Err(err).Str("component", "enrich").Msg("regime classification degraded to neutral")
		return RegimeResult{Regime: models.RegimeNeutral, Multiplier: 1.0, Confidence: 0}
	}

	rc.cache.put("regime", result, rc.now())
	return result
}

func (rc *RegimeClassifier) classify(ctx context.Context, instant time.Time) (RegimeResult, error) {
	spy, err := rc.bars.Bars(ctx, marketProxyTicker, models.Interval1d, instant.Add(-35*24*time.Hour), instant)
	if err != nil {
		return RegimeResult{}, err
	}
	if len(spy) < 6 {
		return RegimeResult{}, errInsufficientBars
	}

	trend20 := trailingReturn(spy, 20)
	trend5 := trailingReturn(spy, 5)

	volLevel := annualizedVol(spy)

	th := rc.thresholds
	var regime models.Regime
	switch {
	case trend5 <= th.CrashTrend5d:
		regime = models.RegimeCrash
	case volLevel >= th.HighVolLevel:
		regime = models.RegimeHighVol
	case trend20 >= th.BullTrend:
		regime = models.RegimeBull
	case trend20 <= th.BearTrend:
		regime = models.RegimeBear
	default:
		regime = models.RegimeNeutral
	}

	return RegimeResult{
		Regime:     regime,
		Multiplier: regimeMultipliers[regime],
		Confidence: regimeConfidence(regime, trend20, trend5, volLevel, th),
		VolLevel:   volLevel,
		Trend20d:   trend20,
		Trend5d:    trend5,
	}, nil
}

// trailingReturn computes the fractional close-to-close return over the last n
// daily bars (or the whole window when shorter).
func trailingReturn(bars []models.Bar, n int) float64 {
	if len(bars) < 2 {
		return 0
	}
	start := len(bars) - 1 - n
	if start < 0 {
		start = 0
	}
	entry := bars[start].Close
	if entry == 0 {
		return 0
	}
	return (bars[len(bars)-1].Close - entry) / entry
}

// annualizedVol is the realized close-to-close volatility of the window,
// annualized and expressed in percent.
func annualizedVol(bars []models.Bar) float64 {
	if len(bars) < 3 {
		return 0
	}
	var rets []float64
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close > 0 {
			rets = append(rets, math.Log(bars[i].Close/bars[i-1].Close))
		}
	}
	if len(rets) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	varsum := 0.0
	for _, r := range rets {
		varsum += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(varsum / float64(len(rets)-1))
	return sd * math.Sqrt(252) * 100
}

// regimeConfidence grows with the margin by which the winning signal cleared
// its threshold.
func regimeConfidence(regime models.Regime, trend20, trend5, volLevel float64, th RegimeThresholds) float64 {
	var margin float64
	switch regime {
	case models.RegimeCrash:
		margin = (th.CrashTrend5d - trend5) / math.Abs(th.CrashTrend5d)
	case models.RegimeHighVol:
		margin = (volLevel - th.HighVolLevel) / th.HighVolLevel
	case models.RegimeBull:
		margin = (trend20 - th.BullTrend) / th.BullTrend
	case models.RegimeBear:
		margin = (th.BearTrend - trend20) / math.Abs(th.BearTrend)
	default:
		return 0.5
	}
	return clamp(0.5+margin, 0.5, 1.0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
