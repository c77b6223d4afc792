package classify

import (
	"math"
	"time"
)

// Confidence is the secondary admission signal: how much corroboration the
// score has, independent of its magnitude. Pure so thresholds can be tuned
// against a replay.
//
//	base 0.25
//	+ 0.15 per positive keyword match, capped at 3
//	+ 0.20 x |sentiment|
//	+ 0.15 x freshness, where freshness decays linearly to 0 over 60 min
func Confidence(positiveMatches int, sentiment float64, age time.Duration) float64 {
	matches := float64(positiveMatches)
	if matches > 3 {
		matches = 3
	}

	freshness := 1 - age.Minutes()/60
	if freshness < 0 {
		freshness = 0
	}
	if freshness > 1 {
		freshness = 1 // observed-before-published clock skew
	}

	c := 0.25 + 0.15*matches + 0.20*math.Abs(sentiment) + 0.15*freshness
	return clip(c, 0, 1)
}
