// Package clock classifies wall-clock instants into U.S. equity market
// sessions and derives the adaptive cycle cadence from them.
package clock

import (
	"fmt"
	"time"
)

// Session is the current U.S. market session.
type Session string

const (
	SessionPremarket  Session = "PREMARKET"  // 04:00-09:30 ET
	SessionRegular    Session = "REGULAR"    // 09:30-16:00 ET
	SessionAfterHours Session = "AFTERHOURS" // 16:00-20:00 ET
	SessionClosed     Session = "CLOSED"
)

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Intervals maps each session to its cycle period. Values come from Settings,
// never hardcoded call sites.
type Intervals struct {
	Regular  time.Duration
	Extended time.Duration // premarket and after-hours
	Closed   time.Duration
}

// SessionClassifier resolves sessions on the U.S. Eastern market calendar.
type SessionClassifier struct {
	loc       *time.Location
	intervals Intervals
}

// NewSessionClassifier loads the Eastern timezone database entry. Failure is a
// deployment problem (missing tzdata) and surfaces as an error.
func NewSessionClassifier(intervals Intervals) (*SessionClassifier, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("load market timezone: %w", err)
	}
	return &SessionClassifier{loc: loc, intervals: intervals}, nil
}

// SessionAt classifies an instant.
func (c *SessionClassifier) SessionAt(t time.Time) Session {
	et := t.In(c.loc)
	if !c.isTradingDay(et) {
		return SessionClosed
	}

	minutes := et.Hour()*60 + et.Minute()
	switch {
	case minutes >= 4*60 && minutes < 9*60+30:
		return SessionPremarket
	case minutes >= 9*60+30 && minutes < 16*60:
		return SessionRegular
	case minutes >= 16*60 && minutes < 20*60:
		return SessionAfterHours
	default:
		return SessionClosed
	}
}

// NextCycleDelay yields the cycle period for a session.
func (c *SessionClassifier) NextCycleDelay(s Session) time.Duration {
	switch s {
	case SessionRegular:
		return c.intervals.Regular
	case SessionPremarket, SessionAfterHours:
		return c.intervals.Extended
	default:
		return c.intervals.Closed
	}
}

// RegularOpen returns the 09:30 ET open of the trading day containing t, used
// by the RVol extrapolation.
func (c *SessionClassifier) RegularOpen(t time.Time) time.Time {
	et := t.In(c.loc)
	return time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, c.loc)
}

func (c *SessionClassifier) isTradingDay(et time.Time) bool {
	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := marketHolidays[et.Format("2006-01-02")]
	return !holiday
}

// marketHolidays lists full-day NYSE closures. Early-close half days are
// treated as normal days; the feed volume difference is negligible.
var marketHolidays = map[string]struct{}{
	// 2025
	"2025-01-01": {}, "2025-01-09": {}, "2025-01-20": {}, "2025-02-17": {},
	"2025-04-18": {}, "2025-05-26": {}, "2025-06-19": {}, "2025-07-04": {},
	"2025-09-01": {}, "2025-11-27": {}, "2025-12-25": {},
	// 2026
	"2026-01-01": {}, "2026-01-19": {}, "2026-02-16": {}, "2026-04-03": {},
	"2026-05-25": {}, "2026-06-19": {}, "2026-07-03": {}, "2026-09-07": {},
	"2026-11-26": {}, "2026-12-25": {},
	// 2027
	"2027-01-01": {}, "2027-01-18": {}, "2027-02-15": {}, "2027-03-26": {},
	"2027-05-31": {}, "2027-06-18": {}, "2027-07-05": {}, "2027-09-06": {},
	"2027-11-25": {}, "2027-12-24": {},
}
