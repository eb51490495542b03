// Package session decides whether the exchange is open and when a run must stop.
package session

import (
	"fmt"
	"time"
)

// Phase is where a timestamp falls relative to the trading day.
type Phase int

const (
	NotTradingDay Phase = iota
	BeforeOpen
	DuringSession
	AfterClose
)

func (p Phase) String() string {
	switch p {
	case NotTradingDay:
		return "not_trading_day"
	case BeforeOpen:
		return "before_open"
	case DuringSession:
		return "during_session"
	case AfterClose:
		return "after_close"
	default:
		return "unknown"
	}
}

// TimeOfDay is a wall-clock time as minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func minuteOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// Gate evaluates session boundaries in the exchange's timezone.
// There is no holiday calendar: any weekday counts as a trading day.
type Gate struct {
	Location *time.Location
	Open     TimeOfDay
	Close    TimeOfDay
	HardStop TimeOfDay
}

// DefaultGate is the KRX regular session: 09:00 to 15:30 KST with a 16:00 hard stop.
func DefaultGate() Gate {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.FixedZone("KST", 9*60*60)
	}
	return Gate{
		Location: loc,
		Open:     9 * 60,
		Close:    15*60 + 30,
		HardStop: 16 * 60,
	}
}

// NewGate builds a gate from config strings.
func NewGate(timezone, open, closeAt, hardStop string) (Gate, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Gate{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	g := Gate{Location: loc}
	if g.Open, err = ParseTimeOfDay(open); err != nil {
		return Gate{}, err
	}
	if g.Close, err = ParseTimeOfDay(closeAt); err != nil {
		return Gate{}, err
	}
	if g.HardStop, err = ParseTimeOfDay(hardStop); err != nil {
		return Gate{}, err
	}
	if g.Open >= g.Close {
		return Gate{}, fmt.Errorf("session open %s must be before close %s", g.Open, g.Close)
	}
	if g.HardStop < g.Close {
		return Gate{}, fmt.Errorf("hard stop %s must not be before close %s", g.HardStop, g.Close)
	}
	return g, nil
}

func (g Gate) local(t time.Time) time.Time {
	if g.Location == nil {
		return t
	}
	return t.In(g.Location)
}

// Evaluate is the start-of-run gate. Only DuringSession ([Open, Close)) may start polling.
func (g Gate) Evaluate(t time.Time) Phase {
	lt := g.local(t)
	switch lt.Weekday() {
	case time.Saturday, time.Sunday:
		return NotTradingDay
	}
	m := minuteOf(lt)
	switch {
	case m < g.Open:
		return BeforeOpen
	case m >= g.Close:
		return AfterClose
	default:
		return DuringSession
	}
}

// SessionOver is the in-run gate. It trips once the session has closed and, independently,
// at the hard stop in case a close check was missed.
func (g Gate) SessionOver(t time.Time) bool {
	if g.Evaluate(t) != DuringSession {
		return true
	}
	return minuteOf(g.local(t)) >= g.HardStop
}

// Reason is the operator-facing explanation for a phase that refuses a run.
func (g Gate) Reason(p Phase) string {
	switch p {
	case NotTradingDay:
		return "🛑 Weekend: markets are closed, monitoring not started."
	case BeforeOpen:
		return fmt.Sprintf("⏹️ Market not open yet (opens %s), monitoring not started.", g.Open)
	case AfterClose:
		return fmt.Sprintf("⏹️ Market already closed (closed %s), monitoring not started.", g.Close)
	default:
		return ""
	}
}
