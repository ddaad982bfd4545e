package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

type Session string

const (
	SessionWeekendHoliday Session = "weekend_holiday"
	SessionDeadZone       Session = "dead_zone"
	SessionAsia           Session = "asia_session"
	SessionLondon         Session = "london_session"
	SessionUS             Session = "us_session"
	SessionDefault        Session = "default"
	SessionNoTrade        Session = "no_trade"
)

// SessionSizeConfig maps New York trading sessions to size multipliers.
type SessionSizeConfig struct {
	WeekendHolidayMultiplier decimal.Decimal
	DeadZoneMultiplier       decimal.Decimal
	AsiaMultiplier           decimal.Decimal
	LondonMultiplier         decimal.Decimal
	USMultiplier             decimal.Decimal
	DefaultMultiplier        decimal.Decimal

	EnableNoTradeWindow bool
}

func DefaultSessionSizeConfig() SessionSizeConfig {
	return SessionSizeConfig{
		WeekendHolidayMultiplier: decimal.NewFromFloat(0.15),
		DeadZoneMultiplier:       decimal.NewFromFloat(0.15),
		AsiaMultiplier:           decimal.NewFromFloat(0.75),
		LondonMultiplier:         decimal.NewFromFloat(1.0),
		USMultiplier:             decimal.NewFromFloat(1.25),
		DefaultMultiplier:        decimal.NewFromFloat(0.15),
		EnableNoTradeWindow:      true,
	}
}

var nyLocation = loadNewYork()

func loadNewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}

// SessionMultiplier returns the size multiplier for the New York session at
// now. Inside the no trade window (Friday 09:00 to Sunday 03:00 NY, and US
// market holidays) the multiplier is zero.
func SessionMultiplier(now time.Time, cfg SessionSizeConfig) (decimal.Decimal, Session) {
	et := now.In(nyLocation)

	if cfg.EnableNoTradeWindow && inNoTradeWindow(et) {
		return decimal.Zero, SessionNoTrade
	}

	s := detectSession(et)
	switch s {
	case SessionWeekendHoliday:
		return cfg.WeekendHolidayMultiplier, s
	case SessionDeadZone:
		return cfg.DeadZoneMultiplier, s
	case SessionAsia:
		return cfg.AsiaMultiplier, s
	case SessionLondon:
		return cfg.LondonMultiplier, s
	case SessionUS:
		return cfg.USMultiplier, s
	default:
		return cfg.DefaultMultiplier, s
	}
}

// CalculateSizeByNYSession scales a nominal size by the session multiplier.
func CalculateSizeByNYSession(baseSize decimal.Decimal, now time.Time, cfg SessionSizeConfig) (decimal.Decimal, Session) {
	if !baseSize.IsPositive() {
		return decimal.Zero, SessionDefault
	}
	mult, s := SessionMultiplier(now, cfg)
	return baseSize.Mul(mult), s
}

func inNoTradeWindow(t time.Time) bool {
	// Sunday London open is tradable even on a holiday
	if t.Weekday() == time.Sunday && isLondon(t) {
		return false
	}
	if isUSHoliday(t) {
		return true
	}
	switch t.Weekday() {
	case time.Friday:
		return t.Hour() >= 9
	case time.Saturday:
		return true
	case time.Sunday:
		return t.Hour() < 3
	}
	return false
}

func detectSession(t time.Time) Session {
	if t.Weekday() == time.Sunday && isLondon(t) {
		return SessionLondon
	}
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday || isUSHoliday(t) {
		return SessionWeekendHoliday
	}

	h := t.Hour()
	switch {
	case h >= 17 && h < 20:
		return SessionDeadZone
	case h >= 20 || h < 3:
		return SessionAsia
	case isLondon(t):
		return SessionLondon
	case h >= 9 && h <= 17:
		return SessionUS
	}
	return SessionDefault
}

func isLondon(t time.Time) bool {
	return t.Hour() >= 3 && t.Hour() < 9
}

func isUSHoliday(t time.Time) bool {
	key := t.Format("2006-01-02")
	for _, h := range usHolidays(t.Year()) {
		if h.Format("2006-01-02") == key {
			return true
		}
	}
	return false
}

// usHolidays lists the US market holidays of a year: New Year, MLK,
// Presidents, Memorial, Independence, Labor, Thanksgiving and Christmas.
// Fixed dates falling on a Sunday are observed on Monday.
func usHolidays(year int) []time.Time {
	observed := func(m time.Month, day int) time.Time {
		t := time.Date(year, m, day, 0, 0, 0, 0, time.UTC)
		if t.Weekday() == time.Sunday {
			t = t.AddDate(0, 0, 1)
		}
		return t
	}

	memorial := time.Date(year, time.May, 31, 0, 0, 0, 0, time.UTC)
	for memorial.Weekday() != time.Monday {
		memorial = memorial.AddDate(0, 0, -1)
	}

	return []time.Time{
		observed(time.January, 1),
		nthWeekday(year, time.January, time.Monday, 3),
		nthWeekday(year, time.February, time.Monday, 3),
		memorial,
		observed(time.July, 4),
		nthWeekday(year, time.September, time.Monday, 1),
		nthWeekday(year, time.November, time.Thursday, 4),
		observed(time.December, 25),
	}
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+(n-1)*7)
}
