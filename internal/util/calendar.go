package util

import (
	"time"
)

// TradingPeriodsPerYear is the annualization constant for daily bars on the
// Hong Kong exchange.
const TradingPeriodsPerYear = 252

// hkLocation resolves Asia/Hong_Kong, falling back to a fixed UTC+8 zone
// when the tz database is unavailable.
func hkLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Hong_Kong")
	if err != nil {
		return time.FixedZone("HKT", 8*3600)
	}
	return loc
}

// TradingCalendar provides market-hours awareness for the Hong Kong
// exchange: 09:30-12:00 and 13:00-16:00 HKT, Monday through Friday.
type TradingCalendar struct {
	loc *time.Location
}

// NewTradingCalendar creates a TradingCalendar in the Hong Kong time zone.
func NewTradingCalendar() *TradingCalendar {
	return &TradingCalendar{loc: hkLocation()}
}

// IsTradingDay reports whether t falls on a weekday.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	wd := t.In(tc.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsMarketOpen returns whether the exchange is in a trading session at time t.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	local := t.In(tc.loc)
	if !tc.IsTradingDay(local) {
		return false
	}
	mins := local.Hour()*60 + local.Minute()
	morning := mins >= 9*60+30 && mins < 12*60
	afternoon := mins >= 13*60 && mins < 16*60
	return morning || afternoon
}

// NextOpen returns the next session open at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	local := t.In(tc.loc)
	for {
		if tc.IsTradingDay(local) {
			mins := local.Hour()*60 + local.Minute()
			switch {
			case mins < 9*60+30:
				return time.Date(local.Year(), local.Month(), local.Day(), 9, 30, 0, 0, tc.loc)
			case mins < 13*60 && mins >= 12*60:
				return time.Date(local.Year(), local.Month(), local.Day(), 13, 0, 0, 0, tc.loc)
			case mins < 12*60 || mins < 16*60 && mins >= 13*60:
				// Already inside a session.
				return local
			}
		}
		local = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tc.loc).AddDate(0, 0, 1)
	}
}

// SessionClose returns the close of the trading day containing t.
func (tc *TradingCalendar) SessionClose(t time.Time) time.Time {
	local := t.In(tc.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 16, 0, 0, 0, tc.loc)
}
