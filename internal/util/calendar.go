package util

import (
	"time"

	"traderbot/internal/domain"
)

// TradingCalendar provides market-hours awareness for the US equity market:
// regular sessions run 09:30-16:00 America/New_York on weekdays that are not
// NYSE full-day holidays. Early closes are not modelled.
type TradingCalendar struct {
	market domain.Market
	loc    *time.Location
}

// NewTradingCalendar creates a TradingCalendar for the given market. When the
// tz database is unavailable a fixed UTC-5 zone is used.
func NewTradingCalendar(market domain.Market) *TradingCalendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return &TradingCalendar{
		market: market,
		loc:    loc,
	}
}

// Location returns the exchange time zone.
func (tc *TradingCalendar) Location() *time.Location { return tc.loc }

// IsTradingDay reports whether the exchange holds a session on t's date in
// exchange time.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	d := t.In(tc.loc)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !isNYSEHoliday(d.Year(), d.Month(), d.Day())
}

// IsMarketOpen returns whether the market is open at time t.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	if !tc.IsTradingDay(t) {
		return false
	}
	start, end := tc.session(t.In(tc.loc))
	return !t.Before(start) && t.Before(end)
}

// NextOpen returns the next market open time at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	d := t.In(tc.loc)
	for i := 0; i < 15; i++ {
		day := d.AddDate(0, 0, i)
		if !tc.IsTradingDay(day) {
			continue
		}
		open, _ := tc.session(day)
		if !open.Before(t) {
			return open
		}
	}
	return time.Time{}
}

// NextClose returns the next market close time at or after t.
func (tc *TradingCalendar) NextClose(t time.Time) time.Time {
	d := t.In(tc.loc)
	for i := 0; i < 15; i++ {
		day := d.AddDate(0, 0, i)
		if !tc.IsTradingDay(day) {
			continue
		}
		_, end := tc.session(day)
		if !end.Before(t) {
			return end
		}
	}
	return time.Time{}
}

func (tc *TradingCalendar) session(d time.Time) (open, end time.Time) {
	y, m, day := d.Date()
	return time.Date(y, m, day, 9, 30, 0, 0, tc.loc), time.Date(y, m, day, 16, 0, 0, 0, tc.loc)
}

// isNYSEHoliday reports full-day closures, with Saturday holidays observed on
// Friday and Sunday holidays on Monday. New Year's Day on a Saturday is not
// observed.
func isNYSEHoliday(year int, month time.Month, day int) bool {
	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	for _, h := range nyseHolidays(year) {
		if h.Equal(date) {
			return true
		}
	}
	return false
}

func nyseHolidays(year int) []time.Time {
	fixed := func(m time.Month, d int) time.Time {
		t := time.Date(year, m, d, 0, 0, 0, 0, time.UTC)
		switch t.Weekday() {
		case time.Saturday:
			return t.AddDate(0, 0, -1)
		case time.Sunday:
			return t.AddDate(0, 0, 1)
		}
		return t
	}

	days := []time.Time{
		nthWeekday(year, time.January, time.Monday, 3),    // Martin Luther King Jr. Day
		nthWeekday(year, time.February, time.Monday, 3),   // Washington's Birthday
		easter(year).AddDate(0, 0, -2),                    // Good Friday
		lastWeekday(year, time.May, time.Monday),          // Memorial Day
		fixed(time.July, 4),                               // Independence Day
		nthWeekday(year, time.September, time.Monday, 1),  // Labor Day
		nthWeekday(year, time.November, time.Thursday, 4), // Thanksgiving
		fixed(time.December, 25),                          // Christmas
	}
	if ny := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC); ny.Weekday() != time.Saturday {
		days = append(days, fixed(time.January, 1))
	}
	if year >= 2022 {
		days = append(days, fixed(time.June, 19)) // Juneteenth
	}
	return days
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for t.Weekday() != wd {
		t = t.AddDate(0, 0, 1)
	}
	return t.AddDate(0, 0, 7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	t := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	for t.Weekday() != wd {
		t = t.AddDate(0, 0, -1)
	}
	return t
}

// easter returns Easter Sunday (Gregorian, anonymous algorithm).
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
