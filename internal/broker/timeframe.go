package broker

import (
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"traderbot/internal/domain"
)

// ParseTimeFrame maps a bar interval name to an Alpaca timeframe. Accepted
// values are 1Min, 5Min, 15Min, 1Hour and 1Day in any case, plus the short
// forms 1h and 1day.
func ParseTimeFrame(s string) (marketdata.TimeFrame, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1min":
		return marketdata.OneMin, nil
	case "5min":
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case "15min":
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case "1hour", "1h":
		return marketdata.OneHour, nil
	case "1day", "1d", "":
		return marketdata.OneDay, nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("%w: unsupported timeframe %q", domain.ErrConfiguration, s)
}

// PeriodsPerYear returns how many bars of tf fit in a trading year, used to
// annualize backtest statistics.
func PeriodsPerYear(tf marketdata.TimeFrame) int {
	const sessionMinutes = 390
	n := tf.N
	if n < 1 {
		n = 1
	}
	switch tf.Unit {
	case marketdata.Min:
		return 252 * sessionMinutes / n
	case marketdata.Hour:
		return 252 * ((sessionMinutes + 60*n - 1) / (60 * n))
	}
	return 252 / n
}

// lookbackWindow returns a calendar span that comfortably holds n bars of
// tf, allowing for weekends, holidays and the overnight gap.
func lookbackWindow(tf marketdata.TimeFrame, n int) time.Duration {
	const day = 24 * time.Hour
	perDay := PeriodsPerYear(tf) / 252
	if perDay < 1 {
		perDay = 1
	}
	tradingDays := (n + perDay - 1) / perDay
	if tf.Unit == marketdata.Day && tf.N > 1 {
		tradingDays = n * tf.N
	}
	calendarDays := tradingDays*7/5 + 10
	return time.Duration(calendarDays) * day
}
