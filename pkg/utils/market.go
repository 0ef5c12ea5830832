package utils

import (
	"time"

	"zerodha-strategist/internal/models"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

const (
	preOpenMinute = 9 * 60
	openMinute    = 9*60 + 15
	closeMinute   = 15*60 + 30
)

// MarketStatusAt returns the F&O session state at t. Exchange holidays are
// not modelled.
func MarketStatusAt(t time.Time) models.MarketStatus {
	now := t.In(IndiaLocation)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return models.MarketClosed
	}

	m := now.Hour()*60 + now.Minute()
	switch {
	case m >= preOpenMinute && m < openMinute:
		return models.MarketPreOpen
	case m >= openMinute && m < closeMinute:
		return models.MarketOpen
	default:
		return models.MarketClosed
	}
}

// GetMarketStatus returns the current market status.
func GetMarketStatus() models.MarketStatus {
	return MarketStatusAt(time.Now())
}

// IsMarketOpen returns true if the market is currently open.
func IsMarketOpen() bool {
	return GetMarketStatus() == models.MarketOpen
}

// ExpiryClose returns the settlement instant for an expiry date: 15:30 IST
// on that day.
func ExpiryClose(expiry time.Time) time.Time {
	d := expiry.In(IndiaLocation)
	return time.Date(d.Year(), d.Month(), d.Day(), 15, 30, 0, 0, IndiaLocation)
}

// YearsToExpiry is the Black-Scholes time to expiry from now, in years of
// 365 days. It never returns less than one minute so same-day contracts
// still price.
func YearsToExpiry(now, expiry time.Time) float64 {
	d := ExpiryClose(expiry).Sub(now)
	if d < time.Minute {
		d = time.Minute
	}
	return d.Hours() / (24 * 365)
}

// NextWeekday returns the next date on or after from that falls on day,
// at midnight IST.
func NextWeekday(from time.Time, day time.Weekday) time.Time {
	d := from.In(IndiaLocation)
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, IndiaLocation)
	for d.Weekday() != day {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
