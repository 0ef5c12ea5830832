package payoff

import (
	"math"

	"zerodha-strategist/internal/models"
)

// Intrinsic returns the expiry value per unit of an option at price p.
func Intrinsic(t models.OptionType, strike, p float64) float64 {
	if t == models.Put {
		return math.Max(0, strike-p)
	}
	return math.Max(0, p-strike)
}

// LegPnL returns the expiry P&L of one leg at price p, scaled by lots and
// lot size.
func LegPnL(leg models.OptionLeg, p float64, lotSize int) float64 {
	intrinsic := Intrinsic(leg.Type, leg.Strike, p)
	perUnit := intrinsic - leg.Price
	if leg.Direction == models.Short {
		perUnit = leg.Price - intrinsic
	}
	return perUnit * float64(leg.Lots) * float64(lotSize)
}

// Calculate sweeps prices around the first leg's strike and returns the
// aggregate expiry payoff at each sample.
//
// The sweep spans ±15% of the center strike with a step of a quarter
// strike step. The first sample is snapped to a multiple of the step and
// every sample is derived from its index, so long sweeps do not drift.
// A sweep that would exceed MaxPoints samples uses a whole multiple of the
// step instead. Returns nil when legs is empty.
func Calculate(legs []models.OptionLeg, lotSize int, strikeStep float64) []Point {
	if len(legs) == 0 {
		return nil
	}

	center := legs[0].Strike
	rng := center * RangeFraction
	step := strikeStep / StepsPerStrike
	if step <= 0 {
		step = 1
	}

	if samples := 2*rng/step + 1; samples > MaxPoints {
		step *= math.Ceil(samples / MaxPoints)
	}

	start := math.Round((center-rng)/step) * step
	end := center + rng
	n := int(math.Floor((end-start)/step+1e-9)) + 1
	if n < 1 {
		n = 1
	}
	if n > MaxPoints {
		n = MaxPoints
	}

	points := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		p := start + float64(i)*step
		var pnl float64
		for _, leg := range legs {
			pnl += LegPnL(leg, p, lotSize)
		}
		points = append(points, Point{
			Price:       p,
			PnL:         pnl,
			PnLPositive: math.Max(pnl, 0),
			PnLNegative: math.Min(pnl, 0),
		})
	}
	return points
}
