package payoff

import (
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"

	"zerodha-strategist/internal/models"
)

// Summarize derives max profit/loss, unlimited flags, net premium and net
// Greeks from the legs and their payoff curve. points must be non-empty.
//
// Unlimited profit/loss is a heuristic read off the curve edges: a tail is
// unlimited when the P&L still moves by more than SlopeThreshold per sample
// at the edge of the sweep.
func Summarize(legs []models.OptionLeg, points []Point, lotSize int) Summary {
	pnls := make([]float64, len(points))
	for i, p := range points {
		pnls[i] = p.PnL
	}

	maxPnL := floats.Max(pnls)
	minPnL := floats.Min(pnls)

	var leftSlope, rightSlope float64
	if n := len(pnls); n >= 2 {
		leftSlope = pnls[1] - pnls[0]
		rightSlope = pnls[n-1] - pnls[n-2]
	}

	s := Summary{
		MaxProfit:          maxPnL,
		MaxLoss:            minPnL,
		MaxProfitUnlimited: rightSlope > SlopeThreshold && maxPnL > 0,
		MaxLossUnlimited: (leftSlope < -SlopeThreshold && minPnL < 0) ||
			(rightSlope < -SlopeThreshold && minPnL < 0),
	}

	s.NetPremium = NetPremium(legs, lotSize)
	for _, leg := range legs {
		sign := leg.Direction.Sign()
		s.NetDelta += sign * leg.Delta * float64(leg.Lots)
		s.NetTheta += sign * leg.Theta * float64(leg.Lots)
	}
	return s
}

// NetPremium is the signed premium of the strategy: credit positive, debit
// negative. Summed in decimal so rupee totals come out exact.
func NetPremium(legs []models.OptionLeg, lotSize int) float64 {
	total := decimal.Zero
	size := decimal.NewFromInt(int64(lotSize))
	for _, leg := range legs {
		amount := decimal.NewFromFloat(leg.Price).
			Mul(decimal.NewFromInt(int64(leg.Lots))).
			Mul(size)
		if leg.Direction == models.Short {
			total = total.Add(amount)
		} else {
			total = total.Sub(amount)
		}
	}
	f, _ := total.Float64()
	return f
}
