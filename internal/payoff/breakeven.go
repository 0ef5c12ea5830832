package payoff

import "math"

// Breakevens returns the prices at which the sampled curve crosses zero.
//
// A crossing is any adjacent pair where one P&L is >= 0 and the other is
// < 0; the zero is located by linear interpolation and rounded to the
// nearest whole price. Precision is bounded by the sampling step.
func Breakevens(points []Point) []float64 {
	out := []float64{}
	for i := 1; i < len(points); i++ {
		prev, curr := points[i-1], points[i]
		if (prev.PnL >= 0) == (curr.PnL >= 0) {
			continue
		}
		// The sign test above guarantees curr.PnL != prev.PnL.
		x := prev.Price + (curr.Price-prev.Price)*(-prev.PnL)/(curr.PnL-prev.PnL)
		out = append(out, math.Round(x))
	}
	return out
}
