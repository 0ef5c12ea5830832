// Package payoff computes expiry payoff curves, breakevens and summary
// statistics for multi-leg option strategies.
//
// Everything in this package is a pure function of its inputs: no I/O, no
// shared state, no errors. Callers guard the empty-strategy case; Analyze
// does that for them.
package payoff

import (
	"zerodha-strategist/internal/models"
)

const (
	// RangeFraction is the half-width of the price sweep as a fraction of
	// the center strike.
	RangeFraction = 0.15
	// StepsPerStrike is how many samples are taken per listed strike gap.
	StepsPerStrike = 4
	// MaxPoints bounds the length of a sweep. Listed strikes stay far below
	// it; an absurd strike widens the step instead of growing the curve.
	MaxPoints = 10001
	// SlopeThreshold is the edge slope (P&L per sample) above which a tail
	// is classified as unlimited.
	SlopeThreshold = 5.0
)

// Point is one sample of the aggregate payoff curve. PnL is split into its
// non-negative and non-positive parts for two-colour area charts, so
// PnL == PnLPositive + PnLNegative always holds.
type Point struct {
	Price       float64 `json:"price"`
	PnL         float64 `json:"pnl"`
	PnLPositive float64 `json:"pnl_positive"`
	PnLNegative float64 `json:"pnl_negative"`
}

// Summary holds derived statistics of a strategy.
type Summary struct {
	MaxProfit          float64 `json:"max_profit"`
	MaxLoss            float64 `json:"max_loss"`
	MaxProfitUnlimited bool    `json:"max_profit_unlimited"`
	MaxLossUnlimited   bool    `json:"max_loss_unlimited"`
	NetPremium         float64 `json:"net_premium"`
	NetDelta           float64 `json:"net_delta"`
	NetTheta           float64 `json:"net_theta"`
}

// Analysis bundles everything a chart or stats panel needs.
type Analysis struct {
	Underlying string    `json:"underlying"`
	LotSize    int       `json:"lot_size"`
	Points     []Point   `json:"points"`
	Breakevens []float64 `json:"breakevens"`
	Summary    *Summary  `json:"summary,omitempty"`
}

// Empty reports whether there was nothing to analyse.
func (a Analysis) Empty() bool {
	return len(a.Points) == 0
}

// Analyze runs the calculator, breakeven locator and summary classifier for
// the given legs. An empty leg list yields an empty Analysis with a nil
// Summary rather than an error.
func Analyze(legs []models.OptionLeg, u models.Underlying) Analysis {
	a := Analysis{
		Underlying: u.Symbol,
		LotSize:    u.LotSize,
		Breakevens: []float64{},
	}

	points := Calculate(legs, u.LotSize, u.StrikeStep)
	if len(points) == 0 {
		a.Points = []Point{}
		return a
	}

	a.Points = points
	a.Breakevens = Breakevens(points)
	s := Summarize(legs, points, u.LotSize)
	a.Summary = &s
	return a
}
