package payoff

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerodha-strategist/internal/models"
)

var nifty = models.DefaultUnderlyings["NIFTY"]

func leg(dir models.Direction, t models.OptionType, strike, price float64, lots int) models.OptionLeg {
	return models.OptionLeg{Strike: strike, Type: t, Direction: dir, Lots: lots, Price: price}
}

func TestCalculate_SweepBounds(t *testing.T) {
	points := Calculate([]models.OptionLeg{leg(models.Long, models.Call, 24000, 120, 1)}, 75, 50)

	require.Len(t, points, 577)
	assert.Equal(t, 20400.0, points[0].Price)
	assert.Equal(t, 27600.0, points[len(points)-1].Price)
	assert.Equal(t, 12.5, points[1].Price-points[0].Price)
}

func TestCalculate_AbsurdStrikeIsCapped(t *testing.T) {
	points := Calculate([]models.OptionLeg{leg(models.Long, models.Call, 1e10, 120, 1)}, 75, 50)

	require.LessOrEqual(t, len(points), MaxPoints)
	require.GreaterOrEqual(t, len(points), MaxPoints-1)

	step := points[1].Price - points[0].Price
	assert.Greater(t, step, 12.5)
	assert.Zero(t, math.Mod(step, 12.5))
	assert.InDelta(t, 8.5e9, points[0].Price, step)
	assert.InDelta(t, 1.15e10, points[len(points)-1].Price, step)
	for i := 1; i < len(points); i++ {
		assert.Equal(t, points[i].PnL, points[i].PnLPositive+points[i].PnLNegative)
	}
}

func TestCalculate_EmptyLegs(t *testing.T) {
	assert.Empty(t, Calculate(nil, 75, 50))

	a := Analyze(nil, nifty)
	assert.True(t, a.Empty())
	assert.Nil(t, a.Summary)
	assert.Empty(t, a.Breakevens)
}

func TestIntrinsic(t *testing.T) {
	assert.Equal(t, 100.0, Intrinsic(models.Call, 24000, 24100))
	assert.Equal(t, 0.0, Intrinsic(models.Call, 24000, 23900))
	assert.Equal(t, 100.0, Intrinsic(models.Put, 24000, 23900))
	assert.Equal(t, 0.0, Intrinsic(models.Put, 24000, 24100))
}

func TestAnalyze_LongCall(t *testing.T) {
	a := Analyze([]models.OptionLeg{leg(models.Long, models.Call, 24000, 120, 1)}, nifty)
	require.NotNil(t, a.Summary)

	assert.Equal(t, []float64{24120}, a.Breakevens)
	assert.Equal(t, -9000.0, a.Summary.MaxLoss)
	assert.Equal(t, (27600.0-24000-120)*75, a.Summary.MaxProfit)
	assert.True(t, a.Summary.MaxProfitUnlimited)
	assert.False(t, a.Summary.MaxLossUnlimited)
	assert.Equal(t, -9000.0, a.Summary.NetPremium)
}

func TestAnalyze_ShortStraddle(t *testing.T) {
	legs := []models.OptionLeg{
		leg(models.Short, models.Call, 24000, 120, 1),
		leg(models.Short, models.Put, 24000, 100, 1),
	}
	a := Analyze(legs, nifty)
	require.NotNil(t, a.Summary)

	assert.Equal(t, []float64{23780, 24220}, a.Breakevens)
	assert.Equal(t, 220.0*75, a.Summary.MaxProfit)
	assert.False(t, a.Summary.MaxProfitUnlimited)
	assert.True(t, a.Summary.MaxLossUnlimited)
	assert.Equal(t, 16500.0, a.Summary.NetPremium)
}

func TestNetPremium_LongCallIsDebit(t *testing.T) {
	legs := []models.OptionLeg{leg(models.Long, models.Call, 24000, 100, 1)}
	assert.Equal(t, -7500.0, NetPremium(legs, 75))

	points := Calculate(legs, 75, 50)
	assert.Equal(t, -7500.0, Summarize(legs, points, 75).NetPremium)
}

func TestAnalyze_IronCondorIsBounded(t *testing.T) {
	legs := []models.OptionLeg{
		leg(models.Long, models.Put, 23900, 40, 1),
		leg(models.Short, models.Put, 23950, 60, 1),
		leg(models.Short, models.Call, 24050, 70, 1),
		leg(models.Long, models.Call, 24100, 50, 1),
	}
	a := Analyze(legs, nifty)
	require.NotNil(t, a.Summary)

	credit := 60.0 + 70 - 40 - 50
	width := 50.0
	assert.Equal(t, credit*75, a.Summary.MaxProfit)
	assert.Equal(t, -(width-credit)*75, a.Summary.MaxLoss)
	assert.False(t, a.Summary.MaxProfitUnlimited)
	assert.False(t, a.Summary.MaxLossUnlimited)
	assert.Equal(t, credit*75, a.Summary.NetPremium)
	assert.Equal(t, []float64{23910, 24090}, a.Breakevens)
}

func TestSummarize_NetGreeks(t *testing.T) {
	legs := []models.OptionLeg{
		{Strike: 24000, Type: models.Call, Direction: models.Long, Lots: 2, Delta: 0.5, Theta: -10},
		{Strike: 24200, Type: models.Call, Direction: models.Short, Lots: 1, Delta: 0.3, Theta: -8},
	}
	s := Summarize(legs, Calculate(legs, 75, 50), 75)

	assert.InDelta(t, 2*0.5-0.3, s.NetDelta, 1e-9)
	assert.InDelta(t, -20.0+8, s.NetTheta, 1e-9)
}

func TestSummarize_SinglePoint(t *testing.T) {
	legs := []models.OptionLeg{leg(models.Long, models.Call, 100, 5, 1)}
	points := []Point{{Price: 100, PnL: -5, PnLNegative: -5}}

	s := Summarize(legs, points, 1)
	assert.Equal(t, -5.0, s.MaxLoss)
	assert.False(t, s.MaxLossUnlimited)
	assert.False(t, s.MaxProfitUnlimited)
}

func TestBreakevens_ExactZeroSample(t *testing.T) {
	points := []Point{
		{Price: 100, PnL: -10},
		{Price: 110, PnL: 0},
		{Price: 120, PnL: 10},
	}
	assert.Equal(t, []float64{110}, Breakevens(points))
}

func TestBreakevens_NoCrossing(t *testing.T) {
	points := []Point{{Price: 1, PnL: 5}, {Price: 2, PnL: 3}, {Price: 3, PnL: 0}}
	assert.Empty(t, Breakevens(points))
}
