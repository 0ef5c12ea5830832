package payoff

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"zerodha-strategist/internal/models"
)

// LegSeed is a generator-friendly description of a leg relative to ATM.
type LegSeed struct {
	Offset  int
	IsPut   bool
	IsShort bool
	Lots    int
	Price   float64
}

func legSeedGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(LegSeed{}), map[string]gopter.Gen{
		"Offset":  gen.IntRange(-10, 10),
		"IsPut":   gen.Bool(),
		"IsShort": gen.Bool(),
		"Lots":    gen.IntRange(1, 10),
		"Price":   gen.Float64Range(0, 500),
	})
}

func buildLegs(atm float64, step float64, seeds []LegSeed) []models.OptionLeg {
	legs := make([]models.OptionLeg, 0, len(seeds))
	for _, s := range seeds {
		l := models.OptionLeg{
			Strike:    atm + float64(s.Offset)*step,
			Type:      models.Call,
			Direction: models.Long,
			Lots:      s.Lots,
			Price:     s.Price,
		}
		if s.IsPut {
			l.Type = models.Put
		}
		if s.IsShort {
			l.Direction = models.Short
		}
		legs = append(legs, l)
	}
	return legs
}

// Property 1: Every sample splits into positive and negative parts
//
// For any non-empty leg list, PnL == PnLPositive + PnLNegative, the positive
// part is never negative and the negative part is never positive.
func TestProperty1_PnLSplit(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("PnL equals positive plus negative part", prop.ForAll(
		func(atmSteps int, count int, seeds []LegSeed) bool {
			legs := buildLegs(float64(atmSteps)*50, 50, seeds[:count])
			for _, p := range Calculate(legs, 75, 50) {
				if p.PnL != p.PnLPositive+p.PnLNegative {
					t.Logf("split mismatch at %.2f: %v != %v + %v", p.Price, p.PnL, p.PnLPositive, p.PnLNegative)
					return false
				}
				if p.PnLPositive < 0 || p.PnLNegative > 0 {
					return false
				}
			}
			return true
		},
		gen.IntRange(300, 600),
		gen.IntRange(1, 4),
		gen.SliceOfN(4, legSeedGen()),
	))

	properties.TestingRun(t)
}

// Property 2: The curve has no jumps
//
// Adjacent samples differ by at most step * Σ(lots * lotSize), the steepest
// slope any combination of legs can produce.
func TestProperty2_CurveIsContinuous(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("adjacent samples are bounded apart", prop.ForAll(
		func(atmSteps int, count int, seeds []LegSeed) bool {
			const lotSize, strikeStep = 75, 100.0
			legs := buildLegs(float64(atmSteps)*strikeStep, strikeStep, seeds[:count])
			points := Calculate(legs, lotSize, strikeStep)

			var units float64
			for _, l := range legs {
				units += float64(l.Lots * lotSize)
			}
			bound := strikeStep / StepsPerStrike * units

			for i := 1; i < len(points); i++ {
				if math.Abs(points[i].PnL-points[i-1].PnL) > bound+1e-6 {
					t.Logf("jump of %.2f between %.2f and %.2f exceeds %.2f",
						points[i].PnL-points[i-1].PnL, points[i-1].Price, points[i].Price, bound)
					return false
				}
			}
			return true
		},
		gen.IntRange(300, 600),
		gen.IntRange(1, 4),
		gen.SliceOfN(4, legSeedGen()),
	))

	properties.TestingRun(t)
}

// Property 3: Long call breaks even at strike plus premium
//
// Within one sample step of K + premium.
func TestProperty3_LongCallBreakeven(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("breakeven is K + premium", prop.ForAll(
		func(strikeSteps int, premium float64, lots int) bool {
			strike := float64(strikeSteps) * 50
			legs := []models.OptionLeg{{
				Strike: strike, Type: models.Call, Direction: models.Long, Lots: lots, Price: premium,
			}}
			bes := Breakevens(Calculate(legs, 75, 50))
			if len(bes) != 1 {
				t.Logf("expected one breakeven for K=%.0f p=%.2f, got %v", strike, premium, bes)
				return false
			}
			return math.Abs(bes[0]-(strike+premium)) <= 50.0/StepsPerStrike
		},
		gen.IntRange(300, 600),
		gen.Float64Range(1, 1000),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

// Property 4: Analysis is deterministic
//
// The same legs always produce the same curve, breakevens and summary.
func TestProperty4_Deterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("Analyze is a pure function", prop.ForAll(
		func(count int, seeds []LegSeed) bool {
			legs := buildLegs(24000, 50, seeds[:count])
			return reflect.DeepEqual(Analyze(legs, nifty), Analyze(legs, nifty))
		},
		gen.IntRange(1, 4),
		gen.SliceOfN(4, legSeedGen()),
	))

	properties.TestingRun(t)
}

// Property 5: Summary extrema bound the curve
//
// MaxLoss <= every PnL <= MaxProfit, and each breakeven lies inside the sweep.
func TestProperty5_SummaryBoundsCurve(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("extrema and breakevens are consistent with points", prop.ForAll(
		func(count int, seeds []LegSeed) bool {
			legs := buildLegs(24000, 50, seeds[:count])
			a := Analyze(legs, nifty)
			if a.Summary == nil {
				return false
			}
			for _, p := range a.Points {
				if p.PnL > a.Summary.MaxProfit || p.PnL < a.Summary.MaxLoss {
					return false
				}
			}
			lo, hi := a.Points[0].Price, a.Points[len(a.Points)-1].Price
			for _, be := range a.Breakevens {
				if be < math.Floor(lo) || be > math.Ceil(hi) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 4),
		gen.SliceOfN(4, legSeedGen()),
	))

	properties.TestingRun(t)
}
