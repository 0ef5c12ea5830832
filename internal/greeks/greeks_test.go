package greeks

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerodha-strategist/internal/models"
	"zerodha-strategist/pkg/utils"
)

var textbook = Params{Spot: 100, Strike: 100, Years: 1, Rate: 0.05, Vol: 0.2}

func TestPrice_Textbook(t *testing.T) {
	assert.InDelta(t, 10.4506, Price(models.Call, textbook), 1e-4)
	assert.InDelta(t, 5.5735, Price(models.Put, textbook), 1e-4)
}

func TestPrice_PutCallParity(t *testing.T) {
	p := Params{Spot: 24010, Strike: 24200, Years: 7.0 / 365, Rate: DefaultRate, Vol: 0.13}
	lhs := Price(models.Call, p) - Price(models.Put, p)
	rhs := p.Spot - p.Strike*math.Exp(-p.Rate*p.Years)
	assert.InDelta(t, rhs, lhs, 1e-6)
}

func TestPrice_DegenerateIsIntrinsic(t *testing.T) {
	p := Params{Spot: 24100, Strike: 24000}
	assert.Equal(t, 100.0, Price(models.Call, p))
	assert.Equal(t, 0.0, Price(models.Put, p))
}

func TestCompute_Textbook(t *testing.T) {
	c := Compute(models.Call, textbook)
	assert.InDelta(t, 0.6368, c.Delta, 1e-4)
	assert.InDelta(t, 0.018762, c.Gamma, 1e-5)
	assert.InDelta(t, 0.37524, c.Vega, 1e-4)
	assert.InDelta(t, -6.414/365, c.Theta, 1e-4)

	p := Compute(models.Put, textbook)
	assert.InDelta(t, c.Delta-1, p.Delta, 1e-12)
	assert.InDelta(t, c.Gamma, p.Gamma, 1e-12)
	assert.Less(t, p.Rho, 0.0)
	assert.Greater(t, c.Rho, 0.0)

	assert.Equal(t, models.OptionGreeks{}, Compute(models.Call, Params{Spot: 100, Strike: 100}))
}

func TestImpliedVol_RoundTrip(t *testing.T) {
	for _, typ := range []models.OptionType{models.Call, models.Put} {
		price := Price(typ, textbook)
		p := textbook
		p.Vol = 0
		iv, err := ImpliedVol(typ, price, p)
		require.NoError(t, err)
		assert.InDelta(t, 0.2, iv, 1e-5)
	}
}

func TestImpliedVol_RejectsImpossiblePrices(t *testing.T) {
	p := Params{Spot: 24000, Strike: 23000, Years: 0.02, Rate: DefaultRate}
	_, err := ImpliedVol(models.Call, 500, p)
	assert.ErrorIs(t, err, ErrNoConvergence)

	_, err = ImpliedVol(models.Call, 0, p)
	assert.ErrorIs(t, err, ErrNoConvergence)
}

func TestEnrich(t *testing.T) {
	now := time.Date(2024, 6, 12, 10, 0, 0, 0, utils.IndiaLocation)
	expiry := time.Date(2024, 6, 20, 0, 0, 0, 0, utils.IndiaLocation)
	years := utils.YearsToExpiry(now, expiry)

	truth := Params{Spot: 24000, Strike: 24000, Years: years, Rate: DefaultRate, Vol: 0.14}
	chain := &models.OptionChain{
		Symbol:    "NIFTY",
		SpotPrice: 24000,
		Expiry:    expiry,
		Strikes: []models.OptionStrike{{
			Strike: 24000,
			Call:   &models.OptionData{LTP: Price(models.Call, truth)},
			Put:    &models.OptionData{LTP: Price(models.Put, truth)},
		}, {
			Strike: 24500,
			Call:   &models.OptionData{LTP: 0},
		}},
	}

	assert.Equal(t, 2, Enrich(chain, now, DefaultRate))
	call := chain.Strikes[0].Call
	assert.InDelta(t, 14.0, call.IV, 1e-3)
	assert.InDelta(t, 0.5, call.Greeks.Delta, 0.05)
	assert.Less(t, call.Greeks.Theta, 0.0)
	assert.Zero(t, chain.Strikes[1].Call.IV)

	assert.Equal(t, 0, Enrich(nil, now, DefaultRate))
}

// Property 8: Implied volatility inverts the pricer
//
// For any reasonable contract, ImpliedVol(Price(σ)) recovers σ.
func TestProperty8_ImpliedVolInvertsPrice(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("IV round trip", prop.ForAll(
		func(moneyness float64, days int, vol float64, isPut bool) bool {
			typ := models.Call
			if isPut {
				typ = models.Put
			}
			p := Params{Spot: 24000, Strike: 24000 * moneyness, Years: float64(days) / 365, Rate: DefaultRate, Vol: vol}
			price := Price(typ, p)
			// Deep out-of-the-money premiums carry no volatility information.
			if price < 0.5 || Vega(p) < 1e-2 {
				return true
			}
			iv, err := ImpliedVol(typ, price, p)
			if err != nil {
				t.Logf("no convergence: K=%.0f days=%d vol=%.3f %s price=%.4f", p.Strike, days, vol, typ, price)
				return false
			}
			return math.Abs(iv-vol) < 1e-3
		},
		gen.Float64Range(0.9, 1.1),
		gen.IntRange(2, 90),
		gen.Float64Range(0.08, 0.6),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
