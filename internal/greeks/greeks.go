// Package greeks prices European options with Black-Scholes and derives the
// Greeks and implied volatility used to enrich option chains.
package greeks

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"zerodha-strategist/internal/models"
	"zerodha-strategist/pkg/utils"
)

// DefaultRate is the annual risk-free rate used when none is configured.
const DefaultRate = 0.065

// ErrNoConvergence is returned when the implied volatility search fails.
var ErrNoConvergence = errors.New("implied volatility did not converge")

const (
	minVol   = 1e-4
	maxVol   = 5.0
	ivTol    = 1e-6
	maxIters = 100
)

// Params are the Black-Scholes inputs. Years is time to expiry, Rate and Vol
// are annualised decimals.
type Params struct {
	Spot   float64
	Strike float64
	Years  float64
	Rate   float64
	Vol    float64
}

func (p Params) d1d2() (float64, float64) {
	sqrtT := math.Sqrt(p.Years)
	d1 := (math.Log(p.Spot/p.Strike) + (p.Rate+0.5*p.Vol*p.Vol)*p.Years) / (p.Vol * sqrtT)
	return d1, d1 - p.Vol*sqrtT
}

func (p Params) degenerate() bool {
	return p.Years <= 0 || p.Vol <= 0 || p.Spot <= 0 || p.Strike <= 0
}

// Price returns the Black-Scholes premium. Degenerate inputs price at
// intrinsic value.
func Price(t models.OptionType, p Params) float64 {
	if p.degenerate() {
		if t == models.Put {
			return math.Max(0, p.Strike-p.Spot)
		}
		return math.Max(0, p.Spot-p.Strike)
	}

	d1, d2 := p.d1d2()
	n := distuv.UnitNormal
	disc := p.Strike * math.Exp(-p.Rate*p.Years)
	if t == models.Put {
		return disc*n.CDF(-d2) - p.Spot*n.CDF(-d1)
	}
	return p.Spot*n.CDF(d1) - disc*n.CDF(d2)
}

// Vega is the price change per unit (1.00) of volatility.
func Vega(p Params) float64 {
	if p.degenerate() {
		return 0
	}
	d1, _ := p.d1d2()
	return p.Spot * distuv.UnitNormal.Prob(d1) * math.Sqrt(p.Years)
}

// Compute returns the Greeks in trader units: theta per calendar day, vega
// and rho per one percentage point.
func Compute(t models.OptionType, p Params) models.OptionGreeks {
	if p.degenerate() {
		return models.OptionGreeks{}
	}

	n := distuv.UnitNormal
	d1, d2 := p.d1d2()
	sqrtT := math.Sqrt(p.Years)
	pdf := n.Prob(d1)
	disc := p.Strike * math.Exp(-p.Rate*p.Years)

	g := models.OptionGreeks{
		Gamma: pdf / (p.Spot * p.Vol * sqrtT),
		Vega:  p.Spot * pdf * sqrtT / 100,
	}

	decay := -(p.Spot * pdf * p.Vol) / (2 * sqrtT)
	if t == models.Put {
		g.Delta = n.CDF(d1) - 1
		g.Theta = (decay + p.Rate*disc*n.CDF(-d2)) / 365
		g.Rho = -p.Years * disc * n.CDF(-d2) / 100
	} else {
		g.Delta = n.CDF(d1)
		g.Theta = (decay - p.Rate*disc*n.CDF(d2)) / 365
		g.Rho = p.Years * disc * n.CDF(d2) / 100
	}
	return g
}

// ImpliedVol solves for the volatility that reproduces price. Newton steps
// are used while they stay inside the bracket, bisection otherwise.
func ImpliedVol(t models.OptionType, price float64, p Params) (float64, error) {
	if p.Years <= 0 || p.Spot <= 0 || p.Strike <= 0 || price <= 0 {
		return 0, ErrNoConvergence
	}

	lo, hi := minVol, maxVol
	p.Vol = lo
	if price < Price(t, p)-ivTol {
		return 0, ErrNoConvergence
	}
	p.Vol = hi
	if price > Price(t, p)+ivTol {
		return 0, ErrNoConvergence
	}

	sigma := 0.2
	for i := 0; i < maxIters; i++ {
		p.Vol = sigma
		diff := Price(t, p) - price
		if math.Abs(diff) < ivTol {
			return sigma, nil
		}
		if diff > 0 {
			hi = sigma
		} else {
			lo = sigma
		}

		next := sigma
		if v := Vega(p); v > 1e-8 {
			next = sigma - diff/v
		}
		if next <= lo || next >= hi || next == sigma {
			next = (lo + hi) / 2
		}
		sigma = next
	}
	return 0, ErrNoConvergence
}

// Enrich fills IV and Greeks for every quoted contract in chain. Contracts
// whose IV cannot be solved keep their existing values. IV is stored in
// percent, as the exchanges publish it. It returns the number of contracts
// updated.
func Enrich(chain *models.OptionChain, now time.Time, rate float64) int {
	if chain == nil || chain.SpotPrice <= 0 || chain.Expiry.IsZero() {
		return 0
	}
	years := utils.YearsToExpiry(now, chain.Expiry)

	updated := 0
	enrich := func(t models.OptionType, strike float64, d *models.OptionData) {
		if d == nil || d.LTP <= 0 {
			return
		}
		p := Params{Spot: chain.SpotPrice, Strike: strike, Years: years, Rate: rate}
		vol, err := ImpliedVol(t, d.LTP, p)
		if err != nil {
			return
		}
		p.Vol = vol
		d.IV = vol * 100
		d.Greeks = Compute(t, p)
		updated++
	}

	for i := range chain.Strikes {
		row := &chain.Strikes[i]
		enrich(models.Call, row.Strike, row.Call)
		enrich(models.Put, row.Strike, row.Put)
	}
	return updated
}
