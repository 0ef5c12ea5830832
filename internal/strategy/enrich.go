package strategy

import (
	"math"

	"zerodha-strategist/internal/models"
)

// ATMStrike rounds spot to the nearest multiple of strikeStep.
func ATMStrike(spot, strikeStep float64) float64 {
	if strikeStep <= 0 {
		return spot
	}
	return math.Round(spot/strikeStep) * strikeStep
}

// Quote returns the chain's market data for a strike and option type.
func Quote(chain *models.OptionChain, strike float64, t models.OptionType) *models.OptionData {
	row := chain.Row(strike)
	if row == nil {
		return nil
	}
	if t == models.Put {
		return row.Put
	}
	return row.Call
}

// EnrichLeg copies price, IV, delta and theta from the matching chain row.
// It zero-fills those fields when no row matches and reports whether a row
// was found. Only preset placement wants the zero fill; see RepriceLeg.
func EnrichLeg(leg *models.OptionLeg, chain *models.OptionChain) bool {
	if RepriceLeg(leg, chain) {
		return true
	}
	leg.Price, leg.IV, leg.Delta, leg.Theta = 0, 0, 0, 0
	return false
}

// RepriceLeg overwrites the market fields of leg from the matching chain
// row. Legs without a row are left as they are. It reports whether a row
// matched.
func RepriceLeg(leg *models.OptionLeg, chain *models.OptionChain) bool {
	q := Quote(chain, leg.Strike, leg.Type)
	if q == nil {
		return false
	}
	leg.Price = q.LTP
	leg.IV = q.IV
	leg.Delta = q.Greeks.Delta
	leg.Theta = q.Greeks.Theta
	return true
}
