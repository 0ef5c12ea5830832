package strategy

import (
	"strconv"
	"strings"

	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/models"
)

// ParseLeg parses "SIDE:TYPE:STRIKE[:LOTS[:PRICE]]", e.g. "SELL:CE:24000:2:135.5".
// SIDE is BUY/SELL or LONG/SHORT; TYPE is CE/PE or CALL/PUT. Lots default to 1.
func ParseLeg(s string) (models.OptionLeg, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 3 || len(parts) > 5 {
		return models.OptionLeg{}, apperrors.NewValidationError("leg", s, "expected SIDE:TYPE:STRIKE[:LOTS[:PRICE]]")
	}

	leg := models.OptionLeg{Lots: 1}

	switch strings.ToUpper(parts[0]) {
	case "BUY", "B", "LONG":
		leg.Direction = models.Long
	case "SELL", "S", "SHORT":
		leg.Direction = models.Short
	default:
		return models.OptionLeg{}, apperrors.NewValidationError("side", parts[0], "must be BUY or SELL")
	}

	switch strings.ToUpper(parts[1]) {
	case "CE", "CALL", "C":
		leg.Type = models.Call
	case "PE", "PUT", "P":
		leg.Type = models.Put
	default:
		return models.OptionLeg{}, apperrors.NewValidationError("type", parts[1], "must be CE or PE")
	}

	strike, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return models.OptionLeg{}, apperrors.NewValidationError("strike", parts[2], "not a number")
	}
	leg.Strike = strike

	if len(parts) > 3 && parts[3] != "" {
		lots, err := strconv.Atoi(parts[3])
		if err != nil {
			return models.OptionLeg{}, apperrors.NewValidationError("lots", parts[3], "not an integer")
		}
		leg.Lots = lots
	}
	if len(parts) > 4 && parts[4] != "" {
		price, err := strconv.ParseFloat(parts[4], 64)
		if err != nil {
			return models.OptionLeg{}, apperrors.NewValidationError("price", parts[4], "not a number")
		}
		leg.Price = price
	}

	if err := ValidateLeg(leg); err != nil {
		return models.OptionLeg{}, err
	}
	return leg, nil
}
