package broker

import (
	"math"
	"sort"
	"time"

	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/models"
	"zerodha-strategist/pkg/utils"
)

func sameDay(t1, t2 time.Time) bool {
	y1, m1, d1 := t1.In(utils.IndiaLocation).Date()
	y2, m2, d2 := t2.In(utils.IndiaLocation).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// optionInstruments keeps the CE/PE contracts written on symbol.
func optionInstruments(all []models.Instrument, symbol string) []models.Instrument {
	var out []models.Instrument
	for _, inst := range all {
		if inst.Name != symbol {
			continue
		}
		if inst.InstrType != string(models.Call) && inst.InstrType != string(models.Put) {
			continue
		}
		out = append(out, inst)
	}
	return out
}

// expiries returns the distinct expiry dates of insts in ascending order.
func expiries(insts []models.Instrument) []time.Time {
	var out []time.Time
	for _, inst := range insts {
		if inst.Expiry.IsZero() {
			continue
		}
		seen := false
		for _, e := range out {
			if sameDay(e, inst.Expiry) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, inst.Expiry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// pickExpiry returns the listed expiry matching want, or the first one
// still live at now when want is zero.
func pickExpiry(listed []time.Time, want, now time.Time) (time.Time, error) {
	if !want.IsZero() {
		for _, e := range listed {
			if sameDay(e, want) {
				return e, nil
			}
		}
		return time.Time{}, apperrors.Wrapf(apperrors.ErrChainUnavailable, "no contracts expire on %s", want.Format("2006-01-02"))
	}
	for _, e := range listed {
		if !utils.ExpiryClose(e).Before(now) {
			return e, nil
		}
	}
	return time.Time{}, apperrors.Wrap(apperrors.ErrChainUnavailable, "no live expiry")
}

// selectStrikes returns up to window strikes either side of the strike
// closest to spot, ascending.
func selectStrikes(strikes []float64, spot float64, window int) []float64 {
	if len(strikes) == 0 {
		return nil
	}
	sorted := append([]float64(nil), strikes...)
	sort.Float64s(sorted)

	atm := 0
	for i, s := range sorted {
		if math.Abs(s-spot) < math.Abs(sorted[atm]-spot) {
			atm = i
		}
	}
	if window <= 0 {
		return sorted
	}
	lo := atm - window
	if lo < 0 {
		lo = 0
	}
	hi := atm + window + 1
	if hi > len(sorted) {
		hi = len(sorted)
	}
	return sorted[lo:hi]
}

func distinctStrikes(insts []models.Instrument, expiry time.Time) []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, inst := range insts {
		if !sameDay(inst.Expiry, expiry) || inst.Strike <= 0 || seen[inst.Strike] {
			continue
		}
		seen[inst.Strike] = true
		out = append(out, inst.Strike)
	}
	return out
}

func sortStrikes(chain *models.OptionChain) {
	sort.Slice(chain.Strikes, func(i, j int) bool {
		return chain.Strikes[i].Strike < chain.Strikes[j].Strike
	})
}
