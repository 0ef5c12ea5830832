package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property 6: Presets land on the strike grid
//
// For any built-in preset and any spot, every leg sits on a multiple of the
// strike step, passes validation, and the marker names the preset.
func TestProperty6_PresetLegsOnStrikeGrid(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	presets := DefaultCatalog().List()

	properties.Property("preset legs are valid grid strikes", prop.ForAll(
		func(idx int, spot float64) bool {
			p := presets[idx]
			b := NewBuilder(nifty, nil)
			legs, err := b.ApplyPreset(p.Name, spot)
			if err != nil {
				t.Logf("apply %s at %.2f: %v", p.Name, spot, err)
				return false
			}
			if len(legs) != len(p.Legs) || b.Store().LastPreset() != p.Name {
				return false
			}
			for _, l := range legs {
				if ValidateLeg(l) != nil {
					return false
				}
				if r := math.Mod(l.Strike, nifty.StrikeStep); r != 0 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, len(presets)-1),
		gen.Float64Range(5000, 60000),
	))

	properties.TestingRun(t)
}

// Property 7: Manual edits always clear the preset marker
func TestProperty7_EditClearsMarker(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("update after preset clears marker", prop.ForAll(
		func(lots int, which int) bool {
			b := NewBuilder(nifty, nil)
			legs, err := b.ApplyPreset("iron-condor", 24000)
			if err != nil {
				return false
			}
			if _, err := b.UpdateLeg(legs[which].ID, LegPatch{Lots: &lots}); err != nil {
				return false
			}
			return b.Store().LastPreset() == ""
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
