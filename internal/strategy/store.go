// Package strategy holds the editable leg set of an option strategy and the
// preset templates used to seed it.
package strategy

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/models"
)

// LegPatch describes a field edit. Nil fields are left untouched.
type LegPatch struct {
	Strike    *float64           `json:"strike,omitempty"`
	Type      *models.OptionType `json:"type,omitempty"`
	Direction *models.Direction  `json:"direction,omitempty"`
	Lots      *int               `json:"lots,omitempty"`
	Price     *float64           `json:"price,omitempty"`
	IV        *float64           `json:"iv,omitempty"`
	Delta     *float64           `json:"delta,omitempty"`
	Theta     *float64           `json:"theta,omitempty"`
}

// Store is an ordered collection of legs. Legs with the same strike, type
// and direction are kept as separate entries.
//
// Every mutation clears the last-applied preset so callers can tell a
// template-origin leg set from a hand-edited one. A Store is owned by a
// single caller and is not safe for concurrent use.
type Store struct {
	legs       []models.OptionLeg
	lastPreset string
	revision   uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Legs returns a copy of the current legs in order.
func (s *Store) Legs() []models.OptionLeg {
	out := make([]models.OptionLeg, len(s.legs))
	copy(out, s.legs)
	return out
}

// Len returns the number of legs.
func (s *Store) Len() int {
	return len(s.legs)
}

// LastPreset returns the name of the preset that produced the current legs,
// or "" once any leg has been edited by hand.
func (s *Store) LastPreset() string {
	return s.lastPreset
}

// Revision increases on every change to the leg set.
func (s *Store) Revision() uint64 {
	return s.revision
}

// Add validates leg, assigns an ID if it has none, and appends it.
func (s *Store) Add(leg models.OptionLeg) (models.OptionLeg, error) {
	if err := ValidateLeg(leg); err != nil {
		return models.OptionLeg{}, err
	}
	if leg.ID == "" {
		leg.ID = uuid.New().String()
	}
	s.legs = append(s.legs, leg)
	s.touch()
	return leg, nil
}

// Update applies patch to the leg with the given ID.
func (s *Store) Update(id string, patch LegPatch) (models.OptionLeg, error) {
	i := s.index(id)
	if i < 0 {
		return models.OptionLeg{}, apperrors.Wrapf(apperrors.ErrLegNotFound, "leg %s", id)
	}

	leg := s.legs[i]
	if patch.Strike != nil {
		leg.Strike = *patch.Strike
	}
	if patch.Type != nil {
		leg.Type = *patch.Type
	}
	if patch.Direction != nil {
		leg.Direction = *patch.Direction
	}
	if patch.Lots != nil {
		leg.Lots = *patch.Lots
	}
	if patch.Price != nil {
		leg.Price = *patch.Price
	}
	if patch.IV != nil {
		leg.IV = *patch.IV
	}
	if patch.Delta != nil {
		leg.Delta = *patch.Delta
	}
	if patch.Theta != nil {
		leg.Theta = *patch.Theta
	}

	if err := ValidateLeg(leg); err != nil {
		return models.OptionLeg{}, err
	}
	s.legs[i] = leg
	s.touch()
	return leg, nil
}

// Remove deletes the leg with the given ID.
func (s *Store) Remove(id string) error {
	i := s.index(id)
	if i < 0 {
		return apperrors.Wrapf(apperrors.ErrLegNotFound, "leg %s", id)
	}
	s.legs = append(s.legs[:i], s.legs[i+1:]...)
	s.touch()
	return nil
}

// Clear removes every leg.
func (s *Store) Clear() {
	s.legs = nil
	s.touch()
}

// Replace swaps in a whole leg set, as when loading a saved strategy.
func (s *Store) Replace(legs []models.OptionLeg) error {
	next := make([]models.OptionLeg, 0, len(legs))
	for _, leg := range legs {
		if err := ValidateLeg(leg); err != nil {
			return err
		}
		if leg.ID == "" {
			leg.ID = uuid.New().String()
		}
		next = append(next, leg)
	}
	s.legs = next
	s.touch()
	return nil
}

// ApplyPreset replaces the leg set with the preset's legs placed around
// atmStrike, enriched from chain where a matching row exists.
func (s *Store) ApplyPreset(p Preset, atmStrike, strikeStep float64, chain *models.OptionChain) []models.OptionLeg {
	legs := p.Build(atmStrike, strikeStep)
	for i := range legs {
		legs[i].ID = uuid.New().String()
		EnrichLeg(&legs[i], chain)
	}
	s.legs = legs
	s.revision++
	s.lastPreset = p.Name
	return s.Legs()
}

// refreshMarket overwrites market fields from chain without counting as a
// user edit. Legs with no chain row keep their prices. The revision moves
// when any leg actually changed.
func (s *Store) refreshMarket(chain *models.OptionChain) int {
	matched := 0
	changed := false
	for i := range s.legs {
		before := s.legs[i]
		if RepriceLeg(&s.legs[i], chain) {
			matched++
			changed = changed || s.legs[i] != before
		}
	}
	if changed {
		s.revision++
	}
	return matched
}

func (s *Store) touch() {
	s.lastPreset = ""
	s.revision++
}

func (s *Store) index(id string) int {
	for i := range s.legs {
		if s.legs[i].ID == id {
			return i
		}
	}
	return -1
}

// ValidateLeg checks the structural fields of a leg.
func ValidateLeg(leg models.OptionLeg) error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"strike", leg.Strike},
		{"price", leg.Price},
		{"iv", leg.IV},
		{"delta", leg.Delta},
		{"theta", leg.Theta},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return apperrors.NewValidationError(f.name, f.value, "must be a finite number")
		}
	}
	if leg.Strike <= 0 {
		return apperrors.NewValidationError("strike", leg.Strike, "must be positive")
	}
	if leg.Type != models.Call && leg.Type != models.Put {
		return apperrors.NewValidationError("type", leg.Type, "must be CE or PE")
	}
	if leg.Direction != models.Long && leg.Direction != models.Short {
		return apperrors.NewValidationError("direction", leg.Direction, "must be LONG or SHORT")
	}
	if leg.Lots <= 0 {
		return apperrors.NewValidationError("lots", leg.Lots, "must be positive")
	}
	if leg.Price < 0 {
		return apperrors.NewValidationError("price", leg.Price, "must not be negative")
	}
	return nil
}

// Describe renders a leg the way a trader would read it.
func Describe(leg models.OptionLeg) string {
	side := "BUY"
	if leg.Direction == models.Short {
		side = "SELL"
	}
	return fmt.Sprintf("%s %dx %.0f %s @ %.2f", side, leg.Lots, leg.Strike, leg.Type, leg.Price)
}
