package strategy

import (
	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/models"
	"zerodha-strategist/internal/payoff"
)

// Builder binds a leg store to an underlying and the latest chain snapshot
// and keeps the payoff analysis in step with the legs.
type Builder struct {
	underlying models.Underlying
	catalog    *Catalog
	store      *Store
	chain      *models.OptionChain

	analysis    payoff.Analysis
	analysisRev uint64
	analyzed    bool
}

// NewBuilder creates a builder for u. A nil catalog means the built-ins.
func NewBuilder(u models.Underlying, catalog *Catalog) *Builder {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Builder{
		underlying: u,
		catalog:    catalog,
		store:      NewStore(),
	}
}

// Underlying returns the contract the builder works on.
func (b *Builder) Underlying() models.Underlying {
	return b.underlying
}

// Store exposes the underlying leg store.
func (b *Builder) Store() *Store {
	return b.store
}

// Chain returns the chain snapshot in use, possibly nil.
func (b *Builder) Chain() *models.OptionChain {
	return b.chain
}

// SetChain records a chain snapshot for later preset application without
// touching existing legs.
func (b *Builder) SetChain(chain *models.OptionChain) {
	b.chain = chain
}

// AddLeg adds a leg. A leg without a price takes market fields from the
// chain when a row matches; otherwise it is stored as given.
func (b *Builder) AddLeg(leg models.OptionLeg) (models.OptionLeg, error) {
	if leg.Price == 0 && b.chain != nil {
		RepriceLeg(&leg, b.chain)
	}
	return b.store.Add(leg)
}

// UpdateLeg edits a leg.
func (b *Builder) UpdateLeg(id string, patch LegPatch) (models.OptionLeg, error) {
	return b.store.Update(id, patch)
}

// RemoveLeg removes a leg.
func (b *Builder) RemoveLeg(id string) error {
	return b.store.Remove(id)
}

// ApplyPreset replaces the legs with the named preset centered on the ATM
// strike for spot. A zero spot falls back to the chain's spot price.
func (b *Builder) ApplyPreset(name string, spot float64) ([]models.OptionLeg, error) {
	p, err := b.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	if spot <= 0 && b.chain != nil {
		spot = b.chain.SpotPrice
	}
	if spot <= 0 {
		return nil, apperrors.NewValidationError("spot", spot, "spot price is required to place a preset")
	}
	atm := ATMStrike(spot, b.underlying.StrikeStep)
	return b.store.ApplyPreset(p, atm, b.underlying.StrikeStep, b.chain), nil
}

// Refresh stores chain as the current snapshot and re-reads market fields
// for the existing legs that have a chain row. Legs outside the chain keep
// their prices. The preset marker is kept. It returns how many legs matched
// a chain row.
func (b *Builder) Refresh(chain *models.OptionChain) int {
	b.chain = chain
	return b.store.refreshMarket(chain)
}

// Analysis returns the payoff analysis of the current legs, recomputing only
// when the legs changed since the last call.
func (b *Builder) Analysis() payoff.Analysis {
	if b.analyzed && b.analysisRev == b.store.Revision() {
		return b.analysis
	}
	b.analysis = payoff.Analyze(b.store.Legs(), b.underlying)
	b.analysisRev = b.store.Revision()
	b.analyzed = true
	return b.analysis
}
