// Package store persists saved strategies and option chain snapshots.
package store

import (
	"context"
	"time"

	"zerodha-strategist/internal/models"
)

// StrategyStore persists named leg sets.
type StrategyStore interface {
	// SaveStrategy inserts or overwrites the strategy with the same name.
	SaveStrategy(ctx context.Context, s *models.SavedStrategy) error
	GetStrategy(ctx context.Context, name string) (*models.SavedStrategy, error)
	ListStrategies(ctx context.Context) ([]models.SavedStrategy, error)
	DeleteStrategy(ctx context.Context, name string) error
}

// ChainCache holds the latest option chain per underlying. GetChain
// returns ErrDataNotFound on a miss.
type ChainCache interface {
	PutChain(ctx context.Context, chain *models.OptionChain) error
	GetChain(ctx context.Context, symbol string) (*models.OptionChain, error)
}

// Fresh reports whether chain was fetched within maxAge of now.
func Fresh(chain *models.OptionChain, maxAge time.Duration, now time.Time) bool {
	if chain == nil {
		return false
	}
	if maxAge <= 0 {
		return true
	}
	return now.Sub(chain.FetchedAt) <= maxAge
}
