// Package broker provides market data sources for option chains.
package broker

import (
	"context"
	"time"

	"zerodha-strategist/internal/models"
)

// MarketData is the quote and instrument surface of a broker.
type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetInstruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error)
}

// ChainProvider fetches option chains. A zero expiry selects the nearest
// listed expiry.
type ChainProvider interface {
	MarketData
	GetExpiries(ctx context.Context, symbol string) ([]time.Time, error)
	GetOptionChain(ctx context.Context, symbol string, expiry time.Time) (*models.OptionChain, error)
}

// Broker is a chain provider with a login session.
type Broker interface {
	ChainProvider

	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	IsAuthenticated() bool
	RefreshSession(ctx context.Context) error
}

// DefaultStrikeWindow is how many strikes either side of ATM a chain holds.
const DefaultStrikeWindow = 15

var (
	_ Broker = (*ZerodhaBroker)(nil)
	_ Broker = (*PaperBroker)(nil)
)
