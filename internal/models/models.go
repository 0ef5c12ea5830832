// Package models provides domain models for the strategist.
package models

import (
	"time"
)

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO" // NSE F&O
	BFO Exchange = "BFO" // BSE F&O
)

// SpotExchange returns the cash/index exchange quoting the underlying of a
// derivatives exchange.
func (e Exchange) SpotExchange() Exchange {
	if e == BFO {
		return BSE
	}
	return NSE
}

// MarketStatus represents the current market status.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "OPEN"
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketClosed  MarketStatus = "CLOSED"
)

// Quote represents a market quote.
type Quote struct {
	Symbol        string
	LTP           float64
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        int64
	OI            int64
	Change        float64
	ChangePercent float64
	Timestamp     time.Time
}

// Instrument represents a tradeable instrument.
type Instrument struct {
	Token     uint32
	Symbol    string
	Name      string
	Exchange  Exchange
	Segment   string
	LotSize   int
	TickSize  float64
	Expiry    time.Time
	Strike    float64
	InstrType string
}
