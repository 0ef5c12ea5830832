package broker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/models"
)

// spotSymbols maps index underlyings to the Kite symbol of their spot index.
var spotSymbols = map[string]string{
	"NIFTY":      "NSE:NIFTY 50",
	"BANKNIFTY":  "NSE:NIFTY BANK",
	"FINNIFTY":   "NSE:NIFTY FIN SERVICE",
	"MIDCPNIFTY": "NSE:NIFTY MID SELECT",
	"SENSEX":     "BSE:SENSEX",
	"BANKEX":     "BSE:BANKEX",
}

// SpotSymbol returns the exchange:symbol to quote for an underlying's spot.
func SpotSymbol(u models.Underlying) string {
	if s, ok := spotSymbols[u.Symbol]; ok {
		return s
	}
	return fmt.Sprintf("%s:%s", u.Exchange.SpotExchange(), u.Symbol)
}

// OptionSymbol returns the exchange-qualified key used to quote a contract.
func OptionSymbol(exchange models.Exchange, tradingSymbol string) string {
	return fmt.Sprintf("%s:%s", exchange, tradingSymbol)
}

// ContractSpecs resolves lot size and strike step per underlying. It starts
// from configured values and can refine lot sizes from the broker's
// instrument dump, since exchanges revise them a few times a year.
type ContractSpecs struct {
	underlyings map[string]models.Underlying
	loadedAt    time.Time
	mu          sync.RWMutex
}

// NewContractSpecs builds specs from the defaults plus overrides.
func NewContractSpecs(overrides map[string]models.Underlying) *ContractSpecs {
	cs := &ContractSpecs{underlyings: make(map[string]models.Underlying)}
	for k, u := range models.DefaultUnderlyings {
		cs.underlyings[k] = u
	}
	for k, u := range overrides {
		key := strings.ToUpper(k)
		if u.Symbol == "" {
			u.Symbol = key
		}
		if base, ok := cs.underlyings[key]; ok {
			if u.Exchange == "" {
				u.Exchange = base.Exchange
			}
			if u.LotSize == 0 {
				u.LotSize = base.LotSize
			}
			if u.StrikeStep == 0 {
				u.StrikeStep = base.StrikeStep
			}
		}
		if u.Exchange == "" {
			u.Exchange = models.NFO
		}
		cs.underlyings[key] = u
	}
	return cs
}

// Lookup returns the contract spec for symbol, case-insensitively.
func (cs *ContractSpecs) Lookup(symbol string) (models.Underlying, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	u, ok := cs.underlyings[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return models.Underlying{}, apperrors.Wrapf(apperrors.ErrUnknownUnderlying, "%q", symbol)
	}
	return u, nil
}

// List returns every known underlying sorted by symbol.
func (cs *ContractSpecs) List() []models.Underlying {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	out := make([]models.Underlying, 0, len(cs.underlyings))
	for _, u := range cs.underlyings {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// LoadedAt reports when lot sizes were last refreshed from the broker.
func (cs *ContractSpecs) LoadedAt() time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.loadedAt
}

// LoadLotSizes refreshes lot sizes from the derivatives instruments of md,
// taking the nearest-expiry contract of each known underlying. It returns
// how many underlyings changed.
func (cs *ContractSpecs) LoadLotSizes(ctx context.Context, md MarketData) (int, error) {
	exchanges := make(map[models.Exchange]bool)
	for _, u := range cs.List() {
		exchanges[u.Exchange] = true
	}

	nearest := make(map[string]models.Instrument)
	for exchange := range exchanges {
		insts, err := md.GetInstruments(ctx, exchange)
		if err != nil {
			return 0, fmt.Errorf("failed to load instruments for %s: %w", exchange, err)
		}
		for _, inst := range insts {
			if inst.LotSize <= 0 || inst.Expiry.IsZero() {
				continue
			}
			cur, ok := nearest[inst.Name]
			if !ok || inst.Expiry.Before(cur.Expiry) {
				nearest[inst.Name] = inst
			}
		}
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	changed := 0
	for key, u := range cs.underlyings {
		inst, ok := nearest[u.Symbol]
		if !ok || inst.LotSize == u.LotSize {
			continue
		}
		u.LotSize = inst.LotSize
		cs.underlyings[key] = u
		changed++
	}
	cs.loadedAt = time.Now()
	return changed, nil
}
