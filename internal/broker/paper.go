package broker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"zerodha-strategist/internal/greeks"
	"zerodha-strategist/internal/models"
	"zerodha-strategist/pkg/utils"
)

// PaperBroker serves simulated option chains priced with Black-Scholes. When
// a data broker is set, market data calls go to it instead.
type PaperBroker struct {
	dataBroker ChainProvider
	specs      *ContractSpecs

	spots        map[string]float64
	baseIV       float64
	skew         float64
	rate         float64
	strikeWindow int
	expiryDay    time.Weekday
	now          func() time.Time

	mu sync.RWMutex
}

// PaperBrokerConfig holds configuration for the paper broker.
type PaperBrokerConfig struct {
	DataBroker   ChainProvider
	Specs        *ContractSpecs
	Spots        map[string]float64
	BaseIV       float64 // annualised, e.g. 0.14
	Skew         float64 // IV added per unit of |ln(K/S)|
	RiskFreeRate float64
	StrikeWindow int
	ExpiryDay    time.Weekday
	Now          func() time.Time
}

// defaultSpots are plausible index levels used when none are configured.
var defaultSpots = map[string]float64{
	"NIFTY":      24000,
	"BANKNIFTY":  51500,
	"FINNIFTY":   23500,
	"MIDCPNIFTY": 12500,
	"SENSEX":     79000,
	"BANKEX":     58000,
}

// NewPaperBroker creates a simulated chain source.
func NewPaperBroker(cfg PaperBrokerConfig) *PaperBroker {
	p := &PaperBroker{
		dataBroker:   cfg.DataBroker,
		specs:        cfg.Specs,
		spots:        make(map[string]float64),
		baseIV:       cfg.BaseIV,
		skew:         cfg.Skew,
		rate:         cfg.RiskFreeRate,
		strikeWindow: cfg.StrikeWindow,
		expiryDay:    cfg.ExpiryDay,
		now:          cfg.Now,
	}
	if p.specs == nil {
		p.specs = NewContractSpecs(nil)
	}
	if p.baseIV <= 0 {
		p.baseIV = 0.14
	}
	if p.skew < 0 {
		p.skew = 0
	}
	if p.rate <= 0 {
		p.rate = greeks.DefaultRate
	}
	if p.strikeWindow <= 0 {
		p.strikeWindow = DefaultStrikeWindow
	}
	if p.expiryDay == time.Sunday {
		p.expiryDay = time.Thursday
	}
	if p.now == nil {
		p.now = time.Now
	}
	for k, v := range defaultSpots {
		p.spots[k] = v
	}
	for k, v := range cfg.Spots {
		p.spots[strings.ToUpper(k)] = v
	}
	return p
}

// Login is a no-op for paper trading.
func (p *PaperBroker) Login(ctx context.Context) error {
	return nil
}

// Logout is a no-op for paper trading.
func (p *PaperBroker) Logout(ctx context.Context) error {
	return nil
}

// IsAuthenticated always returns true for paper trading.
func (p *PaperBroker) IsAuthenticated() bool {
	return true
}

// RefreshSession is a no-op for paper trading.
func (p *PaperBroker) RefreshSession(ctx context.Context) error {
	return nil
}

// SetSpot moves the simulated spot of an underlying.
func (p *PaperBroker) SetSpot(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spots[strings.ToUpper(symbol)] = price
}

func (p *PaperBroker) spot(symbol string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.spots[strings.ToUpper(symbol)]
	return v, ok
}

// GetQuote returns the simulated spot for "EXCHANGE:SYMBOL" or a bare
// underlying symbol.
func (p *PaperBroker) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if p.dataBroker != nil {
		return p.dataBroker.GetQuote(ctx, symbol)
	}

	name := symbol
	if i := strings.Index(symbol, ":"); i >= 0 {
		name = symbol[i+1:]
	}
	for underlying, key := range spotSymbols {
		if key == symbol {
			name = underlying
		}
	}

	ltp, ok := p.spot(name)
	if !ok {
		return nil, fmt.Errorf("no simulated price for %s", symbol)
	}
	return &models.Quote{
		Symbol:    symbol,
		LTP:       ltp,
		Open:      ltp,
		High:      ltp,
		Low:       ltp,
		Close:     ltp,
		Timestamp: p.now(),
	}, nil
}

// GetInstruments lists simulated weekly option contracts for the
// underlyings traded on exchange.
func (p *PaperBroker) GetInstruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error) {
	if p.dataBroker != nil {
		return p.dataBroker.GetInstruments(ctx, exchange)
	}

	var out []models.Instrument
	for _, u := range p.specs.List() {
		if u.Exchange != exchange {
			continue
		}
		spot, ok := p.spot(u.Symbol)
		if !ok {
			continue
		}
		atm := math.Round(spot/u.StrikeStep) * u.StrikeStep
		for _, exp := range p.expiries() {
			for i := -p.strikeWindow; i <= p.strikeWindow; i++ {
				strike := atm + float64(i)*u.StrikeStep
				for _, t := range []models.OptionType{models.Call, models.Put} {
					out = append(out, models.Instrument{
						Symbol:    fmt.Sprintf("%s%s%.0f%s", u.Symbol, strings.ToUpper(exp.Format("06Jan02")), strike, t),
						Name:      u.Symbol,
						Exchange:  exchange,
						Segment:   fmt.Sprintf("%s-OPT", exchange),
						LotSize:   u.LotSize,
						TickSize:  0.05,
						Expiry:    exp,
						Strike:    strike,
						InstrType: string(t),
					})
				}
			}
		}
	}
	return out, nil
}

// expiries returns the next four weekly expiries.
func (p *PaperBroker) expiries() []time.Time {
	now := p.now()
	first := utils.NextWeekday(now, p.expiryDay)
	if utils.ExpiryClose(first).Before(now) {
		first = first.AddDate(0, 0, 7)
	}
	out := make([]time.Time, 4)
	for i := range out {
		out[i] = first.AddDate(0, 0, 7*i)
	}
	return out
}

// GetExpiries lists the simulated expiries.
func (p *PaperBroker) GetExpiries(ctx context.Context, symbol string) ([]time.Time, error) {
	if p.dataBroker != nil {
		return p.dataBroker.GetExpiries(ctx, symbol)
	}
	if _, err := p.specs.Lookup(symbol); err != nil {
		return nil, err
	}
	return p.expiries(), nil
}

// GetOptionChain prices a chain with a simple volatility smile, rounds
// premiums to the tick, and derives IV and Greeks from the rounded prices
// the same way live chains are enriched.
func (p *PaperBroker) GetOptionChain(ctx context.Context, symbol string, expiry time.Time) (*models.OptionChain, error) {
	if p.dataBroker != nil {
		return p.dataBroker.GetOptionChain(ctx, symbol, expiry)
	}

	u, err := p.specs.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	spot, ok := p.spot(u.Symbol)
	if !ok {
		return nil, fmt.Errorf("no simulated price for %s", u.Symbol)
	}

	now := p.now()
	exp, err := pickExpiry(p.expiries(), expiry, now)
	if err != nil {
		return nil, err
	}
	years := utils.YearsToExpiry(now, exp)

	chain := &models.OptionChain{
		Symbol:    u.Symbol,
		SpotPrice: spot,
		Expiry:    exp,
		FetchedAt: now,
	}

	atm := math.Round(spot/u.StrikeStep) * u.StrikeStep
	for i := -p.strikeWindow; i <= p.strikeWindow; i++ {
		strike := atm + float64(i)*u.StrikeStep
		if strike <= 0 {
			continue
		}
		params := greeks.Params{
			Spot:   spot,
			Strike: strike,
			Years:  years,
			Rate:   p.rate,
			Vol:    p.baseIV + p.skew*math.Abs(math.Log(strike/spot)),
		}
		row := models.OptionStrike{Strike: strike}
		row.Call = p.simulate(u, exp, strike, models.Call, params, i)
		row.Put = p.simulate(u, exp, strike, models.Put, params, -i)
		chain.Strikes = append(chain.Strikes, row)
	}

	greeks.Enrich(chain, now, p.rate)
	return chain, nil
}

func (p *PaperBroker) simulate(u models.Underlying, exp time.Time, strike float64, t models.OptionType, params greeks.Params, moneynessSteps int) *models.OptionData {
	price := math.Round(greeks.Price(t, params)/0.05) * 0.05
	// OI peaks a few strikes out of the money.
	dist := math.Abs(float64(moneynessSteps) - 3)
	oi := int64(2_000_000 / (1 + dist))
	return &models.OptionData{
		Symbol: fmt.Sprintf("%s%s%.0f%s", u.Symbol, strings.ToUpper(exp.Format("06Jan02")), strike, t),
		LTP:    price,
		OI:     oi,
		Volume: oi * 3,
	}
}
