package models

import "time"

// OptionChain represents an option chain.
type OptionChain struct {
	Symbol    string         `json:"symbol" msgpack:"symbol"`
	SpotPrice float64        `json:"spot_price" msgpack:"spot_price"`
	Expiry    time.Time      `json:"expiry" msgpack:"expiry"`
	Strikes   []OptionStrike `json:"strikes" msgpack:"strikes"`
	FetchedAt time.Time      `json:"fetched_at" msgpack:"fetched_at"`
}

// OptionStrike represents a single strike in the option chain.
type OptionStrike struct {
	Strike float64     `json:"strike" msgpack:"strike"`
	Call   *OptionData `json:"call,omitempty" msgpack:"call"`
	Put    *OptionData `json:"put,omitempty" msgpack:"put"`
}

// OptionData represents option data for a single contract.
type OptionData struct {
	Symbol string       `json:"symbol,omitempty" msgpack:"symbol"`
	LTP    float64      `json:"ltp" msgpack:"ltp"`
	OI     int64        `json:"oi" msgpack:"oi"`
	Volume int64        `json:"volume" msgpack:"volume"`
	IV     float64      `json:"iv" msgpack:"iv"`
	Greeks OptionGreeks `json:"greeks" msgpack:"greeks"`
}

// OptionGreeks represents option Greeks.
type OptionGreeks struct {
	Delta float64 `json:"delta" msgpack:"delta"`
	Gamma float64 `json:"gamma" msgpack:"gamma"`
	Theta float64 `json:"theta" msgpack:"theta"`
	Vega  float64 `json:"vega" msgpack:"vega"`
	Rho   float64 `json:"rho" msgpack:"rho"`
}

// Row returns the strike row for the given strike, or nil.
func (c *OptionChain) Row(strike float64) *OptionStrike {
	if c == nil {
		return nil
	}
	for i := range c.Strikes {
		if c.Strikes[i].Strike == strike {
			return &c.Strikes[i]
		}
	}
	return nil
}

// ATMStrike returns the listed strike closest to spot.
func (c *OptionChain) ATMStrike() float64 {
	if c == nil || len(c.Strikes) == 0 {
		return 0
	}
	best := c.Strikes[0].Strike
	for _, s := range c.Strikes[1:] {
		if abs(s.Strike-c.SpotPrice) < abs(best-c.SpotPrice) {
			best = s.Strike
		}
	}
	return best
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Underlying describes the contract specification of an index or stock
// whose options are traded.
type Underlying struct {
	Symbol     string   `json:"symbol" mapstructure:"symbol"`
	Exchange   Exchange `json:"exchange" mapstructure:"exchange"`
	LotSize    int      `json:"lot_size" mapstructure:"lot_size"`
	StrikeStep float64  `json:"strike_step" mapstructure:"strike_step"`
}

// DefaultUnderlyings is the static contract table used when neither config
// nor the broker instrument dump says otherwise.
var DefaultUnderlyings = map[string]Underlying{
	"NIFTY":      {Symbol: "NIFTY", Exchange: NFO, LotSize: 75, StrikeStep: 50},
	"BANKNIFTY":  {Symbol: "BANKNIFTY", Exchange: NFO, LotSize: 35, StrikeStep: 100},
	"FINNIFTY":   {Symbol: "FINNIFTY", Exchange: NFO, LotSize: 65, StrikeStep: 50},
	"MIDCPNIFTY": {Symbol: "MIDCPNIFTY", Exchange: NFO, LotSize: 140, StrikeStep: 25},
	"SENSEX":     {Symbol: "SENSEX", Exchange: BFO, LotSize: 20, StrikeStep: 100},
	"BANKEX":     {Symbol: "BANKEX", Exchange: BFO, LotSize: 30, StrikeStep: 100},
}

// OptionType is CE (call) or PE (put).
type OptionType string

const (
	Call OptionType = "CE"
	Put  OptionType = "PE"
)

// Direction says whether a leg is bought or written.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// OptionLeg represents a leg of an option strategy.
type OptionLeg struct {
	ID        string     `json:"id"`
	Strike    float64    `json:"strike"`
	Type      OptionType `json:"type"`
	Direction Direction  `json:"direction"`
	Lots      int        `json:"lots"`
	Price     float64    `json:"price"`
	IV        float64    `json:"iv"`
	Delta     float64    `json:"delta"`
	Theta     float64    `json:"theta"`
}

// SavedStrategy is a named leg set persisted between sessions.
type SavedStrategy struct {
	Name       string      `json:"name"`
	Underlying string      `json:"underlying"`
	Preset     string      `json:"preset,omitempty"`
	Legs       []OptionLeg `json:"legs"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
