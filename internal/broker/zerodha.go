package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/greeks"
	"zerodha-strategist/internal/models"
	"zerodha-strategist/pkg/utils"
)

// quoteBatch is the number of instruments per quote call. Kite accepts up
// to 500.
const quoteBatch = 200

// instrumentTTL bounds how long an instrument dump is reused. Kite
// regenerates it once a day before the open.
const instrumentTTL = 6 * time.Hour

// ZerodhaBroker reads quotes and option chains from Kite Connect.
type ZerodhaBroker struct {
	client        *kiteconnect.Client
	apiKey        string
	apiSecret     string
	userID        string
	accessToken   string
	tokenPath     string
	authenticated bool

	specs        *ContractSpecs
	strikeWindow int
	rate         float64
	retry        utils.RetryConfig
	logger       zerolog.Logger

	instruments map[models.Exchange]instrumentDump
	mu          sync.RWMutex
}

type instrumentDump struct {
	items    []models.Instrument
	loadedAt time.Time
}

// ZerodhaConfig holds configuration for Zerodha broker.
type ZerodhaConfig struct {
	APIKey       string
	APISecret    string
	UserID       string
	TokenPath    string
	Specs        *ContractSpecs
	StrikeWindow int
	RiskFreeRate float64
	Logger       *zerolog.Logger
}

// NewZerodhaBroker creates a new Zerodha broker instance.
// It loads any saved session from disk.
func NewZerodhaBroker(cfg ZerodhaConfig) *ZerodhaBroker {
	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		tokenPath = filepath.Join(homeDir, ".config", "zerodha-strategist", "session.json")
	}
	specs := cfg.Specs
	if specs == nil {
		specs = NewContractSpecs(nil)
	}
	window := cfg.StrikeWindow
	if window <= 0 {
		window = DefaultStrikeWindow
	}
	rate := cfg.RiskFreeRate
	if rate <= 0 {
		rate = greeks.DefaultRate
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	retry := utils.DefaultRetryConfig()
	retry.Permanent = []error{apperrors.ErrNotAuthenticated}

	zb := &ZerodhaBroker{
		client:       kiteconnect.New(cfg.APIKey),
		apiKey:       cfg.APIKey,
		apiSecret:    cfg.APISecret,
		userID:       cfg.UserID,
		tokenPath:    tokenPath,
		specs:        specs,
		strikeWindow: window,
		rate:         rate,
		retry:        retry,
		logger:       logger.With().Str("component", "zerodha").Logger(),
		instruments:  make(map[models.Exchange]instrumentDump),
	}

	if err := zb.loadSession(); err != nil && !os.IsNotExist(err) {
		zb.logger.Debug().Err(err).Msg("no usable saved session")
	}
	return zb
}

type sessionData struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LoginURL returns the Kite login page for the configured API key.
func (z *ZerodhaBroker) LoginURL() string {
	return z.client.GetLoginURL()
}

// Login checks the saved session against the API. When there is none it
// returns ErrNotAuthenticated carrying the login URL.
func (z *ZerodhaBroker) Login(ctx context.Context) error {
	if z.IsAuthenticated() {
		if _, err := z.client.GetUserProfile(); err == nil {
			return nil
		}
		z.mu.Lock()
		z.authenticated = false
		z.mu.Unlock()
	}
	return apperrors.Wrapf(apperrors.ErrNotAuthenticated, "visit %s and complete login", z.LoginURL())
}

// CompleteLogin exchanges the request token from the login redirect for an
// access token and persists it.
func (z *ZerodhaBroker) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := z.client.GenerateSession(requestToken, z.apiSecret)
	if err != nil {
		return apperrors.NewBrokerError("SESSION", "failed to generate session", err)
	}
	return z.SetAccessToken(session.AccessToken)
}

// SetAccessToken installs an access token obtained elsewhere.
func (z *ZerodhaBroker) SetAccessToken(token string) error {
	z.mu.Lock()
	z.accessToken = token
	z.authenticated = true
	z.client.SetAccessToken(token)
	z.mu.Unlock()

	if err := z.saveSession(token); err != nil {
		z.logger.Warn().Err(err).Msg("failed to persist session")
	}
	return nil
}

// Logout invalidates the session and clears stored credentials.
func (z *ZerodhaBroker) Logout(ctx context.Context) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.authenticated {
		if _, err := z.client.InvalidateAccessToken(); err != nil {
			z.logger.Warn().Err(err).Msg("failed to invalidate token")
		}
	}
	z.accessToken = ""
	z.authenticated = false

	if err := os.Remove(z.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// IsAuthenticated returns whether the broker holds an access token.
func (z *ZerodhaBroker) IsAuthenticated() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.authenticated
}

// SessionExpiry returns when the saved session stops being valid.
func (z *ZerodhaBroker) SessionExpiry() (time.Time, error) {
	s, err := z.readSession()
	if err != nil {
		return time.Time{}, err
	}
	return s.ExpiresAt, nil
}

// RefreshSession renews the access token.
func (z *ZerodhaBroker) RefreshSession(ctx context.Context) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	session, err := z.client.RenewAccessToken(z.accessToken, z.apiSecret)
	if err != nil {
		z.authenticated = false
		return apperrors.NewBrokerError("SESSION", "failed to refresh session", err)
	}
	z.accessToken = session.AccessToken
	z.client.SetAccessToken(session.AccessToken)

	if err := z.saveSession(session.AccessToken); err != nil {
		z.logger.Warn().Err(err).Msg("failed to persist refreshed session")
	}
	return nil
}

func (z *ZerodhaBroker) readSession() (sessionData, error) {
	var session sessionData
	data, err := os.ReadFile(z.tokenPath)
	if err != nil {
		return session, err
	}
	if err := json.Unmarshal(data, &session); err != nil {
		return session, err
	}
	return session, nil
}

func (z *ZerodhaBroker) loadSession() error {
	session, err := z.readSession()
	if err != nil {
		return err
	}
	if time.Now().After(session.ExpiresAt) {
		return apperrors.ErrSessionExpired
	}

	z.mu.Lock()
	z.accessToken = session.AccessToken
	z.authenticated = true
	z.client.SetAccessToken(session.AccessToken)
	z.mu.Unlock()
	return nil
}

func (z *ZerodhaBroker) saveSession(accessToken string) error {
	if err := os.MkdirAll(filepath.Dir(z.tokenPath), 0700); err != nil {
		return err
	}

	// Kite tokens expire at 6 AM IST the next day.
	now := time.Now().In(utils.IndiaLocation)
	expiresAt := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, utils.IndiaLocation)

	data, err := json.Marshal(sessionData{
		AccessToken: accessToken,
		UserID:      z.userID,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(z.tokenPath, data, 0600)
}

// GetQuote fetches a quote for an exchange:symbol key.
func (z *ZerodhaBroker) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	quotes, err := z.quotes(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	q, ok := quotes[symbol]
	if !ok {
		return nil, apperrors.NewDataError("quote", symbol, "not found", apperrors.ErrDataNotFound)
	}
	return q, nil
}

// quotes fetches quotes in batches.
func (z *ZerodhaBroker) quotes(ctx context.Context, symbols []string) (map[string]*models.Quote, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	out := make(map[string]*models.Quote, len(symbols))
	for start := 0; start < len(symbols); start += quoteBatch {
		end := start + quoteBatch
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[start:end]

		resp, err := utils.RetryWithResult(ctx, z.retry, func() (kiteconnect.Quote, error) {
			return z.client.GetQuote(batch...)
		})
		if err != nil {
			return nil, apperrors.NewBrokerError("QUOTE", "failed to get quotes", err)
		}

		for key, q := range resp {
			quote := &models.Quote{
				Symbol:    key,
				LTP:       q.LastPrice,
				Open:      q.OHLC.Open,
				High:      q.OHLC.High,
				Low:       q.OHLC.Low,
				Close:     q.OHLC.Close,
				Volume:    int64(q.Volume),
				OI:        int64(q.OI),
				Change:    q.NetChange,
				Timestamp: q.LastTradeTime.Time,
			}
			if q.OHLC.Close != 0 {
				quote.ChangePercent = q.NetChange / q.OHLC.Close * 100
			}
			out[key] = quote
		}
	}
	return out, nil
}

// GetInstruments returns the instrument dump for an exchange, reusing a
// recent download.
func (z *ZerodhaBroker) GetInstruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	z.mu.RLock()
	dump, ok := z.instruments[exchange]
	z.mu.RUnlock()
	if ok && time.Since(dump.loadedAt) < instrumentTTL {
		return dump.items, nil
	}

	raw, err := utils.RetryWithResult(ctx, z.retry, func() (kiteconnect.Instruments, error) {
		return z.client.GetInstrumentsByExchange(string(exchange))
	})
	if err != nil {
		return nil, apperrors.NewBrokerError("INSTRUMENTS", fmt.Sprintf("failed to get %s instruments", exchange), err)
	}

	items := make([]models.Instrument, 0, len(raw))
	for _, inst := range raw {
		items = append(items, models.Instrument{
			Token:     uint32(inst.InstrumentToken),
			Symbol:    inst.Tradingsymbol,
			Name:      inst.Name,
			Exchange:  models.Exchange(inst.Exchange),
			Segment:   inst.Segment,
			LotSize:   int(inst.LotSize),
			TickSize:  inst.TickSize,
			Expiry:    inst.Expiry.Time,
			Strike:    inst.StrikePrice,
			InstrType: inst.InstrumentType,
		})
	}

	z.mu.Lock()
	z.instruments[exchange] = instrumentDump{items: items, loadedAt: time.Now()}
	z.mu.Unlock()

	z.logger.Debug().Str("exchange", string(exchange)).Int("count", len(items)).Msg("instruments loaded")
	return items, nil
}

func (z *ZerodhaBroker) optionContracts(ctx context.Context, symbol string) (models.Underlying, []models.Instrument, error) {
	u, err := z.specs.Lookup(symbol)
	if err != nil {
		return u, nil, err
	}
	all, err := z.GetInstruments(ctx, u.Exchange)
	if err != nil {
		return u, nil, err
	}
	insts := optionInstruments(all, u.Symbol)
	if len(insts) == 0 {
		return u, nil, apperrors.Wrapf(apperrors.ErrChainUnavailable, "no %s options listed on %s", u.Symbol, u.Exchange)
	}
	return u, insts, nil
}

// GetExpiries lists the option expiries of an underlying, nearest first.
func (z *ZerodhaBroker) GetExpiries(ctx context.Context, symbol string) ([]time.Time, error) {
	_, insts, err := z.optionContracts(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return expiries(insts), nil
}

// GetOptionChain builds a chain of strikes around ATM for one expiry. Kite
// quotes carry no Greeks, so IV and Greeks are derived from the prices.
func (z *ZerodhaBroker) GetOptionChain(ctx context.Context, symbol string, expiry time.Time) (*models.OptionChain, error) {
	u, insts, err := z.optionContracts(ctx, symbol)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	exp, err := pickExpiry(expiries(insts), expiry, now)
	if err != nil {
		return nil, err
	}

	spot, err := z.GetQuote(ctx, SpotSymbol(u))
	if err != nil {
		return nil, fmt.Errorf("failed to get spot price: %w", err)
	}

	wanted := make(map[float64]bool)
	for _, s := range selectStrikes(distinctStrikes(insts, exp), spot.LTP, z.strikeWindow) {
		wanted[s] = true
	}

	rows := make(map[float64]*models.OptionStrike)
	keys := make([]string, 0, 2*len(wanted))
	byKey := make(map[string]models.Instrument)
	for _, inst := range insts {
		if !sameDay(inst.Expiry, exp) || !wanted[inst.Strike] {
			continue
		}
		key := OptionSymbol(inst.Exchange, inst.Symbol)
		keys = append(keys, key)
		byKey[key] = inst
		if _, ok := rows[inst.Strike]; !ok {
			rows[inst.Strike] = &models.OptionStrike{Strike: inst.Strike}
		}
	}

	quotes, err := z.quotes(ctx, keys)
	if err != nil {
		return nil, err
	}

	for key, inst := range byKey {
		q, ok := quotes[key]
		if !ok {
			continue
		}
		data := &models.OptionData{
			Symbol: inst.Symbol,
			LTP:    q.LTP,
			OI:     q.OI,
			Volume: q.Volume,
		}
		if inst.InstrType == string(models.Call) {
			rows[inst.Strike].Call = data
		} else {
			rows[inst.Strike].Put = data
		}
	}

	chain := &models.OptionChain{
		Symbol:    u.Symbol,
		SpotPrice: spot.LTP,
		Expiry:    exp,
		Strikes:   make([]models.OptionStrike, 0, len(rows)),
		FetchedAt: now,
	}
	for _, row := range rows {
		chain.Strikes = append(chain.Strikes, *row)
	}
	sortStrikes(chain)

	enriched := greeks.Enrich(chain, now, z.rate)
	z.logger.Debug().
		Str("symbol", u.Symbol).
		Time("expiry", exp).
		Int("strikes", len(chain.Strikes)).
		Int("enriched", enriched).
		Msg("option chain built")
	return chain, nil
}
