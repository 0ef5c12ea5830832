// Package chains resolves option chains for the CLI, the API and the
// refresh job: cache first, broker on a miss or when the entry is stale.
package chains

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"zerodha-strategist/internal/broker"
	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/logging"
	"zerodha-strategist/internal/metrics"
	"zerodha-strategist/internal/models"
	"zerodha-strategist/internal/resilience"
	"zerodha-strategist/internal/store"
)

// Config holds chain service dependencies. Cache and Metrics may be nil.
type Config struct {
	Provider broker.ChainProvider
	Cache    store.ChainCache
	MaxAge   time.Duration
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Now      func() time.Time
	// Breaker guards provider calls; nil disables it.
	Breaker *resilience.CircuitBreaker
}

// Service looks up chains through the cache.
type Service struct {
	provider broker.ChainProvider
	cache    store.ChainCache
	maxAge   time.Duration
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
	breaker  *resilience.CircuitBreaker
}

// NewService creates a chain service.
func NewService(cfg Config) *Service {
	s := &Service{
		provider: cfg.Provider,
		cache:    cfg.Cache,
		maxAge:   cfg.MaxAge,
		metrics:  cfg.Metrics,
		log:      cfg.Logger.With().Str("component", "chains").Logger(),
		now:      cfg.Now,
		breaker:  cfg.Breaker,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Get returns the chain for symbol's nearest expiry. A cached chain younger
// than MaxAge is returned as is; otherwise the broker is asked and the
// result cached. If the broker fails and a stale entry exists, the stale
// entry is returned along with a nil error.
func (s *Service) Get(ctx context.Context, symbol string) (*models.OptionChain, string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	cached := s.cached(ctx, symbol)
	if cached != nil && store.Fresh(cached, s.maxAge, s.now()) {
		s.metrics.ObserveChain(metrics.SourceCache, symbol, cached.SpotPrice, 0, nil)
		return cached, metrics.SourceCache, nil
	}

	chain, err := s.Fetch(ctx, symbol, time.Time{})
	if err != nil {
		if cached != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).
				Time("fetched_at", cached.FetchedAt).
				Msg("Serving stale chain")
			return cached, metrics.SourceCache, nil
		}
		return nil, metrics.SourceBroker, err
	}
	return chain, metrics.SourceBroker, nil
}

// Fetch asks the broker for a chain and writes it to the cache. A zero
// expiry means the nearest listed one.
func (s *Service) Fetch(ctx context.Context, symbol string, expiry time.Time) (*models.OptionChain, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if s.provider == nil {
		return nil, apperrors.Wrapf(apperrors.ErrChainUnavailable, "%s: no chain provider", symbol)
	}

	start := time.Now()
	chain, err := resilience.ExecuteWithResult(s.breaker, func() (*models.OptionChain, error) {
		return s.provider.GetOptionChain(ctx, symbol, expiry)
	})
	elapsed := time.Since(start)

	spot := 0.0
	if chain != nil {
		spot = chain.SpotPrice
	}
	s.metrics.ObserveChain(metrics.SourceBroker, symbol, spot, elapsed, err)
	if err != nil {
		logging.LogChainFetch(s.log, symbol, metrics.SourceBroker, 0, elapsed, err)
		return nil, classify(symbol, err)
	}
	logging.LogChainFetch(s.log, symbol, metrics.SourceBroker, len(chain.Strikes), elapsed, nil)

	if s.cache != nil {
		if err := s.cache.PutChain(ctx, chain); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache chain")
		}
	}
	return chain, nil
}

// Cached returns the cached chain regardless of age.
func (s *Service) Cached(ctx context.Context, symbol string) (*models.OptionChain, error) {
	if s.cache == nil {
		return nil, apperrors.ErrDataNotFound
	}
	return s.cache.GetChain(ctx, strings.ToUpper(strings.TrimSpace(symbol)))
}

func (s *Service) cached(ctx context.Context, symbol string) *models.OptionChain {
	chain, err := s.Cached(ctx, symbol)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrDataNotFound) {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Chain cache read failed")
		}
		return nil
	}
	return chain
}

// classify leaves caller errors alone and marks everything else as a
// broker failure.
func classify(symbol string, err error) error {
	if apperrors.Is(err, resilience.ErrCircuitOpen) {
		return apperrors.Wrapf(apperrors.ErrChainUnavailable, "%s: broker circuit open", symbol)
	}
	switch {
	case apperrors.Is(err, apperrors.ErrUnknownUnderlying),
		apperrors.Is(err, apperrors.ErrInputValidation),
		apperrors.Is(err, apperrors.ErrChainUnavailable),
		apperrors.Is(err, apperrors.ErrNotAuthenticated),
		apperrors.Is(err, apperrors.ErrSessionExpired):
		return err
	}
	var be *apperrors.BrokerError
	if apperrors.As(err, &be) {
		return err
	}
	return apperrors.NewBrokerError("CHAIN", "fetch "+symbol, err)
}

// BrokerFault reports whether err says something about the broker's health
// rather than the request. It is the failure filter for the circuit breaker.
func BrokerFault(err error) bool {
	return !apperrors.Is(err, apperrors.ErrUnknownUnderlying) &&
		!apperrors.Is(err, apperrors.ErrInputValidation) &&
		!apperrors.Is(err, context.Canceled)
}
