package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"zerodha-strategist/internal/chains"
	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/logging"
	"zerodha-strategist/internal/metrics"
	"zerodha-strategist/internal/models"
	"zerodha-strategist/pkg/utils"
)

// Refresh outcomes recorded in metrics.
const (
	RefreshOK      = "ok"
	RefreshError   = "error"
	RefreshSkipped = "skipped"
)

// ChainRefreshJob keeps the chain cache warm for a set of underlyings.
type ChainRefreshJob struct {
	ctx             context.Context
	chains          *chains.Service
	symbols         []string
	marketHoursOnly bool
	timeout         time.Duration
	retry           utils.RetryConfig
	metrics         *metrics.Metrics
	log             zerolog.Logger
	now             func() time.Time
}

// ChainRefreshConfig holds configuration for the chain refresh job.
type ChainRefreshConfig struct {
	// Context bounds every run; cancel it to abort in-flight fetches.
	Context         context.Context
	Chains          *chains.Service
	Symbols         []string
	MarketHoursOnly bool
	Timeout         time.Duration
	Retry           *utils.RetryConfig
	Metrics         *metrics.Metrics
	Log             zerolog.Logger
	Now             func() time.Time
}

// NewChainRefreshJob creates a chain refresh job.
func NewChainRefreshJob(cfg ChainRefreshConfig) *ChainRefreshJob {
	j := &ChainRefreshJob{
		ctx:             cfg.Context,
		chains:          cfg.Chains,
		marketHoursOnly: cfg.MarketHoursOnly,
		timeout:         cfg.Timeout,
		metrics:         cfg.Metrics,
		log:             cfg.Log.With().Str("job", "chain_refresh").Logger(),
		now:             cfg.Now,
	}
	for _, s := range cfg.Symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			j.symbols = append(j.symbols, s)
		}
	}
	if j.ctx == nil {
		j.ctx = context.Background()
	}
	if j.timeout <= 0 {
		j.timeout = 20 * time.Second
	}
	if j.now == nil {
		j.now = time.Now
	}
	if cfg.Retry != nil {
		j.retry = *cfg.Retry
	} else {
		j.retry = utils.DefaultRetryConfig()
	}
	j.retry.Permanent = append(j.retry.Permanent,
		apperrors.ErrUnknownUnderlying,
		apperrors.ErrInputValidation,
		apperrors.ErrNotAuthenticated,
		apperrors.ErrSessionExpired,
		apperrors.ErrChainUnavailable,
	)
	return j
}

// Name returns the job name.
func (j *ChainRefreshJob) Name() string {
	return "chain_refresh"
}

// Run fetches every configured chain and writes it to the cache. Outside
// market hours the run is skipped when MarketHoursOnly is set.
func (j *ChainRefreshJob) Run() error {
	if j.marketHoursOnly && utils.MarketStatusAt(j.now()) != models.MarketOpen {
		j.log.Debug().Msg("Market closed, skipping refresh")
		j.metrics.ObserveRefresh(RefreshSkipped)
		return nil
	}

	ctx, cancel := context.WithTimeout(j.ctx, j.timeout)
	defer cancel()

	var errs []error
	refreshed := 0
	for _, symbol := range j.symbols {
		symbol := symbol
		_, err := utils.RetryWithResult(ctx, j.retry, func() (*models.OptionChain, error) {
			return j.chains.Fetch(ctx, symbol, time.Time{})
		})
		if err != nil {
			logger := logging.WithUnderlying(j.log, symbol)
			logger.Warn().Err(err).Msg("Chain refresh failed")
			errs = append(errs, apperrors.Wrapf(err, "refresh %s", symbol))
			continue
		}
		refreshed++
	}

	j.log.Info().
		Int("refreshed", refreshed).
		Int("failed", len(errs)).
		Msg("Chain refresh complete")

	if len(errs) > 0 {
		j.metrics.ObserveRefresh(RefreshError)
		return errors.Join(errs...)
	}
	j.metrics.ObserveRefresh(RefreshOK)
	return nil
}
