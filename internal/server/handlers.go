package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/logging"
	"zerodha-strategist/internal/models"
	"zerodha-strategist/internal/payoff"
	"zerodha-strategist/internal/strategy"
)

type payoffRequest struct {
	Underlying string             `json:"underlying"`
	Legs       []models.OptionLeg `json:"legs"`
}

type applyPresetRequest struct {
	Underlying string  `json:"underlying"`
	Spot       float64 `json:"spot"`
}

type applyPresetResponse struct {
	Preset   string             `json:"preset"`
	Spot     float64            `json:"spot"`
	Legs     []models.OptionLeg `json:"legs"`
	Analysis payoff.Analysis    `json:"analysis"`
}

type saveStrategyRequest struct {
	Underlying string             `json:"underlying"`
	Preset     string             `json:"preset,omitempty"`
	Legs       []models.OptionLeg `json:"legs"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "healthy",
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Checks: make(map[string]string, len(s.health)),
	}
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for name, p := range s.health {
		if err := p.Ping(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, code, resp)
}

func (s *Server) handleUnderlyings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.specs.List())
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.List())
}

func (s *Server) handlePayoff(w http.ResponseWriter, r *http.Request) {
	var req payoffRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	b, err := s.builder(r.Context(), req.Underlying, needsMarket(req.Legs))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, leg := range req.Legs {
		if _, err := b.AddLeg(leg); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, s.analyze(r.Context(), b))
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	var req applyPresetRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	b, err := s.builder(r.Context(), req.Underlying, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Spot <= 0 && b.Chain() == nil && s.chains != nil {
		chain, _, err := s.chains.Get(r.Context(), b.Underlying().Symbol)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		b.SetChain(chain)
	}

	legs, err := b.ApplyPreset(chi.URLParam(r, "name"), req.Spot)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	spot := req.Spot
	if spot <= 0 && b.Chain() != nil {
		spot = b.Chain().SpotPrice
	}
	writeJSON(w, http.StatusOK, applyPresetResponse{
		Preset:   b.Store().LastPreset(),
		Spot:     spot,
		Legs:     legs,
		Analysis: s.analyze(r.Context(), b),
	})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	u, err := s.specs.Lookup(chi.URLParam(r, "symbol"))
	if err != nil {
		s.writeError(w, r, apperrors.Wrap(apperrors.ErrDataNotFound, err.Error()))
		return
	}
	if s.chains == nil {
		s.writeError(w, r, apperrors.ErrChainUnavailable)
		return
	}

	chain, source, err := s.chains.Get(r.Context(), u.Symbol)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Chain-Source", source)
	writeJSON(w, http.StatusOK, chain)
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	if s.strategies == nil {
		s.writeError(w, r, apperrors.ErrDatabaseError)
		return
	}
	list, err := s.strategies.ListStrategies(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []models.SavedStrategy{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	st, err := s.loadStrategy(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSaveStrategy(w http.ResponseWriter, r *http.Request) {
	if s.strategies == nil {
		s.writeError(w, r, apperrors.ErrDatabaseError)
		return
	}

	var req saveStrategyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.lookupUnderlying(req.Underlying)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	legs := strategy.NewStore()
	if err := legs.Replace(req.Legs); err != nil {
		s.writeError(w, r, err)
		return
	}

	st := &models.SavedStrategy{
		Name:       chi.URLParam(r, "name"),
		Underlying: u.Symbol,
		Preset:     req.Preset,
		Legs:       legs.Legs(),
	}
	if err := s.strategies.SaveStrategy(r.Context(), st); err != nil {
		s.writeError(w, r, err)
		return
	}

	saved, err := s.strategies.GetStrategy(r.Context(), st.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	if s.strategies == nil {
		s.writeError(w, r, apperrors.ErrDatabaseError)
		return
	}
	if err := s.strategies.DeleteStrategy(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStrategyPayoff(w http.ResponseWriter, r *http.Request) {
	st, err := s.loadStrategy(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	b, err := s.builder(r.Context(), st.Underlying, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := b.Store().Replace(st.Legs); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.analyze(r.Context(), b))
}

func (s *Server) loadStrategy(r *http.Request) (*models.SavedStrategy, error) {
	if s.strategies == nil {
		return nil, apperrors.ErrDatabaseError
	}
	return s.strategies.GetStrategy(r.Context(), chi.URLParam(r, "name"))
}

func (s *Server) lookupUnderlying(symbol string) (models.Underlying, error) {
	if strings.TrimSpace(symbol) == "" {
		return models.Underlying{}, apperrors.NewValidationError("underlying", symbol, "underlying is required")
	}
	return s.specs.Lookup(symbol)
}

// builder returns a request-scoped builder. With withChain set, the cached
// chain for the underlying is attached when one exists.
func (s *Server) builder(ctx context.Context, symbol string, withChain bool) (*strategy.Builder, error) {
	u, err := s.lookupUnderlying(symbol)
	if err != nil {
		return nil, err
	}
	b := strategy.NewBuilder(u, s.catalog)
	if withChain && s.chains != nil {
		if chain, err := s.chains.Cached(ctx, u.Symbol); err == nil {
			b.SetChain(chain)
		}
	}
	return b, nil
}

func (s *Server) analyze(ctx context.Context, b *strategy.Builder) payoff.Analysis {
	start := time.Now()
	a := b.Analysis()
	elapsed := time.Since(start)

	s.metrics.ObservePayoff(elapsed)
	log := logging.WithOperation(logging.FromContext(ctx), "analyze")
	logging.LogAnalysis(log, a.Underlying, b.Store().Len(), len(a.Points), a.Breakevens, elapsed)
	return a
}

func needsMarket(legs []models.OptionLeg) bool {
	for _, l := range legs {
		if l.Price == 0 {
			return true
		}
	}
	return false
}
