// Package server exposes the strategy builder over an HTTP JSON API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"zerodha-strategist/internal/broker"
	"zerodha-strategist/internal/chains"
	"zerodha-strategist/internal/logging"
	"zerodha-strategist/internal/metrics"
	"zerodha-strategist/internal/store"
	"zerodha-strategist/internal/strategy"
)

// Pinger is a dependency whose liveness is reported by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	CORSOrigins    []string
	Log            zerolog.Logger

	Specs      *broker.ContractSpecs
	Catalog    *strategy.Catalog
	Chains     *chains.Service
	Strategies store.StrategyStore
	Metrics    *metrics.Metrics
	Health     map[string]Pinger
}

// Server represents the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	specs      *broker.ContractSpecs
	catalog    *strategy.Catalog
	chains     *chains.Service
	strategies store.StrategyStore
	metrics    *metrics.Metrics
	health     map[string]Pinger
	started    time.Time
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		specs:      cfg.Specs,
		catalog:    cfg.Catalog,
		chains:     cfg.Chains,
		strategies: cfg.Strategies,
		metrics:    cfg.Metrics,
		health:     cfg.Health,
		started:    time.Now(),
	}
	if s.specs == nil {
		s.specs = broker.NewContractSpecs(nil)
	}
	if s.catalog == nil {
		s.catalog = strategy.DefaultCatalog()
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s.setupMiddleware(timeout, cfg.CORSOrigins)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(timeout time.Duration, origins []string) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(timeout))

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Chain-Source", "X-Request-Id"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/underlyings", s.handleUnderlyings)

		r.Get("/presets", s.handlePresets)
		r.Post("/presets/{name}/apply", s.handleApplyPreset)

		r.Post("/payoff", s.handlePayoff)

		r.Get("/chain/{symbol}", s.handleChain)

		r.Route("/strategies", func(r chi.Router) {
			r.Get("/", s.handleListStrategies)
			r.Get("/{name}", s.handleGetStrategy)
			r.Put("/{name}", s.handleSaveStrategy)
			r.Delete("/{name}", s.handleDeleteStrategy)
			r.Get("/{name}/payoff", s.handleStrategyPayoff)
		})
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := s.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), reqLog)))

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		s.metrics.ObserveRequest(r.Method, route, status, elapsed)
		logging.LogAPICall(reqLog, r.Method, r.URL.Path, status, elapsed)
	})
}
