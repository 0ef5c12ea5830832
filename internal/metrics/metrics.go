// Package metrics holds the Prometheus collectors exported by the API
// server and the chain refresh job.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the strategist. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration *prometheus.HistogramVec // labels: route

	PayoffComputations prometheus.Counter
	PayoffDuration     prometheus.Histogram

	ChainFetches       *prometheus.CounterVec // labels: source, result
	ChainFetchDuration prometheus.Histogram
	ChainSpot          *prometheus.GaugeVec // labels: symbol

	RefreshRuns *prometheus.CounterVec // labels: result=ok|error|skipped
}

// NewMetrics creates the collectors on a private registry together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strategist_http_requests_total",
			Help: "HTTP requests by method, route pattern and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "strategist_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		PayoffComputations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strategist_payoff_computations_total",
			Help: "Payoff analyses computed",
		}),
		PayoffDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "strategist_payoff_duration_seconds",
			Help:    "Time to compute one payoff analysis",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		ChainFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strategist_chain_fetches_total",
			Help: "Option chain lookups by source (cache, broker) and result",
		}, []string{"source", "result"}),
		ChainFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "strategist_chain_fetch_duration_seconds",
			Help:    "Broker option chain fetch latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ChainSpot: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strategist_chain_spot_price",
			Help: "Spot price of the last fetched chain",
		}, []string{"symbol"}),
		RefreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strategist_refresh_runs_total",
			Help: "Scheduled chain refreshes by result",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.PayoffComputations,
		m.PayoffDuration,
		m.ChainFetches,
		m.ChainFetchDuration,
		m.ChainSpot,
		m.RefreshRuns,
	)

	return m
}

// Registry exposes the underlying registry for tests and custom gatherers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObservePayoff records one payoff analysis.
func (m *Metrics) ObservePayoff(d time.Duration) {
	if m == nil {
		return
	}
	m.PayoffComputations.Inc()
	m.PayoffDuration.Observe(d.Seconds())
}

// ObserveChain records a chain lookup. Broker fetches also record latency.
func (m *Metrics) ObserveChain(source, symbol string, spot float64, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ChainFetches.WithLabelValues(source, result).Inc()
	if source == SourceBroker {
		m.ChainFetchDuration.Observe(d.Seconds())
	}
	if err == nil && spot > 0 {
		m.ChainSpot.WithLabelValues(symbol).Set(spot)
	}
}

// ObserveRefresh records the outcome of a scheduled refresh.
func (m *Metrics) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.RefreshRuns.WithLabelValues(result).Inc()
}

// Chain sources.
const (
	SourceCache  = "cache"
	SourceBroker = "broker"
)
