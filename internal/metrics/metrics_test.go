package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics()

	m.ObserveRequest("GET", "/api/presets", 200, time.Millisecond)
	m.ObserveRequest("GET", "/api/presets", 200, time.Millisecond)
	m.ObservePayoff(50 * time.Microsecond)
	m.ObserveChain(SourceBroker, "NIFTY", 24010, 300*time.Millisecond, nil)
	m.ObserveChain(SourceBroker, "NIFTY", 0, time.Second, errors.New("boom"))
	m.ObserveRefresh("skipped")

	body := scrape(t, m)
	assert.Contains(t, body, `strategist_http_requests_total{method="GET",route="/api/presets",status="200"} 2`)
	assert.Contains(t, body, "strategist_payoff_computations_total 1")
	assert.Contains(t, body, `strategist_chain_fetches_total{result="error",source="broker"} 1`)
	assert.Contains(t, body, `strategist_chain_spot_price{symbol="NIFTY"} 24010`)
	assert.Contains(t, body, `strategist_refresh_runs_total{result="skipped"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveRequest("GET", "/", 200, 0)
		m.ObservePayoff(0)
		m.ObserveChain(SourceCache, "NIFTY", 1, 0, nil)
		m.ObserveRefresh("ok")
	})
}
