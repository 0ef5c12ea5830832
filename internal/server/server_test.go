package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerodha-strategist/internal/broker"
	"zerodha-strategist/internal/chains"
	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/metrics"
	"zerodha-strategist/internal/models"
	"zerodha-strategist/internal/payoff"
	"zerodha-strategist/internal/store"
	"zerodha-strategist/pkg/utils"
)

var fixedNow = time.Date(2024, 6, 12, 10, 0, 0, 0, utils.IndiaLocation)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "strategist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	specs := broker.NewContractSpecs(nil)
	paper := broker.NewPaperBroker(broker.PaperBrokerConfig{
		Specs:        specs,
		Spots:        map[string]float64{"NIFTY": 24010},
		StrikeWindow: 5,
		Now:          func() time.Time { return fixedNow },
	})
	m := metrics.NewMetrics()

	return New(Config{
		Addr:  ":0",
		Log:   zerolog.Nop(),
		Specs: specs,
		Chains: chains.NewService(chains.Config{
			Provider: paper,
			Cache:    db,
			MaxAge:   time.Minute,
			Metrics:  m,
			Logger:   zerolog.Nop(),
			Now:      func() time.Time { return fixedNow },
		}),
		Strategies: db,
		Metrics:    m,
		Health:     map[string]Pinger{"sqlite": db},
	})
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func longCall() models.OptionLeg {
	return models.OptionLeg{Strike: 24000, Type: models.Call, Direction: models.Long, Lots: 1, Price: 120}
}

func TestRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	testCases := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"GET", "/api/underlyings"},
		{"GET", "/api/presets"},
		{"POST", "/api/presets/straddle/apply"},
		{"POST", "/api/payoff"},
		{"GET", "/api/chain/NIFTY"},
		{"GET", "/api/strategies"},
		{"GET", "/api/strategies/x"},
		{"PUT", "/api/strategies/x"},
		{"DELETE", "/api/strategies/x"},
		{"GET", "/api/strategies/x/payoff"},
	}
	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := do(t, s, tc.method, tc.path, nil)
			assert.NotEqual(t, http.StatusMethodNotAllowed, rec.Code)
			if rec.Code == http.StatusNotFound {
				// Handlers answer 404 with a JSON body; the router does not.
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestPayoff_LongCall(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, "POST", "/api/payoff", map[string]interface{}{
		"underlying": "nifty",
		"legs":       []models.OptionLeg{longCall()},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	a := decode[payoff.Analysis](t, rec)
	assert.Equal(t, "NIFTY", a.Underlying)
	assert.Equal(t, 75, a.LotSize)
	assert.Equal(t, []float64{24120}, a.Breakevens)
	require.NotNil(t, a.Summary)
	assert.Equal(t, -9000.0, a.Summary.NetPremium)
	assert.True(t, a.Summary.MaxProfitUnlimited)
	assert.False(t, a.Summary.MaxLossUnlimited)
	assert.Equal(t, -9000.0, a.Summary.MaxLoss)
}

func TestPayoff_HugeStrikeStaysBounded(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, "POST", "/api/payoff", map[string]interface{}{
		"underlying": "NIFTY",
		"legs": []models.OptionLeg{
			{Strike: 1e10, Type: models.Call, Direction: models.Long, Lots: 1, Price: 120},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	a := decode[payoff.Analysis](t, rec)
	assert.LessOrEqual(t, len(a.Points), payoff.MaxPoints)
	require.NotNil(t, a.Summary)
	assert.Equal(t, -9000.0, a.Summary.NetPremium)
}

func TestRequestLoggerCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	s := New(Config{Addr: ":0", Log: zerolog.New(&buf).Level(zerolog.DebugLevel)})

	rec := do(t, s, "POST", "/api/payoff", map[string]interface{}{
		"underlying": "NIFTY",
		"legs":       []models.OptionLeg{longCall()},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	events := map[string]map[string]interface{}{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &entry), string(line))
		if ev, ok := entry["event"].(string); ok {
			events[ev] = entry
		}
	}

	require.Contains(t, events, "analysis")
	require.Contains(t, events, "api_call")
	assert.Equal(t, "analyze", events["analysis"]["operation"])
	assert.NotEmpty(t, events["analysis"]["request_id"])
	assert.Equal(t, events["api_call"]["request_id"], events["analysis"]["request_id"])
}

func TestPayoff_EmptyLegs(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, "POST", "/api/payoff", map[string]interface{}{"underlying": "NIFTY", "legs": []models.OptionLeg{}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"summary"`)

	a := decode[payoff.Analysis](t, rec)
	assert.Empty(t, a.Points)
	assert.Empty(t, a.Breakevens)
}

func TestPayoff_Errors(t *testing.T) {
	s := newTestServer(t)

	bad := longCall()
	bad.Lots = 0
	rec := do(t, s, "POST", "/api/payoff", map[string]interface{}{"underlying": "NIFTY", "legs": []models.OptionLeg{bad}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "lots")

	rec = do(t, s, "POST", "/api/payoff", map[string]interface{}{"underlying": "DOGE", "legs": []models.OptionLeg{longCall()}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "POST", "/api/payoff", map[string]interface{}{"legs": []models.OptionLeg{longCall()}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "POST", "/api/payoff", map[string]interface{}{"underlying": "NIFTY", "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChain_FetchThenCache(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, "GET", "/api/chain/nifty", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, metrics.SourceBroker, rec.Header().Get("X-Chain-Source"))
	chain := decode[models.OptionChain](t, rec)
	assert.Len(t, chain.Strikes, 11)
	assert.Equal(t, 24000.0, chain.ATMStrike())

	rec = do(t, s, "GET", "/api/chain/NIFTY", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, metrics.SourceCache, rec.Header().Get("X-Chain-Source"))

	rec = do(t, s, "GET", "/api/chain/DOGE", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplyPreset(t *testing.T) {
	s := newTestServer(t)

	// No spot and nothing cached: the chain is fetched for its spot.
	rec := do(t, s, "POST", "/api/presets/straddle/apply", applyPresetRequest{Underlying: "NIFTY"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[applyPresetResponse](t, rec)
	assert.Equal(t, "straddle", resp.Preset)
	assert.Equal(t, 24010.0, resp.Spot)
	require.Len(t, resp.Legs, 2)
	for _, l := range resp.Legs {
		assert.Equal(t, 24000.0, l.Strike)
		assert.Equal(t, models.Short, l.Direction)
		assert.Greater(t, l.Price, 0.0)
		assert.NotEmpty(t, l.ID)
	}
	require.NotNil(t, resp.Analysis.Summary)
	assert.Len(t, resp.Analysis.Breakevens, 2)
	assert.True(t, resp.Analysis.Summary.MaxLossUnlimited)

	// Explicit spot wins over the cached chain.
	rec = do(t, s, "POST", "/api/presets/IRON-CONDOR/apply", applyPresetRequest{Underlying: "NIFTY", Spot: 24180})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decode[applyPresetResponse](t, rec)
	assert.Equal(t, "iron-condor", resp.Preset)
	require.Len(t, resp.Legs, 4)

	rec = do(t, s, "POST", "/api/presets/moonshot/apply", applyPresetRequest{Underlying: "NIFTY", Spot: 24000})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStrategiesCRUD(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, "GET", "/api/strategies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, s, "PUT", "/api/strategies/weekly", saveStrategyRequest{
		Underlying: "nifty",
		Legs:       []models.OptionLeg{longCall()},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[models.SavedStrategy](t, rec)
	assert.Equal(t, "NIFTY", saved.Underlying)
	require.Len(t, saved.Legs, 1)
	assert.NotEmpty(t, saved.Legs[0].ID)

	rec = do(t, s, "GET", "/api/strategies", nil)
	assert.Len(t, decode[[]models.SavedStrategy](t, rec), 1)

	rec = do(t, s, "GET", "/api/strategies/weekly/payoff", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []float64{24120}, decode[payoff.Analysis](t, rec).Breakevens)

	rec = do(t, s, "PUT", "/api/strategies/empty", saveStrategyRequest{Underlying: "NIFTY"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "DELETE", "/api/strategies/weekly", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, "GET", "/api/strategies/weekly", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, "DELETE", "/api/strategies/weekly", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h := decode[healthResponse](t, rec)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "ok", h.Checks["sqlite"])

	do(t, s, "GET", "/api/presets", nil)
	rec = do(t, s, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `strategist_http_requests_total{method="GET",route="/api/presets",status="200"} 1`)
}

type downPinger struct{}

func (downPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestHealth_Degraded(t *testing.T) {
	s := New(Config{Log: zerolog.Nop(), Health: map[string]Pinger{"redis": downPinger{}}})

	rec := do(t, s, "GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode[healthResponse](t, rec).Status)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		apperrors.NewValidationError("lots", 0, "must be positive"):         http.StatusBadRequest,
		apperrors.Wrap(apperrors.ErrEmptyStrategy, "save"):                  http.StatusBadRequest,
		apperrors.Wrapf(apperrors.ErrUnknownUnderlying, "%q", "DOGE"):       http.StatusBadRequest,
		apperrors.ErrStrategyNotFound:                                       http.StatusNotFound,
		apperrors.Wrap(apperrors.ErrPresetNotFound, "x"):                    http.StatusNotFound,
		apperrors.NewBrokerError("CHAIN", "fetch NIFTY", errors.New("eof")): http.StatusBadGateway,
		apperrors.ErrNotAuthenticated:                                       http.StatusBadGateway,
		errors.New("disk full"):                                             http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
