package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerodha-strategist/internal/models"
	"zerodha-strategist/internal/payoff"
)

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ZERODHA_API_KEY", "")
	t.Setenv("ZERODHA_API_SECRET", "")

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", dir}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestVersionJSON(t *testing.T) {
	out, err := run(t, t.TempDir(), "version", "--json")
	require.NoError(t, err)

	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, Version, v["version"])
}

func TestOptionsPresets(t *testing.T) {
	out, err := run(t, t.TempDir(), "options", "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "iron-condor")
	assert.Contains(t, out, "bull-call-spread")
}

func TestOptionsPayoff_ExplicitLeg(t *testing.T) {
	out, err := run(t, t.TempDir(), "options", "payoff", "--leg", "BUY:CE:24000:1:120", "--json")
	require.NoError(t, err)

	var a payoff.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.Equal(t, "NIFTY", a.Underlying)
	assert.Equal(t, 75, a.LotSize)
	require.Len(t, a.Breakevens, 1)
	assert.InDelta(t, 24120, a.Breakevens[0], 1e-6)
	require.NotNil(t, a.Summary)
	assert.InDelta(t, -9000, a.Summary.NetPremium, 1e-6)
	assert.True(t, a.Summary.MaxProfitUnlimited)
}

func TestOptionsPayoff_TextReport(t *testing.T) {
	out, err := run(t, t.TempDir(), "options", "payoff",
		"--leg", "BUY:CE:24000:1:120", "--leg", "SELL:CE:24200:1:60",
		"--width", "40", "--height", "8")
	require.NoError(t, err)

	assert.Contains(t, out, "Payoff at Expiry - NIFTY")
	assert.Contains(t, out, "Breakevens:   24,060")
	assert.Contains(t, out, "Max profit:   +₹10,500.00")
	assert.Contains(t, out, "Max loss:     -₹4,500.00")
	assert.Contains(t, out, "└")
}

func TestOptionsPayoff_PresetFromPaperChain(t *testing.T) {
	out, err := run(t, t.TempDir(), "options", "payoff", "--preset", "straddle", "--spot", "24010", "--json")
	require.NoError(t, err)

	var a payoff.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	require.NotNil(t, a.Summary)
	assert.Greater(t, a.Summary.NetPremium, 0.0, "short straddle collects premium")
	assert.Len(t, a.Breakevens, 2)
}

func TestOptionsPayoff_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "options", "payoff")
	assert.Error(t, err)

	_, err = run(t, dir, "options", "payoff", "--leg", "HOLD:CE:24000")
	assert.Error(t, err)

	_, err = run(t, dir, "options", "payoff", "--underlying", "DOGE", "--leg", "BUY:CE:100:1:5")
	assert.Error(t, err)
}

func TestSavedStrategyLifecycle(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "options", "payoff", "--leg", "SELL:PE:23800:2:55", "--save", "weekly-put", "--json")
	require.NoError(t, err)

	out, err := run(t, dir, "options", "strategy", "list", "--json")
	require.NoError(t, err)
	var list []models.SavedStrategy
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "weekly-put", list[0].Name)
	assert.Equal(t, "NIFTY", list[0].Underlying)
	require.Len(t, list[0].Legs, 1)
	assert.Equal(t, 2, list[0].Legs[0].Lots)

	out, err = run(t, dir, "options", "strategy", "show", "weekly-put")
	require.NoError(t, err)
	assert.Contains(t, out, "weekly-put (NIFTY)")
	assert.Contains(t, out, "23800")

	_, err = run(t, dir, "options", "strategy", "delete", "weekly-put")
	require.NoError(t, err)

	_, err = run(t, dir, "options", "strategy", "show", "weekly-put")
	assert.Error(t, err)
}
