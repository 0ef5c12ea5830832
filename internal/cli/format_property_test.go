package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

var indianGrouping = regexp.MustCompile(`^(\d{1,2},)*\d{1,3}$`)

// Property 10: Rupee amounts use Indian digit grouping
//
// For any amount, FormatIndianCurrency has a ₹ (or -₹) prefix, exactly two
// decimals, lakh/crore grouping, and parses back to the rounded value.
func TestProperty10_IndianCurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("grouping and prefix", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatIndianCurrency(amount)

			prefix := "₹"
			if amount < 0 {
				prefix = "-₹"
			}
			if !strings.HasPrefix(formatted, prefix) {
				t.Logf("missing %s prefix: %s", prefix, formatted)
				return false
			}

			parts := strings.Split(strings.TrimPrefix(formatted, prefix), ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				t.Logf("bad decimals: %s", formatted)
				return false
			}
			if !indianGrouping.MatchString(parts[0]) {
				t.Logf("bad grouping: %s", formatted)
				return false
			}
			return true
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("round trip", prop.ForAll(
		func(amount float64) bool {
			parsed := parseIndianCurrency(FormatIndianCurrency(amount))
			return math.Abs(parsed-math.Round(amount*100)/100) <= 0.01
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("compact units", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatCompact(amount)
			abs := math.Abs(amount)
			switch {
			case abs >= 1e7:
				return strings.HasSuffix(formatted, " Cr")
			case abs >= 1e5:
				return strings.HasSuffix(formatted, " L")
			}
			return strings.Contains(formatted, "₹")
		},
		gen.Float64Range(-1e10, 1e10),
	))

	properties.Property("volume units", prop.ForAll(
		func(volume int64) bool {
			formatted := FormatVolume(volume)
			switch {
			case volume >= 10000000:
				return strings.HasSuffix(formatted, " Cr")
			case volume >= 100000:
				return strings.HasSuffix(formatted, " L")
			case volume >= 1000:
				return strings.HasSuffix(formatted, " K")
			}
			return formatted == strconv.FormatInt(volume, 10)
		},
		gen.Int64Range(0, 1e12),
	))

	properties.TestingRun(t)
}

func parseIndianCurrency(s string) float64 {
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "₹")
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return math.NaN()
	}
	if negative {
		return -v
	}
	return v
}

func TestFormatIndianCurrency_Examples(t *testing.T) {
	testCases := []struct {
		amount   float64
		expected string
	}{
		{0, "₹0.00"},
		{100, "₹100.00"},
		{1000, "₹1,000.00"},
		{100000, "₹1,00,000.00"},
		{10000000, "₹1,00,00,000.00"},
		{-9000, "-₹9,000.00"},
		{12345678.90, "₹1,23,45,678.90"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, FormatIndianCurrency(tc.amount))
	}
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "+₹3,000.00", FormatPnL(3000))
	assert.Equal(t, "-₹750.00", FormatPnL(-750))
	assert.Equal(t, "24000", FormatStrike(24000))
	assert.Equal(t, "24012.50", FormatStrike(24012.5))
	assert.Equal(t, "13.5%", FormatIV(13.5))
	assert.Equal(t, "-", FormatIV(0))
	assert.Equal(t, "none", FormatBreakevens(nil))
	assert.Equal(t, "23,780, 24,220", FormatBreakevens([]float64{23780, 24220}))
	assert.Equal(t, "1h 5m", FormatDuration(65*time.Minute))
}
