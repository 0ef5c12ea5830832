package cli

import (
	"fmt"
	"math"
	"strings"
	"time"

	"zerodha-strategist/pkg/utils"
)

// FormatIndianCurrency formats a number in Indian currency format (lakhs, crores).
func FormatIndianCurrency(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	// Format with 2 decimal places
	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")
	intPart := parts[0]
	decPart := parts[1]

	// Apply Indian numbering system
	formatted := formatIndianNumber(intPart)

	result := "₹" + formatted + "." + decPart
	if negative {
		result = "-" + result
	}
	return result
}

// formatIndianNumber formats an integer string in Indian numbering system.
// Indian system: 1,00,00,000 (1 crore) vs Western: 10,000,000
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	// First group of 3 from right (hundreds)
	result := s[n-3:]
	s = s[:n-3]

	// Then groups of 2 (thousands, lakhs, crores)
	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}

	return result
}

// FormatPnL formats P&L with sign.
func FormatPnL(pnl float64) string {
	formatted := FormatIndianCurrency(pnl)
	if pnl > 0 {
		return "+" + formatted
	}
	return formatted
}

// FormatQuantity formats a quantity with Indian numbering.
func FormatQuantity(qty int64) string {
	return formatIndianNumber(fmt.Sprintf("%d", qty))
}

// FormatCompact formats an amount in lakhs or crores once it is large
// enough, rupees otherwise.
func FormatCompact(amount float64) string {
	abs := math.Abs(amount)
	switch {
	case abs >= 1e7:
		return fmt.Sprintf("%.2f Cr", amount/1e7)
	case abs >= 1e5:
		return fmt.Sprintf("%.2f L", amount/1e5)
	}
	return FormatIndianCurrency(amount)
}

// FormatVolume formats volume and open interest in compact form.
func FormatVolume(volume int64) string {
	switch {
	case volume >= 10000000:
		return fmt.Sprintf("%.2f Cr", float64(volume)/10000000)
	case volume >= 100000:
		return fmt.Sprintf("%.2f L", float64(volume)/100000)
	case volume >= 1000:
		return fmt.Sprintf("%.2f K", float64(volume)/1000)
	}
	return fmt.Sprintf("%d", volume)
}

// FormatPrice formats a premium or index level.
func FormatPrice(price float64) string {
	return fmt.Sprintf("%.2f", price)
}

// FormatStrike formats a strike without decimals unless it has a fraction.
func FormatStrike(strike float64) string {
	if strike == math.Trunc(strike) {
		return fmt.Sprintf("%.0f", strike)
	}
	return fmt.Sprintf("%.2f", strike)
}

// FormatIV formats implied volatility given in percent.
func FormatIV(iv float64) string {
	if iv <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", iv)
}

// FormatBreakevens joins breakeven prices, or returns "none".
func FormatBreakevens(bes []float64) string {
	if len(bes) == 0 {
		return "none"
	}
	parts := make([]string, len(bes))
	for i, b := range bes {
		parts[i] = formatIndianNumber(fmt.Sprintf("%.0f", b))
	}
	return strings.Join(parts, ", ")
}

// FormatDate formats a date in IST.
func FormatDate(t time.Time) string {
	return t.In(utils.IndiaLocation).Format("02-Jan-2006")
}

// FormatDateTime formats a datetime in IST.
func FormatDateTime(t time.Time) string {
	return t.In(utils.IndiaLocation).Format("02-Jan-2006 15:04:05")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
