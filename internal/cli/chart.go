package cli

import (
	"fmt"
	"math"
	"strings"

	"zerodha-strategist/internal/payoff"
)

const (
	defaultChartWidth  = 60
	defaultChartHeight = 15
	chartLabelWidth    = 12
)

// RenderChart draws the payoff curve as an area chart filled towards the
// zero line: profit above in green, loss below in red. The x axis is labelled
// with the lowest, middle and highest sampled price.
func RenderChart(output *Output, points []payoff.Point, width, height int) []string {
	if len(points) == 0 {
		return nil
	}
	if width < 10 {
		width = defaultChartWidth
	}
	if height < 5 {
		height = defaultChartHeight
	}
	if width > len(points) {
		width = len(points)
	}

	cols := resample(points, width)
	hi, lo := 0.0, 0.0
	for _, v := range cols {
		hi = math.Max(hi, v)
		lo = math.Min(lo, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	rowOf := func(v float64) int {
		return int(math.Round((hi - v) / span * float64(height-1)))
	}
	zero := rowOf(0)

	lines := make([]string, 0, height+2)
	for r := 0; r < height; r++ {
		var label string
		switch r {
		case 0:
			label = FormatCompact(hi)
		case zero:
			label = "0"
		case height - 1:
			label = FormatCompact(lo)
		}

		var b strings.Builder
		for _, v := range cols {
			row := rowOf(v)
			switch {
			case v > 0 && r >= row && r < zero:
				b.WriteString(output.Green("█"))
			case v < 0 && r <= row && r > zero:
				b.WriteString(output.Red("█"))
			case r == zero:
				b.WriteString(output.DimText("─"))
			default:
				b.WriteByte(' ')
			}
		}
		lines = append(lines, fmt.Sprintf("%*s │%s", chartLabelWidth, label, strings.TrimRight(b.String(), " ")))
	}

	lines = append(lines, strings.Repeat(" ", chartLabelWidth)+" └"+strings.Repeat("─", width))
	lines = append(lines, strings.Repeat(" ", chartLabelWidth+2)+axisLabels(points, width))
	return lines
}

// resample picks width evenly spaced P&L values from points.
func resample(points []payoff.Point, width int) []float64 {
	out := make([]float64, width)
	if width == 1 {
		out[0] = points[0].PnL
		return out
	}
	last := len(points) - 1
	for i := range out {
		out[i] = points[int(math.Round(float64(i)*float64(last)/float64(width-1)))].PnL
	}
	return out
}

func axisLabels(points []payoff.Point, width int) string {
	first := FormatStrike(math.Round(points[0].Price))
	mid := FormatStrike(math.Round(points[len(points)/2].Price))
	last := FormatStrike(math.Round(points[len(points)-1].Price))

	gap := width - len(first) - len(mid) - len(last)
	if gap < 2 {
		return first + " … " + last
	}
	left := gap / 2
	return first + strings.Repeat(" ", left) + mid + strings.Repeat(" ", gap-left) + last
}
