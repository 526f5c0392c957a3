// Package chart renders metric history as terminal charts.
//
//   - Bar: one horizontal bar per period of a grouped history
//   - Plot: line chart of a raw metric history with labeled axes
//
// Missing values are gaps, never zeros.
package chart

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/derickschaefer/sonarboard/internal/model"
)

// Point is one labeled bar.
type Point struct {
	Label string
	Value float64
}

// PointsFor extracts metric from aggregated rows, one point per period that
// reports it. Rows keep their order.
func PointsFor(rows []model.AggregatedRow, metric string) []Point {
	var out []Point
	for _, r := range rows {
		if v, ok := r.Values[metric]; ok {
			out = append(out, Point{Label: r.Period, Value: v})
		}
	}
	return out
}

// ─── Bar ─────────────────────────────────────────────────────────────────────

// BarOptions controls horizontal bar chart rendering.
type BarOptions struct {
	// Width is the total character width. 0 means $COLUMNS or 80.
	Width int
	// MaxBars keeps only the last MaxBars points. 0 means no limit.
	MaxBars int
}

// Bar renders one bar per point:
//
//	bugs  2024-01 – 2024-03
//	2024-01   8.0  ████████████████████
//	2024-02   3.0  ███████
//	2024-03   1.0  █
func Bar(w io.Writer, title string, points []Point, opts BarOptions) error {
	totalWidth := opts.Width
	if totalWidth <= 0 {
		totalWidth = termWidth()
	}

	var valid []Point
	for _, p := range points {
		if !math.IsNaN(p.Value) {
			valid = append(valid, p)
		}
	}
	if len(valid) == 0 {
		return fmt.Errorf("chart bar: no values to render for %s", title)
	}
	if opts.MaxBars > 0 && len(valid) > opts.MaxBars {
		valid = valid[len(valid)-opts.MaxBars:]
	}
	if len(valid) > 60 {
		fmt.Fprintf(w, "⚠  %d bars, consider a coarser --by (week or month)\n\n", len(valid))
	}

	minVal, maxVal := valid[0].Value, valid[0].Value
	labelWidth, valWidth := 0, 0
	for _, p := range valid {
		minVal = math.Min(minVal, p.Value)
		maxVal = math.Max(maxVal, p.Value)
		labelWidth = max(labelWidth, len(p.Label))
		valWidth = max(valWidth, len(formatFloat(p.Value)))
	}

	barAreaWidth := max(totalWidth-labelWidth-valWidth-4, 4)

	// Bars grow from zero when every value is non-negative, which is the
	// usual case for issue counts and percentages.
	lo := math.Min(minVal, 0)
	valRange := maxVal - lo
	if valRange == 0 {
		valRange = 1
	}
	hasNeg := minVal < 0
	zeroPos := 0
	if hasNeg {
		zeroPos = int(math.Round((-minVal / valRange) * float64(barAreaWidth-1)))
	}

	fmt.Fprintf(w, "%s  %s – %s\n", title, valid[0].Label, valid[len(valid)-1].Label)
	for _, p := range valid {
		var bar string
		if hasNeg {
			bar = biBar(p.Value, valRange, barAreaWidth, zeroPos)
		} else {
			n := int(math.Round((p.Value - lo) / valRange * float64(barAreaWidth)))
			n = min(max(n, 1), barAreaWidth)
			bar = strings.Repeat("█", n)
		}
		fmt.Fprintf(w, "%-*s  %*s  %s\n", labelWidth, p.Label, valWidth, formatFloat(p.Value), bar)
	}
	return nil
}

// biBar draws a bar extending left or right of a zero column.
func biBar(val, valRange float64, width, zeroPos int) string {
	buf := []rune(strings.Repeat(" ", width))
	if zeroPos >= 0 && zeroPos < width {
		buf[zeroPos] = '│'
	}
	span := int(math.Round(math.Abs(val) / valRange * float64(width-1)))
	if val >= 0 {
		for i := zeroPos + 1; i <= zeroPos+span && i < width; i++ {
			buf[i] = '█'
		}
	} else {
		for i := max(zeroPos-span, 0); i < zeroPos; i++ {
			buf[i] = '█'
		}
	}
	return string(buf)
}

// ─── Plot ─────────────────────────────────────────────────────────────────────

// PlotOptions controls line chart rendering.
type PlotOptions struct {
	// Width is the total character width including the Y axis. 0 means $COLUMNS or 80.
	Width int
	// Height is the number of chart rows. 0 means 12.
	Height int
	// Title defaults to the metric name.
	Title string
}

// Plot renders a line chart of s. Samples without a date are ignored.
func Plot(w io.Writer, s model.MetricSeries, opts PlotOptions) error {
	width := opts.Width
	if width <= 0 {
		width = termWidth()
	}
	height := opts.Height
	if height <= 0 {
		height = 12
	}
	title := opts.Title
	if title == "" {
		title = s.Metric
	}

	var samples []model.Sample
	var numeric []float64
	for _, smp := range s.Samples {
		if smp.Date.IsZero() {
			continue
		}
		samples = append(samples, smp)
		if !smp.IsMissing() {
			numeric = append(numeric, smp.Value)
		}
	}
	if len(numeric) < 2 {
		return fmt.Errorf("chart plot: need at least 2 numeric samples (got %d)", len(numeric))
	}

	minVal, maxVal := numeric[0], numeric[0]
	for _, v := range numeric[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}

	ticks := yTicks(minVal, maxVal, height)
	yLabelWidth := 0
	for _, t := range ticks {
		yLabelWidth = max(yLabelWidth, len(formatFloat(t)))
	}
	plotWidth := max(width-yLabelWidth-2, 10)

	grid := buildGrid(sampleCols(samples, plotWidth), minVal, maxVal, height)

	fmt.Fprintf(w, "%s  (%s to %s)\n", title,
		samples[0].Date.Format("2006-01-02"), samples[len(samples)-1].Date.Format("2006-01-02"))

	for row := 0; row < height; row++ {
		label := ""
		for _, t := range ticks {
			if math.Abs(rowForValue(t, minVal, maxVal, height)-float64(row)) < 0.5 {
				label = formatFloat(t)
				break
			}
		}
		axis := " "
		if label != "" {
			axis = "┤"
		}
		fmt.Fprintf(w, "%*s%s%s\n", yLabelWidth, label, axis, string(grid[row]))
	}

	fmt.Fprintf(w, "%s└%s\n", strings.Repeat(" ", yLabelWidth), strings.Repeat("─", plotWidth))
	fmt.Fprintf(w, "%s %s\n", strings.Repeat(" ", yLabelWidth), xAxisLabels(samples, plotWidth))
	return nil
}

// ─── Grid building ────────────────────────────────────────────────────────────

// sampleCols reduces samples to n columns, each the mean of its slice of
// samples, or NaN when that slice has no numeric value.
func sampleCols(samples []model.Sample, n int) []float64 {
	total := len(samples)
	cols := make([]float64, n)
	for col := 0; col < n; col++ {
		lo := col * total / n
		hi := min((col+1)*total/n-1, total-1)
		sum, count := 0.0, 0
		for i := lo; i <= hi; i++ {
			if !samples[i].IsMissing() {
				sum += samples[i].Value
				count++
			}
		}
		if count == 0 {
			cols[col] = math.NaN()
		} else {
			cols[col] = sum / float64(count)
		}
	}
	return cols
}

// rowForValue maps v to a fractional row, 0 being the top (maxVal).
func rowForValue(v, minVal, maxVal float64, height int) float64 {
	if maxVal == minVal {
		return float64(height) / 2
	}
	return (maxVal - v) / (maxVal - minVal) * float64(height-1)
}

// buildGrid places each column's value on a height-row grid and joins
// neighbouring columns with box-drawing characters.
func buildGrid(cols []float64, minVal, maxVal float64, height int) [][]rune {
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", len(cols)))
	}

	const gap, edge = -1, -2
	rowOf := make([]int, len(cols))
	for col, v := range cols {
		if math.IsNaN(v) {
			rowOf[col] = gap
			continue
		}
		r := int(math.Round(rowForValue(v, minVal, maxVal, height)))
		rowOf[col] = min(max(r, 0), height-1)
	}

	for col, r := range rowOf {
		if r == gap {
			continue
		}
		prev, next := edge, edge
		if col > 0 {
			prev = rowOf[col-1]
		}
		if col < len(cols)-1 {
			next = rowOf[col+1]
		}

		var ch rune
		switch {
		case prev < 0 && next < 0:
			ch = '·'
		case (prev < 0 || prev == r) && (next < 0 || next == r):
			ch = '─'
		case prev >= 0 && next >= 0 && (prev < r) == (next < r) && prev != r && next != r:
			ch = '─' // local peak or valley
		case (prev < 0 || prev < r) && next > r:
			ch = '╭'
		case (prev < 0 || prev > r) && next >= 0 && next < r:
			ch = '╰'
		case prev >= 0 && prev < r:
			ch = '╮'
		case prev >= 0 && prev > r:
			ch = '╯'
		default:
			ch = '│'
		}
		grid[r][col] = ch

		if prev >= 0 && prev != r {
			lo, hi := min(r, prev), max(r, prev)
			for fill := lo + 1; fill < hi; fill++ {
				if grid[fill][col] == ' ' {
					grid[fill][col] = '│'
				}
			}
		}
	}
	return grid
}

// ─── Axis helpers ─────────────────────────────────────────────────────────────

// yTicks returns evenly spaced Y axis ticks: 3 on short charts, else 4.
func yTicks(minVal, maxVal float64, height int) []float64 {
	if maxVal == minVal {
		return []float64{minVal}
	}
	n := 4
	if height <= 6 {
		n = 3
	}
	ticks := make([]float64, n)
	for i := range ticks {
		ticks[i] = minVal + float64(i)*(maxVal-minVal)/float64(n-1)
	}
	return ticks
}

// xAxisLabels places the first, middle and last dates under the plot.
func xAxisLabels(samples []model.Sample, plotWidth int) string {
	if len(samples) == 0 {
		return ""
	}
	const layout = "2006-01-02"
	buf := []rune(strings.Repeat(" ", plotWidth))
	writeAt := func(pos int, s string) {
		for i, ch := range s {
			if pos+i >= 0 && pos+i < len(buf) {
				buf[pos+i] = ch
			}
		}
	}
	mid := samples[len(samples)/2].Date.Format(layout)
	end := samples[len(samples)-1].Date.Format(layout)
	writeAt(0, samples[0].Date.Format(layout))
	writeAt(plotWidth/2-len(mid)/2, mid)
	writeAt(plotWidth-len(end), end)
	return string(buf)
}

// ─── Utilities ────────────────────────────────────────────────────────────────

// formatFloat formats axis and bar labels compactly, keeping one decimal
// at least and abbreviating thousands and millions.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	abs := math.Abs(v)
	var s string
	switch {
	case abs == 0:
		return "0"
	case abs >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	case abs >= 1e4:
		return strconv.FormatFloat(v/1e3, 'f', 1, 64) + "K"
	case abs >= 1:
		s = strconv.FormatFloat(v, 'f', 2, 64)
	default:
		s = strconv.FormatFloat(v, 'f', 4, 64)
	}
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

// termWidth returns the terminal width from $COLUMNS, defaulting to 80.
func termWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 20 {
			return n
		}
	}
	return 80
}
