package chart_test

import (
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/derickschaefer/sonarboard/internal/chart"
	"github.com/derickschaefer/sonarboard/internal/model"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// points builds monthly bar points starting 2024-01.
func points(values ...float64) []chart.Point {
	out := make([]chart.Point, len(values))
	for i, v := range values {
		out[i] = chart.Point{Label: time.Date(2024, time.Month(1+i), 1, 0, 0, 0, 0, time.UTC).Format("2006-01"), Value: v}
	}
	return out
}

// series builds a daily metric history starting 2024-01-01.
func series(metric string, values ...float64) model.MetricSeries {
	s := model.MetricSeries{Metric: metric}
	for i, v := range values {
		s.Samples = append(s.Samples, model.Sample{Date: time.Date(2024, 1, 1+i, 9, 0, 0, 0, time.UTC), Value: v})
	}
	return s
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// ─── PointsFor ────────────────────────────────────────────────────────────────

func TestPointsForSkipsPeriodsWithoutMetric(t *testing.T) {
	rows := []model.AggregatedRow{
		{Period: "2024-01", Values: map[string]float64{"bugs": 3, "coverage": 70}},
		{Period: "2024-02", Values: map[string]float64{"coverage": 72}},
		{Period: "2024-03", Values: map[string]float64{"bugs": 1}},
	}
	got := chart.PointsFor(rows, "bugs")
	if len(got) != 2 || got[0].Label != "2024-01" || got[1].Value != 1 {
		t.Errorf("unexpected points %+v", got)
	}
}

// ─── Bar ──────────────────────────────────────────────────────────────────────

func TestBarBasic(t *testing.T) {
	var buf strings.Builder
	if err := chart.Bar(&buf, "bugs", points(8, 3, 1), chart.BarOptions{Width: 60}); err != nil {
		t.Fatalf("Bar returned error: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 bars, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "bugs") || !strings.Contains(lines[0], "2024-01") || !strings.Contains(lines[0], "2024-03") {
		t.Errorf("header should name the metric and range, got %q", lines[0])
	}
	if strings.Count(lines[1], "█") <= strings.Count(lines[2], "█") {
		t.Errorf("8 should draw a longer bar than 3:\n%s", buf.String())
	}
	if strings.Count(lines[3], "█") < 1 {
		t.Error("every bar should be visible")
	}
}

func TestBarAllNaN(t *testing.T) {
	var buf strings.Builder
	if err := chart.Bar(&buf, "bugs", points(math.NaN(), math.NaN()), chart.BarOptions{Width: 60}); err == nil {
		t.Error("expected error when there is nothing to draw")
	}
}

func TestBarNaNFiltered(t *testing.T) {
	var buf strings.Builder
	if err := chart.Bar(&buf, "bugs", points(1, math.NaN(), 3), chart.BarOptions{Width: 60}); err != nil {
		t.Fatalf("Bar: %v", err)
	}
	if strings.Contains(buf.String(), "2024-02") {
		t.Error("NaN period should not be drawn")
	}
}

func TestBarMaxBarsKeepsLatest(t *testing.T) {
	var buf strings.Builder
	if err := chart.Bar(&buf, "bugs", points(1, 2, 3, 4, 5), chart.BarOptions{Width: 60, MaxBars: 2}); err != nil {
		t.Fatalf("Bar: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 bars, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[1], "2024-04") {
		t.Errorf("expected the last two periods, got %q", lines[1])
	}
}

func TestBarNegativeValues(t *testing.T) {
	var buf strings.Builder
	if err := chart.Bar(&buf, "delta", points(-2, 4), chart.BarOptions{Width: 40}); err != nil {
		t.Fatalf("Bar: %v", err)
	}
	if !strings.Contains(buf.String(), "│") {
		t.Error("negative values should draw a zero line")
	}
}

func TestBarDensityWarning(t *testing.T) {
	var pts []chart.Point
	for i := 0; i < 61; i++ {
		pts = append(pts, chart.Point{Label: "p", Value: float64(i)})
	}
	var buf strings.Builder
	if err := chart.Bar(&buf, "bugs", pts, chart.BarOptions{Width: 60}); err != nil {
		t.Fatalf("Bar: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "⚠") {
		t.Error("expected density warning for more than 60 bars")
	}
}

// ─── Plot ─────────────────────────────────────────────────────────────────────

func TestPlotLineCount(t *testing.T) {
	var buf strings.Builder
	err := chart.Plot(&buf, series("coverage", 60, 62, 65, 63, 70, 72), chart.PlotOptions{Width: 60, Height: 8})
	if err != nil {
		t.Fatalf("Plot: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	// title + rows + axis + labels
	if len(lines) != 8+3 {
		t.Errorf("expected %d lines, got %d", 8+3, len(lines))
	}
	if !strings.HasPrefix(lines[0], "coverage") {
		t.Errorf("title should default to the metric, got %q", lines[0])
	}
}

func TestPlotTitleOverride(t *testing.T) {
	var buf strings.Builder
	if err := chart.Plot(&buf, series("coverage", 1, 2), chart.PlotOptions{Width: 40, Title: "my-app coverage"}); err != nil {
		t.Fatalf("Plot: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "my-app coverage") {
		t.Errorf("expected custom title, got %q", nonEmptyLines(buf.String())[0])
	}
}

func TestPlotNeedsTwoNumericSamples(t *testing.T) {
	var buf strings.Builder
	if err := chart.Plot(&buf, series("bugs", 1, math.NaN()), chart.PlotOptions{Width: 40}); err == nil {
		t.Error("expected error with one numeric sample")
	}
}

func TestPlotFlatSeries(t *testing.T) {
	var buf strings.Builder
	if err := chart.Plot(&buf, series("bugs", 0, 0, 0), chart.PlotOptions{Width: 40, Height: 5}); err != nil {
		t.Fatalf("Plot of a flat series should not fail: %v", err)
	}
}

func TestPlotWidthRespected(t *testing.T) {
	var buf strings.Builder
	if err := chart.Plot(&buf, series("bugs", 5, 1, 7, 3, 9, 2, 8), chart.PlotOptions{Width: 50, Height: 6}); err != nil {
		t.Fatalf("Plot: %v", err)
	}
	for i, line := range strings.Split(buf.String(), "\n")[1:] {
		if n := utf8.RuneCountInString(line); n > 50 {
			t.Errorf("line %d is %d runes wide, limit 50", i+1, n)
		}
	}
}

func TestPlotXAxisLabels(t *testing.T) {
	var buf strings.Builder
	if err := chart.Plot(&buf, series("bugs", 1, 2, 3, 4, 5), chart.PlotOptions{Width: 60, Height: 4}); err != nil {
		t.Fatalf("Plot: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	last := lines[len(lines)-1]
	if !strings.Contains(last, "2024-01-01") || !strings.Contains(last, "2024-01-05") {
		t.Errorf("x axis should show first and last dates, got %q", last)
	}
}
