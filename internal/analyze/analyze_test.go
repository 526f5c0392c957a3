package analyze_test

import (
	"math"
	"testing"
	"time"

	"github.com/derickschaefer/sonarboard/internal/analyze"
	"github.com/derickschaefer/sonarboard/internal/model"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// daily builds a series with one sample per day starting 2024-01-01.
func daily(metric string, values ...float64) model.MetricSeries {
	s := model.MetricSeries{Metric: metric}
	for i, v := range values {
		s.Samples = append(s.Samples, model.Sample{
			Date:  time.Date(2024, 1, 1+i, 12, 0, 0, 0, time.UTC),
			Value: v,
		})
	}
	return s
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// ─── Summarize ────────────────────────────────────────────────────────────────

func TestSummarizeBasicCounts(t *testing.T) {
	s := analyze.Summarize(daily("bugs", 1, 2, math.NaN(), 4, 5))

	if s.Metric != "bugs" {
		t.Errorf("Metric: expected bugs, got %q", s.Metric)
	}
	if s.Count != 5 {
		t.Errorf("Count: expected 5, got %d", s.Count)
	}
	if s.Missing != 1 {
		t.Errorf("Missing: expected 1, got %d", s.Missing)
	}
	if !approxEqual(s.MissingPct, 20.0, 1e-9) {
		t.Errorf("MissingPct: expected 20.0, got %g", s.MissingPct)
	}
}

func TestSummarizeMeanStdMinMax(t *testing.T) {
	s := analyze.Summarize(daily("code_smells", 2, 4, 4, 4, 5, 5, 7, 9))
	if !approxEqual(s.Mean, 5.0, 1e-9) {
		t.Errorf("Mean: expected 5.0, got %g", s.Mean)
	}
	if !approxEqual(s.Std, 2.138, 1e-3) {
		t.Errorf("Std: expected ~2.138, got %g", s.Std)
	}
	if s.Min != 2 || s.Max != 9 {
		t.Errorf("Min/Max: expected 2/9, got %g/%g", s.Min, s.Max)
	}
}

func TestSummarizeMedianAndPercentiles(t *testing.T) {
	s := analyze.Summarize(daily("coverage", 10, 20, 30, 40, 50))
	if s.Median != 30 {
		t.Errorf("Median: expected 30, got %g", s.Median)
	}
	if s.P25 != 20 || s.P75 != 40 {
		t.Errorf("P25/P75: expected 20/40, got %g/%g", s.P25, s.P75)
	}

	even := analyze.Summarize(daily("coverage", 1, 2, 3, 4))
	if even.Median != 2.5 {
		t.Errorf("even Median: expected 2.5, got %g", even.Median)
	}
}

func TestSummarizeFirstLastSkipMissing(t *testing.T) {
	s := analyze.Summarize(daily("bugs", math.NaN(), 8, 6, 3, math.NaN()))
	if s.First != 8 || s.Last != 3 {
		t.Errorf("First/Last: expected 8/3, got %g/%g", s.First, s.Last)
	}
	if s.FirstDate.Day() != 2 || s.LastDate.Day() != 4 {
		t.Errorf("dates: expected day 2 and 4, got %v and %v", s.FirstDate, s.LastDate)
	}
	if s.Change != -5 {
		t.Errorf("Change: expected -5, got %g", s.Change)
	}
	if !approxEqual(s.ChangePct, -62.5, 1e-9) {
		t.Errorf("ChangePct: expected -62.5, got %g", s.ChangePct)
	}
}

func TestSummarizeChangeZeroFirst(t *testing.T) {
	s := analyze.Summarize(daily("vulnerabilities", 0, 2))
	if s.Change != 2 {
		t.Errorf("Change: expected 2, got %g", s.Change)
	}
	if !math.IsNaN(s.ChangePct) {
		t.Errorf("ChangePct: expected NaN when first is zero, got %g", s.ChangePct)
	}
}

func TestSummarizeEmptyAndAllMissing(t *testing.T) {
	empty := analyze.Summarize(model.MetricSeries{Metric: "bugs"})
	if empty.Count != 0 || !math.IsNaN(empty.Mean) {
		t.Errorf("empty: expected Count 0 and NaN mean, got %+v", empty)
	}

	all := analyze.Summarize(daily("bugs", math.NaN(), math.NaN()))
	if all.Missing != 2 || all.MissingPct != 100 {
		t.Errorf("all missing: got Missing=%d MissingPct=%g", all.Missing, all.MissingPct)
	}
	for name, v := range map[string]float64{"Mean": all.Mean, "Min": all.Min, "Last": all.Last, "Median": all.Median} {
		if !math.IsNaN(v) {
			t.Errorf("%s: expected NaN, got %g", name, v)
		}
	}
}

func TestSummarizeSingleValue(t *testing.T) {
	s := analyze.Summarize(daily("bugs", 7))
	if s.Mean != 7 || s.Min != 7 || s.Max != 7 || s.Median != 7 {
		t.Errorf("single value stats wrong: %+v", s)
	}
	if s.Std != 0 {
		t.Errorf("Std: expected 0 for one value, got %g", s.Std)
	}
}

func TestSummarizeAllKeepsOrder(t *testing.T) {
	out := analyze.SummarizeAll([]model.MetricSeries{daily("b", 1), daily("a", 2)})
	if len(out) != 2 || out[0].Metric != "b" || out[1].Metric != "a" {
		t.Errorf("expected [b a], got %+v", out)
	}
}

// ─── Trend ────────────────────────────────────────────────────────────────────

func TestTrendLinearUpward(t *testing.T) {
	tr, err := analyze.Trend(daily("bugs", 1, 2, 3, 4, 5), analyze.TrendLinear)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if !approxEqual(tr.Slope, 1.0, 1e-9) {
		t.Errorf("Slope: expected 1.0/day, got %g", tr.Slope)
	}
	if !approxEqual(tr.SlopePer30d, 30, 1e-9) {
		t.Errorf("SlopePer30d: expected 30, got %g", tr.SlopePer30d)
	}
	if tr.Direction != "up" {
		t.Errorf("Direction: expected up, got %s", tr.Direction)
	}
	if !approxEqual(tr.R2, 1.0, 1e-9) {
		t.Errorf("R2: expected 1.0, got %g", tr.R2)
	}
}

func TestTrendDownwardAndFlat(t *testing.T) {
	down, err := analyze.Trend(daily("code_smells", 50, 40, 30, 20), analyze.TrendLinear)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if down.Direction != "down" {
		t.Errorf("expected down, got %s", down.Direction)
	}

	flat, err := analyze.Trend(daily("coverage", 80, 80, 80), analyze.TrendLinear)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if flat.Direction != "flat" {
		t.Errorf("expected flat, got %s", flat.Direction)
	}
}

func TestTrendSkipsMissingAndUndated(t *testing.T) {
	s := daily("bugs", 1, math.NaN(), 3, 4)
	s.Samples = append(s.Samples, model.Sample{Value: 100})
	tr, err := analyze.Trend(s, analyze.TrendLinear)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if tr.SampleCount != 3 {
		t.Errorf("SampleCount: expected 3, got %d", tr.SampleCount)
	}
}

func TestTrendTooFewSamples(t *testing.T) {
	if _, err := analyze.Trend(daily("bugs", 1), analyze.TrendLinear); err == nil {
		t.Error("expected error for a single sample")
	}
	if _, err := analyze.Trend(daily("bugs", 1, math.NaN()), analyze.TrendLinear); err == nil {
		t.Error("expected error when only one sample is numeric")
	}
}

func TestTrendTheilSenRobustToOutlier(t *testing.T) {
	s := daily("bugs", 1, 2, 3, 4, 5, 6, 7, 8, 9, 200)
	ts, err := analyze.Trend(s, analyze.TrendTheilSen)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	ols, _ := analyze.Trend(s, analyze.TrendLinear)
	if !approxEqual(ts.Slope, 1.0, 0.2) {
		t.Errorf("Theil-Sen slope: expected ~1.0, got %g", ts.Slope)
	}
	if ols.Slope <= ts.Slope {
		t.Errorf("OLS slope %g should be pulled above Theil-Sen %g by the outlier", ols.Slope, ts.Slope)
	}
	if ts.Method != analyze.TrendTheilSen {
		t.Errorf("Method: expected theil-sen, got %s", ts.Method)
	}
}

func TestTrendDefaultMethodIsLinear(t *testing.T) {
	tr, err := analyze.Trend(daily("bugs", 1, 2), "")
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if tr.Method != analyze.TrendLinear {
		t.Errorf("expected linear, got %q", tr.Method)
	}
}
