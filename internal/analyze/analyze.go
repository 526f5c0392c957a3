// Package analyze computes statistical summaries and trend analysis over
// metric histories. All functions are pure; no I/O.
package analyze

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/derickschaefer/sonarboard/internal/model"
)

// ─── Summary ──────────────────────────────────────────────────────────────────

// Summary holds descriptive statistics for one metric's history.
type Summary struct {
	Metric     string    `json:"metric"`
	Count      int       `json:"count"`       // total samples
	Missing    int       `json:"missing"`     // non-numeric samples
	MissingPct float64   `json:"missing_pct"` // percent missing
	Mean       float64   `json:"mean"`
	Std        float64   `json:"std"`
	Min        float64   `json:"min"`
	P25        float64   `json:"p25"`
	Median     float64   `json:"median"`
	P75        float64   `json:"p75"`
	Max        float64   `json:"max"`
	First      float64   `json:"first"` // first numeric value
	Last       float64   `json:"last"`  // last numeric value
	FirstDate  time.Time `json:"first_date"`
	LastDate   time.Time `json:"last_date"`
	Change     float64   `json:"change"`     // Last - First
	ChangePct  float64   `json:"change_pct"` // (Last-First)/|First| * 100
}

// Summarize computes descriptive statistics over s. Non-numeric samples are
// excluded from every computation but counted as missing. First and Last
// follow sample order.
func Summarize(s model.MetricSeries) Summary {
	out := Summary{Metric: s.Metric, Count: len(s.Samples)}

	var vals []float64
	for _, smp := range s.Samples {
		if smp.IsMissing() {
			out.Missing++
		} else {
			vals = append(vals, smp.Value)
		}
	}
	if out.Count > 0 {
		out.MissingPct = float64(out.Missing) / float64(out.Count) * 100
	}
	if len(vals) == 0 {
		nan := math.NaN()
		out.Mean, out.Std, out.Min, out.Max = nan, nan, nan, nan
		out.P25, out.Median, out.P75 = nan, nan, nan
		out.First, out.Last, out.Change, out.ChangePct = nan, nan, nan, nan
		return out
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	out.Min = sorted[0]
	out.Max = sorted[len(sorted)-1]
	out.Mean = sumF(vals) / float64(len(vals))
	out.Std = stddevF(vals, out.Mean)
	out.Median = percentile(sorted, 50)
	out.P25 = percentile(sorted, 25)
	out.P75 = percentile(sorted, 75)

	for _, smp := range s.Samples {
		if !smp.IsMissing() {
			out.First, out.FirstDate = smp.Value, smp.Date
			break
		}
	}
	for i := len(s.Samples) - 1; i >= 0; i-- {
		if smp := s.Samples[i]; !smp.IsMissing() {
			out.Last, out.LastDate = smp.Value, smp.Date
			break
		}
	}
	out.Change = out.Last - out.First
	if out.First != 0 {
		out.ChangePct = out.Change / math.Abs(out.First) * 100
	} else {
		out.ChangePct = math.NaN()
	}
	return out
}

// SummarizeAll summarizes every series in order.
func SummarizeAll(series []model.MetricSeries) []Summary {
	out := make([]Summary, len(series))
	for i, s := range series {
		out[i] = Summarize(s)
	}
	return out
}

// ─── Trend ────────────────────────────────────────────────────────────────────

// TrendMethod selects the regression algorithm.
type TrendMethod string

const (
	TrendLinear   TrendMethod = "linear"
	TrendTheilSen TrendMethod = "theil-sen"
)

// TrendResult holds the output of a trend analysis.
type TrendResult struct {
	Metric      string      `json:"metric"`
	Method      TrendMethod `json:"method"`
	Slope       float64     `json:"slope"` // units per day
	Intercept   float64     `json:"intercept"`
	R2          float64     `json:"r2"`
	Direction   string      `json:"direction"`     // "up", "down", "flat"
	SlopePer30d float64     `json:"slope_per_30d"` // slope * 30
	SampleCount int         `json:"sample_count"`
}

// Trend fits a trend to the numeric samples of s. X values are days since
// the first usable sample. Samples with a zero date are skipped.
func Trend(s model.MetricSeries, method TrendMethod) (TrendResult, error) {
	tr := TrendResult{Metric: s.Metric, Method: method}

	var pts []point
	var t0 time.Time
	for _, smp := range s.Samples {
		if smp.IsMissing() || smp.Date.IsZero() {
			continue
		}
		if t0.IsZero() {
			t0 = smp.Date
		}
		pts = append(pts, point{smp.Date.Sub(t0).Hours() / 24, smp.Value})
	}
	tr.SampleCount = len(pts)
	if len(pts) < 2 {
		return tr, fmt.Errorf("trend %s: need at least 2 numeric samples, got %d", s.Metric, len(pts))
	}

	switch method {
	case TrendTheilSen:
		tr.Slope = theilSenSlope(pts)
		xMean := meanPts(pts, func(p point) float64 { return p.x })
		yMean := meanPts(pts, func(p point) float64 { return p.y })
		tr.Intercept = yMean - tr.Slope*xMean
	default:
		tr.Method = TrendLinear
		tr.Slope, tr.Intercept = olsRegress(pts)
	}

	tr.R2 = r2(pts, tr.Slope, tr.Intercept)
	tr.SlopePer30d = tr.Slope * 30

	switch {
	case tr.SlopePer30d > 0.01:
		tr.Direction = "up"
	case tr.SlopePer30d < -0.01:
		tr.Direction = "down"
	default:
		tr.Direction = "flat"
	}
	return tr, nil
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

func sumF(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func stddevF(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	idx := p / 100 * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

type point struct{ x, y float64 }

func olsRegress(pts []point) (slope, intercept float64) {
	n := float64(len(pts))
	var xSum, ySum, xySum, x2Sum float64
	for _, p := range pts {
		xSum += p.x
		ySum += p.y
		xySum += p.x * p.y
		x2Sum += p.x * p.x
	}
	denom := n*x2Sum - xSum*xSum
	if denom == 0 {
		return 0, ySum / n
	}
	slope = (n*xySum - xSum*ySum) / denom
	intercept = (ySum - slope*xSum) / n
	return
}

func theilSenSlope(pts []point) float64 {
	var slopes []float64
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			dx := pts[j].x - pts[i].x
			if dx == 0 {
				continue
			}
			slopes = append(slopes, (pts[j].y-pts[i].y)/dx)
		}
	}
	if len(slopes) == 0 {
		return 0
	}
	sort.Float64s(slopes)
	return percentile(slopes, 50)
}

func r2(pts []point, slope, intercept float64) float64 {
	var yMean float64
	for _, p := range pts {
		yMean += p.y
	}
	yMean /= float64(len(pts))

	var ssTot, ssRes float64
	for _, p := range pts {
		pred := slope*p.x + intercept
		ssTot += (p.y - yMean) * (p.y - yMean)
		ssRes += (p.y - pred) * (p.y - pred)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

func meanPts(pts []point, f func(point) float64) float64 {
	var s float64
	for _, p := range pts {
		s += f(p)
	}
	return s / float64(len(pts))
}
