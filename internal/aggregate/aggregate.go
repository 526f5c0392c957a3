// Package aggregate groups metric history into calendar periods and reduces
// each metric's values within a period to a single number. All functions are
// pure; no I/O.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/derickschaefer/sonarboard/internal/model"
)

// ErrInvalidInput is returned when a timestamp or option cannot be used.
var ErrInvalidInput = errors.New("invalid input")

// Granularity selects the period size.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// Aggregator selects the reduction applied to a period's values.
type Aggregator string

const (
	Min  Aggregator = "min"
	Max  Aggregator = "max"
	Avg  Aggregator = "avg"
	Last Aggregator = "last"
)

// ParseGranularity accepts day|week|month; empty means month.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return Month, nil
	case Day, Week, Month:
		return g, nil
	default:
		return "", fmt.Errorf("%w: unknown granularity %q (use day, week, month)", ErrInvalidInput, s)
	}
}

// ParseAggregator accepts min|max|avg|last; empty means last.
func ParseAggregator(s string) (Aggregator, error) {
	switch a := Aggregator(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return Last, nil
	case Min, Max, Avg, Last:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown aggregator %q (use min, max, avg, last)", ErrInvalidInput, s)
	}
}

// ─── Period Keys ──────────────────────────────────────────────────────────────

// AssignPeriod returns the period key of t in UTC: YYYY-MM-DD for day,
// the ISO week's Monday as YYYY-MM-DD for week, YYYY-MM for month.
func AssignPeriod(t time.Time, g Granularity) (string, error) {
	if t.IsZero() {
		return "", fmt.Errorf("%w: zero timestamp", ErrInvalidInput)
	}
	t = t.UTC()
	switch g {
	case Day:
		return t.Format("2006-01-02"), nil
	case Week:
		wd := int(t.Weekday())
		if wd == 0 {
			wd = 7
		}
		monday := time.Date(t.Year(), t.Month(), t.Day()-(wd-1), 0, 0, 0, 0, time.UTC)
		return monday.Format("2006-01-02"), nil
	case Month:
		return fmt.Sprintf("%04d-%02d", t.Year(), t.Month()), nil
	default:
		return "", fmt.Errorf("%w: unknown granularity %q", ErrInvalidInput, g)
	}
}

// ─── Bucketize / Aggregate ────────────────────────────────────────────────────

// Bucketize appends every usable sample value to bucket[period][metric] in
// input order. Samples with an invalid timestamp or a non-numeric value are
// dropped; one warning is returned per dropped sample.
func Bucketize(series []model.MetricSeries, g Granularity) (model.Bucket, []string) {
	bucket := make(model.Bucket)
	var warnings []string
	for _, s := range series {
		for i, smp := range s.Samples {
			key, err := AssignPeriod(smp.Date, g)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: sample %d dropped: %v", s.Metric, i, err))
				continue
			}
			if math.IsNaN(smp.Value) {
				warnings = append(warnings, fmt.Sprintf("%s: sample %d dropped: non-numeric value %q", s.Metric, i, smp.ValueRaw))
				continue
			}
			metrics, ok := bucket[key]
			if !ok {
				metrics = make(map[string][]float64)
				bucket[key] = metrics
			}
			metrics[s.Metric] = append(metrics[s.Metric], smp.Value)
		}
	}
	return bucket, warnings
}

// Aggregate reduces each metric in each period and returns one row per
// period, sorted ascending. An empty value list aggregates to 0.
func Aggregate(bucket model.Bucket, a Aggregator) ([]model.AggregatedRow, error) {
	switch a {
	case Min, Max, Avg, Last:
	default:
		return nil, fmt.Errorf("%w: unknown aggregator %q", ErrInvalidInput, a)
	}

	periods := make([]string, 0, len(bucket))
	for k := range bucket {
		periods = append(periods, k)
	}
	sort.Strings(periods)

	rows := make([]model.AggregatedRow, 0, len(periods))
	for _, p := range periods {
		row := model.AggregatedRow{Period: p, Values: make(map[string]float64, len(bucket[p]))}
		for metric, vals := range bucket[p] {
			row.Values[metric] = reduce(vals, a)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Group is Bucketize followed by Aggregate.
func Group(series []model.MetricSeries, g Granularity, a Aggregator) ([]model.AggregatedRow, []string, error) {
	switch g {
	case Day, Week, Month:
	default:
		return nil, nil, fmt.Errorf("%w: unknown granularity %q", ErrInvalidInput, g)
	}
	bucket, warnings := Bucketize(series, g)
	rows, err := Aggregate(bucket, a)
	return rows, warnings, err
}

// reduce applies a to vals. last is the most recently appended value, which
// is arrival order rather than time order.
func reduce(vals []float64, a Aggregator) float64 {
	if len(vals) == 0 {
		return 0
	}
	switch a {
	case Min:
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Min(m, v)
		}
		return m
	case Max:
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Max(m, v)
		}
		return m
	case Avg:
		var s float64
		for _, v := range vals {
			s += v
		}
		return s / float64(len(vals))
	default:
		return vals[len(vals)-1]
	}
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// SortSamples returns a copy of series with each metric's samples in
// chronological order. Equal timestamps keep their arrival order.
func SortSamples(series []model.MetricSeries) []model.MetricSeries {
	out := make([]model.MetricSeries, len(series))
	for i, s := range series {
		samples := make([]model.Sample, len(s.Samples))
		copy(samples, s.Samples)
		sort.SliceStable(samples, func(a, b int) bool {
			return samples[a].Date.Before(samples[b].Date)
		})
		out[i] = model.MetricSeries{Metric: s.Metric, Samples: samples}
	}
	return out
}

// Metrics returns the sorted union of metric names across rows.
func Metrics(rows []model.AggregatedRow) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		for m := range r.Values {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Flatten converts rows to one GroupedEntry per (metric, period), ordered by
// metric then period.
func Flatten(project string, rows []model.AggregatedRow) []model.GroupedEntry {
	var out []model.GroupedEntry
	for _, m := range Metrics(rows) {
		for _, r := range rows {
			v, ok := r.Values[m]
			if !ok {
				continue
			}
			out = append(out, model.GroupedEntry{Project: project, Metric: m, Bucket: r.Period, Value: &v})
		}
	}
	return out
}

// Pivot is the inverse of Flatten. Entries carrying an error are skipped and
// reported as warnings.
func Pivot(entries []model.GroupedEntry) ([]model.AggregatedRow, []string) {
	byPeriod := make(map[string]map[string]float64)
	var warnings []string
	for _, e := range entries {
		if e.Error != "" {
			warnings = append(warnings, fmt.Sprintf("%s: %s", e.Metric, e.Error))
			continue
		}
		if e.Bucket == "" {
			continue
		}
		vals, ok := byPeriod[e.Bucket]
		if !ok {
			vals = make(map[string]float64)
			byPeriod[e.Bucket] = vals
		}
		var v float64
		if e.Value != nil {
			v = *e.Value
		}
		vals[e.Metric] = v
	}
	periods := make([]string, 0, len(byPeriod))
	for p := range byPeriod {
		periods = append(periods, p)
	}
	sort.Strings(periods)
	rows := make([]model.AggregatedRow, len(periods))
	for i, p := range periods {
		rows[i] = model.AggregatedRow{Period: p, Values: byPeriod[p]}
	}
	return rows, warnings
}
