// Package pipeline reads and writes metric history as JSONL, the pipe format
// shared by `sonarboard history --format jsonl` and `sonarboard group --stdin`.
//
// One record per line:
//
//	{"metric":"bugs","date":"2024-01-03T10:00:00Z","value":4,"value_raw":"4"}
package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/derickschaefer/sonarboard/internal/model"
	"github.com/derickschaefer/sonarboard/internal/util"
)

// DefaultMetric names records that carry no metric field.
const DefaultMetric = "value"

type record struct {
	Metric   string      `json:"metric"`
	Date     string      `json:"date"`
	Value    interface{} `json:"value"`
	ValueRaw string      `json:"value_raw"`
}

// ReadSamples reads JSONL records from r and groups them into one series per
// metric, in the order metrics first appear. Samples keep line order.
// A date that does not parse is kept as the zero time so the aggregation
// engine can drop and report it; malformed JSON is an error.
func ReadSamples(r io.Reader) ([]model.MetricSeries, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var series []model.MetricSeries
	index := make(map[string]int)

	lineNum, count := 0, 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}

		val, raw, err := parseValue(rec.Value, rec.ValueRaw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		date, _ := util.ParseTimestamp(rec.Date)

		metric := rec.Metric
		if metric == "" {
			metric = DefaultMetric
		}
		i, ok := index[metric]
		if !ok {
			i = len(series)
			index[metric] = i
			series = append(series, model.MetricSeries{Metric: metric})
		}
		series[i].Samples = append(series[i].Samples, model.Sample{Date: date, Value: val, ValueRaw: raw})
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("no samples read from input (is stdin empty?)")
	}
	return series, nil
}

// parseValue accepts null, a number, or a numeric string, which is how
// SonarQube itself sends values.
func parseValue(v interface{}, raw string) (float64, string, error) {
	switch x := v.(type) {
	case nil:
		if raw == "" {
			raw = "."
		}
		return math.NaN(), raw, nil
	case float64:
		if raw == "" {
			raw = strconv.FormatFloat(x, 'g', -1, 64)
		}
		return x, raw, nil
	case string:
		if raw == "" {
			raw = x
		}
		return util.ParseMetricValue(x), raw, nil
	default:
		return 0, "", fmt.Errorf("unexpected value type %T", v)
	}
}

// WriteSamples writes every sample of series as JSONL to w.
func WriteSamples(w io.Writer, series []model.MetricSeries) error {
	enc := json.NewEncoder(w)
	for _, s := range series {
		for _, smp := range s.Samples {
			rec := record{
				Metric:   s.Metric,
				Date:     smp.Date.UTC().Format(time.RFC3339),
				ValueRaw: smp.ValueRaw,
			}
			if !math.IsNaN(smp.Value) {
				rec.Value = smp.Value
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsStdinPiped returns true if stdin is not a terminal.
func IsStdinPiped() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) == 0
}
