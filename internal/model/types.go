// Package model defines the canonical data types used throughout sonarboard.
// These types are the single source of truth for SonarQube measures, metric
// history, aggregated periods, export rows and the result envelope that every
// command returns.
package model

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// ─── Wire Values ──────────────────────────────────────────────────────────────

// FlexValue holds a measure value that the backend may send either as a JSON
// string ("12", "87.5") or as a bare number. It is always kept as text.
type FlexValue string

// UnmarshalJSON accepts strings, numbers and null.
func (v *FlexValue) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = FlexValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = FlexValue(n.String())
	return nil
}

// String returns the raw text.
func (v FlexValue) String() string { return string(v) }

// ─── Current Measures ─────────────────────────────────────────────────────────

// Measure is a single metric value for a component.
type Measure struct {
	Metric string    `json:"metric"`
	Value  FlexValue `json:"value"`
}

// Component is the analysed project as returned by api/measures/component.
type Component struct {
	Key      string    `json:"key"`
	Name     string    `json:"name,omitempty"`
	Measures []Measure `json:"measures"`
}

// MeasuresResponse is the payload of GET /api/medidas.
type MeasuresResponse struct {
	Component Component `json:"component"`
}

// Values returns the measures keyed by metric name.
func (r MeasuresResponse) Values() map[string]string {
	out := make(map[string]string, len(r.Component.Measures))
	for _, m := range r.Component.Measures {
		out[m.Metric] = m.Value.String()
	}
	return out
}

// ─── Metric History ───────────────────────────────────────────────────────────

// Sample is one point in a metric's history.
// Value is NaN when ValueRaw could not be parsed as a number.
type Sample struct {
	Date     time.Time `json:"date"`
	Value    float64   `json:"value"`
	ValueRaw string    `json:"value_raw"`
}

// IsMissing returns true if the sample value is NaN.
func (s Sample) IsMissing() bool {
	return math.IsNaN(s.Value)
}

// MarshalJSON writes NaN values as null, which encoding/json cannot represent.
func (s Sample) MarshalJSON() ([]byte, error) {
	var val interface{}
	if !s.IsMissing() {
		val = s.Value
	}
	return json.Marshal(struct {
		Date     time.Time   `json:"date"`
		Value    interface{} `json:"value"`
		ValueRaw string      `json:"value_raw"`
	}{s.Date, val, s.ValueRaw})
}

// MetricSeries is one metric's full history, in the order the backend sent it.
type MetricSeries struct {
	Metric  string   `json:"metric"`
	Samples []Sample `json:"samples"`
}

// HistoryPoint is a raw entry of api/measures/search_history.
type HistoryPoint struct {
	Date  string    `json:"date"`
	Value FlexValue `json:"value"`
}

// HistoryMeasure is the raw history for one metric.
type HistoryMeasure struct {
	Metric  string         `json:"metric"`
	History []HistoryPoint `json:"history"`
}

// HistoryResponse is the payload of GET /api/historico.
type HistoryResponse struct {
	Measures []HistoryMeasure `json:"measures"`
}

// ─── Aggregation ──────────────────────────────────────────────────────────────

// Bucket maps period key → metric name → values in arrival order.
type Bucket map[string]map[string][]float64

// AggregatedRow is the reduced value of every metric seen in one period.
type AggregatedRow struct {
	Period string             `json:"period"`
	Values map[string]float64 `json:"values"`
}

// AggregatedTable is a grouped history ready for display: one row per
// period, one column per metric.
type AggregatedTable struct {
	Project string          `json:"project"`
	GroupBy string          `json:"group_by"`
	Agg     string          `json:"agg"`
	Metrics []string        `json:"metrics"`
	Rows    []AggregatedRow `json:"rows"`
}

// GroupedEntry is one (metric, bucket) cell of the grouped-history endpoint.
// Error is set instead of Bucket/Value when the metric could not be fetched.
type GroupedEntry struct {
	Project string   `json:"projeto"`
	Metric  string   `json:"metrica"`
	Bucket  string   `json:"bucket,omitempty"`
	Value   *float64 `json:"valor,omitempty"`
	Error   string   `json:"erro,omitempty"`
}

// Period is an inclusive date range.
type Period struct {
	From string `json:"de"`
	To   string `json:"ate"`
}

// GroupedResponse is the payload of GET /api/consultar_periodo_agrupado/:component.
type GroupedResponse struct {
	Project string         `json:"projeto"`
	Period  Period         `json:"periodo"`
	GroupBy string         `json:"group_by"`
	Agg     string         `json:"agg"`
	Data    []GroupedEntry `json:"dados"`
}

// ─── Snapshot & Export ────────────────────────────────────────────────────────

// MetricSnapshot is the latest set of current values for one component.
// Nil counts and empty percentages mean the backend did not report them.
type MetricSnapshot struct {
	ProjectKey        string    `json:"projeto"`
	QueriedAt         time.Time `json:"data_consulta"`
	Bugs              *int      `json:"bugs,omitempty"`
	Vulnerabilities   *int      `json:"vulnerabilidades,omitempty"`
	CodeSmells        *int      `json:"code_smells,omitempty"`
	SecurityHotspots  *int      `json:"security_hotspots,omitempty"`
	Coverage          string    `json:"coverage,omitempty"`
	DuplicatedLines   string    `json:"duplicacoes,omitempty"`
	ReliabilityRating string    `json:"reliability_rating,omitempty"`
	SecurityRating    string    `json:"security_rating,omitempty"`
	SqaleRating       string    `json:"sqale_rating,omitempty"`
}

// Count formats an optional count, returning def when it is absent.
func Count(n *int, def string) string {
	if n == nil {
		return def
	}
	return strconv.Itoa(*n)
}

// ExportRow is one line of the tabular export.
type ExportRow struct {
	Project   string `json:"project"`
	Generated string `json:"generated"`
	Metric    string `json:"metric"`
	Value     string `json:"value"`
	Rating    string `json:"rating"`
}

// Artifact is a named, typed file ready to be written or served.
type Artifact struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Content  []byte `json:"-"`
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance and cache metadata for a command result.
type ResultStats struct {
	CacheHit   bool  `json:"cache_hit"`
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindSnapshot   = "snapshot"
	KindHistory    = "history"
	KindAggregated = "aggregated"
	KindExportRows = "export_rows"
	KindSummary    = "summary"
	KindTrend      = "trend"
)
