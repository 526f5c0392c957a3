// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/sonarboard/internal/analyze"
	"github.com/derickschaefer/sonarboard/internal/dashboard"
	"github.com/derickschaefer/sonarboard/internal/export"
	"github.com/derickschaefer/sonarboard/internal/model"
	"github.com/derickschaefer/sonarboard/internal/pipeline"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

// ─── Tabular projection ───────────────────────────────────────────────────────

// grid is a result flattened to a header and rows of cells. Every text
// format except JSON is drawn from it.
type grid struct {
	header []string
	rows   [][]string
	// right lists the columns holding numbers.
	right map[int]bool
}

func tabulate(result *model.Result) (*grid, error) {
	switch result.Kind {
	case model.KindSnapshot:
		snap, ok := result.Data.(*model.MetricSnapshot)
		if !ok {
			return nil, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		return snapshotGrid(snap), nil
	case model.KindHistory:
		series, ok := result.Data.([]model.MetricSeries)
		if !ok {
			return nil, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		return historyGrid(series), nil
	case model.KindAggregated:
		table, ok := result.Data.(*model.AggregatedTable)
		if !ok {
			return nil, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		return aggregatedGrid(table), nil
	case model.KindExportRows:
		rows, ok := result.Data.([]model.ExportRow)
		if !ok {
			return nil, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		t := export.Table(rows)
		return &grid{header: t[0], rows: t[1:]}, nil
	case model.KindSummary:
		sums, ok := result.Data.([]analyze.Summary)
		if !ok {
			return nil, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		return summaryGrid(sums), nil
	case model.KindTrend:
		trends, ok := result.Data.([]analyze.TrendResult)
		if !ok {
			return nil, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		return trendGrid(trends), nil
	default:
		return nil, fmt.Errorf("no tabular layout for %q", result.Kind)
	}
}

func snapshotGrid(s *model.MetricSnapshot) *grid {
	vm := dashboard.NewViewModel(s)
	return &grid{
		header: []string{"FIELD", "VALUE"},
		rows: [][]string{
			{"Component", vm.Component},
			{"Last Update", vm.LastUpdate},
			{"Bugs", vm.Bugs},
			{"Vulnerabilities", vm.Vulnerabilities},
			{"Code Smells", vm.CodeSmells},
			{"Security Hotspots", vm.SecurityHotspots},
			{"Coverage", vm.Coverage},
			{"Duplicated Lines", vm.DuplicatedLines},
			{"Reliability", vm.ReliabilityRating},
			{"Security", vm.SecurityRating},
			{"Maintainability", vm.MaintainRating},
		},
	}
}

func historyGrid(series []model.MetricSeries) *grid {
	g := &grid{header: []string{"METRIC", "DATE", "VALUE"}, right: map[int]bool{2: true}}
	for _, s := range series {
		for _, smp := range s.Samples {
			g.rows = append(g.rows, []string{s.Metric, formatDate(smp.Date), formatValue(smp.Value)})
		}
	}
	return g
}

func aggregatedGrid(t *model.AggregatedTable) *grid {
	g := &grid{header: []string{"PERIOD"}, right: map[int]bool{}}
	for i, m := range t.Metrics {
		g.header = append(g.header, strings.ToUpper(m))
		g.right[i+1] = true
	}
	for _, r := range t.Rows {
		line := []string{r.Period}
		for _, m := range t.Metrics {
			if v, ok := r.Values[m]; ok {
				line = append(line, formatValue(v))
			} else {
				line = append(line, "")
			}
		}
		g.rows = append(g.rows, line)
	}
	return g
}

func summaryGrid(sums []analyze.Summary) *grid {
	g := &grid{
		header: []string{"METRIC", "COUNT", "MISSING", "MEAN", "STD", "MIN", "MEDIAN", "MAX", "FIRST", "LAST", "CHANGE", "CHANGE%"},
		right:  map[int]bool{},
	}
	for i := 1; i < len(g.header); i++ {
		g.right[i] = true
	}
	for _, s := range sums {
		g.rows = append(g.rows, []string{
			s.Metric,
			strconv.Itoa(s.Count),
			strconv.Itoa(s.Missing),
			formatValue(s.Mean),
			formatValue(s.Std),
			formatValue(s.Min),
			formatValue(s.Median),
			formatValue(s.Max),
			formatValue(s.First),
			formatValue(s.Last),
			formatValue(s.Change),
			formatValue(s.ChangePct),
		})
	}
	return g
}

func trendGrid(trends []analyze.TrendResult) *grid {
	g := &grid{
		header: []string{"METRIC", "METHOD", "DIRECTION", "SLOPE/30D", "R2", "SAMPLES"},
		right:  map[int]bool{3: true, 4: true, 5: true},
	}
	for _, t := range trends {
		g.rows = append(g.rows, []string{
			t.Metric,
			string(t.Method),
			t.Direction,
			formatValue(t.SlopePer30d),
			formatValue(t.R2),
			strconv.Itoa(t.SampleCount),
		})
	}
	return g
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

// renderJSON writes the full envelope. NaN statistics become null.
func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonSafe(result))
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// renderJSONL writes one record per line: samples for history, periods for
// aggregated tables and one item per element otherwise.
func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch data := result.Data.(type) {
	case []model.MetricSeries:
		return pipeline.WriteSamples(w, data)
	case *model.AggregatedTable:
		for _, r := range data.Rows {
			rec := map[string]interface{}{"period": r.Period}
			for m, v := range r.Values {
				rec[m] = v
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	case []model.ExportRow:
		for _, r := range data {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	case []analyze.Summary, []analyze.TrendResult:
		g, err := tabulate(result)
		if err != nil {
			return err
		}
		for _, row := range g.rows {
			rec := make(map[string]string, len(row))
			for i, cell := range row {
				rec[strings.ToLower(g.header[i])] = cell
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.Encode(jsonSafe(result).Data)
	}
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	g, err := tabulate(result)
	if err != nil {
		return renderJSON(w, result)
	}
	if header, ok := result.Data.(*model.AggregatedTable); ok {
		fmt.Fprintf(w, "%s  by %s  (%s)\n", header.Project, header.GroupBy, header.Agg)
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader(g.header)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	if len(g.right) > 0 {
		align := make([]int, len(g.header))
		for i := range align {
			align[i] = tablewriter.ALIGN_LEFT
			if g.right[i] {
				align[i] = tablewriter.ALIGN_RIGHT
			}
		}
		tw.SetColumnAlignment(align)
	}
	tw.SetAutoWrapText(false)
	tw.AppendBulk(g.rows)
	tw.Render()
	return nil
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	g, err := tabulate(result)
	if err != nil {
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(jsonSafe(result).Data)
		_ = cw.Write([]string{string(b)})
	} else {
		header := make([]string, len(g.header))
		for i, h := range g.header {
			header[i] = strings.ToLower(h)
		}
		if result.Kind == model.KindExportRows {
			header = g.header
		}
		_ = cw.Write(header)
		_ = cw.WriteAll(g.rows)
	}

	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	g, err := tabulate(result)
	if err != nil {
		return renderJSON(w, result)
	}
	sepRow := make([]string, len(g.header))
	for i, h := range g.header {
		sepRow[i] = strings.Repeat("-", max(len(h), 3))
	}
	fmt.Fprintf(w, "| %s |\n|%s|\n", strings.Join(g.header, " | "), strings.Join(sepRow, "|"))
	for _, row := range g.rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = mdEscape(c)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		src := "live"
		if result.Stats.CacheHit {
			src = "cache"
		}
		fmt.Fprintf(w, "\n[%s • %d items • %dms • %s]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
			src,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formatValue formats a metric value for display.
// Always shows at least one decimal place (e.g. 4.0, not 4).
// Trims unnecessary trailing zeros beyond the first (e.g. 3.400000 → 3.4).
// Missing values (NaN) render as ".".
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	s := strings.TrimRight(fmt.Sprintf("%.6f", v), "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "."
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// jsonSafe returns result with NaN statistics replaced by nil-able copies
// that encoding/json accepts.
func jsonSafe(result *model.Result) *model.Result {
	out := *result
	switch data := result.Data.(type) {
	case []analyze.Summary:
		out.Data = summariesJSON(data)
	case []analyze.TrendResult:
		cp := make([]analyze.TrendResult, len(data))
		for i, t := range data {
			t.R2 = zeroNaN(t.R2)
			cp[i] = t
		}
		out.Data = cp
	}
	return &out
}

func summariesJSON(sums []analyze.Summary) []map[string]interface{} {
	out := make([]map[string]interface{}, len(sums))
	for i, s := range sums {
		out[i] = map[string]interface{}{
			"metric":      s.Metric,
			"count":       s.Count,
			"missing":     s.Missing,
			"missing_pct": s.MissingPct,
			"mean":        nullable(s.Mean),
			"std":         nullable(s.Std),
			"min":         nullable(s.Min),
			"p25":         nullable(s.P25),
			"median":      nullable(s.Median),
			"p75":         nullable(s.P75),
			"max":         nullable(s.Max),
			"first":       nullable(s.First),
			"last":        nullable(s.Last),
			"first_date":  s.FirstDate,
			"last_date":   s.LastDate,
			"change":      nullable(s.Change),
			"change_pct":  nullable(s.ChangePct),
		}
	}
	return out
}

func nullable(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
