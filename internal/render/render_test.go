package render_test

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derickschaefer/sonarboard/internal/analyze"
	"github.com/derickschaefer/sonarboard/internal/export"
	"github.com/derickschaefer/sonarboard/internal/model"
	"github.com/derickschaefer/sonarboard/internal/render"
)

func intp(n int) *int { return &n }

func snapshotResult() *model.Result {
	return &model.Result{
		Kind:    model.KindSnapshot,
		Command: "measures",
		Data: &model.MetricSnapshot{
			ProjectKey:        "my-app",
			QueriedAt:         time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
			Bugs:              intp(12),
			Coverage:          "64.4%",
			ReliabilityRating: "3.0",
		},
	}
}

func aggregatedResult() *model.Result {
	return &model.Result{
		Kind: model.KindAggregated,
		Data: &model.AggregatedTable{
			Project: "my-app",
			GroupBy: "month",
			Agg:     "avg",
			Metrics: []string{"bugs", "coverage"},
			Rows: []model.AggregatedRow{
				{Period: "2024-01", Values: map[string]float64{"bugs": 3, "coverage": 70.5}},
				{Period: "2024-02", Values: map[string]float64{"bugs": 1}},
			},
		},
	}
}

func TestTableSnapshotUsesDisplayValues(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render.Render(&buf, snapshotResult(), render.FormatTable))
	out := buf.String()
	assert.Contains(t, out, "my-app")
	assert.Contains(t, out, "2024-03-15 10:30:00")
	assert.Contains(t, out, "64.4%")
	assert.Contains(t, out, "Reliability")
	assert.Contains(t, out, " C ")
}

func TestCSVAggregatedLeavesMissingCellsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render.Render(&buf, aggregatedResult(), render.FormatCSV))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "period,bugs,coverage", lines[0])
	assert.Equal(t, "2024-01,3.0,70.5", lines[1])
	assert.Equal(t, "2024-02,1.0,", lines[2])
}

func TestTSVHistory(t *testing.T) {
	res := &model.Result{
		Kind: model.KindHistory,
		Data: []model.MetricSeries{{Metric: "bugs", Samples: []model.Sample{
			{Date: time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC), Value: 4, ValueRaw: "4"},
			{Date: time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC), Value: math.NaN()},
		}}},
	}
	var buf bytes.Buffer
	require.NoError(t, render.Render(&buf, res, render.FormatTSV))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "metric\tdate\tvalue", lines[0])
	assert.Equal(t, "bugs\t2024-01-02 08:00\t4.0", lines[1])
	assert.Equal(t, "bugs\t2024-01-03 08:00\t.", lines[2])
}

func TestCSVExportRowsKeepsExportHeader(t *testing.T) {
	rows := export.BuildRows(&model.MetricSnapshot{ProjectKey: "p", QueriedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	var buf bytes.Buffer
	require.NoError(t, render.Render(&buf, &model.Result{Kind: model.KindExportRows, Data: rows}, render.FormatCSV))
	assert.True(t, strings.HasPrefix(buf.String(), "Project,Generated,Metric,Value,Rating\n"))
	assert.Contains(t, buf.String(), "p,2024-01-01,Coverage,0%,-")
}

func TestJSONLAggregatedOneRecordPerPeriod(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render.Render(&buf, aggregatedResult(), render.FormatJSONL))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "2024-01", rec["period"])
	assert.Equal(t, 70.5, rec["coverage"])
}

func TestJSONSummaryWithNaNIsValid(t *testing.T) {
	sums := analyze.SummarizeAll([]model.MetricSeries{{Metric: "bugs", Samples: []model.Sample{{Value: math.NaN()}}}})
	res := &model.Result{Kind: model.KindSummary, Data: sums}
	var buf bytes.Buffer
	require.NoError(t, render.Render(&buf, res, render.FormatJSON))

	var decoded struct {
		Kind string                   `json:"kind"`
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Data, 1)
	assert.Nil(t, decoded.Data[0]["mean"])
	assert.Equal(t, float64(1), decoded.Data[0]["missing"])
}

func TestMarkdownEscapesPipes(t *testing.T) {
	res := &model.Result{Kind: model.KindExportRows, Data: []model.ExportRow{
		{Project: "a|b", Generated: "2024-01-01", Metric: "Bugs", Value: "0", Rating: "-"},
	}}
	var buf bytes.Buffer
	require.NoError(t, render.Render(&buf, res, render.FormatMD))
	assert.Contains(t, buf.String(), `a\|b`)
	assert.True(t, strings.HasPrefix(buf.String(), "| Project | Generated |"))
}

func TestUnknownKindFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render.Render(&buf, &model.Result{Kind: "other", Data: map[string]int{"n": 1}}, render.FormatTable))
	assert.Contains(t, buf.String(), `"kind": "other"`)
}

func TestPrintFooter(t *testing.T) {
	res := &model.Result{
		GeneratedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Warnings:    []string{"bugs: 1 sample dropped"},
		Stats:       model.ResultStats{CacheHit: true, Items: 4, DurationMs: 12},
	}
	var buf bytes.Buffer
	render.PrintFooter(&buf, res, true)
	assert.Contains(t, buf.String(), "⚠  bugs: 1 sample dropped")
	assert.Contains(t, buf.String(), "4 items • 12ms • cache")

	buf.Reset()
	render.PrintFooter(&buf, &model.Result{}, false)
	assert.Empty(t, buf.String())
}
