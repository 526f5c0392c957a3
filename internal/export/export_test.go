package export_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/derickschaefer/sonarboard/internal/export"
	"github.com/derickschaefer/sonarboard/internal/model"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func intp(n int) *int { return &n }

var queried = time.Date(2024, 5, 1, 14, 30, 0, 0, time.Local)

func fullSnapshot() *model.MetricSnapshot {
	return &model.MetricSnapshot{
		ProjectKey:      "my-app",
		QueriedAt:       queried,
		Bugs:            intp(2),
		Vulnerabilities: intp(1),
		CodeSmells:      intp(7),
		Coverage:        "81.5%",
		DuplicatedLines: "3.2%",
	}
}

type fakeServer struct {
	calls int
	err   error
}

func (f *fakeServer) DownloadExport(_ context.Context, component string, _ []string) (*model.Artifact, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &model.Artifact{Name: component + "-server.xlsx", Content: []byte("server")}, nil
}

type failingSerializer struct{}

func (failingSerializer) Serialize(string, [][]string) ([]byte, error) {
	return nil, errors.New("encoder crashed")
}

// ─── BuildRows ────────────────────────────────────────────────────────────────

func TestBuildRowsFixedOrder(t *testing.T) {
	rows := export.BuildRows(fullSnapshot())
	require.Len(t, rows, 5)

	labels := make([]string, len(rows))
	for i, r := range rows {
		labels[i] = r.Metric
		assert.Equal(t, "my-app", r.Project)
		assert.Equal(t, "2024-05-01", r.Generated)
		assert.Equal(t, "-", r.Rating)
	}
	assert.Equal(t, []string{"Bugs", "Vulnerabilities", "Code Smells", "Coverage", "Duplicated Lines"}, labels)
	assert.Equal(t, "2", rows[0].Value)
	assert.Equal(t, "1", rows[1].Value)
	assert.Equal(t, "7", rows[2].Value)
	assert.Equal(t, "81.5%", rows[3].Value)
	assert.Equal(t, "3.2%", rows[4].Value)
}

func TestBuildRowsMissingPercentages(t *testing.T) {
	s := &model.MetricSnapshot{
		ProjectKey:      "my-app",
		QueriedAt:       queried,
		Bugs:            intp(2),
		Vulnerabilities: intp(0),
		CodeSmells:      intp(7),
	}
	rows := export.BuildRows(s)
	require.Len(t, rows, 5)
	assert.Equal(t, "0", rows[1].Value)
	assert.Equal(t, "0%", rows[3].Value)
	assert.Equal(t, "0%", rows[4].Value)
}

func TestBuildRowsEmptySnapshot(t *testing.T) {
	for _, s := range []*model.MetricSnapshot{nil, {}} {
		rows := export.BuildRows(s)
		require.Len(t, rows, 5)
		assert.Equal(t, export.DefaultProject, rows[0].Project)
		assert.Equal(t, "0", rows[0].Value)
		assert.Equal(t, "0", rows[2].Value)
		assert.Equal(t, "0%", rows[4].Value)
		assert.Equal(t, rows[0].Generated, rows[4].Generated)
	}
}

// ─── CSV ──────────────────────────────────────────────────────────────────────

func TestSerializeCSV(t *testing.T) {
	rows := export.BuildRows(fullSnapshot())
	out := export.SerializeCSV(rows)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 1+len(rows))
	assert.Len(t, strings.Split(lines[0], ","), 5)
	assert.Equal(t, "Project,Generated,Metric,Value,Rating", lines[0])
	assert.Equal(t, "my-app,2024-05-01,Code Smells,7,-", lines[3])
	assert.False(t, strings.HasSuffix(out, "\n"))
}

// Fields are not quoted, so a comma inside a value shifts the columns. This
// pins the current unescaped format.
func TestSerializeCSVDoesNotQuote(t *testing.T) {
	s := fullSnapshot()
	s.ProjectKey = "acme, inc"
	lines := strings.Split(export.SerializeCSV(export.BuildRows(s)), "\n")
	assert.Equal(t, "acme, inc,2024-05-01,Bugs,2,-", lines[1])
	assert.Len(t, strings.Split(lines[1], ","), 6)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "my-app-SonarQube-2024-05-01.csv", export.FileName("my-app", queried, export.ExtCSV))
	assert.Equal(t, "Projeto-SonarQube-2024-05-01.xlsx", export.FileName("", queried, export.ExtXLSX))
}

func TestCSVArtifact(t *testing.T) {
	a, err := export.CSVArtifact(fullSnapshot())
	require.NoError(t, err)
	assert.Equal(t, "my-app-SonarQube-2024-05-01.csv", a.Name)
	assert.Equal(t, export.MIMECSV, a.MIMEType)

	_, err = export.CSVArtifact(nil)
	assert.ErrorIs(t, err, export.ErrNoSnapshot)
}

// ─── Workbook ─────────────────────────────────────────────────────────────────

func TestExcelSerializerProducesXLSX(t *testing.T) {
	b, err := export.SerializeWorkbook(export.ExcelSerializer{ColWidth: 18}, export.BuildRows(fullSnapshot()))
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err, "xlsx must be a zip container")
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "xl/workbook.xml")
	assert.Contains(t, names, "xl/worksheets/sheet1.xml")
}

func TestSerializeWorkbookUnavailable(t *testing.T) {
	rows := export.BuildRows(fullSnapshot())

	_, err := export.SerializeWorkbook(nil, rows)
	assert.ErrorIs(t, err, export.ErrSerializerUnavailable)

	_, err = export.SerializeWorkbook(export.Unavailable{}, rows)
	assert.ErrorIs(t, err, export.ErrSerializerUnavailable)
}

func TestExporterLocalWorkbook(t *testing.T) {
	srv := &fakeServer{}
	e := export.Exporter{Serializer: export.ExcelSerializer{}, Server: srv}

	a, viaServer, err := e.Workbook(context.Background(), fullSnapshot())
	require.NoError(t, err)
	assert.False(t, viaServer)
	assert.Equal(t, "my-app-SonarQube-2024-05-01.xlsx", a.Name)
	assert.Equal(t, export.MIMEXLSX, a.MIMEType)
	assert.Equal(t, 0, srv.calls)
}

func TestExporterFallsBackToServer(t *testing.T) {
	for _, ser := range []export.TabularSerializer{nil, export.Unavailable{}, failingSerializer{}} {
		srv := &fakeServer{}
		e := export.Exporter{Serializer: ser, Server: srv}

		a, viaServer, err := e.Workbook(context.Background(), fullSnapshot())
		require.NoError(t, err)
		assert.True(t, viaServer)
		assert.Equal(t, "my-app-server.xlsx", a.Name)
		assert.Equal(t, 1, srv.calls)
	}
}

func TestExporterBothPathsFail(t *testing.T) {
	e := export.Exporter{Serializer: export.Unavailable{}, Server: &fakeServer{err: errors.New("HTTP 502")}}
	_, _, err := e.Workbook(context.Background(), fullSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
	assert.Contains(t, err.Error(), "unavailable")
}

func TestExporterNoSnapshot(t *testing.T) {
	e := export.Exporter{Serializer: export.ExcelSerializer{}}
	_, _, err := e.Workbook(context.Background(), nil)
	assert.ErrorIs(t, err, export.ErrNoSnapshot)
}

// ─── History workbook ─────────────────────────────────────────────────────────

func sampleSeries() []model.MetricSeries {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 8, 0, 0, 0, time.UTC) }
	return []model.MetricSeries{
		{Metric: "bugs", Samples: []model.Sample{
			{Date: day(1), Value: 5, ValueRaw: "5"},
			{Date: day(8), Value: 3, ValueRaw: "3"},
			{Date: day(15), Value: 8, ValueRaw: "8"},
		}},
		{Metric: "code_smells", Samples: []model.Sample{
			{Date: day(2), Value: 40, ValueRaw: "40"},
			{Date: day(9), Value: math.NaN(), ValueRaw: "n/a"},
		}},
		{Metric: "vulnerabilities"},
	}
}

func openWorkbook(t *testing.T, b []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestHistoryWorkbookSheets(t *testing.T) {
	a, err := export.HistoryWorkbook(export.ExcelSerializer{}, fullSnapshot(), sampleSeries())
	require.NoError(t, err)
	assert.Equal(t, "my-app-SonarQube-History-2024-05-01.xlsx", a.Name)
	assert.Equal(t, export.MIMEXLSX, a.MIMEType)

	f := openWorkbook(t, a.Content)
	assert.Equal(t, []string{export.SheetCurrent, export.SheetHistory, export.SheetSummary}, f.GetSheetList())

	current, err := f.GetRows(export.SheetCurrent)
	require.NoError(t, err)
	assert.Len(t, current, 6)
	assert.Equal(t, export.Header, current[0])

	history, err := f.GetRows(export.SheetHistory)
	require.NoError(t, err)
	require.Len(t, history, 6, "header plus one row per sample")
	assert.Equal(t, export.HistoryHeader, history[0])
	assert.Equal(t, []string{"my-app", "bugs", "2024-01-01T08:00:00Z", "5"}, history[1])
	assert.Equal(t, "n/a", history[5][3])

	summary, err := f.GetRows(export.SheetSummary)
	require.NoError(t, err)
	require.Len(t, summary, 3, "metrics without numeric samples are left out")
	assert.Equal(t, export.SummaryHeader, summary[0])
	assert.Equal(t, []string{"my-app", "bugs", "3", "8", "5.33", "8"}, summary[1])
	assert.Equal(t, []string{"my-app", "code_smells", "40", "40", "40", "40"}, summary[2])
}

func TestHistoryWorkbookWithoutSamples(t *testing.T) {
	sheets := export.HistorySheets(fullSnapshot(), []model.MetricSeries{{Metric: "bugs"}})
	require.Len(t, sheets, 1)
	assert.Equal(t, export.SheetCurrent, sheets[0].Name)

	a, err := export.HistoryWorkbook(export.ExcelSerializer{}, fullSnapshot(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{export.SheetCurrent}, openWorkbook(t, a.Content).GetSheetList())
}

func TestHistoryWorkbookNeedsSheetSerializer(t *testing.T) {
	for _, ser := range []export.TabularSerializer{nil, export.Unavailable{}, failingSerializer{}} {
		_, err := export.HistoryWorkbook(ser, fullSnapshot(), sampleSeries())
		assert.ErrorIs(t, err, export.ErrSerializerUnavailable)
	}
	_, err := export.HistoryWorkbook(export.ExcelSerializer{}, nil, nil)
	assert.ErrorIs(t, err, export.ErrNoSnapshot)
}

// ─── Download ─────────────────────────────────────────────────────────────────

func TestDownloadWritesFileAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	a, err := export.CSVArtifact(fullSnapshot())
	require.NoError(t, err)

	path, err := export.Download(a, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "my-app-SonarQube-2024-05-01.csv"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, a.Content, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be removed")
}

func TestDownloadStripsDirectories(t *testing.T) {
	dir := t.TempDir()
	path, err := export.Download(&model.Artifact{Name: "../../evil.csv", Content: []byte("x")}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "evil.csv"), path)
}

func TestDownloadBothPathsFail(t *testing.T) {
	dir := t.TempDir()
	// A directory squatting on the target name defeats rename and direct write.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "taken.csv"), 0755))

	_, err := export.Download(&model.Artifact{Name: "taken.csv", Content: []byte("x")}, dir)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "failed download must not leave temp files behind")
}

func TestDownloadInvalidName(t *testing.T) {
	_, err := export.Download(&model.Artifact{Name: ""}, t.TempDir())
	assert.Error(t, err)

	_, err = export.Download(nil, t.TempDir())
	assert.ErrorIs(t, err, export.ErrNoSnapshot)
}
