package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestOutputWriterDefault(t *testing.T) {
	globalFlags.Out = ""
	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter default: %v", err)
	}
	if w != os.Stdout {
		t.Fatalf("expected stdout writer passthrough")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("default closer should be nil error, got: %v", err)
	}
}

func TestOutputWriterFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.txt")
	globalFlags.Out = p
	t.Cleanup(func() { globalFlags.Out = "" })

	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter file: %v", err)
	}
	if w == os.Stdout {
		t.Fatalf("expected file writer, got stdout")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("closing output writer: %v", err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
}

func TestResolveMetricsFallsBackToDefault(t *testing.T) {
	def := []string{"bugs", "coverage"}
	got := resolveMetrics(nil, def)
	if strings.Join(got, ",") != "bugs,coverage" {
		t.Fatalf("expected default metrics, got %v", got)
	}
	got[0] = "changed"
	if def[0] != "bugs" {
		t.Fatal("resolveMetrics must copy the default slice")
	}

	got = resolveMetrics([]string{"coverage, bugs", "coverage"}, def)
	if strings.Join(got, ",") != "coverage,bugs" {
		t.Fatalf("expected split and deduplicated metrics, got %v", got)
	}
}

func TestValidateDate(t *testing.T) {
	if err := validateDate("from", ""); err != nil {
		t.Fatalf("empty date should be accepted, got %v", err)
	}
	if err := validateDate("from", "2024-02-30"); err == nil {
		t.Fatal("expected error for impossible date")
	}
	if err := validateDate("to", "2024-02-29"); err != nil {
		t.Fatalf("leap day should be valid, got %v", err)
	}
}

func TestCommandRouting(t *testing.T) {
	pairs := [][]string{
		{"measures"},
		{"history"},
		{"group"},
		{"export"},
		{"analyze", "summary"},
		{"analyze", "trend"},
		{"chart", "bar"},
		{"chart", "plot"},
		{"serve"},
		{"config", "init"},
		{"config", "get"},
		{"config", "set"},
		{"cache", "stats"},
		{"cache", "clear"},
		{"cache", "compact"},
		{"version"},
		{"completion"},
	}
	for _, pair := range pairs {
		c, _, err := rootCmd.Find(pair)
		if err != nil {
			t.Errorf("%v: %v", pair, err)
			continue
		}
		if c.Name() != pair[len(pair)-1] {
			t.Errorf("%v resolved to %q", pair, c.Name())
		}
	}
}

// ─── End to end against a fake backend ───────────────────────────────────────

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/medidas":
			w.Write([]byte(`{"component":{"key":"my-app","measures":[
				{"metric":"bugs","value":"7"},
				{"metric":"coverage","value":"81.27"},
				{"metric":"reliability_rating","value":"1.0"}]}}`))
		case "/api/historico":
			w.Write([]byte(`{"measures":[{"metric":"bugs","history":[
				{"date":"2024-01-03T10:00:00+0000","value":"3"},
				{"date":"2024-01-20T10:00:00+0000","value":"8"},
				{"date":"2024-02-02T10:00:00+0000","value":"1"}]}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	globalFlags = globalOptions{}
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestMeasuresCommandCSV(t *testing.T) {
	srv := fakeBackend(t)
	out, err := runCLI(t, "--backend", srv.URL, "--format", "csv", "measures", "my-app")
	if err != nil {
		t.Fatalf("measures: %v", err)
	}
	for _, want := range []string{"field,value\n", "Component,my-app\n", "Bugs,7\n", "Coverage,81.3%\n", "Reliability,A\n", "Vulnerabilities,0\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestGroupCommandMonthlyMax(t *testing.T) {
	srv := fakeBackend(t)
	out, err := runCLI(t, "--backend", srv.URL, "--format", "csv",
		"group", "my-app", "--metrics", "bugs", "--by", "month", "--agg", "max")
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	want := "period,bugs\n2024-01,8.0\n2024-02,1.0\n"
	if out != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, out)
	}
}

func TestGroupCommandRejectsUnknownAggregator(t *testing.T) {
	_, err := runCLI(t, "group", "my-app", "--by", "month", "--agg", "median")
	if err == nil || !strings.Contains(err.Error(), "--agg") {
		t.Fatalf("expected --agg error, got %v", err)
	}
}

func TestExportCommandWritesCSV(t *testing.T) {
	srv := fakeBackend(t)
	dir := t.TempDir()
	out, err := runCLI(t, "--backend", srv.URL, "--no-color", "export", "my-app", "--type", "csv", "--out-dir", dir, "--rows=false")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "my-app-SonarQube-*.csv"))
	if len(matches) != 1 {
		t.Fatalf("expected one CSV export in %s, got %v (output %q)", dir, matches, out)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) != 6 || lines[0] != "Project,Generated,Metric,Value,Rating" {
		t.Fatalf("unexpected export:\n%s", data)
	}
	if !strings.HasSuffix(lines[4], ",Coverage,81.3%,-") {
		t.Errorf("coverage row: got %q", lines[4])
	}
	if !strings.Contains(out, "Wrote") {
		t.Errorf("expected confirmation, got %q", out)
	}
}

func TestExportCommandHistoryWorkbook(t *testing.T) {
	t.Cleanup(func() {
		exportHistory = false
		exportHist = historyFlags{}
		exportType = "csv"
	})
	srv := fakeBackend(t)
	dir := t.TempDir()
	_, err := runCLI(t, "--backend", srv.URL, "--no-color", "export", "my-app",
		"--history", "--type", "xlsx", "--from", "2024-01-01", "--out-dir", dir, "--rows=false")
	if err != nil {
		t.Fatalf("export --history: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "my-app-SonarQube-History-*.xlsx"))
	if len(matches) != 1 {
		t.Fatalf("expected one history workbook in %s, got %v", dir, matches)
	}

	f, err := excelize.OpenFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	want := []string{"Dados_Atuais", "Historico_Temporal", "Resumo_Periodo"}
	if got := f.GetSheetList(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("sheets: got %v, want %v", got, want)
	}
	rows, err := f.GetRows("Historico_Temporal")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Errorf("expected header plus 3 samples, got %d rows", len(rows))
	}
}

func TestExportCommandHistoryRejectsCSV(t *testing.T) {
	t.Cleanup(func() {
		exportHistory = false
		exportType = "csv"
	})
	_, err := runCLI(t, "export", "my-app", "--history", "--type", "csv")
	if err == nil || !strings.Contains(err.Error(), "--history") {
		t.Fatalf("expected --history error, got %v", err)
	}
}

func TestShortModule(t *testing.T) {
	cases := map[string]string{
		"github.com/xuri/excelize/v2": "excelize",
		"go.etcd.io/bbolt":            "bbolt",
		"github.com/spf13/cobra":      "cobra",
	}
	for in, want := range cases {
		if got := shortModule(in); got != want {
			t.Errorf("shortModule(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVersionCommandJSON(t *testing.T) {
	out, err := runCLI(t, "--backend", "http://backend.test:9090", "--format", "json", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var info versionInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, out)
	}
	if info.Version != Version || info.Backend != "http://backend.test:9090" {
		t.Errorf("unexpected version info: %+v", info)
	}
}
