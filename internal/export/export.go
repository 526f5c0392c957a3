// Package export turns a metric snapshot into the fixed five-row table that
// sonarboard exports, and serialises it as CSV or as a spreadsheet.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/derickschaefer/sonarboard/internal/model"
	"github.com/derickschaefer/sonarboard/internal/util"
)

// Header is the export's column list.
var Header = []string{"Project", "Generated", "Metric", "Value", "Rating"}

// Metric labels, in export order.
const (
	LabelBugs            = "Bugs"
	LabelVulnerabilities = "Vulnerabilities"
	LabelCodeSmells      = "Code Smells"
	LabelCoverage        = "Coverage"
	LabelDuplicatedLines = "Duplicated Lines"
)

const (
	// DefaultProject names exports whose snapshot carries no project key.
	DefaultProject = "Projeto"

	noRating   = "-"
	zeroCount  = "0"
	zeroPct    = "0%"
	sheetName  = "SonarQube"
	MIMECSV    = "text/csv;charset=utf-8"
	MIMEXLSX   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ExtCSV     = "csv"
	ExtXLSX    = "xlsx"
	dateLayout = "2006-01-02"
)

// ErrNoSnapshot is returned when there is nothing to export yet.
var ErrNoSnapshot = errors.New("no metrics to export: query a project first")

// BuildRows returns exactly five rows in the order Bugs, Vulnerabilities,
// Code Smells, Coverage, Duplicated Lines. Missing counts become "0",
// missing percentages "0%", and Rating is always "-".
func BuildRows(s *model.MetricSnapshot) []model.ExportRow {
	if s == nil {
		s = &model.MetricSnapshot{}
	}
	project := s.ProjectKey
	if project == "" {
		project = DefaultProject
	}
	generated := stamp(s).Format(dateLayout)

	row := func(label, value string) model.ExportRow {
		return model.ExportRow{Project: project, Generated: generated, Metric: label, Value: value, Rating: noRating}
	}
	return []model.ExportRow{
		row(LabelBugs, model.Count(s.Bugs, zeroCount)),
		row(LabelVulnerabilities, model.Count(s.Vulnerabilities, zeroCount)),
		row(LabelCodeSmells, model.Count(s.CodeSmells, zeroCount)),
		row(LabelCoverage, orDefault(s.Coverage, zeroPct)),
		row(LabelDuplicatedLines, orDefault(s.DuplicatedLines, zeroPct)),
	}
}

// Table returns the header followed by one slice per row.
func Table(rows []model.ExportRow) [][]string {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, append([]string(nil), Header...))
	for _, r := range rows {
		out = append(out, []string{r.Project, r.Generated, r.Metric, r.Value, r.Rating})
	}
	return out
}

// SerializeCSV joins fields with "," and lines with "\n". Values are written
// verbatim: a comma or newline inside a field is not quoted.
func SerializeCSV(rows []model.ExportRow) string {
	table := Table(rows)
	lines := make([]string, len(table))
	for i, fields := range table {
		lines[i] = strings.Join(fields, ",")
	}
	return strings.Join(lines, "\n")
}

// FileName returns <project>-SonarQube-<YYYY-MM-DD>.<ext>.
func FileName(project string, at time.Time, ext string) string {
	if project == "" {
		project = DefaultProject
	}
	return fmt.Sprintf("%s-SonarQube-%s.%s", project, util.FormatDate(at), ext)
}

// CSVArtifact builds the CSV export of s.
func CSVArtifact(s *model.MetricSnapshot) (*model.Artifact, error) {
	if s == nil {
		return nil, ErrNoSnapshot
	}
	rows := BuildRows(s)
	return &model.Artifact{
		Name:     FileName(rows[0].Project, stamp(s), ExtCSV),
		MIMEType: MIMECSV,
		Content:  []byte(SerializeCSV(rows)),
	}, nil
}

// stamp is the snapshot's query time, or now when it was never set.
func stamp(s *model.MetricSnapshot) time.Time {
	if s.QueriedAt.IsZero() {
		return time.Now()
	}
	return s.QueriedAt
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
