package export

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/derickschaefer/sonarboard/internal/analyze"
	"github.com/derickschaefer/sonarboard/internal/model"
	"github.com/derickschaefer/sonarboard/internal/util"
)

// Sheet names of the history workbook.
const (
	SheetCurrent = "Dados_Atuais"
	SheetHistory = "Historico_Temporal"
	SheetSummary = "Resumo_Periodo"
)

var (
	// HistoryHeader heads the raw history sheet: one row per sample.
	HistoryHeader = []string{"Project", "Metric", "Date", "Value"}

	// SummaryHeader heads the period summary sheet: one row per metric.
	SummaryHeader = []string{"Project", "Metric", "Min", "Max", "Mean", "Last"}
)

// HistorySheets lays out the history workbook of s: the five-row export,
// then every sample of series, then min/max/mean/last per metric. The two
// history sheets are omitted when series holds no samples.
func HistorySheets(s *model.MetricSnapshot, series []model.MetricSeries) []Sheet {
	rows := BuildRows(s)
	project := rows[0].Project
	sheets := []Sheet{{Name: SheetCurrent, Table: Table(rows)}}

	history := [][]string{append([]string(nil), HistoryHeader...)}
	summary := [][]string{append([]string(nil), SummaryHeader...)}
	for _, ms := range series {
		for _, smp := range ms.Samples {
			date := ""
			if !smp.Date.IsZero() {
				date = smp.Date.UTC().Format(time.RFC3339)
			}
			history = append(history, []string{project, ms.Metric, date, smp.ValueRaw})
		}
		sum := analyze.Summarize(ms)
		if sum.Count == sum.Missing {
			continue
		}
		summary = append(summary, []string{
			project, ms.Metric,
			round2(sum.Min), round2(sum.Max), round2(sum.Mean), round2(sum.Last),
		})
	}
	if len(history) == 1 {
		return sheets
	}
	return append(sheets,
		Sheet{Name: SheetHistory, Table: history},
		Sheet{Name: SheetSummary, Table: summary},
	)
}

// HistoryFileName returns <project>-SonarQube-History-<YYYY-MM-DD>.xlsx.
func HistoryFileName(project string, at time.Time) string {
	if project == "" {
		project = DefaultProject
	}
	return fmt.Sprintf("%s-SonarQube-History-%s.%s", project, util.FormatDate(at), ExtXLSX)
}

// HistoryWorkbook encodes HistorySheets with ser. Serializers that cannot
// write more than one sheet yield ErrSerializerUnavailable.
func HistoryWorkbook(ser TabularSerializer, s *model.MetricSnapshot, series []model.MetricSeries) (*model.Artifact, error) {
	if s == nil {
		return nil, ErrNoSnapshot
	}
	ss, ok := ser.(SheetSerializer)
	if !ok {
		return nil, ErrSerializerUnavailable
	}
	sheets := HistorySheets(s, series)
	b, err := ss.SerializeSheets(sheets)
	if err != nil {
		return nil, fmt.Errorf("serializing history workbook: %w", err)
	}
	return &model.Artifact{
		Name:     HistoryFileName(s.ProjectKey, stamp(s)),
		MIMEType: MIMEXLSX,
		Content:  b,
	}, nil
}

func round2(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
