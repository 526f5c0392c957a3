package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/derickschaefer/sonarboard/internal/aggregate"
	"github.com/derickschaefer/sonarboard/internal/dashboard"
	"github.com/derickschaefer/sonarboard/internal/export"
	"github.com/derickschaefer/sonarboard/internal/metrics"
	"github.com/derickschaefer/sonarboard/internal/model"
	"github.com/derickschaefer/sonarboard/internal/sonar"
	"github.com/derickschaefer/sonarboard/internal/util"
)

// Defaults applied when a request names no metrics.
var (
	defaultProxyMetrics  = []string{"bugs", "vulnerabilities", "code_smells"}
	defaultExportMetrics = []string{"bugs", "vulnerabilities", "code_smells", "coverage", "duplicated_lines_density"}
)

// ─── Proxy ────────────────────────────────────────────────────────────────────

// GET /api/medidas?component=&metricKeys=&branch=
func (s *Server) handleMeasures(c *gin.Context) {
	component, ok := requireComponent(c, c.Query("component"))
	if !ok {
		return
	}
	keys := listOr(c.Query("metricKeys"), defaultProxyMetrics)

	resp, err := s.src.Measures(c.Request.Context(), component, keys, c.Query("branch"))
	if err != nil {
		s.upstreamFailure(c, "measures", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/historico?component=&metrics=&from=&to=&branch=
func (s *Server) handleHistory(c *gin.Context) {
	component, ok := requireComponent(c, c.Query("component"))
	if !ok {
		return
	}
	resp, err := s.src.SearchHistory(c.Request.Context(), sonar.HistoryOptions{
		Component: component,
		Metrics:   listOr(c.Query("metrics"), defaultProxyMetrics),
		From:      c.Query("from"),
		To:        c.Query("to"),
		Branch:    c.Query("branch"),
	})
	if err != nil {
		s.upstreamFailure(c, "history", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ─── Grouped History ──────────────────────────────────────────────────────────

// GET /api/consultar_periodo_agrupado/:component?from_date=&to_date=&group_by=&agg=&categorias=
//
// Each metric's history is fetched and grouped independently; a metric that
// fails is reported inline with an erro entry instead of failing the request.
func (s *Server) handleGrouped(c *gin.Context) {
	component, ok := requireComponent(c, c.Param("component"))
	if !ok {
		return
	}
	from, to := c.Query("from_date"), c.Query("to_date")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, errResponse{Error: "from_date and to_date are required"})
		return
	}
	g, err := aggregate.ParseGranularity(c.DefaultQuery("group_by", string(aggregate.Month)))
	if err != nil {
		c.JSON(http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	a, err := aggregate.ParseAggregator(c.DefaultQuery("agg", string(aggregate.Last)))
	if err != nil {
		c.JSON(http.StatusBadRequest, errResponse{Error: err.Error()})
		return
	}
	categories := util.SplitList(c.Query("categorias"), c.Query("categories"))
	if len(categories) == 0 {
		categories = defaultProxyMetrics
	}
	resps, errs := s.historyByMetric(c.Request.Context(), component, categories, from, to, c.Query("branch"))
	data := make([]model.GroupedEntry, 0)
	for i, metric := range categories {
		if errs[i] != nil {
			data = append(data, model.GroupedEntry{Project: component, Metric: metric, Error: errs[i].Error()})
			continue
		}
		rows, warnings, err := aggregate.Group(sonar.ToSeries(resps[i]), g, a)
		metrics.RecordDropped(len(warnings))
		if err != nil {
			data = append(data, model.GroupedEntry{Project: component, Metric: metric, Error: err.Error()})
			continue
		}
		data = append(data, aggregate.Flatten(component, rows)...)
	}

	c.JSON(http.StatusOK, model.GroupedResponse{
		Project: component,
		Period:  model.Period{From: from, To: to},
		GroupBy: string(g),
		Agg:     string(a),
		Data:    data,
	})
}

// ─── Export ───────────────────────────────────────────────────────────────────

// GET /api/export/xls?component=&metricKeys=&branch=
func (s *Server) handleExportXLS(c *gin.Context) {
	component, ok := requireComponent(c, c.Query("component"))
	if !ok {
		return
	}
	keys := listOr(c.Query("metricKeys"), defaultExportMetrics)
	resp, err := s.src.Measures(c.Request.Context(), component, keys, c.Query("branch"))
	if err != nil {
		s.upstreamFailure(c, "export", err)
		return
	}

	snap := dashboard.BuildSnapshot(resp, component, s.now())
	rows := export.BuildRows(snap)
	b, err := export.SerializeWorkbook(s.serializer, rows)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errResponse{Error: err.Error()})
		return
	}
	attachment(c, export.FileName(rows[0].Project, snap.QueriedAt, export.ExtXLSX), export.MIMEXLSX, b)
}

// GET /api/exportar/:projeto?from_date=&to_date=&metrics=&branch=
//
// Workbook with the current snapshot, the raw history and a per-metric
// summary. Metrics whose history cannot be fetched are left out.
func (s *Server) handleExportHistory(c *gin.Context) {
	component, ok := requireComponent(c, c.Param("projeto"))
	if !ok {
		return
	}
	from, to := c.Query("from_date"), c.Query("to_date")
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := util.ParseDate(d); err != nil {
			c.JSON(http.StatusBadRequest, errResponse{Error: err.Error()})
			return
		}
	}
	branch := c.Query("branch")
	ctx := c.Request.Context()

	resp, err := s.src.Measures(ctx, component, defaultExportMetrics, branch)
	if err != nil {
		s.upstreamFailure(c, "export", err)
		return
	}
	snap := dashboard.BuildSnapshot(resp, component, s.now())

	keys := listOr(c.Query("metrics"), dashboard.HistoryExportMetrics)
	resps, errs := s.historyByMetric(ctx, component, keys, from, to, branch)
	var series []model.MetricSeries
	for i, metric := range keys {
		if errs[i] != nil {
			slog.Warn("history export: skipping metric", "component", component, "metric", metric, "err", errs[i])
			continue
		}
		series = append(series, sonar.ToSeries(resps[i])...)
	}

	art, err := export.HistoryWorkbook(s.serializer, snap, series)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errResponse{Error: err.Error()})
		return
	}
	attachment(c, art.Name, art.MIMEType, art.Content)
}

// ─── Dashboard ────────────────────────────────────────────────────────────────

// GET /api/projeto/:projeto
func (s *Server) handleProject(c *gin.Context) {
	snap, err := s.svc.QueryCurrent(c.Request.Context(), c.Param("projeto"), dashboard.SnapshotMetrics)
	switch {
	case err == nil:
		metrics.SetSnapshot(snap.QueriedAt)
		c.JSON(http.StatusOK, snap)
	case errors.Is(err, dashboard.ErrMissingInput):
		c.JSON(http.StatusBadRequest, errResponse{Error: err.Error()})
	case errors.Is(err, dashboard.ErrBusy):
		c.JSON(http.StatusConflict, errResponse{Error: err.Error()})
	default:
		s.upstreamFailure(c, "measures", err)
	}
}

// GET /api/dashboard
func (s *Server) handleDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.State.ViewModel())
}

// GET /api/dashboard/export.csv
func (s *Server) handleDashboardCSV(c *gin.Context) {
	art, err := export.CSVArtifact(s.svc.State.Latest())
	if errors.Is(err, export.ErrNoSnapshot) {
		c.JSON(http.StatusNotFound, errResponse{Error: err.Error()})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errResponse{Error: err.Error()})
		return
	}
	attachment(c, art.Name, art.MIMEType, art.Content)
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// historyByMetric fetches each metric's history with its own upstream call,
// at most s.concurrency at a time. errs[i] is set when metricKeys[i] failed.
func (s *Server) historyByMetric(ctx context.Context, component string, metricKeys []string, from, to, branch string) ([]*model.HistoryResponse, []error) {
	resps := make([]*model.HistoryResponse, len(metricKeys))
	errs := make([]error, len(metricKeys))
	var eg errgroup.Group
	eg.SetLimit(s.concurrency)
	for i, metric := range metricKeys {
		eg.Go(func() error {
			resps[i], errs[i] = s.src.SearchHistory(ctx, sonar.HistoryOptions{
				Component: component,
				Metrics:   []string{metric},
				From:      from,
				To:        to,
				Branch:    branch,
			})
			if errs[i] != nil {
				metrics.RecordUpstreamError("history")
			}
			return nil
		})
	}
	_ = eg.Wait()
	return resps, errs
}

func requireComponent(c *gin.Context, raw string) (string, bool) {
	component := strings.TrimSpace(raw)
	if component == "" {
		c.JSON(http.StatusBadRequest, errResponse{Error: "parameter 'component' is required"})
		return "", false
	}
	return component, true
}

func listOr(raw string, def []string) []string {
	if l := util.SplitList(raw); len(l) > 0 {
		return l
	}
	return def
}

// upstreamFailure passes an upstream HTTP status through; transport and
// decode failures become 502.
func (s *Server) upstreamFailure(c *gin.Context, op string, err error) {
	metrics.RecordUpstreamError(op)
	_ = c.Error(err)
	status := http.StatusBadGateway
	var he *sonar.HTTPError
	if errors.As(err, &he) && he.StatusCode >= 400 {
		status = he.StatusCode
	}
	c.JSON(status, errResponse{Error: err.Error()})
}

func attachment(c *gin.Context, name, mimeType string, content []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, mimeType, content)
}
