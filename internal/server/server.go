// Package server implements `sonarboard serve`: a gin backend that proxies
// the SonarQube Web API, groups history server-side with the same engine the
// CLI uses, renders spreadsheet exports and exposes the dashboard state.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/derickschaefer/sonarboard/internal/dashboard"
	"github.com/derickschaefer/sonarboard/internal/export"
	"github.com/derickschaefer/sonarboard/internal/metrics"
	"github.com/derickschaefer/sonarboard/internal/model"
	"github.com/derickschaefer/sonarboard/internal/sonar"
)

const shutdownTimeout = 10 * time.Second

// Source is the upstream SonarQube API. *sonar.Upstream satisfies it.
type Source interface {
	Measures(ctx context.Context, component string, metricKeys []string, branch string) (*model.MeasuresResponse, error)
	SearchHistory(ctx context.Context, opts sonar.HistoryOptions) (*model.HistoryResponse, error)
}

// Options configures New.
type Options struct {
	Source      Source
	Service     *dashboard.Service
	Serializer  export.TabularSerializer
	Concurrency int
	Now         func() time.Time
}

// Server holds the gin engine and its dependencies.
type Server struct {
	src         Source
	svc         *dashboard.Service
	serializer  export.TabularSerializer
	concurrency int
	now         func() time.Time
	engine      *gin.Engine
}

type errResponse struct {
	Error string `json:"error"`
}

// New builds a Server and registers its routes.
func New(opts Options) *Server {
	s := &Server{
		src:         opts.Source,
		svc:         opts.Service,
		serializer:  opts.Serializer,
		concurrency: opts.Concurrency,
		now:         opts.Now,
	}
	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.serializer == nil {
		s.serializer = export.ExcelSerializer{}
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	api := r.Group("/api")
	api.GET("/medidas", s.handleMeasures)
	api.GET("/historico", s.handleHistory)
	api.GET("/consultar_periodo_agrupado/:component", s.handleGrouped)
	api.GET("/export/xls", s.handleExportXLS)
	api.GET("/exportar/:projeto", s.handleExportHistory)
	api.GET("/projeto/:projeto", s.handleProject)
	api.GET("/dashboard", s.handleDashboard)
	api.GET("/dashboard/export.csv", s.handleDashboardCSV)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine = r
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// requestLogger logs one line per request and records Prometheus metrics.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordRequest(route, status, elapsed)

		attrs := []any{
			"method", c.Request.Method,
			"uri", c.Request.URL.RequestURI(),
			"status", status,
			"latency_ms", elapsed.Milliseconds(),
		}
		if len(c.Errors) > 0 {
			slog.Error("request failed", append(attrs, "error", c.Errors.String())...)
			return
		}
		slog.Info("request completed", attrs...)
	}
}
