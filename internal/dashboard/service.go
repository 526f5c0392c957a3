package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/derickschaefer/sonarboard/internal/aggregate"
	"github.com/derickschaefer/sonarboard/internal/export"
	"github.com/derickschaefer/sonarboard/internal/model"
	"github.com/derickschaefer/sonarboard/internal/sonar"
	"github.com/derickschaefer/sonarboard/internal/store"
	"github.com/derickschaefer/sonarboard/internal/util"
)

var (
	// ErrMissingInput is returned before any network call when a required
	// field of a query is empty.
	ErrMissingInput = errors.New("missing input")

	// ErrBusy is returned when the same kind of query is already in flight.
	ErrBusy = errors.New("a query is already in progress")
)

// Backend is the data source queries run against. *sonar.Client and
// *sonar.Upstream both satisfy it.
type Backend interface {
	GetMeasures(ctx context.Context, component string, metricKeys []string) (*model.MeasuresResponse, error)
	GetHistory(ctx context.Context, opts sonar.HistoryOptions) (*model.HistoryResponse, error)
}

// GroupedBackend is a Backend that can also group history server-side.
type GroupedBackend interface {
	Backend
	GetGrouped(ctx context.Context, opts sonar.GroupOptions) (*model.GroupedResponse, error)
}

// Cache persists raw backend payloads between runs. *store.Store satisfies it.
type Cache interface {
	GetHistory(key string) (*model.HistoryResponse, time.Time, bool, error)
	PutHistory(key string, resp *model.HistoryResponse) error
	GetGrouped(key string) (*model.GroupedResponse, time.Time, bool, error)
	PutGrouped(key string, resp *model.GroupedResponse) error
}

// Service runs dashboard queries and keeps State current.
type Service struct {
	Backend  Backend
	State    *State
	Exporter *export.Exporter

	// Cache is optional. Refresh skips cache reads but still writes.
	Cache   Cache
	Refresh bool

	Now func() time.Time
}

// NewService returns a Service with a fresh State.
func NewService(b Backend) *Service {
	return &Service{Backend: b, State: NewState()}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ─── Current Metrics ──────────────────────────────────────────────────────────

// QueryCurrent fetches the current measures of component and replaces the
// latest snapshot. A failed query leaves the previous snapshot in place and
// records the failure as the state message.
func (s *Service) QueryCurrent(ctx context.Context, component string, metricKeys []string) (*model.MetricSnapshot, error) {
	component = strings.TrimSpace(component)
	if component == "" {
		return nil, fmt.Errorf("%w: project key is required", ErrMissingInput)
	}
	keys := util.SplitList(metricKeys...)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: at least one metric key is required", ErrMissingInput)
	}
	if !s.State.Current.TryAcquire() {
		return nil, ErrBusy
	}
	defer s.State.Current.Release()

	resp, err := s.Backend.GetMeasures(ctx, component, keys)
	if err != nil {
		s.State.SetMessage(failureMessage("measures", err))
		return nil, err
	}
	snap := BuildSnapshot(resp, component, s.now())
	s.State.Replace(snap)
	return snap, nil
}

// ─── History ──────────────────────────────────────────────────────────────────

// HistoryQuery selects a metric history.
type HistoryQuery struct {
	Component string
	Metrics   []string
	From      string
	To        string
	Branch    string
}

func (q HistoryQuery) validate() error {
	if strings.TrimSpace(q.Component) == "" {
		return fmt.Errorf("%w: project key is required", ErrMissingInput)
	}
	if len(q.Metrics) == 0 {
		return fmt.Errorf("%w: at least one metric is required", ErrMissingInput)
	}
	return nil
}

func (q HistoryQuery) key() string {
	return store.QueryKey(q.Component, q.Metrics, q.From, q.To, branchTag(q.Branch))
}

// HistoryResult is the outcome of QueryHistory.
type HistoryResult struct {
	Series    []model.MetricSeries
	CacheHit  bool
	FetchedAt time.Time
}

// QueryHistory fetches the raw history of the selected metrics.
func (s *Service) QueryHistory(ctx context.Context, q HistoryQuery) (*HistoryResult, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if !s.State.History.TryAcquire() {
		return nil, ErrBusy
	}
	defer s.State.History.Release()
	return s.history(ctx, q)
}

func (s *Service) history(ctx context.Context, q HistoryQuery) (*HistoryResult, error) {
	key := q.key()
	if s.Cache != nil && !s.Refresh {
		resp, at, ok, err := s.Cache.GetHistory(key)
		if err != nil {
			slog.Warn("cache read failed", "key", key, "err", err)
		} else if ok {
			return &HistoryResult{Series: sonar.ToSeries(resp), CacheHit: true, FetchedAt: at}, nil
		}
	}

	resp, err := s.Backend.GetHistory(ctx, sonar.HistoryOptions{
		Component: q.Component,
		Metrics:   q.Metrics,
		From:      q.From,
		To:        q.To,
		Branch:    q.Branch,
	})
	if err != nil {
		s.State.SetMessage(failureMessage("history", err))
		return nil, err
	}
	if s.Cache != nil {
		if err := s.Cache.PutHistory(key, resp); err != nil {
			slog.Warn("cache write failed", "key", key, "err", err)
		}
	}
	return &HistoryResult{Series: sonar.ToSeries(resp), FetchedAt: s.now()}, nil
}

// ─── Grouped History ──────────────────────────────────────────────────────────

// GroupQuery selects a history and how to bucket and reduce it.
type GroupQuery struct {
	HistoryQuery
	Granularity aggregate.Granularity
	Aggregator  aggregate.Aggregator

	// ServerSide delegates grouping to the backend's grouped endpoint.
	ServerSide bool
	// SortSamples orders samples by time before bucketing, so "last" means
	// latest rather than last received.
	SortSamples bool
}

// GroupedResult is the outcome of QueryGrouped.
type GroupedResult struct {
	Rows     []model.AggregatedRow
	Metrics  []string
	Warnings []string
	CacheHit bool
}

// QueryGrouped buckets and reduces a metric history, either locally with
// the aggregation engine or on the backend when q.ServerSide is set.
func (s *Service) QueryGrouped(ctx context.Context, q GroupQuery) (*GroupedResult, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if q.Granularity == "" {
		q.Granularity = aggregate.Month
	}
	if q.Aggregator == "" {
		q.Aggregator = aggregate.Last
	}
	if !s.State.History.TryAcquire() {
		return nil, ErrBusy
	}
	defer s.State.History.Release()

	if q.ServerSide {
		return s.groupedRemote(ctx, q)
	}

	h, err := s.history(ctx, q.HistoryQuery)
	if err != nil {
		return nil, err
	}
	series := h.Series
	if q.SortSamples {
		series = aggregate.SortSamples(series)
	}
	rows, warnings, err := aggregate.Group(series, q.Granularity, q.Aggregator)
	if err != nil {
		return nil, err
	}
	return &GroupedResult{
		Rows:     rows,
		Metrics:  aggregate.Metrics(rows),
		Warnings: warnings,
		CacheHit: h.CacheHit,
	}, nil
}

func (s *Service) groupedRemote(ctx context.Context, q GroupQuery) (*GroupedResult, error) {
	gb, ok := s.Backend.(GroupedBackend)
	if !ok {
		return nil, errors.New("backend does not support server-side grouping")
	}
	if q.From == "" || q.To == "" {
		return nil, fmt.Errorf("%w: server-side grouping needs both from and to dates", ErrMissingInput)
	}

	key := store.QueryKey(q.Component, q.Metrics, q.From, q.To,
		"by:"+string(q.Granularity), "agg:"+string(q.Aggregator), branchTag(q.Branch))
	var (
		resp *model.GroupedResponse
		hit  bool
	)
	if s.Cache != nil && !s.Refresh {
		cached, _, found, err := s.Cache.GetGrouped(key)
		if err != nil {
			slog.Warn("cache read failed", "key", key, "err", err)
		} else if found {
			resp, hit = cached, true
		}
	}
	if resp == nil {
		var err error
		resp, err = gb.GetGrouped(ctx, sonar.GroupOptions{
			Component:  q.Component,
			GroupBy:    string(q.Granularity),
			Agg:        string(q.Aggregator),
			Categories: q.Metrics,
			From:       q.From,
			To:         q.To,
			Branch:     q.Branch,
		})
		if err != nil {
			s.State.SetMessage(failureMessage("grouped history", err))
			return nil, err
		}
		if s.Cache != nil {
			if err := s.Cache.PutGrouped(key, resp); err != nil {
				slog.Warn("cache write failed", "key", key, "err", err)
			}
		}
	}

	rows, warnings := aggregate.Pivot(resp.Data)
	return &GroupedResult{
		Rows:     rows,
		Metrics:  aggregate.Metrics(rows),
		Warnings: warnings,
		CacheHit: hit,
	}, nil
}

// ─── Export ───────────────────────────────────────────────────────────────────

// ExportKind selects the export format.
type ExportKind string

const (
	ExportCSV  ExportKind = "csv"
	ExportXLSX ExportKind = "xlsx"
)

// ExportResult reports where an export was written.
type ExportResult struct {
	Path      string
	ViaServer bool
}

// Export writes the latest snapshot into dir as CSV or a workbook.
// Workbooks fall back to the backend's export endpoint when no local
// serializer is available.
func (s *Service) Export(ctx context.Context, kind ExportKind, dir string) (*ExportResult, error) {
	snap := s.State.Latest()
	if snap == nil {
		return nil, export.ErrNoSnapshot
	}

	var (
		art *model.Artifact
		via bool
		err error
	)
	switch kind {
	case ExportCSV, "":
		art, err = export.CSVArtifact(snap)
	case ExportXLSX:
		if s.Exporter == nil {
			return nil, export.ErrSerializerUnavailable
		}
		art, via, err = s.Exporter.Workbook(ctx, snap)
	default:
		return nil, fmt.Errorf("unknown export type %q (valid: csv, xlsx)", kind)
	}
	if err != nil {
		return nil, err
	}

	path, err := export.Download(art, dir)
	if err != nil {
		return nil, err
	}
	return &ExportResult{Path: path, ViaServer: via}, nil
}

// HistoryExportMetrics are the metrics of the history workbook when the
// caller names none.
var HistoryExportMetrics = []string{"bugs", "vulnerabilities", "code_smells"}

// ExportHistory writes a workbook with the latest snapshot, the raw history
// selected by q and a per-metric summary of that history into dir. It needs
// a multi-sheet serializer; there is no server fallback.
func (s *Service) ExportHistory(ctx context.Context, q HistoryQuery, dir string) (*ExportResult, error) {
	snap := s.State.Latest()
	if snap == nil {
		return nil, export.ErrNoSnapshot
	}
	if len(q.Metrics) == 0 {
		q.Metrics = HistoryExportMetrics
	}
	if q.Component == "" {
		q.Component = snap.ProjectKey
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	var ser export.TabularSerializer
	if s.Exporter != nil {
		ser = s.Exporter.Serializer
	}
	if _, ok := ser.(export.SheetSerializer); !ok {
		return nil, export.ErrSerializerUnavailable
	}

	if !s.State.History.TryAcquire() {
		return nil, ErrBusy
	}
	h, err := s.history(ctx, q)
	s.State.History.Release()
	if err != nil {
		return nil, err
	}

	art, err := export.HistoryWorkbook(ser, snap, h.Series)
	if err != nil {
		return nil, err
	}
	path, err := export.Download(art, dir)
	if err != nil {
		return nil, err
	}
	return &ExportResult{Path: path}, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func branchTag(b string) string {
	if b == "" {
		return ""
	}
	return "branch:" + b
}

// failureMessage builds the user-visible message for a failed query.
// HTTP failures keep their status code.
func failureMessage(what string, err error) string {
	var he *sonar.HTTPError
	if errors.As(err, &he) {
		return fmt.Sprintf("error fetching %s: HTTP %d", what, he.StatusCode)
	}
	return fmt.Sprintf("error fetching %s: %v", what, err)
}
