package sonar

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/derickschaefer/sonarboard/internal/model"
	"github.com/derickschaefer/sonarboard/internal/util"
)

// DefaultBackendURL is where `sonarboard serve` listens by default.
const DefaultBackendURL = "http://localhost:8080"

// Client talks to the dashboard backend. Queries are not retried: a failed
// status is reported to the caller as-is.
type Client struct {
	baseURL string
	t       *transport
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration, ratePerSec float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBackendURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		t:       newTransport("backend", timeout, ratePerSec, 1),
	}
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// ─── Current Measures ─────────────────────────────────────────────────────────

// GetMeasures calls GET /api/medidas.
func (c *Client) GetMeasures(ctx context.Context, component string, metricKeys []string) (*model.MeasuresResponse, error) {
	params := url.Values{}
	params.Set("component", component)
	params.Set("metricKeys", strings.Join(metricKeys, ","))

	var out model.MeasuresResponse
	if err := c.getJSON(ctx, "/api/medidas", params, &out); err != nil {
		return nil, fmt.Errorf("measures %s: %w", component, err)
	}
	return &out, nil
}

// ─── History ──────────────────────────────────────────────────────────────────

// HistoryOptions holds the parameters of a history query.
type HistoryOptions struct {
	Component string
	Metrics   []string
	From      string // YYYY-MM-DD
	To        string // YYYY-MM-DD
	Branch    string
}

// GetHistory calls GET /api/historico.
func (c *Client) GetHistory(ctx context.Context, opts HistoryOptions) (*model.HistoryResponse, error) {
	params := url.Values{}
	params.Set("component", opts.Component)
	params.Set("metrics", strings.Join(opts.Metrics, ","))
	if opts.From != "" {
		params.Set("from", opts.From)
	}
	if opts.To != "" {
		params.Set("to", opts.To)
	}
	if opts.Branch != "" {
		params.Set("branch", opts.Branch)
	}

	var out model.HistoryResponse
	if err := c.getJSON(ctx, "/api/historico", params, &out); err != nil {
		return nil, fmt.Errorf("history %s: %w", opts.Component, err)
	}
	return &out, nil
}

// ToSeries converts a raw history payload into metric series. Samples keep
// the backend's order. A sample whose date does not parse keeps a zero Date
// and one whose value does not parse keeps a NaN Value, so the aggregation
// engine can drop and report them.
func ToSeries(resp *model.HistoryResponse) []model.MetricSeries {
	if resp == nil {
		return nil
	}
	out := make([]model.MetricSeries, 0, len(resp.Measures))
	for _, m := range resp.Measures {
		s := model.MetricSeries{Metric: m.Metric, Samples: make([]model.Sample, 0, len(m.History))}
		for _, h := range m.History {
			d, _ := util.ParseTimestamp(h.Date)
			s.Samples = append(s.Samples, model.Sample{
				Date:     d,
				Value:    util.ParseMetricValue(h.Value.String()),
				ValueRaw: h.Value.String(),
			})
		}
		out = append(out, s)
	}
	return out
}

// ─── Grouped History ──────────────────────────────────────────────────────────

// GroupOptions holds the parameters of a server-side grouped query.
type GroupOptions struct {
	Component  string
	GroupBy    string
	Agg        string
	Categories []string
	From       string
	To         string
	Branch     string
}

// GetGrouped calls GET /api/consultar_periodo_agrupado/<component>.
func (c *Client) GetGrouped(ctx context.Context, opts GroupOptions) (*model.GroupedResponse, error) {
	params := url.Values{}
	params.Set("group_by", opts.GroupBy)
	params.Set("agg", opts.Agg)
	if len(opts.Categories) > 0 {
		params.Set("categorias", strings.Join(opts.Categories, ","))
	}
	params.Set("from_date", opts.From)
	params.Set("to_date", opts.To)
	if opts.Branch != "" {
		params.Set("branch", opts.Branch)
	}

	var out model.GroupedResponse
	path := "/api/consultar_periodo_agrupado/" + url.PathEscape(opts.Component)
	if err := c.getJSON(ctx, path, params, &out); err != nil {
		return nil, fmt.Errorf("grouped history %s: %w", opts.Component, err)
	}
	return &out, nil
}

// ─── Server Export ────────────────────────────────────────────────────────────

// DownloadExport calls GET /api/export/xls and returns the server-rendered
// spreadsheet. The file name comes from Content-Disposition when present.
func (c *Client) DownloadExport(ctx context.Context, component string, metricKeys []string) (*model.Artifact, error) {
	params := url.Values{}
	params.Set("component", component)
	if len(metricKeys) > 0 {
		params.Set("metricKeys", strings.Join(metricKeys, ","))
	}
	resp, err := c.t.get(ctx, c.baseURL+"/api/export/xls?"+params.Encode(), "*/*")
	if err != nil {
		return nil, fmt.Errorf("server export %s: %w", component, err)
	}

	a := &model.Artifact{
		Name:     component + "-SonarQube-" + util.FormatDate(time.Now()) + ".xlsx",
		MIMEType: resp.Header.Get("Content-Type"),
		Content:  resp.Body,
	}
	if _, p, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && p["filename"] != "" {
		a.Name = p["filename"]
	}
	return a, nil
}

// ─── Low-level ────────────────────────────────────────────────────────────────

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	resp, err := c.t.get(ctx, c.baseURL+path+"?"+params.Encode(), "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
