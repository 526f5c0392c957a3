package sonar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/derickschaefer/sonarboard/internal/model"
)

const (
	// DefaultMeasuresURL and DefaultHistoryURL point at a local SonarQube.
	DefaultMeasuresURL = "http://localhost:9000/api/measures/component"
	DefaultHistoryURL  = "http://localhost:9000/api/measures/search_history"

	historyPageSize = "500"
	upstreamRetries = 4
)

// Upstream is the SonarQube Web API client used by the backend server.
// The token is sent as the basic-auth user with an empty password.
type Upstream struct {
	measuresURL string
	historyURL  string
	branch      string
	t           *transport
}

// UpstreamOptions configures NewUpstream.
type UpstreamOptions struct {
	MeasuresURL string
	HistoryURL  string
	Token       string
	Branch      string // default branch when a request names none
	Timeout     time.Duration
	Rate        float64
}

// NewUpstream creates an Upstream client.
func NewUpstream(opts UpstreamOptions) *Upstream {
	if opts.MeasuresURL == "" {
		opts.MeasuresURL = DefaultMeasuresURL
	}
	if opts.HistoryURL == "" {
		opts.HistoryURL = DefaultHistoryURL
	}
	t := newTransport("sonarqube", opts.Timeout, opts.Rate, upstreamRetries)
	t.token = opts.Token
	return &Upstream{
		measuresURL: opts.MeasuresURL,
		historyURL:  opts.HistoryURL,
		branch:      opts.Branch,
		t:           t,
	}
}

// Measures calls api/measures/component.
func (u *Upstream) Measures(ctx context.Context, component string, metricKeys []string, branch string) (*model.MeasuresResponse, error) {
	params := url.Values{}
	params.Set("component", component)
	params.Set("metricKeys", strings.Join(metricKeys, ","))
	if b := u.branchOr(branch); b != "" {
		params.Set("branch", b)
	}

	var out model.MeasuresResponse
	if err := u.getJSON(ctx, u.measuresURL, params, &out); err != nil {
		return nil, fmt.Errorf("sonarqube measures %s: %w", component, err)
	}
	return &out, nil
}

// SearchHistory calls api/measures/search_history with a page size of 500.
func (u *Upstream) SearchHistory(ctx context.Context, opts HistoryOptions) (*model.HistoryResponse, error) {
	params := url.Values{}
	params.Set("component", opts.Component)
	params.Set("metrics", strings.Join(opts.Metrics, ","))
	if opts.From != "" {
		params.Set("from", opts.From)
	}
	if opts.To != "" {
		params.Set("to", opts.To)
	}
	params.Set("ps", historyPageSize)
	if b := u.branchOr(opts.Branch); b != "" {
		params.Set("branch", b)
	}

	var out model.HistoryResponse
	if err := u.getJSON(ctx, u.historyURL, params, &out); err != nil {
		return nil, fmt.Errorf("sonarqube history %s: %w", opts.Component, err)
	}
	return &out, nil
}

// GetMeasures is Measures on the default branch.
func (u *Upstream) GetMeasures(ctx context.Context, component string, metricKeys []string) (*model.MeasuresResponse, error) {
	return u.Measures(ctx, component, metricKeys, "")
}

// GetHistory is SearchHistory.
func (u *Upstream) GetHistory(ctx context.Context, opts HistoryOptions) (*model.HistoryResponse, error) {
	return u.SearchHistory(ctx, opts)
}

func (u *Upstream) branchOr(b string) string {
	if b != "" {
		return b
	}
	return u.branch
}

func (u *Upstream) getJSON(ctx context.Context, base string, params url.Values, out interface{}) error {
	resp, err := u.t.get(ctx, base+"?"+params.Encode(), "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
