// Package app wires together configuration, the backend clients, the cache
// and the dashboard service into a single Deps struct that commands receive
// at runtime.
package app

import (
	"github.com/derickschaefer/sonarboard/internal/config"
	"github.com/derickschaefer/sonarboard/internal/dashboard"
	"github.com/derickschaefer/sonarboard/internal/export"
	"github.com/derickschaefer/sonarboard/internal/sonar"
	"github.com/derickschaefer/sonarboard/internal/store"
)

// Deps holds all runtime dependencies injected into command Run functions.
// Store is nil unless the cache was requested.
type Deps struct {
	Config  *config.Config
	Client  *sonar.Client
	Store   *store.Store
	Service *dashboard.Service
}

// New builds a Deps from resolved config.
func New(cfg *config.Config) (*Deps, error) {
	client := sonar.NewClient(cfg.BackendURL, cfg.Timeout, cfg.Rate)

	var backend dashboard.Backend = client
	if cfg.Direct {
		backend = NewUpstream(cfg)
	}

	var ser export.TabularSerializer = export.ExcelSerializer{ColWidth: 18}
	if cfg.NoXLSX {
		ser = export.Unavailable{}
	}

	svc := dashboard.NewService(backend)
	svc.Refresh = cfg.Refresh
	svc.Exporter = &export.Exporter{
		Serializer: ser,
		Server:     client,
		MetricKeys: cfg.Metrics,
	}

	d := &Deps{Config: cfg, Client: client, Service: svc}
	if cfg.Cache {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		d.Store = st
		svc.Cache = st
	}
	return d, nil
}

// NewUpstream builds the SonarQube Web API client from cfg.
func NewUpstream(cfg *config.Config) *sonar.Upstream {
	return sonar.NewUpstream(sonar.UpstreamOptions{
		MeasuresURL: cfg.MeasuresURL,
		HistoryURL:  cfg.HistoryURL,
		Token:       cfg.Token,
		Branch:      cfg.Branch,
		Timeout:     cfg.Timeout,
		Rate:        cfg.Rate,
	})
}

// Close releases the cache, if one was opened.
func (d *Deps) Close() error {
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}
