package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/sonarboard/internal/app"
	"github.com/derickschaefer/sonarboard/internal/dashboard"
	"github.com/derickschaefer/sonarboard/internal/export"
	"github.com/derickschaefer/sonarboard/internal/server"
)

var (
	serveListen string
	serveNoXLSX bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend that proxies SonarQube for the dashboard",
	Long: `Start the HTTP backend. It forwards queries to the SonarQube Web API with
the configured token and serves:

  GET /api/medidas?component=&metricKeys=          current measures
  GET /api/historico?component=&metrics=&from=&to= metric history
  GET /api/consultar_periodo_agrupado/<component>  grouped history
        ?from_date=&to_date=&group_by=&agg=&categorias=
  GET /api/export/xls?component=&metricKeys=       XLSX export
  GET /api/exportar/<key>?from_date=&to_date=      XLSX export with history
  GET /api/projeto/<key>                           refresh the dashboard snapshot
  GET /api/dashboard                               dashboard view model
  GET /api/dashboard/export.csv                    CSV export of the snapshot
  GET /metrics                                     Prometheus metrics

The server stops gracefully on SIGINT or SIGTERM.`,
	Example: `  sonarboard serve
  SONARQUBE_TOKEN=squ_xxx sonarboard serve --listen :9090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveListen != "" {
			cfg.Listen = serveListen
		}

		level := slog.LevelInfo
		if cfg.Debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		if cfg.Token == "" {
			slog.Warn("no SonarQube token configured; requests are sent unauthenticated")
		}

		var ser export.TabularSerializer = export.ExcelSerializer{ColWidth: 18}
		if serveNoXLSX {
			ser = export.Unavailable{}
		}

		upstream := app.NewUpstream(cfg)
		srv := server.New(server.Options{
			Source:      upstream,
			Service:     dashboard.NewService(upstream),
			Serializer:  ser,
			Concurrency: cfg.Concurrency,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		slog.Info("proxying SonarQube",
			"measures_url", cfg.MeasuresURL,
			"history_url", cfg.HistoryURL,
			"branch", cfg.Branch,
			"token", cfg.RedactedToken(),
		)
		return srv.Run(ctx, cfg.Listen)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default: :8080 or SONARBOARD_LISTEN)")
	serveCmd.Flags().BoolVar(&serveNoXLSX, "no-xlsx", false, "disable the XLSX export endpoint")
}
