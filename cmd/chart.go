package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/sonarboard/internal/aggregate"
	"github.com/derickschaefer/sonarboard/internal/chart"
	"github.com/derickschaefer/sonarboard/internal/model"
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render a metric history as a terminal chart",
	Long: `Chart commands draw one metric of a project's history in the terminal.
The history comes from the backend, or from JSONL samples on stdin.

Examples:
  sonarboard chart bar my-app --metric bugs --by month --agg max
  sonarboard chart plot my-app --metric coverage --from 2024-01-01
  sonarboard history my-app --format jsonl | sonarboard chart plot --stdin --metric coverage`,
}

// pickSeries returns the series named metric, or the only series when
// metric is empty.
func pickSeries(series []model.MetricSeries, metric string) (model.MetricSeries, error) {
	if metric == "" {
		if len(series) == 1 {
			return series[0], nil
		}
		return model.MetricSeries{}, fmt.Errorf("--metric is required when the history has %d metrics", len(series))
	}
	for _, s := range series {
		if s.Metric == metric {
			return s, nil
		}
	}
	return model.MetricSeries{}, fmt.Errorf("metric %q not found in history", metric)
}

// ─── chart bar ───────────────────────────────────────────────────────────────

var (
	chartBarOpts    historyFlags
	chartBarMetric  string
	chartBarBy      string
	chartBarAgg     string
	chartBarWidth   int
	chartBarMaxBars int
)

var chartBarCmd = &cobra.Command{
	Use:   "bar [PROJECT_KEY]",
	Short: "Horizontal bar chart, one bar per period",
	Long: `Groups the metric by --by and --agg and draws one labeled bar per period.

Negative values are supported: bars extend left from a zero line.`,
	Example: `  sonarboard chart bar my-app --metric bugs
  sonarboard chart bar my-app --metric coverage --by week --agg avg --max-bars 12`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := chartBarOpts.validate(); err != nil {
			return err
		}
		g, err := aggregate.ParseGranularity(chartBarBy)
		if err != nil {
			return fmt.Errorf("--by: %w", err)
		}
		a, err := aggregate.ParseAggregator(chartBarAgg)
		if err != nil {
			return fmt.Errorf("--agg: %w", err)
		}
		if chartBarMetric != "" && len(chartBarOpts.metrics) == 0 {
			chartBarOpts.metrics = []string{chartBarMetric}
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		series, src, _, err := chartBarOpts.loadSeries(cmd.Context(), deps, args)
		if err != nil {
			return err
		}
		s, err := pickSeries(series, chartBarMetric)
		if err != nil {
			return err
		}

		rows, warnings, err := aggregate.Group([]model.MetricSeries{s}, g, a)
		if err != nil {
			return err
		}
		if !deps.Config.Quiet {
			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠  %s\n", w)
			}
		}
		title := fmt.Sprintf("%s %s (%s by %s)", src, s.Metric, a, g)
		return chart.Bar(cmd.OutOrStdout(), title, chart.PointsFor(rows, s.Metric), chart.BarOptions{
			Width:   chartBarWidth,
			MaxBars: chartBarMaxBars,
		})
	},
}

// ─── chart plot ──────────────────────────────────────────────────────────────

var (
	chartPlotOpts   historyFlags
	chartPlotMetric string
	chartPlotWidth  int
	chartPlotHeight int
	chartPlotTitle  string
)

var chartPlotCmd = &cobra.Command{
	Use:   "plot [PROJECT_KEY]",
	Short: "Line chart of one metric with labeled axes",
	Long: `Renders a line chart with Y-axis tick labels and X-axis date labels.

Non-numeric samples appear as gaps in the curve, not zeros. Width
auto-detects from $COLUMNS (falls back to 80).`,
	Example: `  sonarboard chart plot my-app --metric coverage
  sonarboard chart plot my-app --metric code_smells --height 8 --title "Smells"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := chartPlotOpts.validate(); err != nil {
			return err
		}
		if chartPlotMetric != "" && len(chartPlotOpts.metrics) == 0 {
			chartPlotOpts.metrics = []string{chartPlotMetric}
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		series, src, _, err := chartPlotOpts.loadSeries(cmd.Context(), deps, args)
		if err != nil {
			return err
		}
		s, err := pickSeries(series, chartPlotMetric)
		if err != nil {
			return err
		}

		title := chartPlotTitle
		if title == "" {
			title = src + " " + s.Metric
		}
		return chart.Plot(cmd.OutOrStdout(), s, chart.PlotOptions{
			Width:  chartPlotWidth,
			Height: chartPlotHeight,
			Title:  title,
		})
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.AddCommand(chartBarCmd)
	chartCmd.AddCommand(chartPlotCmd)

	// bar flags
	chartBarOpts.register(chartBarCmd, true)
	chartBarCmd.Flags().StringVar(&chartBarMetric, "metric", "", "metric to chart")
	chartBarCmd.Flags().StringVar(&chartBarBy, "by", string(aggregate.Month), "period: day|week|month")
	chartBarCmd.Flags().StringVar(&chartBarAgg, "agg", string(aggregate.Last), "aggregator: min|max|avg|last")
	chartBarCmd.Flags().IntVar(&chartBarWidth, "width", 0,
		"total chart width in characters (default: auto-detect from $COLUMNS, fallback 80)")
	chartBarCmd.Flags().IntVar(&chartBarMaxBars, "max-bars", 0,
		"maximum bars to render, keeping the last N periods (0 = no limit)")

	// plot flags
	chartPlotOpts.register(chartPlotCmd, true)
	chartPlotCmd.Flags().StringVar(&chartPlotMetric, "metric", "", "metric to chart")
	chartPlotCmd.Flags().IntVar(&chartPlotWidth, "width", 0,
		"chart width in characters (default: auto-detect from $COLUMNS, fallback 80)")
	chartPlotCmd.Flags().IntVar(&chartPlotHeight, "height", 12,
		"chart height in rows")
	chartPlotCmd.Flags().StringVar(&chartPlotTitle, "title", "",
		"chart title (default: project and metric)")
}
