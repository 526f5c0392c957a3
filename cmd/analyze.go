package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/sonarboard/internal/analyze"
	"github.com/derickschaefer/sonarboard/internal/model"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Statistics and trends over a metric history",
	Long: `Analyze operators work on a project's metric history, fetched from the
backend or read as JSONL samples from stdin.

Examples:
  sonarboard analyze summary my-app --metrics bugs,coverage
  sonarboard history my-app --format jsonl | sonarboard analyze trend --stdin`,
}

// ─── analyze summary ─────────────────────────────────────────────────────────

var analyzeSummaryOpts historyFlags

var analyzeSummaryCmd = &cobra.Command{
	Use:   "summary [PROJECT_KEY]",
	Short: "Descriptive statistics per metric: count, mean, std, min, max, median, change",
	Example: `  sonarboard analyze summary my-app
  sonarboard analyze summary my-app --from 2024-01-01 --format json
  sonarboard history my-app --format jsonl | sonarboard analyze summary --stdin`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := analyzeSummaryOpts.validate(); err != nil {
			return err
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		series, src, hit, err := analyzeSummaryOpts.loadSeries(cmd.Context(), deps, args)
		if err != nil {
			return err
		}

		sums := analyze.SummarizeAll(series)
		result := newResult(model.KindSummary, "analyze summary "+src, sums, len(sums), start)
		result.Stats.CacheHit = hit
		return emit(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, deps.Config.Format, deps.Config.Verbose, deps.Config.Quiet)
	},
}

// ─── analyze trend ────────────────────────────────────────────────────────────

var (
	analyzeTrendOpts   historyFlags
	analyzeTrendMethod string
)

var analyzeTrendCmd = &cobra.Command{
	Use:   "trend [PROJECT_KEY]",
	Short: "Fit a trend per metric: slope per 30 days, R², direction",
	Example: `  sonarboard analyze trend my-app --metrics code_smells
  sonarboard analyze trend my-app --method theil-sen`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		method := analyze.TrendMethod(analyzeTrendMethod)
		if method != analyze.TrendLinear && method != analyze.TrendTheilSen {
			return fmt.Errorf("--method: unknown method %q (valid: linear, theil-sen)", analyzeTrendMethod)
		}
		if err := analyzeTrendOpts.validate(); err != nil {
			return err
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		series, src, hit, err := analyzeTrendOpts.loadSeries(cmd.Context(), deps, args)
		if err != nil {
			return err
		}

		var (
			trends   []analyze.TrendResult
			warnings []string
		)
		for _, s := range series {
			tr, err := analyze.Trend(s, method)
			if err != nil {
				warnings = append(warnings, err.Error())
				continue
			}
			trends = append(trends, tr)
		}
		if len(trends) == 0 && len(warnings) > 0 {
			return fmt.Errorf("no metric has enough samples for a trend: %s", warnings[0])
		}

		result := newResult(model.KindTrend, "analyze trend "+src, trends, len(trends), start)
		result.Warnings = warnings
		result.Stats.CacheHit = hit
		return emit(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, deps.Config.Format, deps.Config.Verbose, deps.Config.Quiet)
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.AddCommand(analyzeSummaryCmd)
	analyzeCmd.AddCommand(analyzeTrendCmd)

	analyzeSummaryOpts.register(analyzeSummaryCmd, true)
	analyzeTrendOpts.register(analyzeTrendCmd, true)
	analyzeTrendCmd.Flags().StringVar(&analyzeTrendMethod, "method", string(analyze.TrendLinear),
		"regression method: linear|theil-sen")
}
