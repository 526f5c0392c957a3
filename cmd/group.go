package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/sonarboard/internal/aggregate"
	"github.com/derickschaefer/sonarboard/internal/dashboard"
	"github.com/derickschaefer/sonarboard/internal/model"
)

var (
	groupOpts        historyFlags
	groupBy          string
	groupAgg         string
	groupServer      bool
	groupSortSamples bool
)

var groupCmd = &cobra.Command{
	Use:   "group [PROJECT_KEY]",
	Short: "Group a metric history into days, weeks or months",
	Long: `Bucket a metric history by period and reduce each bucket to one value.

Periods:      day (YYYY-MM-DD), week (Monday of the ISO week), month (YYYY-MM)
Aggregators:  min, max, avg, last

Dates are bucketed in UTC. "last" is the last value received for the period;
add --sort-samples to make it the latest by date. Samples whose date cannot
be read are dropped and reported as warnings.

With --server the backend does the grouping; --from and --to are then
required.`,
	Example: `  sonarboard group my-app --by week --agg max
  sonarboard group my-app --by month --agg avg --metrics coverage,bugs --format csv
  sonarboard group my-app --server --from 2024-01-01 --to 2024-06-30
  sonarboard history my-app --format jsonl | sonarboard group --stdin --by day --agg min`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := groupOpts.validate(); err != nil {
			return err
		}
		g, err := aggregate.ParseGranularity(groupBy)
		if err != nil {
			return fmt.Errorf("--by: %w", err)
		}
		a, err := aggregate.ParseAggregator(groupAgg)
		if err != nil {
			return fmt.Errorf("--agg: %w", err)
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		var (
			project string
			res     *dashboard.GroupedResult
		)
		if groupOpts.stdin || len(args) == 0 {
			series, src, _, err := groupOpts.loadSeries(cmd.Context(), deps, args)
			if err != nil {
				return err
			}
			if groupSortSamples {
				series = aggregate.SortSamples(series)
			}
			rows, warnings, err := aggregate.Group(series, g, a)
			if err != nil {
				return err
			}
			project = src
			res = &dashboard.GroupedResult{Rows: rows, Metrics: aggregate.Metrics(rows), Warnings: warnings}
		} else {
			project = args[0]
			res, err = deps.Service.QueryGrouped(cmd.Context(), dashboard.GroupQuery{
				HistoryQuery: groupOpts.query(deps, project),
				Granularity:  g,
				Aggregator:   a,
				ServerSide:   groupServer,
				SortSamples:  groupSortSamples,
			})
			if err != nil {
				return err
			}
		}

		table := &model.AggregatedTable{
			Project: project,
			GroupBy: string(g),
			Agg:     string(a),
			Metrics: res.Metrics,
			Rows:    res.Rows,
		}
		result := newResult(model.KindAggregated, fmt.Sprintf("group %s --by %s --agg %s", project, g, a), table, len(res.Rows), start)
		result.Warnings = res.Warnings
		result.Stats.CacheHit = res.CacheHit
		return emit(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, deps.Config.Format, deps.Config.Verbose, deps.Config.Quiet)
	},
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupOpts.register(groupCmd, true)
	groupCmd.Flags().StringVar(&groupBy, "by", string(aggregate.Month), "period: day|week|month")
	groupCmd.Flags().StringVar(&groupAgg, "agg", string(aggregate.Last), "aggregator: min|max|avg|last")
	groupCmd.Flags().BoolVar(&groupServer, "server", false, "group on the backend instead of locally")
	groupCmd.Flags().BoolVar(&groupSortSamples, "sort-samples", false, "order samples by date before grouping")

	groupCmd.RegisterFlagCompletionFunc("by", cobra.FixedCompletions(
		[]string{"day", "week", "month"}, cobra.ShellCompDirectiveNoFileComp))
	groupCmd.RegisterFlagCompletionFunc("agg", cobra.FixedCompletions(
		[]string{"min", "max", "avg", "last"}, cobra.ShellCompDirectiveNoFileComp))
}
