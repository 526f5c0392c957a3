package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/sonarboard/internal/app"
	"github.com/derickschaefer/sonarboard/internal/dashboard"
	"github.com/derickschaefer/sonarboard/internal/model"
	"github.com/derickschaefer/sonarboard/internal/pipeline"
)

// historyFlags select a metric history. Shared by history, group, summary
// and chart.
type historyFlags struct {
	metrics []string
	from    string
	to      string
	branch  string
	stdin   bool
}

func (f *historyFlags) register(cmd *cobra.Command, withStdin bool) {
	cmd.Flags().StringSliceVar(&f.metrics, "metrics", nil, "metric keys (default: config metrics)")
	cmd.Flags().StringVar(&f.from, "from", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "end date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.branch, "branch", "", "branch (default: the backend's default branch)")
	if withStdin {
		cmd.Flags().BoolVar(&f.stdin, "stdin", false, "read JSONL samples from stdin instead of querying")
	}
}

func (f *historyFlags) validate() error {
	if err := validateDate("from", f.from); err != nil {
		return err
	}
	return validateDate("to", f.to)
}

func (f *historyFlags) query(deps *app.Deps, component string) dashboard.HistoryQuery {
	return dashboard.HistoryQuery{
		Component: component,
		Metrics:   resolveMetrics(f.metrics, deps.Config.Metrics),
		From:      f.from,
		To:        f.to,
		Branch:    f.branch,
	}
}

// loadSeries returns the history selected by f: piped samples with --stdin
// (or when no project is given and stdin is a pipe), otherwise a backend query.
func (f *historyFlags) loadSeries(ctx context.Context, deps *app.Deps, args []string) ([]model.MetricSeries, string, bool, error) {
	if f.stdin || (len(args) == 0 && pipeline.IsStdinPiped()) {
		series, err := pipeline.ReadSamples(os.Stdin)
		return series, "stdin", false, err
	}
	if len(args) == 0 {
		return nil, "", false, fmt.Errorf("a project key is required (or pipe JSONL samples with --stdin)")
	}
	h, err := deps.Service.QueryHistory(ctx, f.query(deps, args[0]))
	if err != nil {
		return nil, "", false, err
	}
	return h.Series, args[0], h.CacheHit, nil
}

var historyOpts historyFlags

var historyCmd = &cobra.Command{
	Use:   "history <PROJECT_KEY>",
	Short: "Fetch the raw metric history of a project",
	Long: `Fetch the measure history of a SonarQube project, one row per analysis.

Values SonarQube reports as non-numeric show as ".". Use --format jsonl to
feed the samples into 'group --stdin', 'summary --stdin' or 'chart'.`,
	Example: `  sonarboard history my-app --metrics bugs,coverage --from 2024-01-01
  sonarboard history my-app --format jsonl > my-app.jsonl
  sonarboard history my-app --cache --format csv --out history.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := historyOpts.validate(); err != nil {
			return err
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		h, err := deps.Service.QueryHistory(cmd.Context(), historyOpts.query(deps, args[0]))
		if err != nil {
			return err
		}

		items := 0
		for _, s := range h.Series {
			items += len(s.Samples)
		}
		result := newResult(model.KindHistory, "history "+args[0], h.Series, items, start)
		result.Stats.CacheHit = h.CacheHit
		return emit(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, deps.Config.Format, deps.Config.Verbose, deps.Config.Quiet)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyOpts.register(historyCmd, false)
}
