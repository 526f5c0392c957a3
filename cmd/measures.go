package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/sonarboard/internal/dashboard"
	"github.com/derickschaefer/sonarboard/internal/model"
)

var measuresMetrics []string

var measuresCmd = &cobra.Command{
	Use:   "measures <PROJECT_KEY>",
	Short: "Show the current quality snapshot of a project",
	Long: `Fetch the current measures of a SonarQube project and show the dashboard
snapshot: issue counts, coverage, duplication and the three ratings.

Missing counts show as 0, missing percentages as 0%, and ratings that
SonarQube did not report as N/A.`,
	Example: `  sonarboard measures my-app
  sonarboard measures my-app --format json
  sonarboard measures my-app --direct --token squ_xxx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		metrics := resolveMetrics(measuresMetrics, dashboard.SnapshotMetrics)
		snap, err := deps.Service.QueryCurrent(cmd.Context(), args[0], metrics)
		if err != nil {
			if msg := deps.Service.State.Message(); msg != "" && !errors.Is(err, dashboard.ErrMissingInput) {
				return fmt.Errorf("%s: %w", msg, err)
			}
			return err
		}

		result := newResult(model.KindSnapshot, "measures "+snap.ProjectKey, snap, len(metrics), start)
		return emit(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, deps.Config.Format, deps.Config.Verbose, deps.Config.Quiet)
	},
}

func init() {
	rootCmd.AddCommand(measuresCmd)
	measuresCmd.Flags().StringSliceVar(&measuresMetrics, "metrics", nil,
		"metric keys to request (default: the dashboard set)")
}
