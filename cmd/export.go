package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/sonarboard/internal/app"
	"github.com/derickschaefer/sonarboard/internal/dashboard"
	"github.com/derickschaefer/sonarboard/internal/export"
	"github.com/derickschaefer/sonarboard/internal/model"
)

var (
	exportType   string
	exportOutDir string
	exportNoXLSX bool
	exportRows   bool

	exportHistory bool
	exportHist    historyFlags
)

var exportCmd = &cobra.Command{
	Use:   "export <PROJECT_KEY>",
	Short: "Export the current snapshot of a project as CSV or XLSX",
	Long: `Query the current measures of a project and write the five-row export:
Bugs, Vulnerabilities, Code Smells, Coverage and Duplicated Lines.

Files are named <project>-SonarQube-<YYYY-MM-DD>.<csv|xlsx>. The workbook
has a single sheet named "SonarQube". When the workbook cannot be built
locally (or with --no-xlsx) it is requested from the backend's
/api/export/xls instead.

Use --rows to print the export rows in any --format instead of writing a file.

With --history the workbook gets three sheets: Dados_Atuais (the five-row
export), Historico_Temporal (every sample between --from and --to) and
Resumo_Periodo (min, max, mean and last value per metric). It defaults to
bugs, vulnerabilities and code_smells and is always built locally.`,
	Example: `  sonarboard export my-app
  sonarboard export my-app --type xlsx --out-dir ./reports
  sonarboard export my-app --rows --format md
  sonarboard export my-app --history --from 2024-01-01 --to 2024-06-30`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := dashboard.ExportKind(exportType)
		if kind != dashboard.ExportCSV && kind != dashboard.ExportXLSX {
			return fmt.Errorf("--type: unknown export type %q (valid: csv, xlsx)", exportType)
		}
		if exportHistory {
			if cmd.Flags().Changed("type") && kind != dashboard.ExportXLSX {
				return fmt.Errorf("--history writes a workbook; --type must be xlsx")
			}
			if exportRows || exportNoXLSX {
				return fmt.Errorf("--history cannot be combined with --rows or --no-xlsx")
			}
			if err := exportHist.validate(); err != nil {
				return err
			}
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.NoXLSX = exportNoXLSX
		deps, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		snap, err := deps.Service.QueryCurrent(cmd.Context(), args[0], dashboard.SnapshotMetrics)
		if err != nil {
			return err
		}

		if exportRows {
			rows := export.BuildRows(snap)
			result := newResult(model.KindExportRows, "export "+args[0], rows, len(rows), start)
			return emit(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, cfg.Format, cfg.Verbose, cfg.Quiet)
		}

		if exportHistory {
			q := exportHist.query(deps, snap.ProjectKey)
			q.Metrics = resolveMetrics(exportHist.metrics, dashboard.HistoryExportMetrics)
			res, err := deps.Service.ExportHistory(cmd.Context(), q, exportOutDir)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Wrote %s", res.Path)
			return nil
		}

		res, err := deps.Service.Export(cmd.Context(), kind, exportOutDir)
		if err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Wrote %s", res.Path)
		if res.ViaServer {
			hint(cmd.OutOrStdout(), "Workbook built by the backend at "+deps.Client.BaseURL())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportType, "type", string(dashboard.ExportCSV), "export type: csv|xlsx")
	exportCmd.Flags().StringVar(&exportOutDir, "out-dir", ".", "directory to write the export into")
	exportCmd.Flags().BoolVar(&exportNoXLSX, "no-xlsx", false, "skip the local workbook writer and ask the backend")
	exportCmd.Flags().BoolVar(&exportRows, "rows", false, "print the export rows instead of writing a file")
	exportCmd.Flags().BoolVar(&exportHistory, "history", false, "write the three-sheet history workbook")
	exportHist.register(exportCmd, false)

	exportCmd.RegisterFlagCompletionFunc("type", cobra.FixedCompletions(
		[]string{"csv", "xlsx"}, cobra.ShellCompDirectiveNoFileComp))
}
