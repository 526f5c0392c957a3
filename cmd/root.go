// Package cmd implements the sonarboard CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/sonarboard/internal/app"
	"github.com/derickschaefer/sonarboard/internal/config"
)

// globalOptions holds the parsed values of all persistent (global) flags.
// Commands read them through loadConfig.
type globalOptions struct {
	Token       string
	Backend     string
	Format      string
	Out         string
	Cache       bool
	Refresh     bool
	Direct      bool
	Timeout     string
	Concurrency int
	Rate        float64
	Quiet       bool
	Verbose     bool
	Debug       bool
	NoColor     bool
}

var globalFlags globalOptions

// rootCmd is the base command. Running `sonarboard` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "sonarboard",
	Short: "sonarboard: SonarQube code-quality dashboard and exporter",
	Long: `sonarboard queries SonarQube measures for a project, groups metric history
into days, weeks or months, and exports the current snapshot as CSV or XLSX.

The CLI talks to the sonarboard backend (see 'sonarboard serve'), which
proxies the SonarQube Web API with your token. Use --direct to skip the
backend and call SonarQube yourself.

Quick start:
  sonarboard config init                     # create a config.json
  sonarboard serve &                         # start the backend on :8080
  sonarboard measures my-app                 # current quality snapshot
  sonarboard group my-app --by week --agg max --from 2024-01-01 --to 2024-03-31
  sonarboard export my-app --type xlsx       # my-app-SonarQube-<date>.xlsx`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
		if globalFlags.NoColor {
			color.NoColor = true
		}
	},
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// setupLogging installs the process-wide slog handler. Debug shows transport
// traces; quiet keeps only errors.
func setupLogging() {
	level := slog.LevelWarn
	switch {
	case globalFlags.Debug:
		level = slog.LevelDebug
	case globalFlags.Quiet:
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig resolves config and applies CLI flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalFlags.Token)
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	cfg.Cache = globalFlags.Cache
	cfg.Refresh = globalFlags.Refresh
	cfg.Direct = globalFlags.Direct
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug
	cfg.NoColor = globalFlags.NoColor

	if globalFlags.Backend != "" {
		cfg.BackendURL = globalFlags.Backend
	}
	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if globalFlags.Timeout != "" {
		d, err := time.ParseDuration(globalFlags.Timeout)
		if err != nil {
			return nil, fmt.Errorf("--timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if globalFlags.Concurrency > 0 {
		cfg.Concurrency = globalFlags.Concurrency
	}
	if globalFlags.Rate > 0 {
		cfg.Rate = globalFlags.Rate
	}
	return cfg, cfg.Validate()
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE. Callers must Close the result.
func buildDeps() (*app.Deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.Token, "token", "",
		"SonarQube token (overrides env SONARQUBE_TOKEN and config.json)")
	pf.StringVar(&globalFlags.Backend, "backend", "",
		"sonarboard backend URL (default: http://localhost:8080)")
	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.BoolVar(&globalFlags.Cache, "cache", false,
		"cache history responses in the local bbolt store")
	pf.BoolVar(&globalFlags.Refresh, "refresh", false,
		"with --cache: ignore cached entries and overwrite them")
	pf.BoolVar(&globalFlags.Direct, "direct", false,
		"call the SonarQube Web API directly instead of the backend")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"HTTP request timeout (e.g. 30s, 2m)")
	pf.IntVar(&globalFlags.Concurrency, "concurrency", 0,
		"max parallel upstream requests in the backend (default: 4)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max requests per second (default: 5.0)")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show cache/timing stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log HTTP requests and responses (token redacted)")
	pf.BoolVar(&globalFlags.NoColor, "no-color", false,
		"disable colored output (also honours NO_COLOR)")
}
