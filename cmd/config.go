package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/sonarboard/internal/config"
	"github.com/derickschaefer/sonarboard/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage sonarboard configuration",
	Long: `Read and write sonarboard configuration stored in config.json (or
config.yaml) in the current directory. Environment variables and .env files
override the file; flags override both.`,
}

var configInitYAML bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config file in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if configInitYAML {
			path = "config.yaml"
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (delete it first to re-initialise)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Created %s", path)
		hint(cmd.OutOrStdout(),
			"Set your SonarQube token with: sonarboard config set token <token>",
			"or export "+config.EnvToken+" (a .env file works too).")
		return nil
	},
}

var configGetShowSecrets bool

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(globalFlags.Token)
		if err != nil {
			return err
		}
		if globalFlags.Backend != "" {
			cfg.BackendURL = globalFlags.Backend
		}

		token := cfg.RedactedToken()
		if configGetShowSecrets {
			token = cfg.Token
		}
		if token == "" {
			token = "(not set)"
		}
		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}

		if resolveFormat(cfg.Format) == render.FormatJSON {
			type configOut struct {
				Token       string   `json:"token"`
				BackendURL  string   `json:"backend_url"`
				MeasuresURL string   `json:"sonarqube_url"`
				HistoryURL  string   `json:"history_url"`
				Branch      string   `json:"branch"`
				Metrics     []string `json:"metrics"`
				Format      string   `json:"default_format"`
				Timeout     string   `json:"timeout"`
				Concurrency int      `json:"concurrency"`
				Rate        float64  `json:"rate"`
				DBPath      string   `json:"db_path"`
				Listen      string   `json:"listen"`
				ConfigFile  string   `json:"config_file"`
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(configOut{
				Token:       token,
				BackendURL:  cfg.BackendURL,
				MeasuresURL: cfg.MeasuresURL,
				HistoryURL:  cfg.HistoryURL,
				Branch:      cfg.Branch,
				Metrics:     cfg.Metrics,
				Format:      cfg.Format,
				Timeout:     cfg.Timeout.String(),
				Concurrency: cfg.Concurrency,
				Rate:        cfg.Rate,
				DBPath:      cfg.DBPath,
				Listen:      cfg.Listen,
				ConfigFile:  src,
			})
		}

		printKVTable(cmd.OutOrStdout(), [][]string{
			{"token", token},
			{"backend_url", cfg.BackendURL},
			{"sonarqube_url", cfg.MeasuresURL},
			{"history_url", cfg.HistoryURL},
			{"branch", cfg.Branch},
			{"metrics", strings.Join(cfg.Metrics, ",")},
			{"default_format", cfg.Format},
			{"timeout", cfg.Timeout.String()},
			{"concurrency", strconv.Itoa(cfg.Concurrency)},
			{"rate", fmt.Sprintf("%.1f req/s", cfg.Rate)},
			{"db_path", cfg.DBPath},
			{"listen", cfg.Listen},
			{"config_file", src},
		})
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in the config file",
	Long: "Set one key in the config file, creating it from the template if needed.\n\nKeys: " +
		strings.Join(config.Keys, ", "),
	Example: `  sonarboard config set token squ_xxx
  sonarboard config set metrics bugs,coverage,code_smells
  sonarboard config set timeout 1m`,
	Args: cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return config.Keys, cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		f, path, err := config.LoadFile()
		switch {
		case errors.Is(err, os.ErrNotExist):
			tmpl := config.Template()
			f, path = &tmpl, config.DefaultConfigFile
		case err != nil:
			return err
		}

		if err := f.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.WriteFile(path, *f); err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Set %s in %s", strings.ToLower(args[0]), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configInitYAML, "yaml", false, "write config.yaml instead of config.json")
	configGetCmd.Flags().BoolVar(&configGetShowSecrets, "show-secrets", false, "show the token in plain text")
}
