package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/sonarboard/internal/config"
	"github.com/derickschaefer/sonarboard/internal/sonar"
)

// Version is overwritten at release time:
//
//	go build -ldflags "-X github.com/derickschaefer/sonarboard/cmd.Version=v0.4.0"
var Version = "v0.3.0"

// reportedModules are the dependencies whose versions decide export and
// backend behaviour.
var reportedModules = []string{
	"github.com/xuri/excelize/v2",
	"github.com/gin-gonic/gin",
	"go.etcd.io/bbolt",
	"github.com/spf13/cobra",
}

type versionInfo struct {
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Platform  string            `json:"platform"`
	Revision  string            `json:"revision,omitempty"`
	Backend   string            `json:"backend"`
	Modules   map[string]string `json:"modules,omitempty"`
}

// collectVersion reads module versions and the VCS revision from the
// binary's embedded build info. Under `go test` neither is available.
func collectVersion(backend string) versionInfo {
	info := versionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Backend:   backend,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 12 {
			info.Revision = s.Value[:12]
		}
	}
	for _, dep := range bi.Deps {
		for _, want := range reportedModules {
			if dep.Path != want {
				continue
			}
			if info.Modules == nil {
				info.Modules = make(map[string]string)
			}
			v := dep.Version
			if dep.Replace != nil {
				v = dep.Replace.Version
			}
			info.Modules[dep.Path] = v
		}
	}
	return info
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sonarboard version, backend and library versions",
	Example: `  sonarboard version
  sonarboard version --format json | jq .modules`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend := globalFlags.Backend
		if backend == "" {
			if cfg, err := config.Load(globalFlags.Token); err == nil && cfg.BackendURL != "" {
				backend = cfg.BackendURL
			} else {
				backend = sonar.DefaultBackendURL
			}
		}
		info := collectVersion(backend)

		switch globalFlags.Format {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		case "jsonl":
			b, err := json.Marshal(info)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", b)
			return nil
		}

		rows := [][]string{
			{"sonarboard", info.Version},
			{"go", info.GoVersion},
			{"platform", info.Platform},
			{"backend", info.Backend},
		}
		if info.Revision != "" {
			rows = append(rows, []string{"revision", info.Revision})
		}
		for _, m := range reportedModules {
			if v, ok := info.Modules[m]; ok {
				rows = append(rows, []string{shortModule(m), v})
			}
		}
		printKVTable(cmd.OutOrStdout(), rows)
		return nil
	},
}

// shortModule trims a module path to its last meaningful element:
// github.com/xuri/excelize/v2 → excelize.
func shortModule(path string) string {
	parts := strings.Split(path, "/")
	last := parts[len(parts)-1]
	if len(parts) > 1 && strings.HasPrefix(last, "v") && strings.Trim(last[1:], "0123456789") == "" {
		last = parts[len(parts)-2]
	}
	return last
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
