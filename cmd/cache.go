package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/sonarboard/internal/app"
	"github.com/derickschaefer/sonarboard/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the local response cache",
	Long: `Commands for inspecting and clearing the local bbolt cache.

The cache holds history responses fetched with --cache. It is never the
source of truth: clearing it only means the next query goes to the backend.`,
}

// openCache builds deps with the cache enabled regardless of --cache.
func openCache() (*app.Deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Cache = true
	return app.New(cfg)
}

// ─── cache stats ──────────────────────────────────────────────────────────────

var cacheStatsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show entry counts and sizes for each bucket",
	Example: `  sonarboard cache stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openCache()
		if err != nil {
			return err
		}
		defer deps.Close()

		stats, err := deps.Store.Stats()
		if err != nil {
			return fmt.Errorf("reading cache stats: %w", err)
		}

		// Sort by bucket name for deterministic output
		sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })

		fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n\n", deps.Store.Path())
		printSimpleTable(cmd.OutOrStdout(), []string{"BUCKET", "ENTRIES", "SIZE"}, func(add func(...string)) {
			for _, s := range stats {
				add(s.Name, strconv.Itoa(s.Count), humanize.Bytes(uint64(s.Bytes)))
			}
		})
		return nil
	},
}

// ─── cache clear ──────────────────────────────────────────────────────────────

var (
	cacheClearAll    bool
	cacheClearBucket string
)

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete entries from the cache",
	Long: `Delete entries from one or all buckets.

bbolt does not shrink the database file after clearing. Run
'sonarboard cache compact' afterwards to reclaim disk space.`,
	Example: `  sonarboard cache clear --all
  sonarboard cache clear --bucket grouped`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cacheClearAll && cacheClearBucket == "" {
			return fmt.Errorf("specify --all or --bucket <name>\n\nBuckets: %v", store.AllBuckets)
		}

		deps, err := openCache()
		if err != nil {
			return err
		}
		defer deps.Close()

		if cacheClearAll {
			if err := deps.Store.ClearAll(); err != nil {
				return fmt.Errorf("clearing all buckets: %w", err)
			}
			success(cmd.OutOrStdout(), "Cleared all buckets")
		} else {
			if err := deps.Store.ClearBucket(cacheClearBucket); err != nil {
				return fmt.Errorf("clearing bucket %q: %w", cacheClearBucket, err)
			}
			success(cmd.OutOrStdout(), "Cleared bucket %q", cacheClearBucket)
		}
		hint(cmd.OutOrStdout(), "Run 'sonarboard cache compact' to reclaim disk space.")
		return nil
	},
}

// ─── cache compact ────────────────────────────────────────────────────────────

var cacheCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the cache file to reclaim freed disk space",
	Long: `Compact copies every live entry into a fresh file and atomically replaces
the original, recovering space freed by 'cache clear'.`,
	Example: `  sonarboard cache compact`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openCache()
		if err != nil {
			return err
		}
		defer deps.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Compacting %s ...\n", deps.Store.Path())
		before, after, err := deps.Store.Compact()
		if err != nil {
			return fmt.Errorf("compaction failed: %w", err)
		}

		success(cmd.OutOrStdout(), "Compaction complete")
		hint(cmd.OutOrStdout(),
			"Before: "+humanize.Bytes(uint64(before)),
			"After:  "+humanize.Bytes(uint64(after)))
		if saved := before - after; saved > 0 {
			hint(cmd.OutOrStdout(), "Saved:  "+humanize.Bytes(uint64(saved)))
		} else {
			hint(cmd.OutOrStdout(), "No space reclaimed (database was already compact).")
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCompactCmd)

	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "clear all buckets")
	cacheClearCmd.Flags().StringVar(&cacheClearBucket, "bucket", "", "clear a specific bucket: history|grouped")
}
