// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/unobtrude/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent batch runs from the journal",
	Long: `History lists the most recent batches recorded in the run journal, newest
first. Use --export to write them as YAML or JSON instead.

The journal must be enabled with journal.path (or --journal).`,
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if cfg.Journal.Path == "" {
		return fmt.Errorf("journal disabled: set journal.path or pass --journal")
	}
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("export")

	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if format != "" {
		return store.Export(ctx, os.Stdout, format, limit)
	}

	runs, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %-4s  %-9s  %d converted, %d skipped (uploaded %d) in %v  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Source, r.Status,
			r.Converted, r.Skipped, r.Uploaded, r.Duration, r.ID)
		if len(r.ContentTypes) > 0 {
			fmt.Printf("    types: %s\n", formatTally(r.ContentTypes))
		}
		if r.Error != "" {
			fmt.Printf("    error: %s\n", r.Error)
		}
	}
	return nil
}

// formatTally renders counts as "a=1, b=2" in key order.
func formatTally(tally map[string]int) string {
	keys := make([]string, 0, len(tally))
	for k := range tally {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, tally[k])
	}
	return strings.Join(parts, ", ")
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to show (0 = default)")
	historyCmd.Flags().String("export", "", "export format: yaml or json")

	rootCmd.AddCommand(historyCmd)
}
