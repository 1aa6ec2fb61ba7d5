// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/unobtrude/internal/archive"
	"github.com/pdiddy/unobtrude/internal/convert"
	"github.com/pdiddy/unobtrude/internal/journal"
	"github.com/pdiddy/unobtrude/internal/logging"
	"github.com/pdiddy/unobtrude/internal/rewrite"
	"github.com/pdiddy/unobtrude/internal/workspace"
	"github.com/pdiddy/unobtrude/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert <dir>",
	Short: "Rewrite a local folder into a zip archive",
	Long: `Convert runs the same batch as the upload endpoint on a local directory.
Every file under <dir> is staged in a scratch workspace, each document with the
configured extension is rewritten, and the results are written to a zip
archive. The source directory is never modified.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = cfg.Server.ArchiveName
	}
	list, _ := cmd.Flags().GetBool("list")

	logger := logging.New(os.Stderr, cfg.Debug)
	store, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	fs := afero.NewOsFs()
	files, err := workspace.LoadDir(fs, args[0])
	if err != nil {
		return err
	}

	batch := convert.NewBatch(rewrite.New(rewrite.OptionsFromConfig(cfg.Rewrite)), convert.BatchOptions{
		Extension: cfg.Rewrite.Extension,
		Workers:   cfg.Rewrite.Workers,
		Progress:  os.Stdout,
		Logger:    logger,
	})

	ctx := context.Background()
	run := types.Run{
		Source:       types.SourceCLI,
		StartedAt:    time.Now(),
		Uploaded:     len(files),
		ContentTypes: convert.ContentTypes(files),
	}
	var result convert.Result
	err = workspace.With(fs, cfg.Server.ScratchDir, func(ws *workspace.Workspace) error {
		run.ID = ws.ID()
		var err error
		result, err = batch.Run(ctx, ws, files)
		return err
	})
	if err == nil {
		run.Converted = result.Converted
		run.Skipped = result.Skipped
		err = writeArchive(output, result.Entries)
	}
	recordRun(ctx, store, &run, err)
	if err != nil {
		return err
	}

	fmt.Printf("wrote %s (%d entries)\n", output, len(result.Entries))
	if list {
		return listArchive(output)
	}
	return nil
}

func writeArchive(path string, entries []types.ArchiveEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	if err := archive.Write(f, entries); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func listArchive(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	entries, err := archive.Read(data)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("  %8d  %s\n", len(e.Content), e.Path)
	}
	return nil
}

// recordRun stamps the outcome of run and writes it to the journal.
func recordRun(ctx context.Context, store *journal.Store, run *types.Run, err error) {
	run.Duration = time.Since(run.StartedAt)
	run.Status = types.RunConverted
	if err != nil {
		run.Status = types.RunFailed
		if errors.Is(err, convert.ErrNoFiles) {
			run.Status = types.RunRejected
		}
		run.Error = err.Error()
	}
	if jerr := store.Record(ctx, *run); jerr != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", jerr)
	}
}

func openJournal(cfg types.Config) (*journal.Store, error) {
	if cfg.Journal.Path == "" {
		return nil, nil
	}
	return journal.Open(cfg.Journal.Path)
}

func init() {
	convertCmd.Flags().StringP("output", "o", "", "archive path (default: server.archive_name)")
	convertCmd.Flags().Bool("list", false, "list the archive entries after writing")

	rootCmd.AddCommand(convertCmd)
}
