// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert runs a batch of uploaded files through a Converter inside a
// scratch workspace and collects the results as archive entries.
//
// A batch is all-or-nothing: the first file that fails to read, convert or
// write aborts the run and no entries are returned.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/unobtrude/internal/workspace"
	"github.com/pdiddy/unobtrude/pkg/types"
)

// ErrNoFiles is returned by Run for an empty batch.
var ErrNoFiles = errors.New("no files uploaded")

const defaultExtension = ".jsp"

// Converter transforms the text of one document. *rewrite.Transformer
// implements it.
type Converter interface {
	Convert(content string) (string, error)
}

// BatchResult holds the counts of one batch run.
type BatchResult struct {
	// Uploaded is the number of files received, duplicates included.
	Uploaded int
	// Converted is the number of eligible files transformed and archived.
	Converted int
	// Skipped is the number of distinct workspace paths without the document
	// extension.
	Skipped int
}

// Total returns the number of distinct workspace files accounted for. It
// equals Uploaded unless names collide once cleaned.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped
}

// Result is the outcome of a successful batch.
type Result struct {
	BatchResult

	// Entries holds one entry per eligible file, ordered by path.
	Entries []types.ArchiveEntry
}

// BatchOptions configures a Batch.
type BatchOptions struct {
	// Extension selects eligible files by name suffix (default ".jsp").
	Extension string

	// Workers bounds concurrent file transforms (default 1).
	Workers int

	// Progress receives one status line per file and a summary, in the
	// style of the CLI. Nil discards them.
	Progress io.Writer

	// Logger receives structured per-file debug logs. Nil discards them.
	Logger *log.Logger
}

// Batch runs uploaded files through a Converter.
type Batch struct {
	conv Converter
	opts BatchOptions
}

// NewBatch creates a Batch using conv for every eligible file.
func NewBatch(conv Converter, opts BatchOptions) *Batch {
	if opts.Extension == "" {
		opts.Extension = defaultExtension
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &Batch{conv: conv, opts: opts}
}

// Extension returns the document extension eligible files must end with.
func (b *Batch) Extension() string { return b.opts.Extension }

// Run materializes files into ws, transforms every eligible file in place,
// and returns the transformed contents keyed by workspace-relative path.
// Non-eligible files are written to ws but left out of the result.
func (b *Batch) Run(ctx context.Context, ws *workspace.Workspace, files []types.UploadedFile) (Result, error) {
	if len(files) == 0 {
		return Result{}, ErrNoFiles
	}

	if err := ws.Materialize(files); err != nil {
		return Result{}, fmt.Errorf("saving uploaded files: %w", err)
	}

	paths, err := ws.Collect(b.opts.Extension)
	if err != nil {
		return Result{}, err
	}

	result := Result{BatchResult: BatchResult{Uploaded: len(files), Converted: len(paths)}}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		rel, _ := workspace.CleanName(f.Name)
		if seen[rel] || strings.HasSuffix(rel, b.opts.Extension) {
			continue
		}
		seen[rel] = true
		fmt.Fprintf(b.opts.Progress, "skipped: %s (not %s)\n", rel, b.opts.Extension)
		result.Skipped++
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for _, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return b.convertFile(ws, p)
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(b.opts.Progress, "failed:  %v\n", err)
		return Result{}, err
	}

	result.Entries = make([]types.ArchiveEntry, 0, len(paths))
	for _, p := range paths {
		content, err := ws.ReadFile(p)
		if err != nil {
			return Result{}, err
		}
		result.Entries = append(result.Entries, types.ArchiveEntry{Path: p, Content: content})
		fmt.Fprintf(b.opts.Progress, "converted: %s\n", p)
	}

	fmt.Fprintf(b.opts.Progress, "\nBatch summary: %d converted, %d skipped (total: %d)\n",
		result.Converted, result.Skipped, result.Total())
	return result, nil
}

// ContentTypes tallies the sniffed MIME types of files, parameters dropped.
// Files without a sniffed type are not counted.
func ContentTypes(files []types.UploadedFile) map[string]int {
	tally := make(map[string]int)
	for _, f := range files {
		mt, _, _ := strings.Cut(f.ContentType, ";")
		if mt = strings.TrimSpace(mt); mt != "" {
			tally[mt]++
		}
	}
	return tally
}

// convertFile rewrites one workspace file in place.
func (b *Batch) convertFile(ws *workspace.Workspace, rel string) error {
	data, err := ws.ReadFile(rel)
	if err != nil {
		return err
	}
	out, err := b.conv.Convert(string(data))
	if err != nil {
		return fmt.Errorf("converting %s: %w", rel, err)
	}
	if err := ws.WriteFile(rel, []byte(out)); err != nil {
		return err
	}
	b.opts.Logger.Debug("converted file", "path", rel, "workspace", ws.ID(), "bytes_in", len(data), "bytes_out", len(out))
	return nil
}
