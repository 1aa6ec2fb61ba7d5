// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/unobtrude/pkg/types"
)

// Export formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

const exportLimit = 100000

// ExportEntry is the exported form of a Run. Durations are written in
// milliseconds and start times in RFC 3339.
type ExportEntry struct {
	ID         string `json:"id" yaml:"id"`
	Source     string `json:"source" yaml:"source"`
	StartedAt  string `json:"started_at" yaml:"started_at"`
	DurationMS int64  `json:"duration_ms" yaml:"duration_ms"`
	Uploaded   int    `json:"uploaded" yaml:"uploaded"`
	Converted  int    `json:"converted" yaml:"converted"`
	Skipped    int    `json:"skipped" yaml:"skipped"`
	Status     string `json:"status" yaml:"status"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`

	ContentTypes map[string]int `json:"content_types,omitempty" yaml:"content_types,omitempty"`
}

// Export writes up to limit recent runs to w in the given format. A limit of
// zero or less exports everything.
func (s *Store) Export(ctx context.Context, w io.Writer, format string, limit int) error {
	if limit <= 0 {
		limit = exportLimit
	}
	runs, err := s.query(ctx, limit)
	if err != nil {
		return fmt.Errorf("querying for export: %w", err)
	}
	entries := exportEntries(runs)

	var data []byte
	switch format {
	case FormatYAML:
		data, err = yaml.Marshal(entries)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
	case FormatJSON:
		data, err = json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		data = append(data, '\n')
	default:
		return fmt.Errorf("unknown export format %q (want %s or %s)", format, FormatYAML, FormatJSON)
	}

	_, err = w.Write(data)
	return err
}

func exportEntries(runs []types.Run) []ExportEntry {
	entries := make([]ExportEntry, len(runs))
	for i, r := range runs {
		entries[i] = ExportEntry{
			ID:         r.ID,
			Source:     string(r.Source),
			StartedAt:  r.StartedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			DurationMS: r.Duration.Milliseconds(),
			Uploaded:   r.Uploaded,
			Converted:  r.Converted,
			Skipped:    r.Skipped,
			Status:     string(r.Status),
			Error:      r.Error,

			ContentTypes: r.ContentTypes,
		}
	}
	return entries
}
