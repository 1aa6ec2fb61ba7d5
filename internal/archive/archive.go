// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive writes transformed files as a zip stream.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/pdiddy/unobtrude/pkg/types"
)

// ContentType is the MIME type of the archives written by Write.
const ContentType = "application/zip"

// Write streams a deflate-compressed zip holding one entry per ArchiveEntry,
// in the given order, to w. Nothing is buffered beyond the current entry.
func Write(w io.Writer, entries []types.ArchiveEntry) error {
	zw := zip.NewWriter(w)
	now := time.Now()
	for _, e := range entries {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.Path,
			Method:   zip.Deflate,
			Modified: now,
		})
		if err != nil {
			return fmt.Errorf("adding %s to archive: %w", e.Path, err)
		}
		if _, err := fw.Write(e.Content); err != nil {
			return fmt.Errorf("writing %s to archive: %w", e.Path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing archive: %w", err)
	}
	return nil
}

// Read decodes a zip produced by Write back into entries, in archive order.
func Read(data []byte) ([]types.ArchiveEntry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	entries := make([]types.ArchiveEntry, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		entries = append(entries, types.ArchiveEntry{Path: f.Name, Content: content})
	}
	return entries, nil
}
