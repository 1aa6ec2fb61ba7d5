// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// UploadedFile is one file received in a batch.
type UploadedFile struct {
	// Name is the client-supplied file name, possibly a relative path
	// (e.g. "views/admin/index.jsp").
	Name string `json:"name" yaml:"name"`

	// Content is the raw file body.
	Content []byte `json:"-" yaml:"-"`

	// ContentType is the sniffed MIME type. It never affects eligibility;
	// runs tally it per batch.
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
}

// ArchiveEntry is one file written to the output archive.
type ArchiveEntry struct {
	// Path is relative to the workspace root and uses forward slashes.
	Path string `json:"path" yaml:"path"`

	Content []byte `json:"-" yaml:"-"`
}

// RunStatus records how a batch run ended.
type RunStatus string

const (
	RunConverted RunStatus = "converted"
	RunRejected  RunStatus = "rejected"
	RunFailed    RunStatus = "failed"
)

// RunSource identifies the surface that started a batch.
type RunSource string

const (
	SourceHTTP RunSource = "http"
	SourceCLI  RunSource = "cli"
)

// Run is the journal record of one batch.
type Run struct {
	// ID is the request ID for HTTP runs and the workspace ID for CLI runs.
	ID string `json:"id" yaml:"id"`

	Source    RunSource     `json:"source" yaml:"source"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`

	// Uploaded is the number of files received.
	Uploaded int `json:"uploaded" yaml:"uploaded"`

	// Converted is the number of eligible files transformed and archived.
	Converted int `json:"converted" yaml:"converted"`

	// Skipped is the number of files left out for not matching the extension.
	Skipped int `json:"skipped" yaml:"skipped"`

	// ContentTypes counts uploaded files by sniffed MIME type.
	ContentTypes map[string]int `json:"content_types,omitempty" yaml:"content_types,omitempty"`

	Status RunStatus `json:"status" yaml:"status"`
	Error  string    `json:"error,omitempty" yaml:"error,omitempty"`
}
