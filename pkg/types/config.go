// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"os"
	"path/filepath"
)

// NonceMode selects what the generated script element carries in its
// nonce attribute.
type NonceMode string

const (
	// NoncePlaceholder emits the literal "${nonce}" EL expression, resolved by
	// the JSP container when the page is rendered.
	NoncePlaceholder NonceMode = "placeholder"
	// NonceRandom emits a fresh random value per transformed document.
	NonceRandom NonceMode = "random"
	// NonceOmit emits no nonce attribute at all.
	NonceOmit NonceMode = "omit"
)

// Valid reports whether m is one of the known nonce modes.
func (m NonceMode) Valid() bool {
	switch m {
	case NoncePlaceholder, NonceRandom, NonceOmit:
		return true
	}
	return false
}

// ServerConfig holds settings for the HTTP upload endpoint.
type ServerConfig struct {
	// Port is the TCP port the server listens on (default 3000, env PORT).
	Port int `json:"port" yaml:"port" mapstructure:"port"`

	// PublicDir holds static assets served as-is at the server root.
	PublicDir string `json:"public_dir" yaml:"public_dir" mapstructure:"public_dir"`

	// ScratchDir is the parent of the per-request scratch workspaces.
	ScratchDir string `json:"scratch_dir" yaml:"scratch_dir" mapstructure:"scratch_dir"`

	// ArchiveName is the download file name sent in Content-Disposition.
	ArchiveName string `json:"archive_name" yaml:"archive_name" mapstructure:"archive_name"`

	// MaxUploadBytes caps the request body size. Zero means no limit.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`

	// EnableCORS turns on permissive CORS headers for browser clients on
	// other origins.
	EnableCORS bool `json:"enable_cors" yaml:"enable_cors" mapstructure:"enable_cors"`
}

// RewriteConfig holds settings for the markup transform and batch run.
type RewriteConfig struct {
	// Extension is the file name suffix that makes an uploaded file eligible
	// for transformation (e.g. ".jsp").
	Extension string `json:"extension" yaml:"extension" mapstructure:"extension"`

	// Nonce selects the nonce attribute emitted on the generated script.
	Nonce NonceMode `json:"nonce" yaml:"nonce" mapstructure:"nonce"`

	// CloseConditionalOnGT keeps the legacy repair rule that turns every
	// remaining "&gt;" into "</c:if>>".
	CloseConditionalOnGT bool `json:"close_conditional_on_gt" yaml:"close_conditional_on_gt" mapstructure:"close_conditional_on_gt"`

	// Workers bounds how many files of one batch are transformed at once.
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// JournalConfig holds settings for the run history store.
type JournalConfig struct {
	// Path is the SQLite database file. Empty disables the journal.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// Config groups all settings.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server" mapstructure:"server"`
	Rewrite RewriteConfig `json:"rewrite" yaml:"rewrite" mapstructure:"rewrite"`
	Journal JournalConfig `json:"journal" yaml:"journal" mapstructure:"journal"`
	Debug   bool          `json:"debug" yaml:"debug" mapstructure:"debug"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:        3000,
			PublicDir:   "public",
			ScratchDir:  filepath.Join(os.TempDir(), "unobtrude"),
			ArchiveName: "modified_folder.zip",
		},
		Rewrite: RewriteConfig{
			Extension:            ".jsp",
			Nonce:                NoncePlaceholder,
			CloseConditionalOnGT: true,
			Workers:              4,
		},
	}
}
