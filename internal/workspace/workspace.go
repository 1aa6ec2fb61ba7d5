// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workspace manages the per-batch scratch directory that uploaded
// files are staged in while they are transformed.
//
// Each Workspace is a fresh <root>/<uuid> directory, so concurrent batches
// never see each other's files. Use With to scope a workspace to a function;
// the directory is removed on every exit path.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/pdiddy/unobtrude/pkg/types"
)

// Workspace is one isolated scratch directory.
type Workspace struct {
	fs  afero.Fs
	id  string
	dir string
}

// New creates a new, empty workspace under root.
func New(fs afero.Fs, root string) (*Workspace, error) {
	id := uuid.NewString()
	dir := filepath.Join(root, id)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace %s: %w", dir, err)
	}
	return &Workspace{fs: fs, id: id, dir: dir}, nil
}

// With creates a workspace under root, runs fn with it, and removes the
// workspace afterwards, whether fn succeeds, fails or panics. A removal
// failure is returned only when fn itself succeeded.
func With(fs afero.Fs, root string, fn func(*Workspace) error) (err error) {
	ws, err := New(fs, root)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := ws.Remove(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(ws)
}

// ID returns the workspace identifier (the directory's base name).
func (w *Workspace) ID() string { return w.id }

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// Materialize writes every file into the workspace under its cleaned name.
// A later file with the same name overwrites an earlier one.
func (w *Workspace) Materialize(files []types.UploadedFile) error {
	for _, f := range files {
		rel, err := CleanName(f.Name)
		if err != nil {
			return err
		}
		if err := w.WriteFile(rel, f.Content); err != nil {
			return err
		}
	}
	return nil
}

// Collect walks the workspace and returns the slash-separated relative paths
// of regular files whose name ends with ext, in lexical order.
func (w *Workspace) Collect(ext string) ([]string, error) {
	var paths []string
	err := afero.Walk(w.fs, w.dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() || !strings.HasSuffix(info.Name(), ext) {
			return nil
		}
		rel, err := filepath.Rel(w.dir, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking workspace %s: %w", w.dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadFile reads the file at the slash-separated relative path rel.
func (w *Workspace) ReadFile(rel string) ([]byte, error) {
	data, err := afero.ReadFile(w.fs, w.path(rel))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}
	return data, nil
}

// WriteFile writes data to the slash-separated relative path rel, creating
// parent directories as needed.
func (w *Workspace) WriteFile(rel string, data []byte) error {
	p := w.path(rel)
	if err := w.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", rel, err)
	}
	if err := afero.WriteFile(w.fs, p, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

// Remove deletes the workspace directory and everything in it. Removing an
// already removed workspace is not an error.
func (w *Workspace) Remove() error {
	if err := w.fs.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("removing workspace %s: %w", w.dir, err)
	}
	return nil
}

func (w *Workspace) path(rel string) string {
	return filepath.Join(w.dir, filepath.FromSlash(rel))
}

// ErrInvalidName is returned for file names that do not name a file.
var ErrInvalidName = errors.New("invalid file name")

// CleanName turns a client-supplied file name into a slash-separated path
// relative to the workspace root. Directory components are kept; "..",
// absolute prefixes and backslashes cannot escape the root.
func CleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if vol := filepath.VolumeName(name); vol != "" {
		name = name[len(vol):]
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+name), "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return cleaned, nil
}

// LoadDir reads every regular file under dir into UploadedFiles named by
// their slash-separated path relative to dir, with sniffed content types.
func LoadDir(fs afero.Fs, dir string) ([]types.UploadedFile, error) {
	var files []types.UploadedFile
	err := afero.Walk(fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := afero.ReadFile(fs, p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		files = append(files, types.UploadedFile{
			Name:        filepath.ToSlash(rel),
			Content:     data,
			ContentType: mimetype.Detect(data).String(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", dir, err)
	}
	return files, nil
}
