// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/pdiddy/unobtrude/internal/archive"
	"github.com/pdiddy/unobtrude/internal/convert"
	"github.com/pdiddy/unobtrude/internal/httputil"
	"github.com/pdiddy/unobtrude/internal/logging"
	"github.com/pdiddy/unobtrude/internal/workspace"
	"github.com/pdiddy/unobtrude/pkg/types"
)

// UploadField is the repeated multipart field carrying the files.
const UploadField = "files[]"

// Response bodies for failed uploads.
const (
	msgNoFiles       = "No files uploaded."
	msgUploadFailed  = "Error uploading files."
	msgProcessFailed = "Error processing files."
	msgZipFailed     = "Error creating ZIP file."
)

// multipartMemory bounds how much of an upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// handleUpload runs one batch: read the parts, transform them in a private
// workspace, remove the workspace, then stream the archive.
func (s *Server) handleUpload(c *gin.Context) {
	run := types.Run{
		ID:        c.GetString(logging.RequestIDKey),
		Source:    types.SourceHTTP,
		StartedAt: time.Now(),
	}

	files, err := s.readUpload(c)
	if errors.Is(err, convert.ErrNoFiles) {
		s.fail(c, &run, http.StatusBadRequest, msgNoFiles, err)
		return
	}
	if err != nil {
		s.fail(c, &run, http.StatusInternalServerError, msgUploadFailed, err)
		return
	}
	run.Uploaded = len(files)
	run.ContentTypes = convert.ContentTypes(files)

	var result convert.Result
	err = workspace.With(s.fs, s.cfg.ScratchDir, func(ws *workspace.Workspace) error {
		s.logger.Debug("workspace created", "request_id", run.ID, "workspace", ws.ID(), "files", len(files))
		var err error
		result, err = s.batch.Run(c.Request.Context(), ws, files)
		return err
	})
	if err != nil {
		s.fail(c, &run, http.StatusInternalServerError, msgProcessFailed, err)
		return
	}
	run.Converted = result.Converted
	run.Skipped = result.Skipped

	c.Header("Content-Type", archive.ContentType)
	c.Header("Content-Disposition", httputil.Attachment(s.cfg.ArchiveName))
	c.Status(http.StatusOK)

	cw := &httputil.CountingWriter{W: c.Writer}
	if err := s.writeArchive(cw, result.Entries); err != nil {
		if !c.Writer.Written() {
			c.Writer.Header().Del("Content-Disposition")
			c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
			s.fail(c, &run, http.StatusInternalServerError, msgZipFailed, err)
			return
		}
		run.Status = types.RunFailed
		run.Error = err.Error()
		s.finish(c, &run)
		s.logger.Error("archive stream interrupted", "request_id", run.ID, "bytes", cw.N, "error", err)
		panic(http.ErrAbortHandler)
	}

	run.Status = types.RunConverted
	s.finish(c, &run)
	s.logger.Info("batch converted", "request_id", run.ID,
		"uploaded", run.Uploaded, "converted", run.Converted, "skipped", run.Skipped,
		"bytes", cw.N, "duration", run.Duration, "content_types", run.ContentTypes)
}

// readUpload collects the files[] parts. A request that is not multipart or
// carries no files yields convert.ErrNoFiles.
func (s *Server) readUpload(c *gin.Context) ([]types.UploadedFile, error) {
	if s.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	}

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, convert.ErrNoFiles
		}
		return nil, fmt.Errorf("parsing multipart form: %w", err)
	}
	form := c.Request.MultipartForm
	defer form.RemoveAll()

	headers := form.File[UploadField]
	if len(headers) == 0 {
		return nil, convert.ErrNoFiles
	}

	files := make([]types.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		name := httputil.UploadName(fh)
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("opening part %s: %w", name, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading part %s: %w", name, err)
		}
		files = append(files, types.UploadedFile{
			Name:        name,
			Content:     data,
			ContentType: mimetype.Detect(data).String(),
		})
		s.logger.Debug("received file", "request_id", c.GetString(logging.RequestIDKey),
			"name", name, "bytes", len(data), "content_type", files[len(files)-1].ContentType)
	}
	return files, nil
}

// fail answers with a plain-text error and records the failed run.
func (s *Server) fail(c *gin.Context, run *types.Run, status int, msg string, err error) {
	run.Status = types.RunFailed
	if status < http.StatusInternalServerError {
		run.Status = types.RunRejected
	}
	run.Error = err.Error()
	_ = c.Error(err)
	c.String(status, msg)
	s.finish(c, run)
}

// finish stamps the duration and reports the run to metrics and the journal.
func (s *Server) finish(c *gin.Context, run *types.Run) {
	run.Duration = time.Since(run.StartedAt)
	s.metrics.ObserveBatch(string(run.Status), run.Duration)
	if run.Status == types.RunConverted {
		s.metrics.AddFiles(run.Converted, run.Skipped)
	}
	if err := s.journal.Record(context.WithoutCancel(c.Request.Context()), *run); err != nil {
		s.logger.Warn("journal write failed", "request_id", run.ID, "error", err)
	}
}
