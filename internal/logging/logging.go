// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging configures the structured logger shared by the server and
// the CLI, and the request logging middleware.
package logging

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

const prefix = "unobtrude"

// New returns a logger writing to w. Debug enables debug level with caller
// and timestamp reporting.
func New(w io.Writer, debug bool) *log.Logger {
	if !debug {
		l := log.NewWithOptions(w, log.Options{ReportTimestamp: true})
		l.SetLevel(log.InfoLevel)
		return l
	}
	l := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Prefix:          prefix,
	})
	l.SetLevel(log.DebugLevel)
	return l
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "request_id"

// Middleware logs one line per request after it completes: warnings for 4xx,
// errors for 5xx, info otherwise.
func Middleware(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		keyvals := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"bytes", c.Writer.Size(),
			"duration", time.Since(start),
			"request_id", c.GetString(RequestIDKey),
		}
		if len(c.Errors) > 0 {
			keyvals = append(keyvals, "error", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.Error("request", keyvals...)
		case status >= 400:
			logger.Warn("request", keyvals...)
		default:
			logger.Info("request", keyvals...)
		}
	}
}
