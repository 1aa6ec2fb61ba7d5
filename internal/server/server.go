// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the batch converter over HTTP: a multipart upload
// endpoint that answers with a zip archive, static assets for the upload
// page, and health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/pdiddy/unobtrude/internal/archive"
	"github.com/pdiddy/unobtrude/internal/convert"
	"github.com/pdiddy/unobtrude/internal/journal"
	"github.com/pdiddy/unobtrude/internal/logging"
	"github.com/pdiddy/unobtrude/internal/metrics"
	"github.com/pdiddy/unobtrude/internal/rewrite"
	"github.com/pdiddy/unobtrude/pkg/types"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const shutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Server  types.ServerConfig
	Rewrite types.RewriteConfig

	// Fs holds the scratch workspaces. Nil uses the OS filesystem.
	Fs afero.Fs

	// Logger receives request and batch logs. Nil discards them.
	Logger *log.Logger

	// Journal records one Run per upload. Nil disables it.
	Journal *journal.Store

	// Registry receives the batch metrics and backs GET /metrics. Nil uses
	// a fresh registry.
	Registry *prometheus.Registry
}

// Server handles uploads.
type Server struct {
	cfg      types.ServerConfig
	fs       afero.Fs
	logger   *log.Logger
	journal  *journal.Store
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	batch    *convert.Batch
	engine   *gin.Engine

	// writeArchive streams the zip; tests swap it to inject failures.
	writeArchive func(io.Writer, []types.ArchiveEntry) error
}

// New builds a Server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if !opts.Rewrite.Nonce.Valid() && opts.Rewrite.Nonce != "" {
		return nil, fmt.Errorf("unknown nonce mode %q", opts.Rewrite.Nonce)
	}

	m, err := metrics.New(opts.Registry)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	rw := rewrite.OptionsFromConfig(opts.Rewrite)
	rw.OnRewrite = m.IncHandler

	s := &Server{
		cfg:          opts.Server,
		fs:           opts.Fs,
		logger:       opts.Logger,
		journal:      opts.Journal,
		metrics:      m,
		registry:     opts.Registry,
		writeArchive: archive.Write,
		batch: convert.NewBatch(rewrite.New(rw), convert.BatchOptions{
			Extension: opts.Rewrite.Extension,
			Workers:   opts.Rewrite.Workers,
			Logger:    opts.Logger,
		}),
	}
	s.engine = s.routes()
	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.CustomRecoveryWithWriter(io.Discard, s.recoverPanic))
	engine.Use(requestID())
	engine.Use(logging.Middleware(s.logger))

	if s.cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", RequestIDHeader}
		corsConfig.ExposeHeaders = []string{"Content-Disposition", RequestIDHeader}
		engine.Use(cors.New(corsConfig))
	}

	engine.POST("/upload-folder", s.handleUpload)
	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	engine.NoRoute(s.handleStatic())
	return engine
}

// Run listens on the configured port until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.cfg.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String(), "public_dir", s.cfg.PublicDir)
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStatic serves files from the public directory for GET and HEAD
// requests that match no route.
func (s *Server) handleStatic() gin.HandlerFunc {
	files := http.FileServer(gin.Dir(s.cfg.PublicDir, false))
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.String(http.StatusNotFound, "Not found.")
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	}
}

// recoverPanic turns handler panics into 500 responses. http.ErrAbortHandler is
// re-raised so net/http drops the connection.
func (s *Server) recoverPanic(c *gin.Context, err any) {
	if err == http.ErrAbortHandler {
		panic(err)
	}
	s.logger.Error("panic serving request", "path", c.Request.URL.Path, "request_id", c.GetString(logging.RequestIDKey), "panic", err)
	c.AbortWithStatus(http.StatusInternalServerError)
}

// requestID tags every request with an ID, reusing the client's when sent.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(logging.RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
