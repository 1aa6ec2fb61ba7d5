// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/unobtrude/internal/logging"
	"github.com/pdiddy/unobtrude/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the folder upload server",
	Long: `Serve starts the HTTP server. The page in the public directory uploads a
folder to POST /upload-folder; the response is a zip archive holding every
rewritten document at its original relative path.

GET /health reports liveness and GET /metrics exposes Prometheus metrics.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.Debug)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := server.New(server.Options{
		Server:   cfg.Server,
		Rewrite:  cfg.Rewrite,
		Fs:       afero.NewOsFs(),
		Logger:   logger,
		Journal:  store,
		Registry: reg,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

func init() {
	serveCmd.Flags().Int("port", 3000, "listen port (env PORT)")
	serveCmd.Flags().String("public-dir", "public", "directory of static assets served at /")
	serveCmd.Flags().String("scratch-dir", "", "parent directory of per-request workspaces (default: $TMPDIR/unobtrude)")
	serveCmd.Flags().String("archive-name", "modified_folder.zip", "download file name of the archive")
	serveCmd.Flags().Int64("max-upload-bytes", 0, "reject request bodies larger than this (0 = no limit)")
	serveCmd.Flags().Bool("cors", false, "allow cross-origin uploads")

	bindFlags(serveCmd, map[string]string{
		"server.port":             "port",
		"server.public_dir":       "public-dir",
		"server.scratch_dir":      "scratch-dir",
		"server.archive_name":     "archive-name",
		"server.max_upload_bytes": "max-upload-bytes",
		"server.enable_cors":      "cors",
	})

	rootCmd.AddCommand(serveCmd)
}
