// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pdiddy/unobtrude/pkg/types"
)

// setDefaults registers the built-in defaults for every config key.
func setDefaults(v *viper.Viper) {
	d := types.DefaultConfig()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.public_dir", d.Server.PublicDir)
	v.SetDefault("server.scratch_dir", d.Server.ScratchDir)
	v.SetDefault("server.archive_name", d.Server.ArchiveName)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	v.SetDefault("server.enable_cors", d.Server.EnableCORS)
	v.SetDefault("rewrite.extension", d.Rewrite.Extension)
	v.SetDefault("rewrite.nonce", string(d.Rewrite.Nonce))
	v.SetDefault("rewrite.close_conditional_on_gt", d.Rewrite.CloseConditionalOnGT)
	v.SetDefault("rewrite.workers", d.Rewrite.Workers)
	v.SetDefault("journal.path", d.Journal.Path)
	v.SetDefault("debug", d.Debug)
}

// bindEnv maps UNOBTRUDE_<SECTION>_<KEY> variables onto config keys. PORT
// and DEBUG are accepted unprefixed.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("UNOBTRUDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.port", "UNOBTRUDE_SERVER_PORT", "PORT")
	_ = v.BindEnv("debug", "UNOBTRUDE_DEBUG", "DEBUG")
}

// loadConfig decodes the merged settings and validates them.
func loadConfig(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

func validate(cfg types.Config) error {
	if !cfg.Rewrite.Nonce.Valid() {
		return fmt.Errorf("rewrite.nonce: unknown mode %q (want placeholder, random, or omit)", cfg.Rewrite.Nonce)
	}
	if cfg.Rewrite.Extension == "" {
		return fmt.Errorf("rewrite.extension must not be empty")
	}
	if cfg.Rewrite.Workers < 1 {
		return fmt.Errorf("rewrite.workers must be at least 1, got %d", cfg.Rewrite.Workers)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes must not be negative")
	}
	if cfg.Server.ArchiveName == "" {
		return fmt.Errorf("server.archive_name must not be empty")
	}
	return nil
}
