// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the unobtrude CLI and server.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/unobtrude/internal/envfile"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the unobtrude CLI.
var rootCmd = &cobra.Command{
	Use:   "unobtrude",
	Short: "Move inline event handlers out of JSP markup",
	Long: `unobtrude rewrites JSP pages so that inline onclick, onchange, onerror and
onload attributes become classes, data attributes and a single delegated jQuery
script that carries a CSP nonce.

Run "unobtrude serve" for the folder upload page, or "unobtrude convert" to
process a local directory into a zip archive.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./unobtrude.yaml or ~/.config/unobtrude/unobtrude.yaml)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded below the process environment")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("journal", "", "SQLite run journal path (empty disables the journal)")

	rootCmd.PersistentFlags().String("extension", ".jsp", "file name suffix of documents to rewrite")
	rootCmd.PersistentFlags().String("nonce", "placeholder", "script nonce: placeholder, random, or omit")
	rootCmd.PersistentFlags().Int("workers", 4, "files transformed concurrently per batch")
	rootCmd.PersistentFlags().Bool("close-conditional", true, `rewrite leftover "&gt;" as "</c:if>>"`)

	bindFlags(rootCmd, map[string]string{
		"debug":                           "debug",
		"journal.path":                    "journal",
		"rewrite.extension":               "extension",
		"rewrite.nonce":                   "nonce",
		"rewrite.workers":                 "workers",
		"rewrite.close_conditional_on_gt": "close-conditional",
	})
}

func initConfig() {
	envFile, _ := rootCmd.PersistentFlags().GetString("env-file")
	loaded, err := envfile.Load(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if len(loaded) > 0 {
		fmt.Fprintf(os.Stderr, "Loaded environment: %v\n", loaded)
	}

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("unobtrude")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "unobtrude"))
		}
	}

	setDefaults(viper.GetViper())
	bindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// bindFlags binds each config key to the named persistent or local flag.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(name)
		}
		if flag == nil {
			panic(fmt.Sprintf("no flag %q on %s", name, cmd.Name()))
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			panic(err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
