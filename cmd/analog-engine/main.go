// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the analog-engine CLI.
// Implements: corpus ingest and scoring, false-positive tagging, embedding,
// cross-domain matching, registry dedup, audit trail and the batch pipeline
// (CLI surface).
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/analog-engine/internal/logging"
	"github.com/pdiddy/analog-engine/internal/secrets"
	"github.com/pdiddy/analog-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// secretsDir holds one file per credential.
const secretsDir = ".secrets"

// app is the state shared by every subcommand, built before any of them run.
var app struct {
	cfg    types.PipelineConfig
	logger *zap.Logger
	fs     afero.Fs
}

// rootCmd is the base command for the analog-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "analog-engine",
	Short: "Discover structurally analogous mechanisms across research domains",
	Long: `analog-engine finds pairs of mechanisms from different research domains
that share the same underlying structure. It indexes extracted mechanisms
into a local SQLite corpus, scores abstracts for mechanism richness, filters
boilerplate, embeds mechanism text, matches cross-domain pairs with a
multi-factor confidence score, removes pairs surfaced in earlier sessions,
and keeps an append-only audit trail of every emitted candidate.

Each stage is a subcommand; "run" executes a whole batch.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		app.fs = afero.NewOsFs()

		if err := bindCommandFlags(viper.GetViper(), cmd); err != nil {
			return err
		}
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}

		s, err := secrets.Load(app.fs, secretsDir, logger)
		if err != nil {
			return err
		}
		secrets.Apply(s, &cfg)
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", zap.Strings("keys", keys))
		}

		app.cfg = cfg
		app.logger = logger
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app.logger != nil {
			_ = app.logger.Sync()
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./analog-engine.yaml or ~/.config/analog-engine/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "corpus data directory (contains index/)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("corpus.data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: reading .env:", err)
	}

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("analog-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "analog-engine"))
		}
	}

	configureEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	// Interrupting a batch cancels the context; completed units stay
	// checkpointed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
