// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the sqlab command-line interface. Each command drives
// one engine operation against the configured PostgreSQL server: running
// submissions, checking solutions, reading schema facts and provisioning
// tenants.
package cmd

import (
	"fmt"
	"os"

	"sqlab/engine/internal/config"
	"sqlab/engine/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	showVersion bool
	cfgFile     string

	// cfg and logger are set by the root pre-run hook.
	cfg    *config.Config
	logger = zap.NewNop()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "sqlab",
	Short:         "Run and check SQL exercises against per-tenant PostgreSQL databases",
	Long:          `sqlab executes SQL submissions on isolated per-tenant databases, streams one result per statement and checks answers against reference solutions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = c
		l, err := logging.New(cfg.Log.Level, cfg.Log.File)
		if err != nil {
			return err
		}
		logger = l
		logger.Debug("configuration loaded", zap.String("file", cfg.File), zap.String("backend", cfg.Engine.Backend))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Fprintf(cmd.OutOrStdout(), "sqlab %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, logging.Mask(err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/sqlab/config.yaml)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-file", "", "Write logs to this file instead of stderr")
	pf.String("backend", "postgres", "Database backend")
	pf.String("admin-dsn", "", "Administrative DSN used for provisioning")
	pf.String("runner-dsn", "", "DSN tenant connections log in with")
	pf.Duration("idle-timeout", 0, "Close tenant connections idle longer than this")
	pf.Bool("autocommit", true, "Run tenant statements in autocommit mode")
	pf.Duration("statement-timeout", 0, "Per-statement timeout on tenant connections (0 disables)")
	pf.String("history-db", "", "Result history database path")
	pf.Bool("no-history", false, "Do not record results")
}
