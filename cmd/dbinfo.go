// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"os"
	"strings"

	"sqlab/engine/internal/config"
	"sqlab/engine/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// dbinfoCmd shows the configured connections with credentials masked.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show the configured database connections",
	Long: `The dbinfo command displays the administrative and runner DSNs with user and
password masked, where each one came from, and the local settings in effect.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		store := secretStore()

		var lines []string
		admin, src := describeAdmin(store)
		lines = append(lines, fmt.Sprintf("admin:   %s (%s)", admin, src))
		runner, src := describeRunner(store)
		lines = append(lines, fmt.Sprintf("runner:  %s (%s)", runner, src))
		lines = append(lines,
			"",
			fmt.Sprintf("backend:      %s", cfg.Engine.Backend),
			fmt.Sprintf("autocommit:   %t", cfg.Pool.Autocommit),
			fmt.Sprintf("idle timeout: %s", cfg.Pool.IdleTimeout),
			fmt.Sprintf("history:      %s", historyLabel()),
		)
		if cfg.File != "" {
			lines = append(lines, fmt.Sprintf("config file:  %s", cfg.File))
		}

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Database Connection")).
			WithPadding(1).
			Println(strings.Join(lines, "\n"))
		pterm.Println()
		pterm.Println("To update a connection, run: sqlab connect [--runner]")
		pterm.Println()
		return nil
	},
}

func describeAdmin(store config.SecretStore) (string, string) {
	switch {
	case cfg.Database.AdminDSN != "":
		return logging.Mask(cfg.Database.AdminDSN), "config, SQLAB_DSN or --admin-dsn"
	case os.Getenv("DATABASE_URL") != "":
		return logging.Mask(os.Getenv("DATABASE_URL")), "DATABASE_URL"
	}
	if store != nil {
		if v, err := store.LoadAdminDSN(); err == nil {
			return logging.Mask(v), "OS keychain"
		}
	}
	return "not configured", "run 'sqlab connect'"
}

func describeRunner(store config.SecretStore) (string, string) {
	if cfg.Database.RunnerDSN != "" {
		return logging.Mask(cfg.Database.RunnerDSN), "config or --runner-dsn"
	}
	if store != nil {
		if v, err := store.LoadRunnerDSN(); err == nil {
			return logging.Mask(v), "OS keychain"
		}
	}
	return "same as admin", "no runner DSN stored"
}

func historyLabel() string {
	if cfg.History.Disabled || cfg.History.Path == "" {
		return "disabled"
	}
	return cfg.History.Path
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
}
