// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"strconv"

	"sqlab/engine/internal/history"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd lists recently logged results of a tenant.
var historyCmd = &cobra.Command{
	Use:   "history <tenant>",
	Short: "List recently executed statements",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.History.Disabled || cfg.History.Path == "" {
			return errors.New("result history is disabled")
		}
		store, err := history.Open(cmd.Context(), cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.Recent(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}
		data := pterm.TableData{{"time", "id", "kind", "ok", "sql"}}
		for _, e := range entries {
			data = append(data, []string{
				e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				e.ID,
				string(e.Kind),
				strconv.FormatBool(e.Success),
				e.SQL,
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries")
}
