// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"sqlab/engine/internal/render"
	"sqlab/engine/internal/sqlexec"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var schemaJSON bool

// schemaCmd lists column facts and unique constraints of a tenant database.
var schemaCmd = &cobra.Command{
	Use:   "schema <tenant>",
	Short: "Show the tenant's columns and unique constraints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := args[0]

		eng, cleanup, err := openEngine(ctx, false)
		if err != nil {
			return err
		}
		defer cleanup()

		cols, err := eng.GetColumns(ctx, name)
		if err != nil {
			return connectFailure(name, err)
		}
		uniques, err := eng.GetUniqueConstraints(ctx, name)
		if err != nil {
			return connectFailure(name, err)
		}

		w := cmd.OutOrStdout()
		if schemaJSON {
			return render.NewEncoder(w).Encode(map[string]any{"columns": cols, "unique_constraints": uniques})
		}

		data := pterm.TableData{{"table", "column", "type", "nullable", "references"}}
		for _, c := range cols {
			ref := ""
			if c.ForeignKey != nil {
				ref = fmt.Sprintf("%s.%s(%s)", c.ForeignKey.Schema, c.ForeignKey.Table, c.ForeignKey.Column)
			}
			data = append(data, []string{c.Schema + "." + c.Table, c.Column, typeLabel(c), strconv.FormatBool(c.Nullable), ref})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render(); err != nil {
			return err
		}

		cons := pterm.TableData{{"table", "constraint", "columns"}}
		for _, u := range uniques {
			cons = append(cons, []string{u.Schema + "." + u.Table, u.Kind, strings.Join(u.Columns, ", ")})
		}
		return pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(cons).Render()
	},
}

func typeLabel(c sqlexec.ColumnFact) string {
	switch {
	case c.Precision != nil && c.Scale != nil && *c.Scale > 0:
		return fmt.Sprintf("%s(%d,%d)", c.DataType, *c.Precision, *c.Scale)
	default:
		return c.DataType
	}
}

// searchPathCmd prints the tenant session's search_path.
var searchPathCmd = &cobra.Command{
	Use:   "searchpath <tenant>",
	Short: "Show the tenant's search_path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, cleanup, err := openEngine(ctx, false)
		if err != nil {
			return err
		}
		defer cleanup()

		path, err := eng.GetSearchPath(ctx, args[0])
		if err != nil {
			return connectFailure(args[0], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd, searchPathCmd)
	schemaCmd.Flags().BoolVar(&schemaJSON, "json", false, "Write the facts as JSON")
}
