// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"io"

	"sqlab/engine/internal/checker"
	"sqlab/engine/internal/render"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	checkStudent    string
	checkReferences []string
	checkSearchPath string
	checkJSON       bool
)

// checkCmd compares a student query with reference solutions.
var checkCmd = &cobra.Command{
	Use:   "check <tenant>",
	Short: "Check a query against reference solutions",
	Long: `The check command runs the first statement of the student query and of each
reference solution and compares column names, column types and rows (as a
multiset). Only SELECT statements can be checked. The first matching reference
wins; otherwise the first failure is reported.

References run with the given search path, which is restored afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkStudent == "" {
			return errors.New("--query is required")
		}
		ctx := cmd.Context()
		name := args[0]

		eng, cleanup, err := openEngine(ctx, false)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := eng.CheckSolution(ctx, name, checkStudent, checkReferences, checkSearchPath)
		if err != nil {
			return connectFailure(name, err)
		}
		if checkJSON {
			return render.NewEncoder(cmd.OutOrStdout()).Encode(res)
		}
		printCheck(cmd.OutOrStdout(), res)
		return nil
	},
}

func printCheck(w io.Writer, res checker.Result) {
	switch res.Correct {
	case checker.Correct:
		fmt.Fprintln(w, pterm.FgGreen.Sprint("✅ correct"))
	case checker.Incorrect:
		fmt.Fprintln(w, pterm.FgRed.Sprint("❌ incorrect: "+res.Message))
	default:
		fmt.Fprintln(w, pterm.FgYellow.Sprint("⚠️  unknown: "+res.Message))
	}
	if !res.Executed && res.Correct == checker.Incorrect {
		fmt.Fprintln(w, pterm.FgGray.Sprint("your query did not run"))
	}
	if res.Diff != nil && !res.Diff.Equal() {
		fmt.Fprintln(w)
		printDataset(w, res.Diff.Dataset())
	}
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVarP(&checkStudent, "query", "q", "", "Student SQL; only the first statement is checked")
	checkCmd.Flags().StringArrayVarP(&checkReferences, "reference", "r", nil, "Reference solution (repeatable)")
	checkCmd.Flags().StringVar(&checkSearchPath, "search-path", "", "search_path for the references")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Write the result as JSON")
}
