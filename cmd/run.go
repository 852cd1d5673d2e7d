// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	apperrors "sqlab/engine/internal/errors"
	"sqlab/engine/internal/logging"
	"sqlab/engine/internal/render"
	"sqlab/engine/internal/sqlexec"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	runJSON         bool
	runKeepComments bool
	runExpr         string
	runBuiltin      string
)

// runCmd executes a submission and streams one result per statement.
var runCmd = &cobra.Command{
	Use:   "run <tenant> [file|-]",
	Short: "Execute SQL statements in a tenant database",
	Long: `The run command splits the submission into statements and executes them in
order on the tenant's connection. A failing statement is rolled back and the
remaining statements still run.

SQL is read from --execute, from the named file, or from stdin. With --json
every result is written as one JSON line as soon as it is available.

Builtin queries (--builtin): schemas, searchpath, tables`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := args[0]

		var text string
		if runBuiltin == "" {
			var err error
			text, err = readSubmission(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}
		}

		eng, cleanup, err := openEngine(ctx, false)
		if err != nil {
			return err
		}
		defer cleanup()

		var seq iter.Seq2[sqlexec.Result, error]
		if runBuiltin != "" {
			seq, err = eng.RunBuiltin(ctx, name, runBuiltin)
			if err != nil {
				return fmt.Errorf("%w (available: %s)", err, strings.Join(eng.Builtins(), ", "))
			}
		} else {
			seq = eng.RunSubmission(ctx, name, text, !runKeepComments)
		}

		if runJSON {
			return streamJSON(cmd.OutOrStdout(), name, seq)
		}
		return streamPretty(cmd.OutOrStdout(), name, seq)
	},
}

func readSubmission(stdin io.Reader, args []string) (string, error) {
	if runExpr != "" {
		return runExpr, nil
	}
	if len(args) == 1 && args[0] != "-" {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func streamJSON(w io.Writer, name string, seq iter.Seq2[sqlexec.Result, error]) error {
	enc := render.NewEncoder(w)
	for res, err := range seq {
		if err != nil {
			return connectFailure(name, err)
		}
		if err := enc.Encode(render.FromResult(res)); err != nil {
			return err
		}
	}
	return nil
}

func streamPretty(w io.Writer, name string, seq iter.Seq2[sqlexec.Result, error]) error {
	spin := newAreaSpinner("running", isTerminal())
	defer spin.Stop()

	total, failed := 0, 0
	spin.Start()
	for res, err := range seq {
		spin.Stop()
		if err != nil {
			return connectFailure(name, err)
		}
		total++
		if !res.Success {
			failed++
		}
		printResult(w, res)
		spin.Start()
	}
	spin.Stop()

	if failed > 0 {
		return fmt.Errorf("%d of %d statements failed", failed, total)
	}
	return nil
}

func printResult(w io.Writer, res sqlexec.Result) {
	fmt.Fprintln(w, pterm.FgGray.Sprint(res.Statement.Display()))
	for _, n := range res.Notices {
		fmt.Fprintln(w, pterm.FgYellow.Sprint(n))
	}
	switch res.Kind {
	case sqlexec.KindDataset:
		printDataset(w, res.Dataset)
	case sqlexec.KindStatus:
		fmt.Fprintln(w, pterm.FgGreen.Sprint("✅ "+res.Status))
	case sqlexec.KindError:
		fmt.Fprintln(w, pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("❌ "+res.Error.Kind))
		fmt.Fprintln(w, render.ErrorMessage(res.Error))
	}
	if res.ID != "" {
		fmt.Fprintln(w, pterm.FgGray.Sprint("id "+res.ID))
	}
	fmt.Fprintln(w)
}

// connectFailure presents a connectivity error; other errors pass through.
func connectFailure(name string, err error) error {
	if apperrors.Is(err, apperrors.ConnectFailed) {
		logging.PresentConnectError(name, err.Error())
	}
	return err
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Write newline-delimited JSON records")
	runCmd.Flags().BoolVar(&runKeepComments, "keep-comments", false, "Send statements with their comments")
	runCmd.Flags().StringVarP(&runExpr, "execute", "e", "", "SQL text to run")
	runCmd.Flags().StringVar(&runBuiltin, "builtin", "", "Run a builtin query instead of SQL")
}
