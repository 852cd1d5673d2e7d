// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"os"

	"sqlab/engine/internal/dsn"
	"sqlab/engine/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	provisionPassword string
	deprovisionYes    bool
)

// provisionCmd creates a tenant's role and database.
var provisionCmd = &cobra.Command{
	Use:   "provision <tenant>",
	Short: "Create the role and database of a tenant",
	Long: `The provision command connects with the administrative DSN, creates a login
role and a database owned by it, and lets the runner login assume the role.
Nothing is changed when the database already exists.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := args[0]

		password := provisionPassword
		if password == "" {
			var err error
			password, err = promptSecret(os.Stdin, "Initial password for "+name+": ")
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("password is required")
			}
		}

		eng, cleanup, err := openEngine(ctx, true)
		if err != nil {
			return err
		}
		defer cleanup()

		spin := newAreaSpinner("provisioning "+name, isTerminal())
		spin.Start()
		_, err = eng.ProvisionTenant(ctx, name, password)
		spin.Stop()
		if err != nil {
			pterm.Println("❌ " + logging.PresentError("provision "+name, err))
			return err
		}
		pterm.Printf("✅ tenant %s is ready\n", name)
		if runner, err := cfg.RunnerDSN(secretStore()); err == nil {
			if own, err := dsn.ForDatabase(runner, name, name); err == nil {
				pterm.Println("   direct login: " + own)
			}
		}
		return nil
	},
}

// deprovisionCmd drops a tenant's database and role.
var deprovisionCmd = &cobra.Command{
	Use:   "deprovision <tenant>",
	Short: "Drop the database and role of a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !deprovisionYes {
			ok, _ := pterm.DefaultInteractiveConfirm.Show("Drop database and role " + name + "? All data is lost")
			if !ok {
				pterm.Println("Aborted.")
				return nil
			}
		}

		eng, cleanup, err := openEngine(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := eng.DropTenant(cmd.Context(), name); err != nil {
			pterm.Println("❌ " + logging.PresentError("deprovision "+name, err))
			return err
		}
		pterm.Printf("✅ tenant %s dropped\n", name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(provisionCmd, deprovisionCmd)
	provisionCmd.Flags().StringVar(&provisionPassword, "password", "", "Initial password (prompted when empty)")
	deprovisionCmd.Flags().BoolVarP(&deprovisionYes, "yes", "y", false, "Do not ask for confirmation")
}
