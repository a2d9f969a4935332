package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cea-hpc/phobos/internal/dss"
)

func newDSSCmd() *cobra.Command {
	dssCmd := &cobra.Command{
		Use:   "dss",
		Short: "Manage the state store",
	}

	importCmd := &cobra.Command{
		Use:   "import <inventory.yaml>",
		Short: "Add devices and media from an inventory file",
		Long: `Add or replace the devices and media listed in an inventory file.
Existing locks are left alone.`,
		Args: cobra.ExactArgs(1),
		RunE: runDSSImport,
	}
	dssCmd.AddCommand(importCmd)

	return dssCmd
}

func runDSSImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	inv, err := dss.LoadInventory(args[0])
	if err != nil {
		return err
	}

	_, backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	if err := inv.Import(ctx, backend); err != nil {
		return err
	}
	log.Info().Int("devices", len(inv.Devices)).Int("media", len(inv.Media)).Msg("Inventory imported")
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d devices and %d media\n", len(inv.Devices), len(inv.Media))
	return nil
}
