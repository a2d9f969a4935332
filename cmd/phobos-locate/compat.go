package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cea-hpc/phobos/internal/compat"
)

func newCompatCmd() *cobra.Command {
	compatCmd := &cobra.Command{
		Use:   "compat",
		Short: "Query drive compatibility rules",
	}

	checkCmd := &cobra.Command{
		Use:   "check <medium-model> <drive-model>",
		Short: "Check whether a drive model can read a tape model",
		Args:  cobra.ExactArgs(2),
		RunE:  runCompatCheck,
	}
	compatCmd.AddCommand(checkCmd)

	return compatCmd
}

func runCompatCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	oracle, err := compat.NewOracle(cfg.Compat, log.Logger)
	if err != nil {
		return err
	}

	ok, err := oracle.Compatible(args[0], args[1])
	if err != nil {
		return err
	}
	verdict := "incompatible"
	if ok {
		verdict = "compatible"
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s / %s: %s\n", args[0], args[1], verdict)
	return nil
}
