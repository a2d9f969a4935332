package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cea-hpc/phobos/internal/dss"
	"github.com/cea-hpc/phobos/internal/logging/audit"
)

var releaseHost string

func newLocksCmd() *cobra.Command {
	locksCmd := &cobra.Command{
		Use:   "locks",
		Short: "Manage medium locks",
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List medium locks",
		Args:    cobra.NoArgs,
		RunE:    runLocksList,
	}
	locksCmd.AddCommand(listCmd)

	releaseCmd := &cobra.Command{
		Use:   "release <family:library:name>",
		Short: "Release a medium lock",
		Long: `Release a medium lock held by a host. Only the holder can release its
lock; use --host to act on behalf of another host.`,
		Args: cobra.ExactArgs(1),
		RunE: runLocksRelease,
	}
	releaseCmd.Flags().StringVar(&releaseHost, "host", "", "lock holder (default: this host)")
	locksCmd.AddCommand(releaseCmd)

	return locksCmd
}

func runLocksList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	locks, err := backend.ListLocks(ctx)
	if err != nil {
		return fmt.Errorf("list locks: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(locks) == 0 {
		_, _ = fmt.Fprintln(out, "No medium locks.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MEDIUM\tHOST\tPID\tAGE")
	now := time.Now()
	for _, l := range locks {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", l.Medium, l.Host, l.Owner, units.HumanDuration(now.Sub(l.Timestamp)))
	}
	return w.Flush()
}

func runLocksRelease(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := dss.ParseMediumID(args[0])
	if err != nil {
		return err
	}

	cfg, backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	host := releaseHost
	if host == "" {
		host, err = cfg.SelfHost()
		if err != nil {
			return err
		}
	}

	auditLog := audit.NewLogger(log.Logger)
	if err := backend.Unlock(ctx, id, host); err != nil {
		auditLog.LogLock(audit.ActionRelease, id, host, audit.ResultFailed, err)
		return fmt.Errorf("release %s: %w", id, err)
	}
	auditLog.LogLock(audit.ActionRelease, id, host, audit.ResultOK, nil)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Released %s (held by %s)\n", id, host)
	return nil
}
