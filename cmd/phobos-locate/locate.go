package main

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cea-hpc/phobos/internal/compat"
	"github.com/cea-hpc/phobos/internal/dss"
	"github.com/cea-hpc/phobos/internal/layout"
	"github.com/cea-hpc/phobos/internal/locate"
	"github.com/cea-hpc/phobos/internal/logging/audit"
	"github.com/cea-hpc/phobos/internal/metrics"
)

var (
	focusHost string

	metricsOnce   sync.Once
	locateMetrics *metrics.LocateMetrics
)

func newLocateCmd() *cobra.Command {
	locateCmd := &cobra.Command{
		Use:   "locate <layout.yaml>",
		Short: "Select a host to read an object and lock its media",
		Long: `Select the host that should read the object described by a layout
file and lock enough media for it to rebuild every split.

Locks the selected host already holds are refreshed and reused. If the host
cannot get enough locks, the locks taken by this run are released and the
command fails; run it again once the contention is gone.`,
		Args: cobra.ExactArgs(1),
		RunE: runLocate,
	}
	locateCmd.Flags().StringVar(&focusHost, "focus-host", "", "host the object is located for (default: this host)")
	return locateCmd
}

func runLocate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	lyt, err := layout.Load(args[0])
	if err != nil {
		return err
	}

	cfg, backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	oracle, err := compat.NewOracle(cfg.Compat, log.Logger)
	if err != nil {
		return err
	}

	metricsOnce.Do(func() {
		self, _ := cfg.SelfHost()
		locateMetrics = metrics.InitMetrics(self, Version)
	})

	locator := locate.New(locate.Config{
		Store:    backend,
		Checker:  oracle,
		Logger:   log.Logger,
		Metrics:  locateMetrics,
		Audit:    audit.NewLogger(log.Logger),
		Hostname: cfg.SelfHost,
	})

	res, locateErr := locator.Locate(ctx, lyt, focusHost)

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Warn().Err(err).Str("path", cfg.Metrics.Textfile).Msg("Cannot write metrics textfile")
		}
	}

	if locateErr != nil {
		log.Error().Err(locateErr).Str("object", lyt.ObjectID).Msg("Locate failed")
		return fmt.Errorf("locate %s: %w", lyt.ObjectID, locateErr)
	}

	printResult(cmd.OutOrStdout(), lyt, res)
	return nil
}

func printResult(out io.Writer, lyt *layout.Layout, res *locate.Result) {
	_, _ = fmt.Fprintf(out, "Object:     %s (version %d, %s)\n", lyt.ObjectID, lyt.Version, units.BytesSize(float64(lyt.TotalSize())))
	_, _ = fmt.Fprintf(out, "Host:       %s\n", res.Host)
	_, _ = fmt.Fprintf(out, "New leases: %d\n", res.NewLeases)
	_, _ = fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MEDIUM\tSPLIT\tEXTENT\tSIZE")
	held := make(map[dss.MediumID]bool, len(res.Media))
	for _, id := range res.Media {
		held[id] = true
	}
	for i := range lyt.Extents {
		ext := &lyt.Extents[i]
		if held[ext.Medium] {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", ext.Medium, lyt.SplitOf(i), i, units.BytesSize(float64(ext.Size)))
		}
	}
	_ = w.Flush()
}
