// phobos-locate picks the host that should read an object and reserves the
// medium locks it needs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cea-hpc/phobos/internal/config"
	"github.com/cea-hpc/phobos/internal/dss"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "phobos-locate",
		Short: "Locate objects and reserve media for reading",
		Long: `phobos-locate selects the host best placed to read an object and
locks enough media on that host to rebuild every split of the object.

Examples:
  # Locate an object for this host
  phobos-locate locate object.yaml

  # Locate on behalf of another host
  phobos-locate locate object.yaml --focus-host io-node-2

  # Seed the state store
  phobos-locate dss import inventory.yaml

  # Show and release medium locks
  phobos-locate locks list
  phobos-locate locks release tape:legacy:P00001L6`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (overrides log_level from the config file)")

	rootCmd.AddCommand(newLocateCmd())
	rootCmd.AddCommand(newLocksCmd())
	rootCmd.AddCommand(newCompatCmd())
	rootCmd.AddCommand(newDSSCmd())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "phobos-locate %s\n", Version)
			_, _ = fmt.Fprintf(out, "  Commit:     %s\n", Commit)
			_, _ = fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// loadConfig reads the config file (defaults if none was given) and sets up
// logging from it.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

// openBackend loads the configuration and connects to the state store.
func openBackend(ctx context.Context) (*config.Config, dss.Backend, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	backend, err := cfg.OpenBackend(ctx, log.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open state store: %w", err)
	}
	return cfg, backend, nil
}
