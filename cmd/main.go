package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/reconcile/internal/config"
	"github.com/okian/reconcile/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries what every subcommand needs once PersistentPreRunE has run.
type cli struct {
	configPath string
	logLevel   string
	storeFlag  string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "reconcile",
		Short:         "Bulk reconciliation jobs for athletic performance data",
		Long:          "Scans athletes, metrics and performance records and repairs or removes rows that break their invariants.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (defaults to $"+config.EnvPrefix+"CONFIG)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&c.storeFlag, "store", "", "Store driver override (memory, sqlite, postgres)")

	root.AddCommand(
		newServeCmd(c),
		newRunCmd(c),
		newRunAllCmd(c),
		newJobsCmd(c),
		newSeedCmd(c),
	)
	return root
}

// setup loads configuration and initializes logging. Only serve logs to
// stdout; the other commands keep stdout for their JSON output.
func (c *cli) setup(cmd *cobra.Command) error {
	if cmd.Name() != "serve" {
		logger.SetOutput(cmd.ErrOrStderr())
	}
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	path := c.configPath
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "CONFIG")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.storeFlag != "" {
		cfg.StoreDriver = strings.ToLower(c.storeFlag)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	c.cfg = cfg
	return nil
}
