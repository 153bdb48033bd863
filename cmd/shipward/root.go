package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/artpar/shipward/internal/shell/output"
)

var (
	cfgFile string
	verbose bool
	cfg     *Config
	logger  *slog.Logger
	logPath string
	printer *output.Printer
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "shipward",
	Short: "Deploy a containerized app to a remote host and verify it",
	Long: `shipward pushes a containerized application to a single remote host
over SSH and then runs a validation suite against the live deployment.

The deploy phase is fail-fast: source fetch, connectivity probe, host
provisioning, file transfer, container rollout, and reverse proxy
configuration run in order and the first fatal step aborts the run
with a stage-specific exit code. The validate phase accumulates: every
check runs and is scored PASS, FAIL, or WARN, and the run exits
nonzero only when a check actually fails.

Example usage:
  shipward deploy --repo https://git.example.com/acme/api.git \
      --user deploy --host 198.51.100.7 --key ~/.ssh/id_ed25519 --port 8080
  shipward validate --host 198.51.100.7   # re-check the last deployment
  shipward history                        # list recorded runs`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is shipward.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initConfig loads configuration and wires the logger and printer.
func initConfig() error {
	var err error
	cfg, err = LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	logger, logPath, err = SetupLogger(cfg)
	if err != nil {
		return err
	}

	printer = output.NewPrinter(output.ResolveColors())
	return nil
}
