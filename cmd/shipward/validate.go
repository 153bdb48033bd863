package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/artpar/shipward/internal/core/domain"
	"github.com/artpar/shipward/internal/shell/output"
	"github.com/artpar/shipward/internal/shell/store"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Re-run the validation suite against the last deployment",
	Long: `Validate looks up the most recent recorded deployment for the target
host and runs the full check suite against it without redeploying.
Connection details not given as flags are taken from the record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params := buildParams()

		st, err := store.Open(cfg.History.DSN)
		if err != nil {
			printer.FormatError(&output.CLIError{
				Summary:    "run history unavailable",
				Detail:     err.Error(),
				Suggestion: "check the history.dsn setting",
				ExitCode:   output.ExitUsageError,
			})
			return &exitError{code: output.ExitUsageError}
		}
		defer st.Close()

		rec, err := st.LastRun(cmd.Context(), params.Host)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				printer.FormatError(&output.CLIError{
					Summary:    "no recorded deployment for " + params.Host,
					Suggestion: "run `shipward deploy` against this host first",
					ExitCode:   output.ExitUsageError,
				})
			} else {
				printer.FormatError(&output.CLIError{
					Summary:  "could not read run history",
					Detail:   err.Error(),
					ExitCode: output.ExitUsageError,
				})
			}
			return &exitError{code: output.ExitUsageError}
		}

		params = fillFromRecord(params, rec)
		facts := domain.DeploymentFacts{
			RepoName:      rec.RepoName,
			Strategy:      rec.DeployType,
			RemotePath:    rec.RemotePath,
			ContainerName: rec.ContainerName,
		}

		executor, err := newRunner(params)
		if err != nil {
			printer.FormatError(&output.CLIError{
				Summary:    "could not prepare SSH access to " + params.Host,
				Detail:     err.Error(),
				Suggestion: "check the key file path and format",
				ExitCode:   output.ExitUsageError,
			})
			return &exitError{code: output.ExitUsageError}
		}
		defer executor.Close()

		orch := newOrchestrator(executor)
		orch.Store = st

		outcome := orch.Validate(cmd.Context(), params, facts)
		if outcome.ExitCode != output.ExitSuccess {
			return &exitError{code: outcome.ExitCode}
		}
		return nil
	},
}

func init() {
	addRemoteFlags(validateCmd)
	rootCmd.AddCommand(validateCmd)
}

// fillFromRecord backfills connection parameters from the stored run
// when neither flags nor config supplied them.
func fillFromRecord(p domain.ParameterSet, rec domain.RunRecord) domain.ParameterSet {
	if p.SSHUser == "" {
		p.SSHUser = rec.SSHUser
	}
	if p.SSHKeyPath == "" {
		p.SSHKeyPath = rec.SSHKeyPath
	}
	if p.AppPort == 0 {
		p.AppPort = rec.AppPort
	}
	return p
}
