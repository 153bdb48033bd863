package main

import (
	"github.com/spf13/cobra"

	"github.com/artpar/shipward/internal/core/domain"
	"github.com/artpar/shipward/internal/shell/gitsrc"
	"github.com/artpar/shipward/internal/shell/orchestrator"
	"github.com/artpar/shipward/internal/shell/output"
	"github.com/artpar/shipward/internal/shell/pipeline"
	"github.com/artpar/shipward/internal/shell/sshexec"
	"github.com/artpar/shipward/internal/shell/store"
	"github.com/artpar/shipward/internal/shell/validate"
)

var (
	flagRepo   string
	flagToken  string
	flagBranch string
	flagUser   string
	flagHost   string
	flagKey    string
	flagPort   int
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the application to the target host",
	Long: `Deploy fetches the repository, provisions the target host, transfers
the working copy, starts the container, configures the reverse proxy,
and then runs the full validation suite against the result.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params := buildParams()

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
		orch.Deployer = newPipeline(executor)

		// A store that fails to open degrades to a run without
		// history rather than a hard failure.
		if st, err := store.Open(cfg.History.DSN); err != nil {
			logger.Warn("run history unavailable", "dsn", cfg.History.DSN, "error", err)
		} else {
			orch.Store = st
			defer st.Close()
		}

		outcome := orch.Deploy(cmd.Context(), params)
		if outcome.ExitCode != output.ExitSuccess {
			return &exitError{code: outcome.ExitCode}
		}
		return nil
	},
}

func init() {
	deployCmd.Flags().StringVar(&flagRepo, "repo", "", "repository URL (http or https)")
	deployCmd.Flags().StringVar(&flagToken, "token", "", "repository access token (or SHIPWARD_PARAMS_TOKEN)")
	deployCmd.Flags().StringVar(&flagBranch, "branch", "", "branch to deploy (default main)")
	addRemoteFlags(deployCmd)
	rootCmd.AddCommand(deployCmd)
}

// addRemoteFlags registers the host-targeting flags shared by deploy
// and validate.
func addRemoteFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagUser, "user", "", "SSH user on the target host")
	cmd.Flags().StringVar(&flagHost, "host", "", "target host (IPv4 or hostname)")
	cmd.Flags().StringVar(&flagKey, "key", "", "path to the SSH private key")
	cmd.Flags().IntVar(&flagPort, "port", 0, "application port published by the container")
}

// buildParams merges config-file parameter defaults with flag values.
// A set flag wins over the config file.
func buildParams() domain.ParameterSet {
	p := domain.ParameterSet{
		RepoURL:    cfg.Params.RepoURL,
		Token:      cfg.Params.Token,
		Branch:     cfg.Params.Branch,
		SSHUser:    cfg.Params.SSHUser,
		Host:       cfg.Params.Host,
		SSHKeyPath: cfg.Params.SSHKeyPath,
		AppPort:    cfg.Params.AppPort,
	}
	if flagRepo != "" {
		p.RepoURL = flagRepo
	}
	if flagToken != "" {
		p.Token = flagToken
	}
	if flagBranch != "" {
		p.Branch = flagBranch
	}
	if flagUser != "" {
		p.SSHUser = flagUser
	}
	if flagHost != "" {
		p.Host = flagHost
	}
	if flagKey != "" {
		p.SSHKeyPath = flagKey
	}
	if flagPort != 0 {
		p.AppPort = flagPort
	}
	return p
}

func newRunner(params domain.ParameterSet) (*sshexec.Executor, error) {
	// Key permissions are tightened before the key is read.
	if _, _, err := sshexec.EnsureKeyMode(params.SSHKeyPath); err != nil {
		return nil, err
	}
	return sshexec.NewExecutor(params.SSHUser, params.Host, params.SSHKeyPath, sshexec.Config{
		Port:           cfg.SSH.Port,
		ConnectTimeout: cfg.SSH.ConnectTimeout,
		CommandTimeout: cfg.SSH.CommandTimeout,
	})
}

func newPipeline(runner sshexec.Runner) *pipeline.Pipeline {
	p := pipeline.New(runner, gitsrc.NewResolver(cfg.Deploy.WorkDir, logger), logger)
	p.RemoteBase = cfg.Deploy.RemoteBase
	p.SettleDelay = cfg.Deploy.SettleDelay
	p.RecordDir = cfg.Deploy.DataDir
	return p
}

// newOrchestrator wires the validation suite and artifact paths. The
// caller attaches the deployer and the run-history store.
func newOrchestrator(runner sshexec.Runner) *orchestrator.Orchestrator {
	suite := validate.New(runner, logger)
	orch := orchestrator.New(nil, suite, printer, logger)
	orch.ArtifactDir = cfg.Deploy.DataDir
	orch.LogPath = logPath
	return orch
}
