// Package orchestrator drives a full run: parameter collection,
// the deployment pipeline, the validation suite, and reporting. It
// owns the phase state machine and the mapping from failures to
// process exit codes.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/shipward/internal/core/domain"
	"github.com/artpar/shipward/internal/core/record"
	"github.com/artpar/shipward/internal/core/report"
	"github.com/artpar/shipward/internal/shell/output"
	"github.com/artpar/shipward/internal/shell/pipeline"
	"github.com/artpar/shipward/internal/shell/sshexec"
)

// =============================================================================
// Phases
// =============================================================================

// Phase is the orchestrator's position in the run state machine.
type Phase string

const (
	// PhaseCollectingInput is also the terminal phase when parameter
	// validation rejects the run before deployment starts.
	PhaseCollectingInput Phase = "COLLECTING_INPUT"
	PhaseDeploying       Phase = "DEPLOYING"
	PhaseValidating      Phase = "VALIDATING"
	PhaseReporting       Phase = "REPORTING"
	PhaseDone            Phase = "DONE"
	// PhaseAborted is terminal and reachable from DEPLOYING only.
	// Validation is never entered after a fatal pipeline step.
	PhaseAborted Phase = "ABORTED"
)

// =============================================================================
// Collaborators
// =============================================================================

// Deployer runs the fail-fast deployment pipeline.
type Deployer interface {
	Run(ctx context.Context, params domain.ParameterSet) (domain.DeploymentFacts, error)
}

// Validator runs the accumulate-and-score validation suite. The bool
// reports whether the suite escalated on a missing container.
type Validator interface {
	Run(ctx context.Context, params domain.ParameterSet, facts domain.DeploymentFacts) ([]domain.Result, bool)
}

// RunStore persists run history. Saving is best-effort; a store
// failure never changes the run outcome.
type RunStore interface {
	SaveRun(ctx context.Context, rec domain.RunRecord) error
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator executes runs strictly sequentially. All remote
// operations target one mutable host and must not race each other.
type Orchestrator struct {
	Deployer  Deployer
	Validator Validator
	Store     RunStore

	Printer *output.Printer
	Logger  *slog.Logger

	// ArtifactDir receives the JSON run summary. Empty disables it.
	ArtifactDir string
	// LogPath is recorded in run history so a later `validate` can
	// point the operator at the deploy log.
	LogPath string

	now   func() time.Time
	newID func() string
}

// Outcome is the terminal result of a run.
type Outcome struct {
	Phase     Phase
	Facts     domain.DeploymentFacts
	Report    report.Report
	Escalated bool
	ExitCode  int
	RunID     string
}

// New creates an orchestrator with real clock and ID sources.
func New(deployer Deployer, validator Validator, printer *output.Printer, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		Deployer:  deployer,
		Validator: validator,
		Printer:   printer,
		Logger:    logger,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Deploy runs the full state machine: collect input, deploy, validate,
// report. A fatal pipeline step moves to ABORTED and validation is
// skipped entirely.
func (o *Orchestrator) Deploy(ctx context.Context, params domain.ParameterSet) Outcome {
	params, exit := o.collectInput(params, false)
	if exit != output.ExitSuccess {
		return Outcome{Phase: PhaseCollectingInput, ExitCode: exit}
	}

	runID := o.newID()
	startedAt := o.now()

	o.Printer.Header("Deploying " + params.Host)
	o.Logger.Info("deployment starting", "run_id", runID, "host", params.Host)

	facts, err := o.Deployer.Run(ctx, params)
	if err != nil {
		exit := deployExitCode(err)
		o.reportAbort(ctx, runID, startedAt, params, err, exit)
		return Outcome{Phase: PhaseAborted, ExitCode: exit, RunID: runID}
	}
	o.Printer.Success("deployment complete: %s on %s", facts.ContainerName, params.Host)

	rec := domain.NewRunRecord(runID, startedAt, params, facts, o.LogPath)
	return o.validateAndReport(ctx, rec, params, facts)
}

// Validate runs the validation suite against an existing deployment,
// skipping the deploy phase. Facts come from a prior run record.
func (o *Orchestrator) Validate(ctx context.Context, params domain.ParameterSet, facts domain.DeploymentFacts) Outcome {
	params, exit := o.collectInput(params, true)
	if exit != output.ExitSuccess {
		return Outcome{Phase: PhaseCollectingInput, ExitCode: exit}
	}
	if !facts.Complete() {
		o.Printer.FormatError(&output.CLIError{
			Summary:    "no deployment facts for " + params.Host,
			Detail:     "nothing recorded for this host, or the record is incomplete",
			Suggestion: "run `shipward deploy` against this host first",
			ExitCode:   output.ExitUsageError,
		})
		return Outcome{Phase: PhaseCollectingInput, ExitCode: output.ExitUsageError}
	}

	rec := domain.NewRunRecord(o.newID(), o.now(), params, facts, o.LogPath)
	return o.validateAndReport(ctx, rec, params, facts)
}

// =============================================================================
// Phase Transitions
// =============================================================================

// collectInput normalizes and validates parameters and tightens the
// key file mode when it is too permissive. remoteOnly skips the
// repository fields for validation-only runs.
func (o *Orchestrator) collectInput(params domain.ParameterSet, remoteOnly bool) (domain.ParameterSet, int) {
	params = params.Normalize()
	validate := params.Validate
	if remoteOnly {
		validate = params.ValidateRemote
	}
	if err := validate(); err != nil {
		o.Printer.FormatError(&output.CLIError{
			Summary:    "invalid parameters",
			Detail:     err.Error(),
			Suggestion: "run `shipward deploy --help` for the expected flags",
			ExitCode:   output.ExitUsageError,
		})
		return params, output.ExitUsageError
	}

	mode, fixed, err := sshexec.EnsureKeyMode(params.SSHKeyPath)
	if err != nil {
		o.Printer.FormatError(&output.CLIError{
			Summary:    "ssh key unusable: " + params.SSHKeyPath,
			Detail:     err.Error(),
			Suggestion: "check that the key file exists and is readable",
			ExitCode:   output.ExitUsageError,
		})
		return params, output.ExitUsageError
	}
	if fixed {
		o.Logger.Warn("ssh key permissions corrected", "path", params.SSHKeyPath, "mode", mode.String())
		o.Printer.Warning("ssh key %s had loose permissions, corrected to 600", params.SSHKeyPath)
	}
	return params, output.ExitSuccess
}

func (o *Orchestrator) validateAndReport(ctx context.Context, rec domain.RunRecord, params domain.ParameterSet, facts domain.DeploymentFacts) Outcome {
	o.Printer.Header("Validating " + facts.ContainerName)
	results, escalated := o.Validator.Run(ctx, params, facts)
	if escalated {
		o.Printer.Error("container %s is not running, remaining checks skipped", facts.ContainerName)
	}

	rep := report.Build(results)
	o.Printer.RenderReport(rep)

	exit := validationExitCode(rep, escalated)
	rec.Passed = rep.Passed
	rec.Failed = rep.Failed
	rec.Warned = rep.Warned
	rec.Verdict = rep.Verdict()
	rec.ExitCode = exit

	o.writeSummary(rec, rep)
	o.saveRecord(ctx, rec)
	o.Logger.Info("run finished",
		"run_id", rec.ID, "verdict", rec.Verdict, "exit_code", exit,
		"passed", rep.Passed, "failed", rep.Failed, "warned", rep.Warned)

	return Outcome{
		Phase:     PhaseDone,
		Facts:     facts,
		Report:    rep,
		Escalated: escalated,
		ExitCode:  exit,
		RunID:     rec.ID,
	}
}

// reportAbort records a fatal deployment failure. The partial record
// keeps the run visible in history even though validation never ran.
func (o *Orchestrator) reportAbort(ctx context.Context, runID string, startedAt time.Time, params domain.ParameterSet, err error, exit int) {
	o.Printer.FormatError(deployCLIError(err, exit))
	o.Logger.Error("deployment aborted", "run_id", runID, "host", params.Host, "error", err)

	rec := domain.NewRunRecord(runID, startedAt, params, domain.DeploymentFacts{}, o.LogPath)
	rec.Verdict = "ABORTED"
	rec.ExitCode = exit
	o.saveRecord(ctx, rec)
}

func (o *Orchestrator) saveRecord(ctx context.Context, rec domain.RunRecord) {
	if o.Store == nil {
		return
	}
	if err := o.Store.SaveRun(ctx, rec); err != nil {
		o.Logger.Warn("run history not saved", "run_id", rec.ID, "error", err)
	}
}

func (o *Orchestrator) writeSummary(rec domain.RunRecord, rep report.Report) {
	if o.ArtifactDir == "" {
		return
	}
	body, err := record.FormatSummary(record.BuildSummary(rec, rep, o.now()))
	if err != nil {
		o.Logger.Warn("summary not encoded", "error", err)
		return
	}
	if err := os.MkdirAll(o.ArtifactDir, 0o755); err != nil {
		o.Logger.Warn("summary dir not created", "dir", o.ArtifactDir, "error", err)
		return
	}
	path := filepath.Join(o.ArtifactDir, "summary.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		o.Logger.Warn("summary not written", "path", path, "error", err)
		return
	}
	o.Logger.Info("summary written", "path", path)
}

// =============================================================================
// Exit Codes
// =============================================================================

// deployExitCode maps a pipeline failure class to its exit code.
func deployExitCode(err error) int {
	var stepErr *pipeline.StepError
	if !errors.As(err, &stepErr) {
		return output.ExitGeneral
	}
	switch stepErr.Class {
	case pipeline.ClassSource:
		return output.ExitSource
	case pipeline.ClassConnectivity:
		return output.ExitConnectivity
	case pipeline.ClassProvision:
		return output.ExitProvision
	case pipeline.ClassTransfer:
		return output.ExitTransfer
	case pipeline.ClassRollout:
		return output.ExitRollout
	case pipeline.ClassProxy:
		return output.ExitProxyConfig
	default:
		return output.ExitGeneral
	}
}

// validationExitCode maps the validation outcome: a service-down
// escalation outranks the generic checks-failed code.
func validationExitCode(rep report.Report, escalated bool) int {
	if escalated {
		return output.ExitServiceDown
	}
	if rep.Failed > 0 {
		return output.ExitChecksFailed
	}
	return output.ExitSuccess
}

func deployCLIError(err error, exit int) *output.CLIError {
	summary := "deployment failed"
	suggestion := ""
	var stepErr *pipeline.StepError
	if errors.As(err, &stepErr) {
		summary = "deployment failed during " + stepErr.Step
		switch stepErr.Class {
		case pipeline.ClassSource:
			suggestion = "check the repository URL, token, and branch"
		case pipeline.ClassConnectivity:
			suggestion = "check that the host is reachable and the ssh key is authorized"
		case pipeline.ClassProvision:
			suggestion = "inspect the host's package manager state, an interrupted apt run can hold the lock"
		case pipeline.ClassTransfer:
			suggestion = "check disk space on the remote host"
		case pipeline.ClassRollout:
			suggestion = "run `docker logs` on the host to see why the container exited"
		case pipeline.ClassProxy:
			suggestion = "run `nginx -t` on the host to see the config error"
		}
	}
	return &output.CLIError{
		Summary:    summary,
		Detail:     err.Error(),
		Suggestion: suggestion,
		ExitCode:   exit,
	}
}
