// Package validate runs the post-deployment check battery. Unlike the
// deploy pipeline, the suite never fails fast: every check runs and
// appends exactly one scored result, with a single exception - when the
// target container is not in the running list, the remaining groups are
// skipped because nothing downstream can be meaningfully tested.
package validate

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/artpar/shipward/internal/core/domain"
	"github.com/artpar/shipward/internal/shell/sshexec"
)

// =============================================================================
// Suite
// =============================================================================

const (
	// LatencyWarnThreshold marks an external response as slow.
	LatencyWarnThreshold = 2 * time.Second
	// probeTimeout bounds each remote or HTTP probe.
	probeTimeout = 10 * time.Second
	// logScanLines is how many recent log lines are scanned for error
	// markers.
	logScanLines = 50
)

// Suite runs the validation checks against a completed deployment.
type Suite struct {
	Runner sshexec.Runner
	Logger *slog.Logger

	// HTTPClient performs the external probe. Defaults to a client
	// bounded by probeTimeout.
	HTTPClient *http.Client
	// ExternalURL overrides the external probe target. Defaults to
	// http://<host>/.
	ExternalURL string
}

// New creates a suite with default probes.
func New(runner sshexec.Runner, logger *slog.Logger) *Suite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Suite{
		Runner:     runner,
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: probeTimeout},
	}
}

// state carries the per-run scratch data shared between groups, most
// importantly the single external HTTP probe reused by the network and
// security groups.
type state struct {
	params domain.ParameterSet
	facts  domain.DeploymentFacts

	external *externalProbe
}

// check is one scored validation step.
type check struct {
	name string
	fn   func(ctx context.Context, s *state) domain.Result
}

// Run executes all four groups and returns the accumulated results plus
// whether the service escalation fired. Results are appended in
// execution order and never mutated.
func (v *Suite) Run(ctx context.Context, params domain.ParameterSet, facts domain.DeploymentFacts) ([]domain.Result, bool) {
	s := &state{params: params, facts: facts}
	var results []domain.Result

	results, escalated := v.runServiceGroup(ctx, s, results)
	if escalated {
		v.Logger.Error("target container is not running, skipping remaining validation groups",
			"container", facts.ContainerName)
		return results, true
	}

	results = v.runGroup(ctx, s, v.networkChecks(), results)
	results = v.runGroup(ctx, s, v.resourceChecks(), results)
	v.captureContainerStats(ctx, s)
	results = v.runGroup(ctx, s, v.securityChecks(), results)
	return results, false
}

// runGroup is the collect-all iterator: every check runs regardless of
// earlier outcomes.
func (v *Suite) runGroup(ctx context.Context, s *state, checks []check, results []domain.Result) []domain.Result {
	for _, c := range checks {
		res := c.fn(ctx, s)
		v.Logger.Info("check", "name", res.Check, "kind", string(res.Kind), "message", res.Message)
		results = append(results, res)
	}
	return results
}

// run executes a remote probe with the standard timeout.
func (v *Suite) run(ctx context.Context, command string) (sshexec.RunResult, error) {
	return v.Runner.Run(ctx, command, sshexec.Options{Timeout: probeTimeout, Batch: true})
}
