// Package pipeline runs the ordered deployment steps against the target
// host. The pipeline is strictly fail-fast: the first fatal step aborts
// the run with a class identifying the stage, and validation is never
// entered. This is the counterpart of the validation suite's
// collect-all runner.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/artpar/shipward/internal/core/domain"
	"github.com/artpar/shipward/internal/core/record"
	"github.com/artpar/shipward/internal/shell/gitsrc"
	"github.com/artpar/shipward/internal/shell/sshexec"
)

// =============================================================================
// Pipeline
// =============================================================================

const (
	// DefaultRemoteBase is where deployments live on the target host.
	DefaultRemoteBase = "/opt/deployments"
	// DefaultSettleDelay is how long rollout waits before confirming
	// the container is running.
	DefaultSettleDelay = 10 * time.Second
	// connectivityTimeout bounds the initial no-op probe.
	connectivityTimeout = 5 * time.Second
)

// SourceResolver resolves the repository working copy. Implemented by
// *gitsrc.Resolver.
type SourceResolver interface {
	Resolve(ctx context.Context, params domain.ParameterSet) (gitsrc.Source, error)
}

// Pipeline executes the deployment steps in order.
type Pipeline struct {
	Runner   sshexec.Runner
	Resolver SourceResolver
	Logger   *slog.Logger

	// RemoteBase is the remote directory deployments are mirrored into.
	RemoteBase string
	// SettleDelay is the wait between rollout and the running check.
	SettleDelay time.Duration
	// RecordDir is the local directory for the deployment record file.
	// Empty disables the record step.
	RecordDir string
}

// New creates a pipeline with default paths and delays.
func New(runner sshexec.Runner, resolver SourceResolver, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		Runner:      runner,
		Resolver:    resolver,
		Logger:      logger,
		RemoteBase:  DefaultRemoteBase,
		SettleDelay: DefaultSettleDelay,
	}
}

// run is one pipeline execution's mutable state. It exists so the steps
// can hand derived facts forward without ambient globals.
type run struct {
	params domain.ParameterSet
	source gitsrc.Source
	facts  domain.DeploymentFacts
}

type step struct {
	name  string
	class Class
	fn    func(ctx context.Context, r *run) error
}

// Run executes every step in order and returns the derived deployment
// facts. On the first failure it returns a *StepError and the facts are
// discarded: validation must never observe a partial deployment.
func (p *Pipeline) Run(ctx context.Context, params domain.ParameterSet) (domain.DeploymentFacts, error) {
	r := &run{params: params}

	steps := []step{
		{"resolve-source", ClassSource, p.resolveSource},
		{"connectivity", ClassConnectivity, p.checkConnectivity},
		{"provision", ClassProvision, p.provisionHost},
		{"transfer", ClassTransfer, p.transferArtifacts},
		{"rollout", ClassRollout, p.rolloutContainer},
		{"proxy-config", ClassProxy, p.configureProxy},
	}

	for _, s := range steps {
		p.Logger.Info("pipeline step", "step", s.name, "host", params.Host)
		if err := s.fn(ctx, r); err != nil {
			p.Logger.Error("pipeline step failed", "step", s.name, "class", string(s.class), "error", err)
			return domain.DeploymentFacts{}, NewStepError(s.name, s.class, err)
		}
	}

	// Persisting the record is deliberately outside the fatal sequence:
	// a deployment that is up and proxied should not be reported as
	// failed because a local file write failed.
	p.persistRecord(r)

	return r.facts, nil
}

// =============================================================================
// Steps
// =============================================================================

// resolveSource clones or updates the working copy and fixes the deploy
// strategy for the rest of the run. The strategy is never reconsidered
// after this step.
func (p *Pipeline) resolveSource(ctx context.Context, r *run) error {
	src, err := p.Resolver.Resolve(ctx, r.params)
	if err != nil {
		return err
	}
	r.source = src

	repoName := r.params.RepoName()
	containerName := domain.SanitizeContainerName(repoName)
	if containerName == "" {
		return fmt.Errorf("repository name %q yields an empty container name", repoName)
	}

	r.facts = domain.DeploymentFacts{
		RepoName:      repoName,
		Strategy:      src.Strategy,
		RemotePath:    path.Join(p.RemoteBase, containerName),
		ContainerName: containerName,
	}
	return nil
}

// checkConnectivity runs a no-op command in batch mode with a short
// timeout. Any failure here aborts with the connectivity class so CI
// consumers can tell an unreachable host from a later rollout failure.
func (p *Pipeline) checkConnectivity(ctx context.Context, r *run) error {
	_, err := p.Runner.Run(ctx, "true", sshexec.Options{Timeout: connectivityTimeout, Batch: true})
	return err
}

// provisionHost installs anything missing from {container runtime,
// compose plugin, reverse proxy} and applies the idempotent fixups
// unconditionally. Re-running on an already provisioned host is safe.
func (p *Pipeline) provisionHost(ctx context.Context, r *run) error {
	missing := map[string]string{}

	if !p.remoteHas(ctx, "command -v docker") {
		missing["docker"] = "docker.io"
	}
	if !p.remoteHas(ctx, "docker compose version") {
		missing["compose"] = "docker-compose-v2"
	}
	if !p.remoteHas(ctx, "command -v nginx") {
		missing["nginx"] = "nginx"
	}

	if len(missing) > 0 {
		p.Logger.Info("installing missing packages", "packages", packageList(missing))
		script := "set -e\nexport DEBIAN_FRONTEND=noninteractive\nsudo apt-get update -y\n"
		for _, pkg := range []string{missing["docker"], missing["compose"], missing["nginx"]} {
			if pkg != "" {
				script += "sudo apt-get install -y " + pkg + "\n"
			}
		}
		if _, err := p.Runner.Script(ctx, script, sshexec.Options{Timeout: 10 * time.Minute}); err != nil {
			return fmt.Errorf("install packages: %w", err)
		}
	}

	// Fixups are idempotent and applied on every run.
	fixups := "sudo usermod -aG docker \"$USER\" || true\n" +
		"sudo chmod 666 /var/run/docker.sock || true\n" +
		"sudo systemctl enable docker nginx\n" +
		"sudo systemctl restart docker\n" +
		"sudo systemctl start nginx\n"
	if _, err := p.Runner.Script(ctx, fixups, sshexec.Options{Timeout: 2 * time.Minute}); err != nil {
		return fmt.Errorf("apply host fixups: %w", err)
	}
	return nil
}

// remoteHas reports whether a presence probe exits zero.
func (p *Pipeline) remoteHas(ctx context.Context, probe string) bool {
	result, err := p.Runner.Run(ctx, probe, sshexec.Options{Timeout: 30 * time.Second})
	return err == nil && result.ExitCode == 0
}

func packageList(missing map[string]string) []string {
	var pkgs []string
	for _, pkg := range missing {
		pkgs = append(pkgs, pkg)
	}
	return pkgs
}

// transferArtifacts mirrors the working tree to the remote deployment
// directory, excluding version-control metadata and dependency caches.
func (p *Pipeline) transferArtifacts(ctx context.Context, r *run) error {
	return p.Runner.Mirror(ctx, r.source.LocalPath, r.facts.RemotePath, sshexec.DefaultExcludes)
}

// rolloutContainer replaces any previous container under the same name,
// brings the application up by the strategy fixed in resolve-source,
// waits out the settle delay, and confirms the container is running.
func (p *Pipeline) rolloutContainer(ctx context.Context, r *run) error {
	name := r.facts.ContainerName

	// Absence of an old container is not a failure.
	p.runIgnoringErrors(ctx, fmt.Sprintf("docker stop %s", name))
	p.runIgnoringErrors(ctx, fmt.Sprintf("docker rm %s", name))

	switch r.facts.Strategy {
	case domain.StrategyCompose:
		p.runIgnoringErrors(ctx, fmt.Sprintf("cd %s && docker compose down", r.facts.RemotePath))
		up := fmt.Sprintf("cd %s && docker compose up -d --build", r.facts.RemotePath)
		if _, err := p.Runner.Run(ctx, up, sshexec.Options{Timeout: 15 * time.Minute}); err != nil {
			return fmt.Errorf("compose up: %w", err)
		}
	case domain.StrategyDockerfile:
		build := fmt.Sprintf("cd %s && docker build -t %s .", r.facts.RemotePath, name)
		if _, err := p.Runner.Run(ctx, build, sshexec.Options{Timeout: 15 * time.Minute}); err != nil {
			return fmt.Errorf("image build: %w", err)
		}
		runCmd := fmt.Sprintf("docker run -d --name %s --restart unless-stopped -p %d:%d %s",
			name, r.params.AppPort, r.params.AppPort, name)
		if _, err := p.Runner.Run(ctx, runCmd, sshexec.Options{Timeout: 2 * time.Minute}); err != nil {
			return fmt.Errorf("container run: %w", err)
		}
	default:
		return fmt.Errorf("unknown deploy strategy %q", r.facts.Strategy)
	}

	if err := p.settle(ctx); err != nil {
		return err
	}
	return p.verifyRunning(ctx, r)
}

// verifyRunning confirms the rollout actually produced running
// containers. Compose names containers <project>-<service>-N, so the
// sanitized name never appears in docker ps verbatim; the stack is
// verified through compose itself instead.
func (p *Pipeline) verifyRunning(ctx context.Context, r *run) error {
	if r.facts.Strategy == domain.StrategyCompose {
		ps := fmt.Sprintf("cd %s && docker compose ps -q", r.facts.RemotePath)
		result, err := p.Runner.Run(ctx, ps, sshexec.Options{Timeout: 30 * time.Second})
		if err != nil {
			return fmt.Errorf("list compose services: %w", err)
		}
		if strings.TrimSpace(result.Stdout) == "" {
			return fmt.Errorf("%w: no running service for %s", ErrContainerNotRunning, r.facts.ContainerName)
		}
		return nil
	}

	result, err := p.Runner.Run(ctx, "docker ps --format '{{.Names}}'", sshexec.Options{Timeout: 30 * time.Second})
	if err != nil {
		return fmt.Errorf("list running containers: %w", err)
	}
	if !containsLine(result.Stdout, r.facts.ContainerName) {
		return fmt.Errorf("%w: %s", ErrContainerNotRunning, r.facts.ContainerName)
	}
	return nil
}

func (p *Pipeline) settle(ctx context.Context) error {
	if p.SettleDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.SettleDelay):
		return nil
	}
}

func (p *Pipeline) runIgnoringErrors(ctx context.Context, command string) {
	if _, err := p.Runner.Run(ctx, command, sshexec.Options{Timeout: time.Minute}); err != nil {
		p.Logger.Debug("ignored command failure", "command", command, "error", err)
	}
}

// containsLine reports whether output has a line exactly equal to want.
func containsLine(output, want string) bool {
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}

// =============================================================================
// Record Persistence
// =============================================================================

// persistRecord writes the flat key=value deployment record. Failures
// are surfaced in the log but never fail the deployment.
func (p *Pipeline) persistRecord(r *run) {
	if p.RecordDir == "" {
		return
	}
	rec := domain.RunRecord{
		StartedAt:     time.Now(),
		Host:          r.params.Host,
		SSHUser:       r.params.SSHUser,
		SSHKeyPath:    r.params.SSHKeyPath,
		AppPort:       r.params.AppPort,
		RepoName:      r.facts.RepoName,
		ContainerName: r.facts.ContainerName,
		DeployType:    r.facts.Strategy,
		RemotePath:    r.facts.RemotePath,
	}

	pathName := filepath.Join(p.RecordDir, "deployment.record")
	if err := os.MkdirAll(p.RecordDir, 0o755); err != nil {
		p.Logger.Warn("could not create record directory", "dir", p.RecordDir, "error", err)
		return
	}
	if err := os.WriteFile(pathName, []byte(record.FormatDeployment(rec)), 0o644); err != nil {
		p.Logger.Warn("could not write deployment record", "path", pathName, "error", err)
	}
}
