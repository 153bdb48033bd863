package validate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/shipward/internal/core/domain"
)

// =============================================================================
// Service Checks
// =============================================================================

// runServiceGroup runs the service checks. The container-running check
// is the suite's single escalation point: when it fails, the returned
// flag tells the caller to skip every remaining group.
func (v *Suite) runServiceGroup(ctx context.Context, s *state, results []domain.Result) ([]domain.Result, bool) {
	results = append(results, v.checkDaemonActive(ctx, "docker-active", "docker"))
	results = append(results, v.checkDaemonActive(ctx, "nginx-active", "nginx"))

	running := v.checkContainerRunning(ctx, s)
	results = append(results, running)
	if running.Kind == domain.KindFail {
		return results, true
	}

	results = append(results, v.checkContainerState(ctx, s))
	results = append(results, v.checkRecentLogs(ctx, s))
	return results, false
}

func (v *Suite) checkDaemonActive(ctx context.Context, name, unit string) domain.Result {
	result, err := v.run(ctx, "systemctl is-active "+unit)
	if err != nil || strings.TrimSpace(result.Stdout) != "active" {
		return domain.Fail(name, fmt.Sprintf("%s daemon is not active", unit))
	}
	return domain.Pass(name, unit+" daemon active")
}

func (v *Suite) checkContainerRunning(ctx context.Context, s *state) domain.Result {
	result, err := v.run(ctx, "docker ps --format '{{.Names}}'")
	if err != nil {
		return domain.Fail("container-running", fmt.Sprintf("could not list containers: %v", err))
	}
	name := s.facts.ContainerName
	for _, line := range strings.Split(result.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == name {
			return domain.Pass("container-running", name+" is running")
		}
		// Compose names containers <project>-<service>-N.
		if s.facts.Strategy == domain.StrategyCompose && strings.HasPrefix(line, name+"-") {
			return domain.Pass("container-running", line+" is running")
		}
	}
	return domain.Fail("container-running", name+" is not in the running list")
}

// containerRef names the container the per-container probes target.
// Under compose the sanitized repo name is a project, not a container,
// so the first service container is resolved on the remote side.
func containerRef(f domain.DeploymentFacts) string {
	if f.Strategy == domain.StrategyCompose {
		return fmt.Sprintf("$(cd %s && docker compose ps -q | head -n1)", f.RemotePath)
	}
	return f.ContainerName
}

func (v *Suite) checkContainerState(ctx context.Context, s *state) domain.Result {
	cmd := fmt.Sprintf("docker inspect -f '{{.State.Status}}' %s", containerRef(s.facts))
	result, err := v.run(ctx, cmd)
	if err != nil {
		return domain.Warn("container-state", fmt.Sprintf("could not inspect container: %v", err))
	}
	status := strings.TrimSpace(result.Stdout)
	if status == "running" {
		return domain.Pass("container-state", "state running")
	}
	return domain.Warn("container-state", "state "+status)
}

// checkRecentLogs scans the last logScanLines log lines for error
// markers. Matches downgrade to a warning, not a failure: noisy logs
// are a smell, not proof of a broken deployment.
func (v *Suite) checkRecentLogs(ctx context.Context, s *state) domain.Result {
	cmd := fmt.Sprintf("docker logs --tail %d %s 2>&1 | grep -ciE 'error|exception|fatal|critical' || true",
		logScanLines, containerRef(s.facts))
	result, err := v.run(ctx, cmd)
	if err != nil {
		return domain.Warn("log-scan", fmt.Sprintf("could not read logs: %v", err))
	}
	count, convErr := strconv.Atoi(strings.TrimSpace(result.Stdout))
	if convErr != nil {
		return domain.Warn("log-scan", "unparseable log scan output")
	}
	if count == 0 {
		return domain.Pass("log-scan", "no error markers in recent logs")
	}
	return domain.Warn("log-scan", fmt.Sprintf("%d error markers in last %d log lines", count, logScanLines))
}
