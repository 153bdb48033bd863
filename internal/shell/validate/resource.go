package validate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/shipward/internal/core/domain"
)

// =============================================================================
// Resource Checks
// =============================================================================

// Disk utilization thresholds for the container storage path.
const (
	diskWarnPercent = 80
	diskFailPercent = 90
	memWarnPercent  = 90
)

func (v *Suite) resourceChecks() []check {
	return []check{
		{"disk-usage", v.checkDiskUsage},
		{"memory-usage", v.checkMemoryUsage},
	}
}

func (v *Suite) checkDiskUsage(ctx context.Context, s *state) domain.Result {
	cmd := "df --output=pcent /var/lib/docker 2>/dev/null | tail -1 | tr -d ' %'"
	result, err := v.run(ctx, cmd)
	if err != nil {
		return domain.Warn("disk-usage", fmt.Sprintf("could not read disk usage: %v", err))
	}
	pct, convErr := strconv.Atoi(strings.TrimSpace(result.Stdout))
	if convErr != nil {
		return domain.Warn("disk-usage", "unparseable disk usage output")
	}

	msg := fmt.Sprintf("container storage at %d%%", pct)
	switch {
	case pct >= diskFailPercent:
		return domain.Fail("disk-usage", msg)
	case pct >= diskWarnPercent:
		return domain.Warn("disk-usage", msg)
	default:
		return domain.Pass("disk-usage", msg)
	}
}

func (v *Suite) checkMemoryUsage(ctx context.Context, s *state) domain.Result {
	cmd := `free | awk '/^Mem:/ {printf "%.0f", $3/$2*100}'`
	result, err := v.run(ctx, cmd)
	if err != nil {
		return domain.Warn("memory-usage", fmt.Sprintf("could not read memory usage: %v", err))
	}
	pct, convErr := strconv.Atoi(strings.TrimSpace(result.Stdout))
	if convErr != nil {
		return domain.Warn("memory-usage", "unparseable memory usage output")
	}

	msg := fmt.Sprintf("memory at %d%%", pct)
	if pct >= memWarnPercent {
		return domain.Warn("memory-usage", msg)
	}
	return domain.Pass("memory-usage", msg)
}

// captureContainerStats logs a live resource snapshot for the operator.
// The capture is informational and deliberately unscored: it never
// contributes a result.
func (v *Suite) captureContainerStats(ctx context.Context, s *state) {
	cmd := fmt.Sprintf("docker stats --no-stream --format '{{.CPUPerc}} {{.MemUsage}}' %s", containerRef(s.facts))
	result, err := v.run(ctx, cmd)
	if err != nil {
		v.Logger.Info("container stats unavailable", "container", s.facts.ContainerName, "error", err)
		return
	}
	v.Logger.Info("container stats", "container", s.facts.ContainerName, "stats", strings.TrimSpace(result.Stdout))
}
