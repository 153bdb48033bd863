package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipward/internal/core/domain"
	"github.com/artpar/shipward/internal/core/report"
)

func newTestPrinter() (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewPrinterWithWriters(&out, &errOut, false), &out, &errOut
}

func TestPrinter_StreamRouting(t *testing.T) {
	p, out, errOut := newTestPrinter()

	p.Info("connecting to %s", "198.51.100.7")
	p.Success("container started")
	p.Warning("disk usage high")
	p.Error("rollout failed")

	assert.Contains(t, out.String(), "connecting to 198.51.100.7")
	assert.Contains(t, out.String(), "[OK] container started")
	assert.Contains(t, errOut.String(), "[WARN] disk usage high")
	assert.Contains(t, errOut.String(), "[ERROR] rollout failed")
	assert.NotContains(t, out.String(), "disk usage high")
}

func TestCLIError_Error(t *testing.T) {
	err := &CLIError{
		Summary:  "repository clone failed",
		ExitCode: ExitSource,
	}
	assert.Equal(t, "repository clone failed", err.Error())
}

func TestFormatError_AllFields(t *testing.T) {
	p, _, errOut := newTestPrinter()

	p.FormatError(&CLIError{
		Summary:    "ssh connection failed",
		Detail:     "dial tcp 198.51.100.7:22: i/o timeout",
		Suggestion: "check that the host is reachable and sshd is running",
		ExitCode:   ExitConnectivity,
	})

	got := errOut.String()
	assert.Contains(t, got, "ssh connection failed")
	assert.Contains(t, got, "Cause: dial tcp 198.51.100.7:22: i/o timeout")
	assert.Contains(t, got, "Suggestion: check that the host is reachable")
}

func TestFormatError_SummaryOnly(t *testing.T) {
	p, _, errOut := newTestPrinter()

	p.FormatError(&CLIError{Summary: "invalid app port", ExitCode: ExitUsageError})

	got := errOut.String()
	assert.Contains(t, got, "invalid app port")
	assert.NotContains(t, got, "Cause:")
	assert.NotContains(t, got, "Suggestion:")
}

func TestRenderReport_TallyAndVerdict(t *testing.T) {
	p, out, _ := newTestPrinter()

	rep := report.Build([]domain.Result{
		domain.Pass("docker-active", "docker daemon is active"),
		domain.Fail("proxy-port", "port 80 returned 502"),
		domain.Warn("container-user", "container runs as root"),
	})
	p.RenderReport(rep)

	got := out.String()
	assert.Contains(t, got, "docker-active")
	assert.Contains(t, got, "proxy-port")
	assert.Contains(t, got, "checks: 3  passed: 1  failed: 1  warned: 1  success: 33.3%")
	assert.Contains(t, got, "Validation Report")
}

func TestRenderReport_HealthyVerdictOnStdout(t *testing.T) {
	p, out, errOut := newTestPrinter()

	rep := report.Build([]domain.Result{
		domain.Pass("docker-active", "docker daemon is active"),
		domain.Warn("server-header", "Server header absent"),
	})
	p.RenderReport(rep)

	assert.Contains(t, out.String(), "verdict: PASS")
	assert.NotContains(t, errOut.String(), "verdict")
}

func TestRenderReport_FailedVerdictOnStderr(t *testing.T) {
	p, _, errOut := newTestPrinter()

	rep := report.Build([]domain.Result{
		domain.Fail("container-running", "container widgetapi not found"),
	})
	p.RenderReport(rep)

	assert.Contains(t, errOut.String(), "verdict: FAIL")
}

func TestRenderRuns(t *testing.T) {
	p, out, _ := newTestPrinter()

	started, err := time.Parse(time.RFC3339, "2026-08-30T14:05:00Z")
	require.NoError(t, err)
	p.RenderRuns([]domain.RunRecord{
		{
			ID:            "run-0001",
			StartedAt:     started,
			Host:          "198.51.100.7",
			ContainerName: "widgetapi",
			DeployType:    domain.StrategyCompose,
			Verdict:       "PASS",
			ExitCode:      0,
		},
	})

	got := out.String()
	assert.Contains(t, got, "2026-08-30 14:05")
	assert.Contains(t, got, "198.51.100.7")
	assert.Contains(t, got, "widgetapi")
	assert.Contains(t, got, "PASS")
}

func TestRenderRuns_Empty(t *testing.T) {
	p, out, _ := newTestPrinter()
	p.RenderRuns(nil)
	assert.Contains(t, out.String(), "no recorded runs")
}
