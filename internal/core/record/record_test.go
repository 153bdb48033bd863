package record

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipward/internal/core/domain"
	"github.com/artpar/shipward/internal/core/report"
)

func sampleRecord() domain.RunRecord {
	return domain.RunRecord{
		ID:            "8f14e45f-ea4b-4c6d-9f2a-0f2b6f6d9e01",
		StartedAt:     time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC),
		Host:          "203.0.113.10",
		SSHUser:       "deploy",
		SSHKeyPath:    "/home/deploy/.ssh/id_ed25519",
		AppPort:       8080,
		RepoName:      "widget-api",
		ContainerName: "widget-api",
		DeployType:    domain.StrategyCompose,
		RemotePath:    "/opt/deployments/widget-api",
		LogPath:       "/var/log/shipward/run.log",
	}
}

func TestFormatDeployment(t *testing.T) {
	rec := sampleRecord()
	rec.ID = "run-1"

	out := FormatDeployment(rec)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 11)
	assert.Contains(t, out, "HOST=203.0.113.10\n")
	assert.Contains(t, out, "APP_PORT=8080\n")
	assert.Contains(t, out, "DEPLOY_TYPE=compose\n")
	assert.Contains(t, out, "TIMESTAMP=2026-08-31T10:00:00Z\n")

	// every line is KEY=VALUE
	for _, line := range lines {
		assert.Contains(t, line, "=")
	}
}

func TestBuildSummary(t *testing.T) {
	rec := sampleRecord()
	rep := report.Build([]domain.Result{
		domain.Pass("a", ""),
		domain.Warn("b", ""),
		domain.Pass("c", ""),
		domain.Pass("d", ""),
	})
	now := time.Date(2026, 8, 31, 12, 30, 0, 0, time.UTC)

	s := BuildSummary(rec, rep, now)

	assert.Equal(t, "2026-08-31T12:30:00Z", s.Timestamp)
	assert.Equal(t, "203.0.113.10", s.Host)
	assert.Equal(t, 4, s.TotalChecks)
	assert.Equal(t, 3, s.Passed)
	assert.Equal(t, 0, s.Failed)
	assert.Equal(t, 1, s.Warnings)
	assert.Equal(t, "PASS", s.Verdict)
}

func TestFormatSummary_ValidJSON(t *testing.T) {
	s := BuildSummary(sampleRecord(), report.Build(nil), time.Now())

	out, err := FormatSummary(s)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "PASS", decoded["verdict"])
	assert.Equal(t, float64(0), decoded["success_rate"])
}
