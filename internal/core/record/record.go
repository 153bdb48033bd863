// Package record formats run records for the persisted artifacts: the
// flat key=value deployment record and the JSON validation summary.
// This is part of the Functional Core - all functions are pure with no I/O.
package record

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/shipward/internal/core/domain"
	"github.com/artpar/shipward/internal/core/report"
)

// =============================================================================
// Deployment Record
// =============================================================================

// FormatDeployment renders the flat key=value record captured after a
// successful deployment, one key per line, in a stable order.
func FormatDeployment(rec domain.RunRecord) string {
	var b strings.Builder
	write := func(k, v string) { fmt.Fprintf(&b, "%s=%s\n", k, v) }

	write("RUN_ID", rec.ID)
	write("TIMESTAMP", rec.StartedAt.UTC().Format(time.RFC3339))
	write("HOST", rec.Host)
	write("SSH_USER", rec.SSHUser)
	write("SSH_KEY", rec.SSHKeyPath)
	write("APP_PORT", fmt.Sprintf("%d", rec.AppPort))
	write("CONTAINER_NAME", rec.ContainerName)
	write("REPO_NAME", rec.RepoName)
	write("DEPLOY_TYPE", string(rec.DeployType))
	write("REMOTE_PATH", rec.RemotePath)
	write("LOG_FILE", rec.LogPath)
	return b.String()
}

// =============================================================================
// Validation Summary
// =============================================================================

// Summary is the machine-readable validation summary.
type Summary struct {
	Timestamp     string  `json:"timestamp"`
	Host          string  `json:"host"`
	ContainerName string  `json:"container_name"`
	TotalChecks   int     `json:"total_checks"`
	Passed        int     `json:"passed"`
	Failed        int     `json:"failed"`
	Warnings      int     `json:"warnings"`
	SuccessRate   float64 `json:"success_rate"`
	Verdict       string  `json:"verdict"`
}

// BuildSummary assembles the summary from a run record and its report.
func BuildSummary(rec domain.RunRecord, rep report.Report, now time.Time) Summary {
	return Summary{
		Timestamp:     now.UTC().Format(time.RFC3339),
		Host:          rec.Host,
		ContainerName: rec.ContainerName,
		TotalChecks:   rep.Total,
		Passed:        rep.Passed,
		Failed:        rep.Failed,
		Warnings:      rep.Warned,
		SuccessRate:   rep.SuccessRate,
		Verdict:       rep.Verdict(),
	}
}

// FormatSummary renders the summary as indented JSON.
func FormatSummary(s Summary) (string, error) {
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	return string(out) + "\n", nil
}
