package domain

import "strings"

// =============================================================================
// Deploy Strategy
// =============================================================================

// DeployStrategy selects how the rollout step brings the application up.
type DeployStrategy string

const (
	// StrategyDockerfile builds a single image and runs it detached.
	StrategyDockerfile DeployStrategy = "dockerfile"
	// StrategyCompose brings up a multi-service stack with a rebuild.
	StrategyCompose DeployStrategy = "compose"
)

// IsValid checks if the strategy is one of the supported values.
func (s DeployStrategy) IsValid() bool {
	return s == StrategyDockerfile || s == StrategyCompose
}

// =============================================================================
// Deployment Facts
// =============================================================================

// DeploymentFacts is derived during the deploy pipeline and consumed
// read-only by the validation suite. The pipeline either populates every
// field or aborts; validation never sees a partial value.
type DeploymentFacts struct {
	RepoName      string
	Strategy      DeployStrategy
	RemotePath    string
	ContainerName string
}

// Complete reports whether every fact has been populated.
func (f DeploymentFacts) Complete() bool {
	return f.RepoName != "" && f.Strategy.IsValid() && f.RemotePath != "" && f.ContainerName != ""
}

// SanitizeContainerName lowers the repository name and strips every rune
// that is not a lowercase letter, digit, or hyphen, so the result is a
// valid container name on any runtime.
//
// Example:
//
//	SanitizeContainerName("My_App.v2") // returns "myappv2"
func SanitizeContainerName(repoName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(repoName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
