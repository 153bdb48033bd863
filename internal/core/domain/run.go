package domain

import "time"

// =============================================================================
// Run Record
// =============================================================================

// RunRecord captures everything worth keeping about one orchestration
// run: the parameters it ran with, the facts the pipeline derived, and
// the validation tally. Persisted to the run-history store and to the
// flat deployment record file.
type RunRecord struct {
	ID            string
	StartedAt     time.Time
	Host          string
	SSHUser       string
	SSHKeyPath    string
	AppPort       int
	RepoName      string
	ContainerName string
	DeployType    DeployStrategy
	RemotePath    string
	LogPath       string
	Passed        int
	Failed        int
	Warned        int
	Verdict       string
	ExitCode      int
}

// NewRunRecord seeds a record from the parameters and facts of a
// completed deployment. Validation fields are filled in later by the
// orchestrator.
func NewRunRecord(id string, startedAt time.Time, params ParameterSet, facts DeploymentFacts, logPath string) RunRecord {
	return RunRecord{
		ID:            id,
		StartedAt:     startedAt,
		Host:          params.Host,
		SSHUser:       params.SSHUser,
		SSHKeyPath:    params.SSHKeyPath,
		AppPort:       params.AppPort,
		RepoName:      facts.RepoName,
		ContainerName: facts.ContainerName,
		DeployType:    facts.Strategy,
		RemotePath:    facts.RemotePath,
		LogPath:       logPath,
	}
}
