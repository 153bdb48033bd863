package validate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipward/internal/core/domain"
	"github.com/artpar/shipward/internal/core/report"
	"github.com/artpar/shipward/internal/shell/sshexec/sshexectest"
)

func testParams(t *testing.T) domain.ParameterSet {
	t.Helper()
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, []byte("key"), 0o600))
	return domain.ParameterSet{
		RepoURL:    "https://github.com/acme/widget-api.git",
		Token:      "tok",
		Branch:     "main",
		SSHUser:    "deploy",
		Host:       "203.0.113.10",
		SSHKeyPath: keyPath,
		AppPort:    8080,
	}
}

func testFacts() domain.DeploymentFacts {
	return domain.DeploymentFacts{
		RepoName:      "widget-api",
		Strategy:      domain.StrategyDockerfile,
		RemotePath:    "/opt/deployments/widget-api",
		ContainerName: "widget-api",
	}
}

// healthyRunner scripts a fully healthy host.
func healthyRunner() *sshexectest.FakeRunner {
	r := sshexectest.NewFakeRunner("203.0.113.10")
	r.RespondOutput("systemctl is-active docker", "active\n")
	r.RespondOutput("systemctl is-active nginx", "active\n")
	r.RespondOutput("docker ps", "widget-api\n")
	r.RespondOutput("State.Status", "running\n")
	r.RespondOutput("grep -ciE", "0\n")
	r.RespondOutput("http://localhost:8080", "200")
	r.RespondOutput("http://localhost:80", "200")
	r.RespondOutput("df --output=pcent", "42\n")
	r.RespondOutput("free |", "55")
	r.RespondOutput("whoami", "appuser\n")
	r.RespondOutput("docker stats", "0.5% 24MiB / 1GiB\n")
	return r
}

// secureServer mimics a proxied app with hardened headers.
func secureServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Server", "nginx/1.24.0")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSuite(runner *sshexectest.FakeRunner, externalURL string) *Suite {
	s := New(runner, nil)
	s.ExternalURL = externalURL
	return s
}

func byCheck(results []domain.Result, name string) (domain.Result, bool) {
	for _, r := range results {
		if r.Check == name {
			return r, true
		}
	}
	return domain.Result{}, false
}

// =============================================================================
// Full Suite
// =============================================================================

func TestRun_HealthyDeployment(t *testing.T) {
	srv := secureServer(t)
	suite := newSuite(healthyRunner(), srv.URL)

	results, escalated := suite.Run(context.Background(), testParams(t), testFacts())

	assert.False(t, escalated)
	rep := report.Build(results)
	assert.Equal(t, 0, rep.Failed, "results: %+v", results)
	assert.Equal(t, rep.Total, rep.Passed+rep.Warned)
	assert.Equal(t, report.VerdictPass, rep.Verdict())

	// every group contributed
	for _, name := range []string{
		"docker-active", "container-running", "log-scan",
		"container-port", "proxy-port", "external-reachability",
		"disk-usage", "memory-usage",
		"header-frame-options", "container-user", "key-permissions",
	} {
		_, ok := byCheck(results, name)
		assert.True(t, ok, "missing check %s", name)
	}
}

func TestRun_EscalatesWhenContainerMissing(t *testing.T) {
	runner := sshexectest.NewFakeRunner("203.0.113.10")
	runner.RespondOutput("systemctl is-active docker", "active\n")
	runner.RespondOutput("systemctl is-active nginx", "active\n")
	runner.RespondOutput("docker ps", "something-else\n")

	suite := newSuite(runner, "http://127.0.0.1:1/")

	results, escalated := suite.Run(context.Background(), testParams(t), testFacts())

	assert.True(t, escalated)
	// only the service group up to the escalation ran
	assert.Len(t, results, 3)
	last := results[len(results)-1]
	assert.Equal(t, "container-running", last.Check)
	assert.Equal(t, domain.KindFail, last.Kind)

	_, ranNetwork := byCheck(results, "container-port")
	assert.False(t, ranNetwork, "network group must be skipped after escalation")
}

func TestRun_ChecksContinueAfterFailures(t *testing.T) {
	srv := secureServer(t)

	// daemons down, but the container itself is fine
	runner := sshexectest.NewFakeRunner("203.0.113.10")
	runner.RespondFail("systemctl is-active docker", 3, "")
	runner.RespondFail("systemctl is-active nginx", 3, "")
	runner.RespondOutput("docker ps", "widget-api\n")
	runner.RespondOutput("State.Status", "running\n")
	runner.RespondOutput("grep -ciE", "0\n")
	runner.RespondOutput("http://localhost", "200")
	runner.RespondOutput("df --output=pcent", "42\n")
	runner.RespondOutput("free |", "55")
	runner.RespondOutput("whoami", "appuser\n")
	suite := newSuite(runner, srv.URL)

	results, escalated := suite.Run(context.Background(), testParams(t), testFacts())

	assert.False(t, escalated)
	rep := report.Build(results)
	assert.Equal(t, 2, rep.Failed)
	// later groups still ran despite the early failures
	_, ranSecurity := byCheck(results, "key-permissions")
	assert.True(t, ranSecurity)
}

// =============================================================================
// Individual Checks
// =============================================================================

func TestContainerRunning_ComposeServiceNames(t *testing.T) {
	// Compose names containers <project>-<service>-N; the sanitized
	// name never appears verbatim but the check must still pass.
	runner := sshexectest.NewFakeRunner("203.0.113.10")
	runner.RespondOutput("docker ps", "widget-api-web-1\nwidget-api-db-1\n")

	facts := testFacts()
	facts.Strategy = domain.StrategyCompose
	suite := newSuite(runner, "")

	res := suite.checkContainerRunning(context.Background(), &state{facts: facts})

	assert.Equal(t, domain.KindPass, res.Kind)
}

func TestContainerRunning_ComposePrefixIsExact(t *testing.T) {
	runner := sshexectest.NewFakeRunner("203.0.113.10")
	// A different project sharing most of the name must not match.
	runner.RespondOutput("docker ps", "widget-api2-web-1\nwidget-apix\n")

	facts := testFacts()
	facts.Strategy = domain.StrategyCompose
	suite := newSuite(runner, "")

	res := suite.checkContainerRunning(context.Background(), &state{facts: facts})

	assert.Equal(t, domain.KindFail, res.Kind)
}

func TestContainerState_ComposeResolvesServiceContainer(t *testing.T) {
	runner := sshexectest.NewFakeRunner("203.0.113.10")
	runner.RespondOutput("State.Status", "running\n")

	facts := testFacts()
	facts.Strategy = domain.StrategyCompose
	suite := newSuite(runner, "")

	res := suite.checkContainerState(context.Background(), &state{facts: facts})

	require.Equal(t, domain.KindPass, res.Kind)
	assert.True(t, runner.Ran("docker compose ps -q | head -n1"),
		"compose probes must resolve the service container, not the project name")
}

func TestLogScan_WarnsOnErrorMarkers(t *testing.T) {
	runner := sshexectest.NewFakeRunner("203.0.113.10")
	runner.RespondOutput("grep -ciE", "7\n")

	suite := newSuite(runner, "")
	res := suite.checkRecentLogs(context.Background(), &state{facts: testFacts()})

	assert.Equal(t, domain.KindWarn, res.Kind)
	assert.Contains(t, res.Message, "7 error markers")
}

func TestDiskUsage_Thresholds(t *testing.T) {
	tests := []struct {
		pcent string
		want  domain.ResultKind
	}{
		{"10", domain.KindPass},
		{"79", domain.KindPass},
		{"80", domain.KindWarn},
		{"89", domain.KindWarn},
		{"90", domain.KindFail},
		{"97", domain.KindFail},
	}

	for _, tt := range tests {
		t.Run(tt.pcent, func(t *testing.T) {
			runner := sshexectest.NewFakeRunner("h")
			runner.RespondOutput("df --output=pcent", tt.pcent+"\n")
			suite := newSuite(runner, "")

			res := suite.checkDiskUsage(context.Background(), &state{facts: testFacts()})
			assert.Equal(t, tt.want, res.Kind)
		})
	}
}

func TestMemoryUsage_Thresholds(t *testing.T) {
	tests := []struct {
		pcent string
		want  domain.ResultKind
	}{
		{"45", domain.KindPass},
		{"89", domain.KindPass},
		{"90", domain.KindWarn},
		{"99", domain.KindWarn},
	}

	for _, tt := range tests {
		runner := sshexectest.NewFakeRunner("h")
		runner.RespondOutput("free |", tt.pcent)
		suite := newSuite(runner, "")

		res := suite.checkMemoryUsage(context.Background(), &state{facts: testFacts()})
		assert.Equal(t, tt.want, res.Kind, "pcent %s", tt.pcent)
	}
}

func TestContainerUser_RootWarns(t *testing.T) {
	runner := sshexectest.NewFakeRunner("h")
	runner.RespondOutput("whoami", "root\n")
	suite := newSuite(runner, "")

	res := suite.checkContainerUser(context.Background(), &state{facts: testFacts()})

	assert.Equal(t, domain.KindWarn, res.Kind)
	assert.Contains(t, res.Message, "root")
}

func TestKeyPermissions_LooseModeWarns(t *testing.T) {
	params := testParams(t)
	require.NoError(t, os.Chmod(params.SSHKeyPath, 0o644))

	suite := newSuite(sshexectest.NewFakeRunner("h"), "")
	res := suite.checkKeyPermissions(context.Background(), &state{params: params})

	assert.Equal(t, domain.KindWarn, res.Kind)
}

func TestExternal_MissingHeadersWarn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	suite := newSuite(sshexectest.NewFakeRunner("h"), srv.URL)
	s := &state{params: domain.ParameterSet{Host: "h"}, facts: testFacts()}

	frame := suite.checkFrameOptions(context.Background(), s)
	sniff := suite.checkContentTypeOptions(context.Background(), s)

	assert.Equal(t, domain.KindWarn, frame.Kind)
	assert.Equal(t, domain.KindWarn, sniff.Kind)
}

func TestExternal_UnreachableFails(t *testing.T) {
	suite := newSuite(sshexectest.NewFakeRunner("h"), "http://127.0.0.1:1/")
	s := &state{params: domain.ParameterSet{Host: "127.0.0.1"}, facts: testFacts()}

	res := suite.checkExternal(context.Background(), s)

	assert.Equal(t, domain.KindFail, res.Kind)
}

func TestExternal_ProbeRunsOnce(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	suite := newSuite(sshexectest.NewFakeRunner("h"), srv.URL)
	s := &state{params: domain.ParameterSet{Host: "h"}, facts: testFacts()}

	suite.checkExternal(context.Background(), s)
	suite.checkProxyHeader(context.Background(), s)
	suite.checkFrameOptions(context.Background(), s)

	assert.Equal(t, 1, hits)
}
