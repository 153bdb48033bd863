package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipward/internal/core/domain"
	"github.com/artpar/shipward/internal/shell/gitsrc"
	"github.com/artpar/shipward/internal/shell/sshexec"
	"github.com/artpar/shipward/internal/shell/sshexec/sshexectest"
)

// stubResolver returns a fixed source without touching git.
type stubResolver struct {
	source gitsrc.Source
	err    error
}

func (s *stubResolver) Resolve(_ context.Context, _ domain.ParameterSet) (gitsrc.Source, error) {
	return s.source, s.err
}

func testParams() domain.ParameterSet {
	return domain.ParameterSet{
		RepoURL:    "https://github.com/acme/Widget_API.git",
		Token:      "tok",
		Branch:     "main",
		SSHUser:    "deploy",
		Host:       "203.0.113.10",
		SSHKeyPath: "/tmp/key",
		AppPort:    8080,
	}
}

func newTestPipeline(t *testing.T, strategy domain.DeployStrategy) (*Pipeline, *sshexectest.FakeRunner) {
	t.Helper()
	runner := sshexectest.NewFakeRunner("203.0.113.10")
	// A healthy host: everything present, container comes up.
	runner.RespondOutput("docker ps", "widgetapi\nother\n")
	runner.RespondOutput("docker compose ps", "1f9a3c\n")

	p := New(runner, &stubResolver{source: gitsrc.Source{
		LocalPath: t.TempDir(),
		Strategy:  strategy,
	}}, nil)
	p.SettleDelay = 0
	return p, runner
}

// =============================================================================
// Happy Path
// =============================================================================

func TestRun_DockerfileStrategy(t *testing.T) {
	p, runner := newTestPipeline(t, domain.StrategyDockerfile)

	facts, err := p.Run(context.Background(), testParams())
	require.NoError(t, err)

	assert.True(t, facts.Complete())
	assert.Equal(t, "widgetapi", facts.ContainerName)
	assert.Equal(t, "/opt/deployments/widgetapi", facts.RemotePath)
	assert.Equal(t, domain.StrategyDockerfile, facts.Strategy)

	assert.True(t, runner.Ran("docker build -t widgetapi"))
	assert.True(t, runner.Ran("docker run -d --name widgetapi"))
	assert.True(t, runner.Ran("-p 8080:8080"))
	// The compose path must never execute under the dockerfile strategy.
	assert.False(t, runner.Ran("docker compose up"))
}

func TestRun_ComposeStrategy(t *testing.T) {
	p, runner := newTestPipeline(t, domain.StrategyCompose)

	facts, err := p.Run(context.Background(), testParams())
	require.NoError(t, err)

	assert.Equal(t, domain.StrategyCompose, facts.Strategy)
	assert.True(t, runner.Ran("docker compose up -d --build"))
	// The single-image path must never execute under compose.
	assert.False(t, runner.Ran("docker build -t"))
	assert.False(t, runner.Ran("docker run -d"))
}

func TestRun_ComposeVerifiesThroughComposePs(t *testing.T) {
	// Compose containers are named <project>-<service>-N, so the
	// sanitized name never appears in docker ps. The rollout must
	// still succeed when compose reports running services.
	runner := sshexectest.NewFakeRunner("203.0.113.10")
	runner.RespondOutput("docker ps", "widgetapi-web-1\nwidgetapi-db-1\n")
	runner.RespondOutput("docker compose ps", "0a1b2c\n3d4e5f\n")

	p := New(runner, &stubResolver{source: gitsrc.Source{
		LocalPath: t.TempDir(),
		Strategy:  domain.StrategyCompose,
	}}, nil)
	p.SettleDelay = 0

	facts, err := p.Run(context.Background(), testParams())
	require.NoError(t, err)

	assert.True(t, facts.Complete())
	assert.True(t, runner.Ran("cd /opt/deployments/widgetapi && docker compose ps -q"))
}

func TestRun_ComposeNoRunningServicesAborts(t *testing.T) {
	runner := sshexectest.NewFakeRunner("203.0.113.10")
	runner.RespondOutput("docker compose ps", "\n")

	p := New(runner, &stubResolver{source: gitsrc.Source{
		LocalPath: t.TempDir(),
		Strategy:  domain.StrategyCompose,
	}}, nil)
	p.SettleDelay = 0

	_, err := p.Run(context.Background(), testParams())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, ClassRollout, stepErr.Class)
	assert.ErrorIs(t, err, ErrContainerNotRunning)
	assert.False(t, runner.Ran("nginx -t"))
}

func TestRun_TransfersWithExclusions(t *testing.T) {
	p, runner := newTestPipeline(t, domain.StrategyDockerfile)

	_, err := p.Run(context.Background(), testParams())
	require.NoError(t, err)

	require.Len(t, runner.MirrorCalls, 1)
	assert.Equal(t, "/opt/deployments/widgetapi", runner.MirrorCalls[0].RemoteDir)
	assert.Contains(t, runner.MirrorCalls[0].Excludes, ".git")
	assert.Contains(t, runner.MirrorCalls[0].Excludes, "node_modules")
}

func TestRun_ReloadsProxyAfterSyntaxCheck(t *testing.T) {
	p, runner := newTestPipeline(t, domain.StrategyDockerfile)

	_, err := p.Run(context.Background(), testParams())
	require.NoError(t, err)

	assert.True(t, runner.Ran("nginx -t"))
	assert.True(t, runner.Ran("systemctl reload nginx"))
	assert.True(t, runner.Ran("rm -f /etc/nginx/sites-enabled/default"))
}

func TestRun_WritesDeploymentRecord(t *testing.T) {
	p, _ := newTestPipeline(t, domain.StrategyCompose)
	p.RecordDir = t.TempDir()

	_, err := p.Run(context.Background(), testParams())
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(p.RecordDir, "deployment.record"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "CONTAINER_NAME=widgetapi")
	assert.Contains(t, string(content), "DEPLOY_TYPE=compose")
}

// =============================================================================
// Fail-Fast Behaviour
// =============================================================================

func TestRun_SourceFailureAbortsEverything(t *testing.T) {
	runner := sshexectest.NewFakeRunner("203.0.113.10")
	p := New(runner, &stubResolver{err: gitsrc.ErrNoManifest}, nil)
	p.SettleDelay = 0

	facts, err := p.Run(context.Background(), testParams())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, ClassSource, stepErr.Class)
	assert.False(t, facts.Complete())
	assert.Empty(t, runner.Calls, "no remote command may run after a source failure")
}

func TestRun_ConnectivityFailureClass(t *testing.T) {
	p, runner := newTestPipeline(t, domain.StrategyDockerfile)
	runner.RespondFail("true", 255, "connection refused")

	_, err := p.Run(context.Background(), testParams())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, ClassConnectivity, stepErr.Class)
	assert.False(t, runner.Ran("apt-get"), "provisioning must not run after connectivity failure")
}

func TestRun_ConnectivityProbeIsBatch(t *testing.T) {
	p, runner := newTestPipeline(t, domain.StrategyDockerfile)

	_, err := p.Run(context.Background(), testParams())
	require.NoError(t, err)

	for _, call := range runner.Calls {
		if call.Command == "true" {
			assert.True(t, call.Batch, "connectivity probe must run in batch mode")
			return
		}
	}
	t.Fatal("connectivity probe never ran")
}

func TestRun_MissingContainerAbortsBeforeProxy(t *testing.T) {
	// Rollout completes, but the container never shows up in docker ps.
	runner := sshexectest.NewFakeRunner("203.0.113.10")
	runner.RespondOutput("docker ps", "other\n")

	p := New(runner, &stubResolver{source: gitsrc.Source{
		LocalPath: t.TempDir(),
		Strategy:  domain.StrategyDockerfile,
	}}, nil)
	p.SettleDelay = 0

	_, err := p.Run(context.Background(), testParams())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, ClassRollout, stepErr.Class)
	assert.ErrorIs(t, err, ErrContainerNotRunning)
	assert.False(t, runner.Ran("nginx -t"), "no proxy may point at a dead container")
	assert.False(t, runner.Ran("systemctl reload nginx"))
}

func TestRun_ProxySyntaxFailurePreventsReload(t *testing.T) {
	p, runner := newTestPipeline(t, domain.StrategyDockerfile)
	runner.RespondFail("nginx -t", 1, "unexpected end of file")

	_, err := p.Run(context.Background(), testParams())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, ClassProxy, stepErr.Class)
	assert.ErrorIs(t, err, ErrProxySyntax)
	assert.False(t, runner.Ran("systemctl reload nginx"), "a broken config must never be reloaded")
}

func TestRun_ProxyCheckTransportFailureIsNotSyntax(t *testing.T) {
	p, runner := newTestPipeline(t, domain.StrategyDockerfile)
	// The connection drops mid-check; the config itself was never judged.
	runner.Respond("nginx -t", sshexec.RunResult{},
		sshexec.NewExecError("run", runner.HostName, sshexec.ErrConnectionFailed))

	_, err := p.Run(context.Background(), testParams())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, ClassProxy, stepErr.Class)
	assert.NotErrorIs(t, err, ErrProxySyntax)
	assert.ErrorIs(t, err, sshexec.ErrConnectionFailed)
	assert.False(t, runner.Ran("systemctl reload nginx"))
}

func TestRun_TransferFailureClass(t *testing.T) {
	p, runner := newTestPipeline(t, domain.StrategyDockerfile)
	runner.MirrorErr = assert.AnError

	_, err := p.Run(context.Background(), testParams())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, ClassTransfer, stepErr.Class)
	assert.False(t, runner.Ran("docker build"), "rollout must not run after a transfer failure")
}

// =============================================================================
// Provisioning Idempotence
// =============================================================================

func TestRun_SkipsInstallWhenPresent(t *testing.T) {
	p, runner := newTestPipeline(t, domain.StrategyDockerfile)
	// presence probes succeed by default in the fake

	_, err := p.Run(context.Background(), testParams())
	require.NoError(t, err)

	assert.False(t, runner.Ran("apt-get install"))
	// fixups still run unconditionally
	assert.True(t, runner.Ran("usermod -aG docker"))
	assert.True(t, runner.Ran("systemctl enable docker nginx"))
}

func TestRun_InstallsMissingPackages(t *testing.T) {
	p, runner := newTestPipeline(t, domain.StrategyDockerfile)
	runner.RespondFail("command -v docker", 1, "")
	runner.RespondFail("command -v nginx", 1, "")

	_, err := p.Run(context.Background(), testParams())
	require.NoError(t, err)

	assert.True(t, runner.Ran("apt-get update"))
	assert.True(t, runner.Ran("apt-get install -y docker.io"))
	assert.True(t, runner.Ran("apt-get install -y nginx"))
}
