package validate

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/shipward/internal/core/domain"
)

// =============================================================================
// Network Checks
// =============================================================================

func (v *Suite) networkChecks() []check {
	return []check{
		{"container-port", v.checkContainerPort},
		{"proxy-port", v.checkProxyPort},
		{"proxy-syntax", v.checkProxySyntax},
		{"external-reachability", v.checkExternal},
		{"proxy-header", v.checkProxyHeader},
	}
}

// healthyStatus accepts the codes a freshly deployed app legitimately
// answers with: OK or a redirect to its real entry point.
func healthyStatus(code int) bool {
	return code == http.StatusOK || code == http.StatusMovedPermanently || code == http.StatusFound
}

// inHostProbe curls a local port from inside the target host and
// returns the HTTP status code.
func (v *Suite) inHostProbe(ctx context.Context, port int) (int, error) {
	cmd := fmt.Sprintf("curl -s -o /dev/null -w '%%{http_code}' --max-time 8 http://localhost:%d/", port)
	result, err := v.run(ctx, cmd)
	if err != nil {
		return 0, err
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(result.Stdout))
	if convErr != nil {
		return 0, fmt.Errorf("unparseable probe output %q", result.Stdout)
	}
	return code, nil
}

func (v *Suite) checkContainerPort(ctx context.Context, s *state) domain.Result {
	code, err := v.inHostProbe(ctx, s.params.AppPort)
	if err != nil {
		return domain.Fail("container-port", fmt.Sprintf("probe failed: %v", err))
	}
	if code >= 200 && code < 400 {
		return domain.Pass("container-port", fmt.Sprintf("port %d answered %d", s.params.AppPort, code))
	}
	return domain.Fail("container-port", fmt.Sprintf("port %d answered %d", s.params.AppPort, code))
}

func (v *Suite) checkProxyPort(ctx context.Context, s *state) domain.Result {
	code, err := v.inHostProbe(ctx, 80)
	if err != nil {
		return domain.Fail("proxy-port", fmt.Sprintf("probe failed: %v", err))
	}
	if healthyStatus(code) {
		return domain.Pass("proxy-port", fmt.Sprintf("proxy answered %d", code))
	}
	return domain.Fail("proxy-port", fmt.Sprintf("proxy answered %d", code))
}

func (v *Suite) checkProxySyntax(ctx context.Context, s *state) domain.Result {
	if _, err := v.run(ctx, "sudo nginx -t"); err != nil {
		return domain.Fail("proxy-syntax", "proxy configuration failed syntax check")
	}
	return domain.Pass("proxy-syntax", "proxy configuration valid")
}

// =============================================================================
// External Probe
// =============================================================================

// externalProbe is the single HTTP request made from the orchestrating
// machine to the host's public address. Its response is shared with the
// security group, so it runs at most once per suite.
type externalProbe struct {
	status  int
	latency time.Duration
	header  http.Header
	err     error
}

func (v *Suite) externalURL(s *state) string {
	if v.ExternalURL != "" {
		return v.ExternalURL
	}
	return "http://" + s.params.Host + "/"
}

func (v *Suite) fetchExternal(ctx context.Context, s *state) *externalProbe {
	if s.external != nil {
		return s.external
	}

	probe := &externalProbe{}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.externalURL(s), nil)
	if err != nil {
		probe.err = err
	} else {
		start := time.Now()
		resp, err := v.HTTPClient.Do(req)
		probe.latency = time.Since(start)
		if err != nil {
			probe.err = err
		} else {
			probe.status = resp.StatusCode
			probe.header = resp.Header
			resp.Body.Close()
		}
	}

	s.external = probe
	return probe
}

func (v *Suite) checkExternal(ctx context.Context, s *state) domain.Result {
	probe := v.fetchExternal(ctx, s)
	if probe.err != nil {
		return domain.Fail("external-reachability", fmt.Sprintf("host unreachable: %v", probe.err))
	}
	if !healthyStatus(probe.status) {
		return domain.Fail("external-reachability", fmt.Sprintf("answered %d", probe.status))
	}
	if probe.latency > LatencyWarnThreshold {
		return domain.Warn("external-reachability",
			fmt.Sprintf("reachable but slow: %dms", probe.latency.Milliseconds()))
	}
	return domain.Pass("external-reachability",
		fmt.Sprintf("answered %d in %dms", probe.status, probe.latency.Milliseconds()))
}

func (v *Suite) checkProxyHeader(ctx context.Context, s *state) domain.Result {
	probe := v.fetchExternal(ctx, s)
	if probe.err != nil {
		return domain.Warn("proxy-header", "external probe failed, header unknown")
	}
	if server := probe.header.Get("Server"); server != "" {
		return domain.Pass("proxy-header", "Server: "+server)
	}
	return domain.Warn("proxy-header", "no proxy-identifying response header")
}
