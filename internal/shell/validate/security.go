package validate

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/artpar/shipward/internal/core/domain"
	"github.com/artpar/shipward/internal/shell/sshexec"
)

// =============================================================================
// Security Checks
// =============================================================================

func (v *Suite) securityChecks() []check {
	return []check{
		{"header-frame-options", v.checkFrameOptions},
		{"header-content-type-options", v.checkContentTypeOptions},
		{"container-user", v.checkContainerUser},
		{"key-permissions", v.checkKeyPermissions},
	}
}

// Missing security headers are warnings, not failures: the deployment
// works, it is just not hardened.

func (v *Suite) checkFrameOptions(ctx context.Context, s *state) domain.Result {
	return v.checkHeader(ctx, s, "header-frame-options", "X-Frame-Options", "clickjacking protection")
}

func (v *Suite) checkContentTypeOptions(ctx context.Context, s *state) domain.Result {
	return v.checkHeader(ctx, s, "header-content-type-options", "X-Content-Type-Options", "content-type sniffing protection")
}

func (v *Suite) checkHeader(ctx context.Context, s *state, name, header, what string) domain.Result {
	probe := v.fetchExternal(ctx, s)
	if probe.err != nil {
		return domain.Warn(name, "external probe failed, header unknown")
	}
	if value := probe.header.Get(header); value != "" {
		return domain.Pass(name, fmt.Sprintf("%s: %s", header, value))
	}
	return domain.Warn(name, what+" header missing")
}

func (v *Suite) checkContainerUser(ctx context.Context, s *state) domain.Result {
	cmd := fmt.Sprintf("docker exec %s whoami 2>/dev/null || echo unknown", containerRef(s.facts))
	result, err := v.run(ctx, cmd)
	if err != nil {
		return domain.Warn("container-user", "could not determine container user")
	}
	user := strings.TrimSpace(result.Stdout)
	if user == "root" {
		return domain.Warn("container-user", "container runs as root")
	}
	return domain.Pass("container-user", "container runs as "+user)
}

// checkKeyPermissions re-validates the key file after the parameter
// phase corrected it; a loose mode here means something outside the run
// changed it.
func (v *Suite) checkKeyPermissions(ctx context.Context, s *state) domain.Result {
	info, err := os.Stat(s.params.SSHKeyPath)
	if err != nil {
		return domain.Warn("key-permissions", fmt.Sprintf("could not stat key file: %v", err))
	}
	if sshexec.KeyModeSecure(info.Mode()) {
		return domain.Pass("key-permissions", fmt.Sprintf("mode %o", info.Mode().Perm()))
	}
	return domain.Warn("key-permissions", fmt.Sprintf("insecure mode %o", info.Mode().Perm()))
}
