package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/shipward/internal/core/proxy"
	"github.com/artpar/shipward/internal/shell/sshexec"
)

// =============================================================================
// Reverse Proxy Configuration
// =============================================================================

// configureProxy renders the site pointing at the published port, backs
// up any pre-existing config, enables the site, and reloads nginx only
// after the full configuration passes its syntax check. A broken config
// must never be served.
func (p *Pipeline) configureProxy(ctx context.Context, r *run) error {
	site := proxy.Site{
		Name:         r.facts.ContainerName,
		UpstreamPort: r.params.AppPort,
	}
	content, err := site.Render()
	if err != nil {
		return err
	}

	available := proxy.AvailablePath(site.Name)
	backup := proxy.BackupPath(site.Name, time.Now())

	// Backup an existing site config before overwriting it.
	backupCmd := fmt.Sprintf("[ ! -f %s ] || sudo cp %s %s", available, available, backup)
	if _, err := p.Runner.Run(ctx, backupCmd, sshexec.Options{Timeout: 30 * time.Second}); err != nil {
		return fmt.Errorf("backup existing site config: %w", err)
	}

	// Site name and port were validated by Render; the config body is
	// transmitted inside a quoted heredoc, never interpolated.
	install := fmt.Sprintf("sudo tee %s > /dev/null <<'SHIPWARD_SITE'\n%sSHIPWARD_SITE\n", available, content) +
		fmt.Sprintf("sudo ln -sf %s %s\n", available, proxy.EnabledPath(site.Name)) +
		"sudo rm -f /etc/nginx/sites-enabled/default\n"
	if _, err := p.Runner.Script(ctx, install, sshexec.Options{Timeout: time.Minute}); err != nil {
		return fmt.Errorf("install site config: %w", err)
	}

	// Only a non-zero exit is a syntax failure; a dropped connection
	// during the check must not be labeled as a broken config.
	if result, err := p.Runner.Run(ctx, "sudo nginx -t", sshexec.Options{Timeout: 30 * time.Second}); err != nil {
		if errors.Is(err, sshexec.ErrNonZeroExit) {
			return fmt.Errorf("%w: %s", ErrProxySyntax, strings.TrimSpace(result.Stderr))
		}
		return fmt.Errorf("proxy syntax check: %w", err)
	}

	if _, err := p.Runner.Run(ctx, "sudo systemctl reload nginx", sshexec.Options{Timeout: 30 * time.Second}); err != nil {
		return fmt.Errorf("reload proxy: %w", err)
	}
	return nil
}
