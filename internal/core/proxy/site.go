// Package proxy provides pure functions for rendering the reverse-proxy
// site configuration. This package has no I/O dependencies and is tested
// with values in/out.
package proxy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrInvalidPort     = errors.New("upstream port must be between 1 and 65535")
	ErrSiteNameEmpty   = errors.New("site name is required")
	ErrSiteNameInvalid = errors.New("site name must contain only lowercase letters, digits, and hyphens")
)

// =============================================================================
// Site Rendering
// =============================================================================

// Site describes one reverse-proxy server block pointing at a local
// upstream port.
type Site struct {
	// Name is the site file name, usually the sanitized container name.
	Name string
	// UpstreamPort is the host port the container publishes.
	UpstreamPort int
	// ServerName is the value for the server_name directive. Empty
	// renders a catch-all underscore.
	ServerName string
}

// Validate checks the site fields before rendering.
func (s Site) Validate() error {
	if s.Name == "" {
		return ErrSiteNameEmpty
	}
	for _, r := range s.Name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return ErrSiteNameInvalid
		}
	}
	if s.UpstreamPort < 1 || s.UpstreamPort > 65535 {
		return ErrInvalidPort
	}
	return nil
}

// Render produces the full nginx server block for the site: traffic on
// port 80 is forwarded to localhost:<port> with websocket upgrade and
// forwarding headers, and baseline security response headers are set on
// every response.
func (s Site) Render() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	serverName := s.ServerName
	if serverName == "" {
		serverName = "_"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "server {\n")
	fmt.Fprintf(&b, "    listen 80;\n")
	fmt.Fprintf(&b, "    server_name %s;\n\n", serverName)
	fmt.Fprintf(&b, "    location / {\n")
	fmt.Fprintf(&b, "        proxy_pass http://localhost:%d;\n", s.UpstreamPort)
	fmt.Fprintf(&b, "        proxy_http_version 1.1;\n")
	fmt.Fprintf(&b, "        proxy_set_header Upgrade $http_upgrade;\n")
	fmt.Fprintf(&b, "        proxy_set_header Connection 'upgrade';\n")
	fmt.Fprintf(&b, "        proxy_set_header Host $host;\n")
	fmt.Fprintf(&b, "        proxy_set_header X-Real-IP $remote_addr;\n")
	fmt.Fprintf(&b, "        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;\n")
	fmt.Fprintf(&b, "        proxy_set_header X-Forwarded-Proto $scheme;\n")
	fmt.Fprintf(&b, "        proxy_cache_bypass $http_upgrade;\n")
	fmt.Fprintf(&b, "    }\n\n")
	fmt.Fprintf(&b, "    add_header X-Frame-Options \"SAMEORIGIN\" always;\n")
	fmt.Fprintf(&b, "    add_header X-Content-Type-Options \"nosniff\" always;\n")
	fmt.Fprintf(&b, "    add_header X-XSS-Protection \"1; mode=block\" always;\n")
	fmt.Fprintf(&b, "}\n")
	return b.String(), nil
}

// AvailablePath returns the sites-available path for a site name.
func AvailablePath(name string) string {
	return "/etc/nginx/sites-available/" + name
}

// EnabledPath returns the sites-enabled path for a site name.
func EnabledPath(name string) string {
	return "/etc/nginx/sites-enabled/" + name
}

// BackupPath returns the timestamped backup path for a pre-existing
// site config.
func BackupPath(name string, now time.Time) string {
	return fmt.Sprintf("%s.bak.%s", AvailablePath(name), now.Format("20060102-150405"))
}
