// Package domain contains the core domain types and validation logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// =============================================================================
// Parameter Errors
// =============================================================================

var (
	ErrRepoURLRequired  = errors.New("repository URL is required")
	ErrRepoURLScheme    = errors.New("repository URL must use http or https")
	ErrTokenRequired    = errors.New("access token is required")
	ErrSSHUserRequired  = errors.New("SSH user is required")
	ErrHostRequired     = errors.New("target host is required")
	ErrHostInvalid      = errors.New("target host is not an IPv4 address or a valid hostname")
	ErrKeyPathRequired  = errors.New("SSH key path is required")
	ErrPortOutOfRange   = errors.New("application port must be between 1024 and 65535")
	ErrBranchHasSpaces  = errors.New("branch name must not contain whitespace")
)

// ParamError wraps a validation failure with the offending field.
type ParamError struct {
	Field string
	Err   error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Err)
}

func (e *ParamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ParameterSet
// =============================================================================

// DefaultBranch is used when no branch is supplied.
const DefaultBranch = "main"

// Port bounds for the published application port. Ports below 1024 are
// reserved for the reverse proxy and system services on the target host.
const (
	MinAppPort = 1024
	MaxAppPort = 65535
)

// ParameterSet is the validated configuration for one deployment run.
// It is collected once before the pipeline starts and never mutated
// afterwards; every stage receives it by value.
type ParameterSet struct {
	RepoURL    string
	Token      string
	Branch     string
	SSHUser    string
	Host       string
	SSHKeyPath string
	AppPort    int
}

// Normalize fills defaulted fields and trims surrounding whitespace.
// Call before Validate.
func (p ParameterSet) Normalize() ParameterSet {
	p.RepoURL = strings.TrimSpace(p.RepoURL)
	p.Branch = strings.TrimSpace(p.Branch)
	p.SSHUser = strings.TrimSpace(p.SSHUser)
	p.Host = strings.TrimSpace(p.Host)
	p.SSHKeyPath = strings.TrimSpace(p.SSHKeyPath)
	if p.Branch == "" {
		p.Branch = DefaultBranch
	}
	return p
}

// Validate checks every field and returns the first violation as a
// *ParamError. Key file existence and permissions are host state, not
// value state, and are checked separately by the SSH layer.
func (p ParameterSet) Validate() error {
	if p.RepoURL == "" {
		return &ParamError{Field: "repo_url", Err: ErrRepoURLRequired}
	}
	u, err := url.Parse(p.RepoURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ParamError{Field: "repo_url", Err: ErrRepoURLScheme}
	}
	if p.Token == "" {
		return &ParamError{Field: "token", Err: ErrTokenRequired}
	}
	if strings.ContainsAny(p.Branch, " \t") {
		return &ParamError{Field: "branch", Err: ErrBranchHasSpaces}
	}
	return p.ValidateRemote()
}

// ValidateRemote checks only the fields needed to reach the host. A
// standalone validation run has no repository to fetch and uses this
// subset.
func (p ParameterSet) ValidateRemote() error {
	if p.SSHUser == "" {
		return &ParamError{Field: "ssh_user", Err: ErrSSHUserRequired}
	}
	if p.Host == "" {
		return &ParamError{Field: "host", Err: ErrHostRequired}
	}
	if !validHost(p.Host) {
		return &ParamError{Field: "host", Err: ErrHostInvalid}
	}
	if p.SSHKeyPath == "" {
		return &ParamError{Field: "ssh_key", Err: ErrKeyPathRequired}
	}
	if p.AppPort < MinAppPort || p.AppPort > MaxAppPort {
		return &ParamError{Field: "port", Err: ErrPortOutOfRange}
	}
	return nil
}

// RepoName derives the local repository name from the URL, dropping any
// trailing ".git" suffix.
func (p ParameterSet) RepoName() string {
	path := strings.TrimSuffix(strings.TrimRight(p.RepoURL, "/"), ".git")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return path
}

// validHost accepts IPv4 literals and RFC 1123 hostnames. Resolution is
// not attempted here; the connectivity probe covers unreachable hosts.
func validHost(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.To4() != nil
	}
	if len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for i, r := range label {
			alnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !alnum && !(r == '-' && i > 0 && i < len(label)-1) {
				return false
			}
		}
	}
	return true
}
