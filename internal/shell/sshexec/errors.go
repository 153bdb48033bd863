package sshexec

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrAuthFailed       = errors.New("SSH authentication failed")
	ErrConnectionFailed = errors.New("SSH connection failed")
	ErrTimeout          = errors.New("remote command timed out")
	ErrNonZeroExit      = errors.New("remote command exited non-zero")

	// Key file errors
	ErrKeyNotFound   = errors.New("SSH key file not found")
	ErrKeyUnreadable = errors.New("SSH key file is not readable")
)

// ExecError wraps remote execution failures with context.
type ExecError struct {
	Op   string // Operation that failed (run, script, mirror, connect)
	Host string
	Err  error
}

func (e *ExecError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Host, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// NewExecError creates a new ExecError.
func NewExecError(op, host string, err error) *ExecError {
	return &ExecError{Op: op, Host: host, Err: err}
}
