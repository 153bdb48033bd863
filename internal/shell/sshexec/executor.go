// Package sshexec runs commands on the target host over SSH. It is the
// single remote channel every pipeline step and validation check goes
// through.
package sshexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// =============================================================================
// Contract
// =============================================================================

// RunResult is the outcome of one remote command.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Options control a single remote invocation.
type Options struct {
	// Timeout bounds the command; zero means ConfigDefault.
	Timeout time.Duration
	// Batch makes connection and authentication failures immediate:
	// no reconnect attempt, no waiting beyond the timeout. Used by
	// health probes that must fail fast rather than hang.
	Batch bool
}

// Runner is the remote execution contract consumed by the pipeline and
// the validation suite. Implemented by *Executor; tests substitute a
// scripted fake.
type Runner interface {
	Run(ctx context.Context, command string, opts Options) (RunResult, error)
	Script(ctx context.Context, script string, opts Options) (RunResult, error)
	Mirror(ctx context.Context, localDir, remoteDir string, excludes []string) error
	Host() string
	Close() error
}

// =============================================================================
// SSH Executor
// =============================================================================

// Config configures the SSH executor.
type Config struct {
	Port           int           // Default: 22
	CommandTimeout time.Duration // Default: 60 seconds
	ConnectTimeout time.Duration // Default: 10 seconds
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Port:           22,
		CommandTimeout: 60 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

// Executor executes commands on one remote host over SSH. A single
// connection is kept and re-established when it dies.
type Executor struct {
	user   string
	host   string
	signer ssh.Signer
	config Config

	client *ssh.Client
	mu     sync.Mutex // Protects client
}

var _ Runner = (*Executor)(nil)

// NewExecutor creates an executor for user@host using the private key at
// keyPath. The key file must already have secure permissions; call
// EnsureKeyMode first.
func NewExecutor(user, host, keyPath string, config Config) (*Executor, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewExecError("load-key", host, ErrKeyNotFound)
		}
		return nil, NewExecError("load-key", host, fmt.Errorf("%w: %v", ErrKeyUnreadable, err))
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, NewExecError("load-key", host, fmt.Errorf("parse SSH private key: %w", err))
	}

	if config.Port == 0 {
		config.Port = 22
	}
	if config.CommandTimeout == 0 {
		config.CommandTimeout = 60 * time.Second
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	return &Executor{
		user:   user,
		host:   host,
		signer: signer,
		config: config,
	}, nil
}

// Host returns the target host.
func (e *Executor) Host() string {
	return e.host
}

// connect establishes the SSH connection if not already connected.
func (e *Executor) connect(timeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		// Check if connection is still alive
		_, _, err := e.client.SendRequest("keepalive@shipward", true, nil)
		if err == nil {
			return nil
		}
		// Connection dead, reconnect
		e.client.Close()
		e.client = nil
	}

	if timeout == 0 {
		timeout = e.config.ConnectTimeout
	}

	config := &ssh.ClientConfig{
		User:            e.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(e.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: Store and verify host keys
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(e.host, strconv.Itoa(e.config.Port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		if strings.Contains(err.Error(), "unable to authenticate") {
			return NewExecError("connect", e.host, fmt.Errorf("%w: %v", ErrAuthFailed, err))
		}
		return NewExecError("connect", e.host, fmt.Errorf("%w: %v", ErrConnectionFailed, err))
	}

	e.client = client
	return nil
}

// Close closes the SSH connection.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		err := e.client.Close()
		e.client = nil
		return err
	}
	return nil
}

// =============================================================================
// Command Execution
// =============================================================================

// Run executes a single command on the remote host and returns its exit
// status and output. A non-zero exit is returned as a RunResult together
// with an ErrNonZeroExit-wrapped error; the caller decides whether that
// is fatal. Connection and timeout failures carry a zero RunResult.
func (e *Executor) Run(ctx context.Context, command string, opts Options) (RunResult, error) {
	return e.exec(ctx, command, nil, opts)
}

// Script executes a multi-line command block through the remote shell,
// streaming the script over stdin. This replaces heredoc-embedded remote
// scripts: the block is transmitted verbatim, never interpolated into a
// command line.
func (e *Executor) Script(ctx context.Context, script string, opts Options) (RunResult, error) {
	return e.exec(ctx, "bash -s", strings.NewReader(script), opts)
}

func (e *Executor) exec(ctx context.Context, command string, stdin *strings.Reader, opts Options) (RunResult, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = e.config.CommandTimeout
	}

	connectTimeout := e.config.ConnectTimeout
	if opts.Batch && timeout < connectTimeout {
		connectTimeout = timeout
	}

	if err := e.connect(connectTimeout); err != nil {
		return RunResult{}, err
	}

	e.mu.Lock()
	session, err := e.client.NewSession()
	e.mu.Unlock()
	if err != nil {
		return RunResult{}, NewExecError("session", e.host, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		return RunResult{}, NewExecError("run", e.host, ctx.Err())
	case <-time.After(timeout):
		return RunResult{}, NewExecError("run", e.host, fmt.Errorf("%w after %v", ErrTimeout, timeout))
	case err := <-done:
		result := RunResult{
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
		if err == nil {
			return result, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, NewExecError("run", e.host,
				fmt.Errorf("%w: status %d", ErrNonZeroExit, result.ExitCode))
		}
		return result, NewExecError("run", e.host, err)
	}
}
