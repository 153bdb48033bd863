// Package sshexectest provides a scripted in-memory Runner for tests.
// No network I/O; responses are matched against command substrings in
// registration order.
package sshexectest

import (
	"context"
	"strings"
	"sync"

	"github.com/artpar/shipward/internal/shell/sshexec"
)

// Call records one executed command.
type Call struct {
	Command string
	Script  bool
	Batch   bool
}

// MirrorCall records one directory transfer.
type MirrorCall struct {
	LocalDir  string
	RemoteDir string
	Excludes  []string
}

type rule struct {
	substr string
	result sshexec.RunResult
	err    error
}

// FakeRunner is a scripted sshexec.Runner. Unmatched commands succeed
// with empty output, so tests only script the commands they care about.
type FakeRunner struct {
	HostName string

	mu          sync.Mutex
	rules       []rule
	Calls       []Call
	MirrorCalls []MirrorCall
	MirrorErr   error
}

var _ sshexec.Runner = (*FakeRunner)(nil)

// NewFakeRunner creates a fake runner for the given host name.
func NewFakeRunner(host string) *FakeRunner {
	return &FakeRunner{HostName: host}
}

// Respond registers a response for any command containing substr.
// Earlier registrations win.
func (f *FakeRunner) Respond(substr string, result sshexec.RunResult, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{substr: substr, result: result, err: err})
	return f
}

// RespondOutput registers a successful response with the given stdout.
func (f *FakeRunner) RespondOutput(substr, stdout string) *FakeRunner {
	return f.Respond(substr, sshexec.RunResult{Stdout: stdout}, nil)
}

// RespondFail registers a non-zero exit for commands containing substr.
func (f *FakeRunner) RespondFail(substr string, exitCode int, stderr string) *FakeRunner {
	return f.Respond(substr,
		sshexec.RunResult{ExitCode: exitCode, Stderr: stderr},
		sshexec.NewExecError("run", f.HostName, sshexec.ErrNonZeroExit))
}

func (f *FakeRunner) dispatch(command string, script, batch bool) (sshexec.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Command: command, Script: script, Batch: batch})
	for _, r := range f.rules {
		if strings.Contains(command, r.substr) {
			return r.result, r.err
		}
	}
	return sshexec.RunResult{}, nil
}

// Run implements sshexec.Runner.
func (f *FakeRunner) Run(_ context.Context, command string, opts sshexec.Options) (sshexec.RunResult, error) {
	return f.dispatch(command, false, opts.Batch)
}

// Script implements sshexec.Runner.
func (f *FakeRunner) Script(_ context.Context, script string, opts sshexec.Options) (sshexec.RunResult, error) {
	return f.dispatch(script, true, opts.Batch)
}

// Mirror implements sshexec.Runner.
func (f *FakeRunner) Mirror(_ context.Context, localDir, remoteDir string, excludes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MirrorCalls = append(f.MirrorCalls, MirrorCall{LocalDir: localDir, RemoteDir: remoteDir, Excludes: excludes})
	return f.MirrorErr
}

// Host implements sshexec.Runner.
func (f *FakeRunner) Host() string {
	return f.HostName
}

// Close implements sshexec.Runner.
func (f *FakeRunner) Close() error {
	return nil
}

// Ran reports whether any executed command contains substr.
func (f *FakeRunner) Ran(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Calls {
		if strings.Contains(c.Command, substr) {
			return true
		}
	}
	return false
}
