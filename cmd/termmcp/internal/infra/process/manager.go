// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrProcessGone is returned by Signal when the target no longer exists.
	ErrProcessGone = errors.New("process not running")

	// ErrLsofUnavailable is returned by ListeningPorts when lsof is not in PATH.
	ErrLsofUnavailable = errors.New("lsof not found in PATH")
)

// DefaultGracePeriod is how long RunAttached waits after SIGTERM before the
// child is killed on context cancellation.
const DefaultGracePeriod = 2 * time.Second

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Spec describes a child process to launch.
type Spec struct {
	// Name is the executable name or path.
	Name string

	// Args are the command arguments.
	Args []string

	// Dir is the working directory. Empty means the caller's directory.
	Dir string

	// Env is the complete child environment. Nil inherits os.Environ().
	Env []string

	// LogPath receives stdout and stderr of a detached child (append mode).
	// Parent directories are created. Empty discards output.
	LogPath string

	// Stdin, Stdout and Stderr are used by RunAttached. Nil means the
	// corresponding stream of the current process.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// GracePeriod is the SIGTERM to SIGKILL delay RunAttached applies when
	// ctx is cancelled. Zero means DefaultGracePeriod.
	GracePeriod time.Duration
}

// Manager handles external process operations.
//
// # Description
//
// Abstracts every interaction with the operating system's process table so
// lifecycle code can run against MockManager in tests. Covers four needs:
//
//   - short commands whose output is captured (venv, pip, compose ps)
//   - streamed commands (compose logs -f)
//   - long-lived children, either detached or attached to the terminal
//   - liveness, signalling and listening-socket inspection by pid
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Manager interface {
	// Run executes a command and returns its stdout. A non-zero exit is an
	// error that includes trimmed stderr.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunInDir executes a command in dir with env and captures both streams.
	//
	// # Outputs
	//
	//   - stdout, stderr: Captured output.
	//   - exitCode: Process exit code, -1 if it never ran.
	//   - error: Non-nil only if the command could not be started or ctx
	//     ended. A non-zero exit is reported through exitCode alone.
	RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (stdout, stderr string, exitCode int, err error)

	// RunStreaming executes a command in dir, copying stdout and stderr to w
	// until it exits or ctx is cancelled.
	RunStreaming(ctx context.Context, dir string, w io.Writer, name string, args ...string) error

	// RunAttached runs spec in the foreground and blocks until it exits.
	//
	// # Description
	//
	// onStart, if non-nil, is called with the child's pid right after it
	// starts and before Wait. When ctx is cancelled the child receives
	// SIGTERM, then SIGKILL after spec.GracePeriod. An exit caused by ctx
	// cancellation is reported as nil: the operator asked for it.
	RunAttached(ctx context.Context, spec Spec, onStart func(pid int)) error

	// StartDetached launches spec in its own process group with output
	// appended to spec.LogPath, and returns its pid without waiting.
	StartDetached(ctx context.Context, spec Spec) (int, error)

	// LookPath resolves an executable in PATH.
	LookPath(name string) (string, error)

	// IsAlive reports whether pid exists. A process owned by another user
	// counts as alive.
	IsAlive(pid int) bool

	// Signal delivers sig to pid's process group, falling back to pid alone.
	// Returns ErrProcessGone if nothing received it.
	Signal(pid int, sig syscall.Signal) error

	// ListeningPorts returns the TCP ports pid is listening on, in lsof
	// order. Returns ErrLsofUnavailable when lsof is missing.
	ListeningPorts(ctx context.Context, pid int) ([]int, error)
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultManager implements Manager using os/exec and kill(2).
//
// This is the production implementation that executes real processes on the
// system. Use MockManager in tests instead.
type DefaultManager struct {
	lookPath func(string) (string, error)
}

// NewDefaultManager creates a Manager backed by the real OS.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{lookPath: exec.LookPath}
}

// Run executes a command synchronously and returns its output.
func (m *DefaultManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Include stderr in error for debugging
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// RunInDir executes a command in dir and captures stdout, stderr and exit code.
func (m *DefaultManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
		}
		return stdout.String(), stderr.String(), -1, err
	}

	return stdout.String(), stderr.String(), 0, nil
}

// RunStreaming executes a command and streams its combined output to w.
func (m *DefaultManager) RunStreaming(ctx context.Context, dir string, w io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// RunAttached runs spec in the foreground until it exits.
func (m *DefaultManager) RunAttached(ctx context.Context, spec Spec, onStart func(pid int)) error {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	cmd.Stdin = readerOr(spec.Stdin, os.Stdin)
	cmd.Stdout = writerOr(spec.Stdout, os.Stdout)
	cmd.Stderr = writerOr(spec.Stderr, os.Stderr)

	grace := spec.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = grace

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", spec.Name, err)
	}
	if onStart != nil {
		onStart(cmd.Process.Pid)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%s exited: %w", spec.Name, err)
	}
	return nil
}

// StartDetached launches spec in a new process group and returns its pid.
func (m *DefaultManager) StartDetached(ctx context.Context, spec Spec) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// Not CommandContext: the child must outlive this invocation.
	cmd := exec.Command(spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if spec.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0o755); err != nil {
			return 0, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("failed to open log file %s: %w", spec.LogPath, err)
		}
		// The child holds its own descriptor after Start.
		defer f.Close()
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", spec.Name, err)
	}
	pid := cmd.Process.Pid

	// Reap the child if it exits while termmcp is still running, so a
	// crashed server never lingers as a zombie that kill(pid, 0) reports alive.
	go func() { _ = cmd.Wait() }()

	return pid, nil
}

// LookPath resolves an executable in PATH.
func (m *DefaultManager) LookPath(name string) (string, error) {
	return m.lookPath(name)
}

// IsAlive probes pid with signal 0.
func (m *DefaultManager) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Signal delivers sig to pid's process group, or to pid alone.
func (m *DefaultManager) Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if err := unix.Kill(-pid, sig); err == nil {
		return nil
	}
	if err := unix.Kill(pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return ErrProcessGone
		}
		return fmt.Errorf("failed to signal pid %d: %w", pid, err)
	}
	return nil
}

// ListeningPorts asks lsof which TCP ports pid listens on.
func (m *DefaultManager) ListeningPorts(ctx context.Context, pid int) ([]int, error) {
	if _, err := m.lookPath("lsof"); err != nil {
		return nil, ErrLsofUnavailable
	}

	stdout, stderr, code, err := m.RunInDir(ctx, "", nil,
		"lsof", "-Pan", "-p", strconv.Itoa(pid), "-iTCP", "-sTCP:LISTEN", "-Fn")
	if err != nil {
		return nil, fmt.Errorf("lsof failed: %w", err)
	}
	switch code {
	case 0:
		return ParseLsofPorts(stdout), nil
	case 1:
		// lsof exits 1 when nothing matched.
		return nil, nil
	default:
		return nil, fmt.Errorf("lsof exited with code %d: %s", code, strings.TrimSpace(stderr))
	}
}

// ParseLsofPorts extracts port numbers from lsof -F output. Name lines look
// like "n127.0.0.1:8000", "n*:8000" or "n[::1]:8000". Duplicates (one per
// address family) are dropped.
func ParseLsofPorts(output string) []int {
	var ports []int
	seen := make(map[int]bool)

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "n") {
			continue
		}
		idx := strings.LastIndex(line, ":")
		if idx < 0 {
			continue
		}
		port, err := strconv.Atoi(line[idx+1:])
		if err != nil || port <= 0 || port > 65535 || seen[port] {
			continue
		}
		seen[port] = true
		ports = append(ports, port)
	}
	return ports
}

func readerOr(r io.Reader, fallback io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return fallback
}

func writerOr(w io.Writer, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockManager is a test double for Manager.
//
// Configure the mock by setting function fields before use. Unset fields
// fall back to inert defaults: commands succeed with no output, LookPath
// finds everything under /usr/bin, IsAlive reports false and
// StartDetached returns pid 0.
//
// # Examples
//
//	mock := &MockManager{
//	    StartDetachedFunc: func(ctx context.Context, spec Spec) (int, error) {
//	        return 4242, nil
//	    },
//	    IsAliveFunc: func(pid int) bool { return pid == 4242 },
//	}
type MockManager struct {
	RunFunc            func(ctx context.Context, name string, args ...string) ([]byte, error)
	RunInDirFunc       func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error)
	RunStreamingFunc   func(ctx context.Context, dir string, w io.Writer, name string, args ...string) error
	RunAttachedFunc    func(ctx context.Context, spec Spec, onStart func(pid int)) error
	StartDetachedFunc  func(ctx context.Context, spec Spec) (int, error)
	LookPathFunc       func(name string) (string, error)
	IsAliveFunc        func(pid int) bool
	SignalFunc         func(pid int, sig syscall.Signal) error
	ListeningPortsFunc func(ctx context.Context, pid int) ([]int, error)

	// Calls records all method invocations for verification
	Calls []Call

	// mu protects Calls for concurrent access
	mu sync.Mutex
}

// Call records a single method invocation.
type Call struct {
	Method string
	Name   string
	Args   []string
	Spec   Spec
	PID    int
	Signal syscall.Signal
}

func (m *MockManager) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, c)
}

// Run delegates to RunFunc and records the call.
func (m *MockManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.record(Call{Method: "Run", Name: name, Args: args})
	if m.RunFunc == nil {
		return nil, nil
	}
	return m.RunFunc(ctx, name, args...)
}

// RunInDir delegates to RunInDirFunc and records the call.
func (m *MockManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	m.record(Call{Method: "RunInDir", Name: name, Args: args, Spec: Spec{Dir: dir, Env: env}})
	if m.RunInDirFunc == nil {
		return "", "", 0, nil
	}
	return m.RunInDirFunc(ctx, dir, env, name, args...)
}

// RunStreaming delegates to RunStreamingFunc and records the call.
func (m *MockManager) RunStreaming(ctx context.Context, dir string, w io.Writer, name string, args ...string) error {
	m.record(Call{Method: "RunStreaming", Name: name, Args: args, Spec: Spec{Dir: dir}})
	if m.RunStreamingFunc == nil {
		return nil
	}
	return m.RunStreamingFunc(ctx, dir, w, name, args...)
}

// RunAttached delegates to RunAttachedFunc and records the call.
func (m *MockManager) RunAttached(ctx context.Context, spec Spec, onStart func(pid int)) error {
	m.record(Call{Method: "RunAttached", Name: spec.Name, Args: spec.Args, Spec: spec})
	if m.RunAttachedFunc == nil {
		return nil
	}
	return m.RunAttachedFunc(ctx, spec, onStart)
}

// StartDetached delegates to StartDetachedFunc and records the call.
func (m *MockManager) StartDetached(ctx context.Context, spec Spec) (int, error) {
	m.record(Call{Method: "StartDetached", Name: spec.Name, Args: spec.Args, Spec: spec})
	if m.StartDetachedFunc == nil {
		return 0, nil
	}
	return m.StartDetachedFunc(ctx, spec)
}

// LookPath delegates to LookPathFunc and records the call.
func (m *MockManager) LookPath(name string) (string, error) {
	m.record(Call{Method: "LookPath", Name: name})
	if m.LookPathFunc == nil {
		return "/usr/bin/" + name, nil
	}
	return m.LookPathFunc(name)
}

// IsAlive delegates to IsAliveFunc and records the call.
func (m *MockManager) IsAlive(pid int) bool {
	m.record(Call{Method: "IsAlive", PID: pid})
	if m.IsAliveFunc == nil {
		return false
	}
	return m.IsAliveFunc(pid)
}

// Signal delegates to SignalFunc and records the call.
func (m *MockManager) Signal(pid int, sig syscall.Signal) error {
	m.record(Call{Method: "Signal", PID: pid, Signal: sig})
	if m.SignalFunc == nil {
		return nil
	}
	return m.SignalFunc(pid, sig)
}

// ListeningPorts delegates to ListeningPortsFunc and records the call.
func (m *MockManager) ListeningPorts(ctx context.Context, pid int) ([]int, error) {
	m.record(Call{Method: "ListeningPorts", PID: pid})
	if m.ListeningPortsFunc == nil {
		return nil, nil
	}
	return m.ListeningPortsFunc(ctx, pid)
}

// Reset clears all recorded calls.
func (m *MockManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// GetCalls returns a copy of all recorded calls.
func (m *MockManager) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Call, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// CallsTo returns the recorded calls to method, in order.
func (m *MockManager) CallsTo(method string) []Call {
	var out []Call
	for _, c := range m.GetCalls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Compile-time interface compliance check.
var (
	_ Manager = (*DefaultManager)(nil)
	_ Manager = (*MockManager)(nil)
)
